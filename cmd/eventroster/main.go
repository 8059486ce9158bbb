// Package main is the entry point for the eventroster server.
package main

import (
	"context"
	"fmt"
	"os"

	"github.com/eventroster/backend/internal/cli"
)

// version is set at build time via -ldflags "-X main.version=x.y.z".
var version = "dev"

func main() {
	if envVer := os.Getenv("VERSION"); envVer != "" {
		version = envVer
	}

	if err := cli.NewRootCommand(version).ExecuteContext(context.Background()); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
