// Package cli implements the eventroster command line.
package cli

import (
	"fmt"
	"io"
	"log/slog"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/eventroster/backend/internal/config"
)

// RootOptions holds global flags for all commands.
type RootOptions struct {
	ConfigFile string
	Version    string

	v      *viper.Viper
	cfg    *config.Config
	logger *slog.Logger
}

// NewRootCommand creates the root command.
func NewRootCommand(version string) *cobra.Command {
	opts := &RootOptions{Version: version, v: viper.New()}

	cmd := &cobra.Command{
		Use:   "eventroster",
		Short: "Event roster and attendance server",
		Long: `eventroster keeps a local copy of an external event feed in sync and
records member check-ins against those events.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return opts.load(cmd.ErrOrStderr())
		},
	}

	flags := cmd.PersistentFlags()
	flags.StringVarP(&opts.ConfigFile, "config", "c", "", "config file (yaml, json or toml)")
	flags.String("addr", "", "HTTP server address")
	flags.String("data-dir", "", "data directory for the SQLite database")
	flags.String("log-level", "", "log level (debug|info|warn|error)")
	flags.String("log-format", "", "log format (text|json)")
	flags.String("feed", "", "feed source (none|graph|ical)")

	bindFlag(opts.v, "addr", flags.Lookup("addr"))
	bindFlag(opts.v, "data_dir", flags.Lookup("data-dir"))
	bindFlag(opts.v, "log.level", flags.Lookup("log-level"))
	bindFlag(opts.v, "log.format", flags.Lookup("log-format"))
	bindFlag(opts.v, "feed.source", flags.Lookup("feed"))

	cmd.AddCommand(NewServeCommand(opts))
	cmd.AddCommand(NewSyncCommand(opts))
	cmd.AddCommand(NewMigrateCommand(opts))
	cmd.AddCommand(NewHealthCheckCommand(opts))
	cmd.AddCommand(NewVersionCommand(opts))

	return cmd
}

// load reads the configuration once flags are parsed.
func (o *RootOptions) load(stderr io.Writer) error {
	cfg, err := config.Load(o.v, o.ConfigFile)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	o.cfg = cfg
	o.logger = cfg.Log.NewLogger(stderr)
	slog.SetDefault(o.logger)
	return nil
}

// NewVersionCommand prints the build version.
func NewVersionCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version",
		Args:  cobra.NoArgs,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return nil
		},
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintln(cmd.OutOrStdout(), opts.Version)
		},
	}
}
