package config

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	chdir(t, t.TempDir())

	cfg, err := Load(viper.New(), "")
	require.NoError(t, err)

	assert.Equal(t, ":8099", cfg.Addr)
	assert.Equal(t, "sqlite3", cfg.Database.Driver)
	assert.Equal(t, FeedNone, cfg.Feed.Source)
	assert.Equal(t, 1000, cfg.Feed.Graph.PageSize)
	assert.Equal(t, 15*time.Minute, cfg.Sync.Interval)
	assert.Equal(t, 365*24*time.Hour, cfg.Sync.Lookback)
	assert.Equal(t, 5*time.Minute, cfg.Redis.LockTTL)
	assert.Equal(t, filepath.Join("data", "eventroster.db"), cfg.SQLitePath())
}

func TestLoad_Environment(t *testing.T) {
	chdir(t, t.TempDir())
	t.Setenv("EVENTROSTER_FEED_SOURCE", "graph")
	t.Setenv("EVENTROSTER_FEED_GRAPH_PAGE", "purduehackers")
	t.Setenv("EVENTROSTER_FEED_GRAPH_ACCESS_TOKEN", "token")
	t.Setenv("EVENTROSTER_SYNC_INTERVAL", "5m")
	t.Setenv("EVENTROSTER_REDIS_ADDR", "localhost:6379")

	cfg, err := Load(viper.New(), "")
	require.NoError(t, err)

	assert.Equal(t, FeedGraph, cfg.Feed.Source)
	assert.Equal(t, "purduehackers", cfg.Feed.Graph.Page)
	assert.Equal(t, "token", cfg.Feed.Graph.AccessToken)
	assert.Equal(t, 5*time.Minute, cfg.Sync.Interval)
	assert.Equal(t, "localhost:6379", cfg.Redis.Addr)
}

func TestLoad_DotEnv(t *testing.T) {
	dir := t.TempDir()
	chdir(t, dir)
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".env"), []byte("EVENTROSTER_ADDR=:9000\n"), 0644))
	t.Cleanup(func() { os.Unsetenv("EVENTROSTER_ADDR") })

	cfg, err := Load(viper.New(), "")
	require.NoError(t, err)
	assert.Equal(t, ":9000", cfg.Addr)
}

func TestLoad_ConfigFile(t *testing.T) {
	dir := t.TempDir()
	chdir(t, dir)
	path := filepath.Join(dir, "eventroster.yaml")
	content := `
feed:
  source: ical
  ical:
    url: https://example.com/events.ics
sync:
  lookahead: 720h
log:
  format: json
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))

	cfg, err := Load(viper.New(), path)
	require.NoError(t, err)
	assert.Equal(t, FeedICal, cfg.Feed.Source)
	assert.Equal(t, "https://example.com/events.ics", cfg.Feed.ICal.URL)
	assert.Equal(t, 720*time.Hour, cfg.Sync.Lookahead)
	assert.Equal(t, "json", cfg.Log.Format)
}

func TestLoad_MissingConfigFile(t *testing.T) {
	chdir(t, t.TempDir())
	_, err := Load(viper.New(), "does-not-exist.yaml")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "reading config file")
}

func TestValidate(t *testing.T) {
	chdir(t, t.TempDir())
	v := viper.New()
	SetDefaults(v)
	var base Config
	require.NoError(t, v.Unmarshal(&base))
	require.NoError(t, base.Validate())

	tests := []struct {
		name   string
		mutate func(*Config)
		want   string
	}{
		{"postgres without dsn", func(c *Config) { c.Database.Driver = "postgres" }, "database.dsn is required"},
		{"unknown driver", func(c *Config) { c.Database.Driver = "mysql" }, "database.driver"},
		{"graph without token", func(c *Config) { c.Feed.Source = FeedGraph; c.Feed.Graph.Page = "p" }, "feed.graph.access_token is required"},
		{"ical without url", func(c *Config) { c.Feed.Source = FeedICal }, "feed.ical.url is required"},
		{"unknown source", func(c *Config) { c.Feed.Source = "rss" }, "feed.source"},
		{"tiny interval", func(c *Config) { c.Sync.Interval = time.Millisecond }, "sync.interval"},
		{"zero lookback", func(c *Config) { c.Sync.Lookback = 0 }, "sync.lookback"},
		{"bad level", func(c *Config) { c.Log.Level = "loud" }, "log.level"},
		{"bad format", func(c *Config) { c.Log.Format = "xml" }, "log.format"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := base
			tt.mutate(&cfg)
			err := cfg.Validate()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestNewLogger(t *testing.T) {
	var buf bytes.Buffer
	logger := LogConfig{Level: "warn", Format: "json"}.NewLogger(&buf)

	logger.Info("hidden")
	logger.Warn("shown", "key", "value")

	assert.NotContains(t, buf.String(), "hidden")
	assert.Contains(t, buf.String(), `"msg":"shown"`)
	assert.Contains(t, buf.String(), `"key":"value"`)
}

// chdir changes the working directory for the duration of the test and
// restores it on cleanup (equivalent of testing.T.Chdir, added in Go 1.24).
func chdir(t *testing.T, dir string) {
	t.Helper()
	old, err := os.Getwd()
	if err != nil {
		t.Fatal(err)
	}
	if err := os.Chdir(dir); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() {
		if err := os.Chdir(old); err != nil {
			t.Fatal(err)
		}
	})
}
