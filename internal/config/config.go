// Package config loads runtime settings from flags, environment, an optional
// config file and .env.
package config

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// EnvPrefix prefixes every environment variable, e.g. EVENTROSTER_SYNC_INTERVAL.
const EnvPrefix = "EVENTROSTER"

// Feed sources.
const (
	FeedNone  = "none"
	FeedGraph = "graph"
	FeedICal  = "ical"
)

// Config holds all runtime settings.
type Config struct {
	Addr     string         `mapstructure:"addr"`
	DataDir  string         `mapstructure:"data_dir"`
	Database DatabaseConfig `mapstructure:"database"`
	Feed     FeedConfig     `mapstructure:"feed"`
	Sync     SyncConfig     `mapstructure:"sync"`
	Redis    RedisConfig    `mapstructure:"redis"`
	Log      LogConfig      `mapstructure:"log"`
}

// DatabaseConfig selects the store.
type DatabaseConfig struct {
	Driver string `mapstructure:"driver"`
	DSN    string `mapstructure:"dsn"`
}

// FeedConfig selects and configures the upstream feed.
type FeedConfig struct {
	Source string          `mapstructure:"source"`
	Graph  GraphFeedConfig `mapstructure:"graph"`
	ICal   ICalFeedConfig  `mapstructure:"ical"`
}

// GraphFeedConfig configures the Graph API feed.
type GraphFeedConfig struct {
	BaseURL     string `mapstructure:"base_url"`
	Page        string `mapstructure:"page"`
	AccessToken string `mapstructure:"access_token"`
	PageSize    int    `mapstructure:"page_size"`
}

// ICalFeedConfig configures the iCal feed.
type ICalFeedConfig struct {
	URL string `mapstructure:"url"`
}

// SyncConfig controls the periodic reconciliation.
type SyncConfig struct {
	Interval  time.Duration `mapstructure:"interval"`
	Lookback  time.Duration `mapstructure:"lookback"`
	Lookahead time.Duration `mapstructure:"lookahead"`
	OnStart   bool          `mapstructure:"on_start"`
}

// RedisConfig enables the cross-process sync lock when Addr is set.
type RedisConfig struct {
	Addr     string        `mapstructure:"addr"`
	Password string        `mapstructure:"password"`
	DB       int           `mapstructure:"db"`
	LockTTL  time.Duration `mapstructure:"lock_ttl"`
}

// LogConfig configures the process logger.
type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// SetDefaults registers every key with its default so that environment
// variables are picked up by Unmarshal.
func SetDefaults(v *viper.Viper) {
	v.SetDefault("addr", ":8099")
	v.SetDefault("data_dir", "./data")
	v.SetDefault("database.driver", "sqlite3")
	v.SetDefault("database.dsn", "")
	v.SetDefault("feed.source", FeedNone)
	v.SetDefault("feed.graph.base_url", "https://graph.facebook.com")
	v.SetDefault("feed.graph.page", "")
	v.SetDefault("feed.graph.access_token", "")
	v.SetDefault("feed.graph.page_size", 1000)
	v.SetDefault("feed.ical.url", "")
	v.SetDefault("sync.interval", 15*time.Minute)
	v.SetDefault("sync.lookback", 365*24*time.Hour)
	v.SetDefault("sync.lookahead", 365*24*time.Hour)
	v.SetDefault("sync.on_start", true)
	v.SetDefault("redis.addr", "")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.lock_ttl", 5*time.Minute)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "text")
}

// Load reads .env (if present), the environment and configFile (if set) into
// a validated Config. Flags bound to v take precedence over both.
func Load(v *viper.Viper, configFile string) (*Config, error) {
	_ = godotenv.Load()

	SetDefaults(v)
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if configFile != "" {
		v.SetConfigFile(configFile)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decoding config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// Validate reports every invalid setting at once.
func (c *Config) Validate() error {
	var errs []error

	if c.Addr == "" {
		errs = append(errs, errors.New("addr is required"))
	}

	switch c.Database.Driver {
	case "sqlite3":
	case "postgres":
		if c.Database.DSN == "" {
			errs = append(errs, errors.New("database.dsn is required for postgres"))
		}
	default:
		errs = append(errs, fmt.Errorf("database.driver %q must be sqlite3 or postgres", c.Database.Driver))
	}

	switch c.Feed.Source {
	case FeedNone:
	case FeedGraph:
		if c.Feed.Graph.Page == "" {
			errs = append(errs, errors.New("feed.graph.page is required"))
		}
		if c.Feed.Graph.AccessToken == "" {
			errs = append(errs, errors.New("feed.graph.access_token is required"))
		}
	case FeedICal:
		if c.Feed.ICal.URL == "" {
			errs = append(errs, errors.New("feed.ical.url is required"))
		}
	default:
		errs = append(errs, fmt.Errorf("feed.source %q must be none, graph or ical", c.Feed.Source))
	}

	if c.Sync.Interval < time.Second {
		errs = append(errs, errors.New("sync.interval must be at least 1s"))
	}
	if c.Sync.Lookback <= 0 {
		errs = append(errs, errors.New("sync.lookback must be positive"))
	}
	if c.Sync.Lookahead < 0 {
		errs = append(errs, errors.New("sync.lookahead must not be negative"))
	}

	if _, err := parseLevel(c.Log.Level); err != nil {
		errs = append(errs, err)
	}
	if c.Log.Format != "text" && c.Log.Format != "json" {
		errs = append(errs, fmt.Errorf("log.format %q must be text or json", c.Log.Format))
	}

	return errors.Join(errs...)
}

// SQLitePath is where the SQLite database lives when no DSN is configured.
func (c *Config) SQLitePath() string {
	if c.Database.DSN != "" {
		return c.Database.DSN
	}
	return filepath.Join(c.DataDir, "eventroster.db")
}
