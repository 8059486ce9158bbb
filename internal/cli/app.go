package cli

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/redis/go-redis/v9"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/eventroster/backend/internal/config"
	"github.com/eventroster/backend/internal/feed"
	"github.com/eventroster/backend/internal/reconcile"
	"github.com/eventroster/backend/internal/storage"
)

// bindFlag binds a flag to a config key. Unset flags leave the key to the
// environment and config file.
func bindFlag(v *viper.Viper, key string, flag *pflag.Flag) {
	if err := v.BindPFlag(key, flag); err != nil {
		panic(fmt.Sprintf("binding flag %s: %v", flag.Name, err))
	}
}

// openStore opens the configured database and applies pending migrations.
func openStore(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*storage.DB, error) {
	var (
		db  *storage.DB
		err error
	)
	if cfg.Database.Driver == storage.DriverPostgres {
		db, err = storage.Open(storage.DriverPostgres, cfg.Database.DSN)
	} else {
		db, err = storage.NewDB(cfg.SQLitePath())
	}
	if err != nil {
		return nil, err
	}

	if err := storage.RunMigrations(ctx, db, logger); err != nil {
		db.Close()
		return nil, fmt.Errorf("running migrations: %w", err)
	}
	return db, nil
}

// newSource builds the configured feed, or nil for config.FeedNone.
func newSource(cfg *config.Config) feed.Source {
	switch cfg.Feed.Source {
	case config.FeedGraph:
		return feed.NewGraphClient(feed.GraphConfig{
			BaseURL:     cfg.Feed.Graph.BaseURL,
			Page:        cfg.Feed.Graph.Page,
			AccessToken: cfg.Feed.Graph.AccessToken,
			PageSize:    cfg.Feed.Graph.PageSize,
		})
	case config.FeedICal:
		return feed.NewICalSource(cfg.Feed.ICal.URL)
	default:
		return nil
	}
}

// newLocker returns a Redis-backed run lock when redis.addr is set, so that
// several replicas never sync the same feed at once. The returned close
// function releases the client.
func newLocker(ctx context.Context, cfg *config.Config, logger *slog.Logger) (reconcile.Locker, func() error, error) {
	if cfg.Redis.Addr == "" {
		return reconcile.NewLocalLocker(), func() error { return nil }, nil
	}

	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, nil, fmt.Errorf("connecting to redis at %s: %w", cfg.Redis.Addr, err)
	}
	logger.Info("using redis sync lock", "addr", cfg.Redis.Addr)

	return reconcile.NewRedisLocker(client, cfg.Redis.LockTTL, logger), client.Close, nil
}

func schedulerConfig(cfg *config.Config) reconcile.SchedulerConfig {
	return reconcile.SchedulerConfig{
		Interval:   cfg.Sync.Interval,
		Lookback:   cfg.Sync.Lookback,
		Lookahead:  cfg.Sync.Lookahead,
		RunOnStart: cfg.Sync.OnStart,
	}
}
