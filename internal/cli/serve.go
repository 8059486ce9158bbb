package cli

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/eventroster/backend/internal/api"
	"github.com/eventroster/backend/internal/reconcile"
	"github.com/eventroster/backend/internal/websocket"
)

// ServeOptions holds flags for the serve command.
type ServeOptions struct {
	*RootOptions
	StaticDir string
}

// NewServeCommand creates the serve command.
func NewServeCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ServeOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP server and the periodic sync",
		Long: `Start the HTTP API, the WebSocket hub and, when a feed source is
configured, the periodic reconciliation with the external feed.

Example:
  eventroster serve --addr :8099 --feed ical
  EVENTROSTER_FEED_SOURCE=graph eventroster serve -c config.yaml`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			return runServe(ctx, opts)
		},
	}

	cmd.Flags().StringVar(&opts.StaticDir, "static", "", "directory of static frontend files to serve")

	return cmd
}

func runServe(ctx context.Context, opts *ServeOptions) error {
	cfg, logger := opts.cfg, opts.logger
	logger.Info("starting eventroster", "version", opts.Version)

	db, err := openStore(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer db.Close()

	hub := websocket.NewHub(logger)
	go hub.Run(ctx)

	services := api.NewServices(db)
	services.Hub = hub
	services.Broadcaster = websocket.NewEventBroadcaster(hub)
	services.StaticDir = opts.StaticDir

	if source := newSource(cfg); source != nil {
		locker, closeLocker, err := newLocker(ctx, cfg, logger)
		if err != nil {
			return err
		}
		defer closeLocker()

		engine := reconcile.NewEngine(services.Events, source, locker, logger)
		scheduler := reconcile.NewScheduler(engine, services.SyncRuns, services.Broadcaster, schedulerConfig(cfg), logger)
		if err := scheduler.Start(ctx); err != nil {
			return fmt.Errorf("starting scheduler: %w", err)
		}
		defer scheduler.Stop()
		services.Scheduler = scheduler
	} else {
		logger.Info("no feed source configured, sync disabled")
	}

	server := &http.Server{
		Addr:         cfg.Addr,
		Handler:      api.NewRouter(services, logger),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 2 * time.Minute,
		IdleTimeout:  60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("server listening", "addr", cfg.Addr)
		if err := server.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("http server: %w", err)
	case <-ctx.Done():
	}

	logger.Info("shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown: %w", err)
	}

	logger.Info("server stopped")
	return nil
}
