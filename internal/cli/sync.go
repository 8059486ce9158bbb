package cli

import (
	"context"
	"encoding/json"
	"errors"
	"io"

	"github.com/spf13/cobra"

	"github.com/eventroster/backend/internal/reconcile"
	"github.com/eventroster/backend/internal/storage"
)

// NewSyncCommand creates the sync command.
func NewSyncCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "sync",
		Short: "Run one reconciliation pass and exit",
		Long: `Fetch the configured feed once, reconcile it into the store and print
the result as JSON. The run is recorded like a scheduled one.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSync(cmd.Context(), rootOpts, cmd.OutOrStdout())
		},
	}
}

func runSync(ctx context.Context, opts *RootOptions, out io.Writer) error {
	cfg, logger := opts.cfg, opts.logger

	source := newSource(cfg)
	if source == nil {
		return errors.New("no feed source configured: set feed.source to graph or ical")
	}

	db, err := openStore(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer db.Close()

	locker, closeLocker, err := newLocker(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer closeLocker()

	engine := reconcile.NewEngine(storage.NewEventRepository(db), source, locker, logger)
	scheduler := reconcile.NewScheduler(engine, storage.NewSyncRunRepository(db), nil, schedulerConfig(cfg), logger)

	result, err := scheduler.SyncNow(ctx)
	if err != nil {
		return err
	}

	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	return enc.Encode(result)
}
