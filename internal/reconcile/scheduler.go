package reconcile

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"golang.org/x/sync/singleflight"

	"github.com/eventroster/backend/internal/apperror"
	"github.com/eventroster/backend/internal/storage/models"
	"github.com/eventroster/backend/internal/websocket"
)

// Default schedule and window bounds.
const (
	DefaultInterval  = 15 * time.Minute
	DefaultLookback  = 365 * 24 * time.Hour
	DefaultLookahead = 365 * 24 * time.Hour
)

// RunRecorder persists the outcome of each run.
type RunRecorder interface {
	Record(ctx context.Context, run *models.SyncRun) error
}

// SchedulerConfig configures a Scheduler.
type SchedulerConfig struct {
	Interval  time.Duration
	Lookback  time.Duration
	Lookahead time.Duration

	// RunOnStart triggers one sync as soon as the scheduler starts.
	RunOnStart bool
}

// Scheduler runs the engine periodically over a trailing window and records
// and broadcasts every result.
type Scheduler struct {
	cron        *cron.Cron
	engine      *Engine
	runs        RunRecorder
	broadcaster *websocket.EventBroadcaster
	cfg         SchedulerConfig
	logger      *slog.Logger

	entryID cron.EntryID
	mu      sync.RWMutex
	wg      sync.WaitGroup

	// Concurrent SyncNow callers share one run, recorded once.
	group singleflight.Group

	now func() time.Time
}

// NewScheduler creates a new sync scheduler. runs and broadcaster may be nil.
func NewScheduler(
	engine *Engine,
	runs RunRecorder,
	broadcaster *websocket.EventBroadcaster,
	cfg SchedulerConfig,
	logger *slog.Logger,
) *Scheduler {
	if cfg.Interval <= 0 {
		cfg.Interval = DefaultInterval
	}
	if cfg.Lookback <= 0 {
		cfg.Lookback = DefaultLookback
	}
	if cfg.Lookahead < 0 {
		cfg.Lookahead = 0
	}
	if logger == nil {
		logger = slog.Default()
	}

	return &Scheduler{
		cron:        cron.New(cron.WithSeconds()),
		engine:      engine,
		runs:        runs,
		broadcaster: broadcaster,
		cfg:         cfg,
		logger:      logger.With("component", "scheduler"),
		now:         time.Now,
	}
}

// Start schedules the periodic sync and starts the cron runner.
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	spec := "@every " + s.cfg.Interval.String()
	entryID, err := s.cron.AddFunc(spec, func() {
		s.SyncNow(ctx)
	})
	if err != nil {
		return err
	}
	s.entryID = entryID

	s.cron.Start()
	s.logger.Info("scheduler started", "source", s.engine.SourceName(), "interval", s.cfg.Interval.String())

	if s.cfg.RunOnStart {
		s.TriggerSync(ctx)
	}

	return nil
}

// Stop gracefully shuts down the scheduler, waiting for a running sync.
func (s *Scheduler) Stop() {
	ctx := s.cron.Stop()
	<-ctx.Done()
	s.wg.Wait()
	s.logger.Info("scheduler stopped")
}

// SourceName returns the name of the feed being synced.
func (s *Scheduler) SourceName() string {
	return s.engine.SourceName()
}

// Window returns the window the next run will cover.
func (s *Scheduler) Window() models.Window {
	return models.TrailingWindow(s.now(), s.cfg.Lookback, s.cfg.Lookahead)
}

// NextRun returns the next scheduled run time, or nil before Start.
func (s *Scheduler) NextRun() *time.Time {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.entryID == 0 {
		return nil
	}
	entry := s.cron.Entry(s.entryID)
	if entry.Next.IsZero() {
		return nil
	}
	return &entry.Next
}

// TriggerSync starts an immediate sync in the background.
func (s *Scheduler) TriggerSync(ctx context.Context) {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.SyncNow(ctx)
	}()
}

// SyncNow runs one sync over the current window, then records and broadcasts
// the outcome.
func (s *Scheduler) SyncNow(ctx context.Context) (*models.SyncResult, error) {
	v, err, _ := s.group.Do("sync", func() (any, error) {
		return s.syncOnce(ctx)
	})
	result, _ := v.(*models.SyncResult)
	return result, err
}

func (s *Scheduler) syncOnce(ctx context.Context) (*models.SyncResult, error) {
	window := s.Window()
	source := s.engine.SourceName()
	s.logger.Debug("syncing", "source", source, "since", window.Since, "until", window.Until)

	result, err := s.engine.Run(ctx, window)
	if errors.Is(err, apperror.ErrSyncInProgress) {
		// The holder records its own run.
		s.logger.Info("sync already running elsewhere", "source", source)
		return nil, err
	}

	s.record(ctx, source, window, result, err)

	if err != nil {
		s.logger.Error("sync failed", "source", source, "error", err)
		s.broadcaster.BroadcastSyncError(source, err)
		return nil, err
	}

	s.broadcaster.BroadcastSyncCompleted(result)
	return result, nil
}

func (s *Scheduler) record(ctx context.Context, source string, window models.Window, result *models.SyncResult, err error) {
	if s.runs == nil {
		return
	}
	run := models.NewSyncRun(source, window, result, err)
	if recErr := s.runs.Record(context.WithoutCancel(ctx), run); recErr != nil {
		s.logger.Warn("recording sync run", "error", recErr)
	}
}
