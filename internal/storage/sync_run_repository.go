package storage

import (
	"context"
	"fmt"

	"github.com/eventroster/backend/internal/storage/models"
)

// SyncRunRepository persists the history of reconciliation runs.
type SyncRunRepository struct {
	BaseRepository
}

// NewSyncRunRepository creates a new sync run repository.
func NewSyncRunRepository(db *DB) *SyncRunRepository {
	return &SyncRunRepository{
		BaseRepository: NewBaseRepository(db),
	}
}

// Record inserts a sync run, assigning its ID.
func (r *SyncRunRepository) Record(ctx context.Context, run *models.SyncRun) error {
	run.ID = GenerateID()
	if run.SyncedAt.IsZero() {
		run.SyncedAt = r.Now()
	}

	_, err := r.DB().NamedExecContext(ctx, `
		INSERT INTO sync_runs (
			id, source, status, window_since, window_until, events_seen,
			created_count, updated_count, deleted_count, failed_count, error, synced_at
		) VALUES (
			:id, :source, :status, :window_since, :window_until, :events_seen,
			:created_count, :updated_count, :deleted_count, :failed_count, :error, :synced_at
		)
	`, run)
	if err != nil {
		return fmt.Errorf("inserting sync run: %w", err)
	}

	return nil
}

// ListRecent retrieves up to limit runs, newest first.
func (r *SyncRunRepository) ListRecent(ctx context.Context, limit int) ([]models.SyncRun, error) {
	if limit <= 0 {
		limit = 20
	}

	runs := []models.SyncRun{}
	err := r.DB().SelectContext(ctx, &runs, r.DB().Rebind(`
		SELECT id, source, status, window_since, window_until, events_seen,
		       created_count, updated_count, deleted_count, failed_count, error, synced_at
		FROM sync_runs
		ORDER BY synced_at DESC, id
		LIMIT ?
	`), limit)
	if err != nil {
		return nil, fmt.Errorf("querying sync runs: %w", err)
	}

	return runs, nil
}
