package models

import (
	"time"
)

// SyncResult contains the outcome of a reconciliation pass.
type SyncResult struct {
	Source     string        `json:"source"`
	Window     Window        `json:"window"`
	EventsSeen int           `json:"events_seen"`
	Created    []string      `json:"created"`
	Updated    []string      `json:"updated"`
	Deleted    []string      `json:"deleted"`
	Failed     []SyncFailure `json:"failed"`
	SyncedAt   time.Time     `json:"synced_at"`
}

// SyncFailure records a per-item store failure. ID is the local event id when
// one exists, otherwise the external link.
type SyncFailure struct {
	ID    string `json:"id"`
	Error string `json:"error"`
}

// Sync status values reported to websocket subscribers.
const (
	SyncStatusSuccess = "success"
	SyncStatusPartial = "partial"
	SyncStatusError   = "error"
)

// Status summarizes the result for subscribers.
func (r *SyncResult) Status() string {
	if len(r.Failed) > 0 {
		return SyncStatusPartial
	}
	return SyncStatusSuccess
}

// SyncRun is a persisted summary of one reconciliation attempt.
type SyncRun struct {
	ID           string    `json:"id" db:"id"`
	Source       string    `json:"source" db:"source"`
	Status       string    `json:"status" db:"status"`
	WindowSince  time.Time `json:"window_since" db:"window_since"`
	WindowUntil  time.Time `json:"window_until" db:"window_until"`
	EventsSeen   int       `json:"events_seen" db:"events_seen"`
	CreatedCount int       `json:"created_count" db:"created_count"`
	UpdatedCount int       `json:"updated_count" db:"updated_count"`
	DeletedCount int       `json:"deleted_count" db:"deleted_count"`
	FailedCount  int       `json:"failed_count" db:"failed_count"`
	Error        string    `json:"error,omitempty" db:"error"`
	SyncedAt     time.Time `json:"synced_at" db:"synced_at"`
}

// NewSyncRun summarizes a completed pass. A nil result with a non-nil err
// records a failed run.
func NewSyncRun(source string, window Window, result *SyncResult, err error) *SyncRun {
	run := &SyncRun{
		Source:      source,
		WindowSince: window.Since,
		WindowUntil: window.Until,
		SyncedAt:    time.Now().UTC(),
	}
	if result != nil {
		run.Status = result.Status()
		run.EventsSeen = result.EventsSeen
		run.CreatedCount = len(result.Created)
		run.UpdatedCount = len(result.Updated)
		run.DeletedCount = len(result.Deleted)
		run.FailedCount = len(result.Failed)
		run.SyncedAt = result.SyncedAt
	}
	if err != nil {
		run.Status = SyncStatusError
		run.Error = err.Error()
	}
	return run
}
