// Package reconcile keeps upstream-managed events in the store consistent with
// an external feed.
package reconcile

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/eventroster/backend/internal/apperror"
	"github.com/eventroster/backend/internal/feed"
	"github.com/eventroster/backend/internal/storage"
	"github.com/eventroster/backend/internal/storage/models"
)

// EventStore is the subset of the event repository the engine needs.
type EventStore interface {
	GetByExternalLink(ctx context.Context, link string) (*models.Event, error)
	Upsert(ctx context.Context, event *models.Event) (*models.Event, error)
	Delete(ctx context.Context, id string) error
	ListInWindow(ctx context.Context, since, until time.Time) ([]models.Event, error)
}

// Engine applies create, update and delete-by-absence passes against an
// EventStore.
type Engine struct {
	events EventStore
	source feed.Source
	locker Locker
	logger *slog.Logger
}

// NewEngine creates a reconciliation engine. A nil locker serializes runs
// in-process only.
func NewEngine(events EventStore, source feed.Source, locker Locker, logger *slog.Logger) *Engine {
	if locker == nil {
		locker = NewLocalLocker()
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Engine{
		events: events,
		source: source,
		locker: locker,
		logger: logger.With("component", "reconcile"),
	}
}

// SourceName returns the name of the configured feed.
func (e *Engine) SourceName() string {
	if e.source == nil {
		return ""
	}
	return e.source.Name()
}

// Run fetches the feed for window and reconciles the store against it. At most
// one run per feed is active at a time. A failed fetch returns an error
// matching apperror.ErrFetch before the store is touched.
func (e *Engine) Run(ctx context.Context, window models.Window) (*models.SyncResult, error) {
	if e.source == nil {
		return nil, errors.New("no feed source configured")
	}

	return e.locker.Do(ctx, e.source.Name(), func(ctx context.Context) (*models.SyncResult, error) {
		external, err := e.source.FetchExternalEvents(ctx, window)
		if err != nil {
			e.logger.Warn("fetching feed failed", "source", e.source.Name(), "error", err)
			if !errors.Is(err, apperror.ErrFetch) {
				err = apperror.Wrap(apperror.CodeFetchError, apperror.ErrFetch.Message, err)
			}
			return nil, err
		}
		return e.Sync(ctx, external, window)
	})
}

// Sync reconciles the upstream-managed events within window against a feed
// snapshot. Events without an external link are never touched. Per-event
// store failures are collected in the result and do not stop the pass.
func (e *Engine) Sync(ctx context.Context, external []models.ExternalEvent, window models.Window) (*models.SyncResult, error) {
	result := &models.SyncResult{
		Source:     e.SourceName(),
		Window:     window,
		EventsSeen: len(external),
		Created:    []string{},
		Updated:    []string{},
		Deleted:    []string{},
		Failed:     []models.SyncFailure{},
	}

	stored, err := e.events.ListInWindow(ctx, window.Since, window.Until)
	if err != nil {
		return nil, fmt.Errorf("loading events in window: %w", err)
	}

	// Upstream-managed events in the window, keyed by link. Whatever is left
	// after the feed has been applied is gone upstream.
	managed := make(map[string]*models.Event)
	var links []string
	for i := range stored {
		if !stored[i].IsUpstreamManaged() {
			continue
		}
		managed[stored[i].ExternalLink] = &stored[i]
		links = append(links, stored[i].ExternalLink)
	}

	seen := make(map[string]bool, len(external))
	for _, ext := range external {
		if err := ctx.Err(); err != nil {
			return result, err
		}

		if ext.Link == "" {
			result.Failed = append(result.Failed, models.SyncFailure{
				ID:    ext.ExternalID,
				Error: "external event has no link",
			})
			continue
		}
		if seen[ext.Link] {
			continue
		}
		seen[ext.Link] = true

		event := managed[ext.Link]
		delete(managed, ext.Link)

		id, created, err := e.apply(ctx, event, ext)
		if err != nil {
			if id == "" {
				id = ext.Link
			}
			e.logger.Warn("reconciling event failed", "id", id, "error", err)
			result.Failed = append(result.Failed, models.SyncFailure{ID: id, Error: err.Error()})
			continue
		}

		if created {
			result.Created = append(result.Created, id)
		} else {
			result.Updated = append(result.Updated, id)
		}
	}

	for _, link := range links {
		event, ok := managed[link]
		if !ok {
			continue
		}
		if err := ctx.Err(); err != nil {
			return result, err
		}

		if err := e.events.Delete(ctx, event.ID); err != nil {
			if errors.Is(err, storage.ErrNotFound) {
				continue
			}
			e.logger.Warn("deleting event failed", "id", event.ID, "error", err)
			result.Failed = append(result.Failed, models.SyncFailure{ID: event.ID, Error: err.Error()})
			continue
		}
		result.Deleted = append(result.Deleted, event.ID)
	}

	result.SyncedAt = time.Now().UTC()

	e.logger.Info("sync completed",
		"source", result.Source,
		"events", result.EventsSeen,
		"created", len(result.Created),
		"updated", len(result.Updated),
		"deleted", len(result.Deleted),
		"failed", len(result.Failed),
	)

	return result, nil
}

// apply creates or updates the stored event for ext. event is the match from
// the window, or nil when the link was not found there. It returns the local
// id when one is known, even on failure.
func (e *Engine) apply(ctx context.Context, event *models.Event, ext models.ExternalEvent) (string, bool, error) {
	if event == nil {
		// The link may belong to an event outside the window.
		existing, err := e.events.GetByExternalLink(ctx, ext.Link)
		if err != nil {
			return "", false, err
		}
		event = existing
	}

	if event == nil {
		event = &models.Event{ExternalLink: ext.Link}
		copyExternal(event, ext)

		saved, err := e.events.Upsert(ctx, event)
		if err == nil {
			return saved.ID, true, nil
		}
		if !errors.Is(err, storage.ErrDuplicate) {
			return "", false, err
		}

		// Another pass created it first.
		existing, lookupErr := e.events.GetByExternalLink(ctx, ext.Link)
		if lookupErr != nil || existing == nil {
			return "", false, err
		}
		event = existing
	}

	copyExternal(event, ext)
	saved, err := e.events.Upsert(ctx, event)
	if err != nil {
		return event.ID, false, err
	}
	return saved.ID, false, nil
}

// copyExternal overwrites the feed-owned fields. Attendance is left alone.
func copyExternal(event *models.Event, ext models.ExternalEvent) {
	event.Name = ext.Name
	event.Location = ext.Place
	event.EventTime = ext.StartTime.UTC()
	event.IsPrivate = false
}
