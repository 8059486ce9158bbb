// Package feed fetches external events from upstream calendars.
package feed

import (
	"context"
	"fmt"

	"github.com/eventroster/backend/internal/apperror"
	"github.com/eventroster/backend/internal/storage/models"
)

// Source is an upstream feed of events.
type Source interface {
	// Name identifies the feed in logs, sync results and run locks.
	Name() string

	// FetchExternalEvents returns the events starting within window.
	// Failures are reported as *FetchError.
	FetchExternalEvents(ctx context.Context, window models.Window) ([]models.ExternalEvent, error)
}

// FetchError reports a transport, auth or decoding failure while reading a
// feed. It matches apperror.ErrFetch and is retryable.
type FetchError struct {
	Source     string
	StatusCode int
	Err        error
}

func (e *FetchError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("fetching %s feed: status %d: %v", e.Source, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("fetching %s feed: %v", e.Source, e.Err)
}

func (e *FetchError) Unwrap() error {
	return e.Err
}

// Is makes errors.Is(err, apperror.ErrFetch) hold for fetch failures.
func (e *FetchError) Is(target error) bool {
	ae, ok := target.(*apperror.Error)
	return ok && ae.Code == apperror.CodeFetchError
}

// Retryable always reports true; the next tick may succeed.
func (e *FetchError) Retryable() bool {
	return true
}
