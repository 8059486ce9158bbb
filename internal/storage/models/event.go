// Package models contains the domain models for the application.
package models

import (
	"time"
)

// Event is a locally stored event. Events with a non-empty ExternalLink are
// upstream-managed and owned by the reconciliation pass.
type Event struct {
	ID           string    `json:"id" db:"id"`
	ExternalLink string    `json:"external_link,omitempty" db:"external_link"`
	Name         string    `json:"name" db:"name"`
	Location     string    `json:"location" db:"location"`
	EventTime    time.Time `json:"event_time" db:"event_time"`
	IsPrivate    bool      `json:"is_private" db:"is_private"`
	Attendees    []string  `json:"attendees" db:"-"`
	CreatedAt    time.Time `json:"created_at" db:"created_at"`
	UpdatedAt    time.Time `json:"updated_at" db:"updated_at"`
}

// IsUpstreamManaged reports whether the event is correlated to the external
// feed.
func (e *Event) IsUpstreamManaged() bool {
	return e.ExternalLink != ""
}

// HasAttendee reports whether personID is checked in to the event.
func (e *Event) HasAttendee(personID string) bool {
	for _, id := range e.Attendees {
		if id == personID {
			return true
		}
	}
	return false
}

// ExternalEvent is one record of the external feed.
type ExternalEvent struct {
	ExternalID string    `json:"id"`
	Link       string    `json:"link"`
	Name       string    `json:"name"`
	Place      string    `json:"place"`
	StartTime  time.Time `json:"start_time"`
}

// Window bounds a reconciliation pass. Both ends are inclusive.
type Window struct {
	Since time.Time `json:"since"`
	Until time.Time `json:"until"`
}

// TrailingWindow returns the window [now-lookback, now+lookahead] in UTC.
func TrailingWindow(now time.Time, lookback, lookahead time.Duration) Window {
	now = now.UTC()
	return Window{
		Since: now.Add(-lookback),
		Until: now.Add(lookahead),
	}
}

// Contains reports whether t falls within the window.
func (w Window) Contains(t time.Time) bool {
	return !t.Before(w.Since) && !t.After(w.Until)
}
