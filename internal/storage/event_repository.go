package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/eventroster/backend/internal/storage/models"
	"github.com/jmoiron/sqlx"
)

const eventColumns = `id, COALESCE(external_link, '') AS external_link, name, location,
	event_time, is_private, created_at, updated_at`

// EventFilter narrows List results. Zero times leave that bound open.
type EventFilter struct {
	Since          time.Time
	Until          time.Time
	IncludePrivate bool
}

// EventRepository provides data access for events.
type EventRepository struct {
	BaseRepository
}

// NewEventRepository creates a new event repository.
func NewEventRepository(db *DB) *EventRepository {
	return &EventRepository{
		BaseRepository: NewBaseRepository(db),
	}
}

// Create inserts a new event, assigning its ID and timestamps.
// Returns ErrDuplicate if another event already carries the same external link.
func (r *EventRepository) Create(ctx context.Context, event *models.Event) error {
	event.ID = GenerateID()
	event.EventTime = event.EventTime.UTC()
	event.CreatedAt = r.Now()
	event.UpdatedAt = event.CreatedAt
	if event.Attendees == nil {
		event.Attendees = []string{}
	}

	_, err := r.DB().ExecContext(ctx, r.DB().Rebind(`
		INSERT INTO events (
			id, external_link, name, location, event_time, is_private, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`),
		event.ID, nullString(event.ExternalLink), event.Name, event.Location,
		event.EventTime, event.IsPrivate, event.CreatedAt, event.UpdatedAt,
	)

	if isUniqueViolation(err) {
		return fmt.Errorf("inserting event %q: %w", event.ExternalLink, ErrDuplicate)
	}
	if err != nil {
		return fmt.Errorf("inserting event: %w", err)
	}

	return nil
}

// Update writes the scalar fields of an existing event. Attendance is not
// touched.
func (r *EventRepository) Update(ctx context.Context, event *models.Event) error {
	event.EventTime = event.EventTime.UTC()
	event.UpdatedAt = r.Now()

	result, err := r.DB().ExecContext(ctx, r.DB().Rebind(`
		UPDATE events SET
			external_link = ?, name = ?, location = ?, event_time = ?, is_private = ?, updated_at = ?
		WHERE id = ?
	`),
		nullString(event.ExternalLink), event.Name, event.Location,
		event.EventTime, event.IsPrivate, event.UpdatedAt, event.ID,
	)

	if isUniqueViolation(err) {
		return fmt.Errorf("updating event %s: %w", event.ID, ErrDuplicate)
	}
	if err != nil {
		return fmt.Errorf("updating event: %w", err)
	}

	rowsAffected, _ := result.RowsAffected()
	if rowsAffected == 0 {
		return fmt.Errorf("event %s: %w", event.ID, ErrNotFound)
	}

	return nil
}

// Upsert creates the event when it has no ID yet and updates it otherwise.
func (r *EventRepository) Upsert(ctx context.Context, event *models.Event) (*models.Event, error) {
	if event.ID == "" {
		if err := r.Create(ctx, event); err != nil {
			return nil, err
		}
		return event, nil
	}

	if err := r.Update(ctx, event); err != nil {
		return nil, err
	}
	return event, nil
}

// GetByID retrieves an event and its attendee IDs.
func (r *EventRepository) GetByID(ctx context.Context, id string) (*models.Event, error) {
	return r.getOne(ctx, "id = ?", id)
}

// GetByExternalLink retrieves the upstream-managed event with the given link.
func (r *EventRepository) GetByExternalLink(ctx context.Context, link string) (*models.Event, error) {
	if link == "" {
		return nil, nil
	}
	return r.getOne(ctx, "external_link = ?", link)
}

func (r *EventRepository) getOne(ctx context.Context, where string, arg any) (*models.Event, error) {
	event := &models.Event{}

	err := r.DB().GetContext(ctx, event, r.DB().Rebind(
		"SELECT "+eventColumns+" FROM events WHERE "+where,
	), arg)

	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("querying event: %w", err)
	}

	events := []models.Event{*event}
	if err := loadAttendees(ctx, r.DB(), events); err != nil {
		return nil, err
	}

	return &events[0], nil
}

// ListInWindow retrieves every event, public or private, whose event time
// falls within [since, until].
func (r *EventRepository) ListInWindow(ctx context.Context, since, until time.Time) ([]models.Event, error) {
	return r.List(ctx, EventFilter{Since: since, Until: until, IncludePrivate: true})
}

// List retrieves events ordered by event time.
func (r *EventRepository) List(ctx context.Context, filter EventFilter) ([]models.Event, error) {
	query := "SELECT " + eventColumns + " FROM events WHERE 1 = 1"
	var args []any

	if !filter.Since.IsZero() {
		query += " AND event_time >= ?"
		args = append(args, filter.Since.UTC())
	}
	if !filter.Until.IsZero() {
		query += " AND event_time <= ?"
		args = append(args, filter.Until.UTC())
	}
	if !filter.IncludePrivate {
		query += " AND is_private = ?"
		args = append(args, false)
	}
	query += " ORDER BY event_time, id"

	events := []models.Event{}
	if err := r.DB().SelectContext(ctx, &events, r.DB().Rebind(query), args...); err != nil {
		return nil, fmt.Errorf("querying events: %w", err)
	}

	if err := loadAttendees(ctx, r.DB(), events); err != nil {
		return nil, err
	}

	return events, nil
}

// Delete removes an event by ID. Its attendance rows go with it.
func (r *EventRepository) Delete(ctx context.Context, id string) error {
	result, err := r.DB().ExecContext(ctx, r.DB().Rebind("DELETE FROM events WHERE id = ?"), id)
	if err != nil {
		return fmt.Errorf("deleting event: %w", err)
	}

	rowsAffected, _ := result.RowsAffected()
	if rowsAffected == 0 {
		return fmt.Errorf("event %s: %w", id, ErrNotFound)
	}

	return nil
}

type attendanceRow struct {
	EventID  string `db:"event_id"`
	PersonID string `db:"person_id"`
}

// loadAttendees fills the Attendees of each event in place.
func loadAttendees(ctx context.Context, q sqlx.ExtContext, events []models.Event) error {
	if len(events) == 0 {
		return nil
	}

	ids := make([]string, len(events))
	index := make(map[string]int, len(events))
	for i := range events {
		ids[i] = events[i].ID
		index[events[i].ID] = i
		events[i].Attendees = []string{}
	}

	query, args, err := sqlx.In(`
		SELECT event_id, person_id FROM attendances
		WHERE event_id IN (?)
		ORDER BY checked_in_at, person_id
	`, ids)
	if err != nil {
		return fmt.Errorf("building attendee query: %w", err)
	}

	var rows []attendanceRow
	if err := sqlx.SelectContext(ctx, q, &rows, q.Rebind(query), args...); err != nil {
		return fmt.Errorf("querying attendees: %w", err)
	}

	for _, row := range rows {
		i := index[row.EventID]
		events[i].Attendees = append(events[i].Attendees, row.PersonID)
	}

	return nil
}

// nullString stores empty strings as NULL so unique indexes ignore them.
func nullString(s string) any {
	if s == "" {
		return nil
	}
	return s
}
