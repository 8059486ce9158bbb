package storage

import (
	"context"
	"fmt"
	"time"

	"github.com/eventroster/backend/internal/storage/models"
	"github.com/jmoiron/sqlx"
)

// Tables touched by attendance writes.
const (
	TableEvents  = "events"
	TablePersons = "persons"
)

// MissingRowError reports the table in which an attendance write found no
// row. It matches ErrNotFound.
type MissingRowError struct {
	Table string
	ID    string
}

func (e *MissingRowError) Error() string {
	return fmt.Sprintf("%s %s: %v", e.Table, e.ID, ErrNotFound)
}

// Is reports whether target is ErrNotFound.
func (e *MissingRowError) Is(target error) bool {
	return target == ErrNotFound
}

// AttendanceRepository records which members are checked in to which events.
// Event.Attendees and Person.Events are both read from the same rows, so the
// two sides cannot drift apart.
type AttendanceRepository struct {
	BaseRepository
}

// NewAttendanceRepository creates a new attendance repository.
func NewAttendanceRepository(db *DB) *AttendanceRepository {
	return &AttendanceRepository{
		BaseRepository: NewBaseRepository(db),
	}
}

// AddAttendee checks personID in to eventID and touches both records in one
// transaction. Returns ErrDuplicate if the pair already exists and a
// *MissingRowError naming the table if either record is missing.
func (r *AttendanceRepository) AddAttendee(ctx context.Context, eventID, personID string) error {
	now := r.Now()

	return r.DB().Transaction(ctx, func(tx *sqlx.Tx) error {
		if err := touch(ctx, tx, TableEvents, eventID, now); err != nil {
			return err
		}
		if err := touch(ctx, tx, TablePersons, personID, now); err != nil {
			return err
		}

		_, err := tx.ExecContext(ctx, tx.Rebind(`
			INSERT INTO attendances (event_id, person_id, checked_in_at) VALUES (?, ?, ?)
		`), eventID, personID, now)
		if isUniqueViolation(err) {
			return fmt.Errorf("attendance %s/%s: %w", eventID, personID, ErrDuplicate)
		}
		if err != nil {
			return fmt.Errorf("inserting attendance: %w", err)
		}

		return nil
	})
}

// RemoveAttendee checks personID out of eventID. Returns ErrNotFound if the
// person was not checked in.
func (r *AttendanceRepository) RemoveAttendee(ctx context.Context, eventID, personID string) error {
	now := r.Now()

	return r.DB().Transaction(ctx, func(tx *sqlx.Tx) error {
		result, err := tx.ExecContext(ctx, tx.Rebind(`
			DELETE FROM attendances WHERE event_id = ? AND person_id = ?
		`), eventID, personID)
		if err != nil {
			return fmt.Errorf("deleting attendance: %w", err)
		}

		rowsAffected, _ := result.RowsAffected()
		if rowsAffected == 0 {
			return fmt.Errorf("attendance %s/%s: %w", eventID, personID, ErrNotFound)
		}

		if err := touch(ctx, tx, TableEvents, eventID, now); err != nil {
			return err
		}
		return touch(ctx, tx, TablePersons, personID, now)
	})
}

// ListAttendees retrieves the members checked in to an event, in check-in order.
func (r *AttendanceRepository) ListAttendees(ctx context.Context, eventID string) ([]models.Person, error) {
	persons := []models.Person{}

	err := r.DB().SelectContext(ctx, &persons, r.DB().Rebind(`
		SELECT p.id, p.name, p.email, p.created_at, p.updated_at
		FROM persons p
		JOIN attendances a ON a.person_id = p.id
		WHERE a.event_id = ?
		ORDER BY a.checked_in_at, p.id
	`), eventID)
	if err != nil {
		return nil, fmt.Errorf("querying attendees: %w", err)
	}

	return persons, nil
}

// touch bumps updated_at on a row of table, which is TableEvents or
// TablePersons.
func touch(ctx context.Context, tx *sqlx.Tx, table, id string, now time.Time) error {
	result, err := tx.ExecContext(ctx, tx.Rebind(
		"UPDATE "+table+" SET updated_at = ? WHERE id = ?",
	), now, id)
	if err != nil {
		return fmt.Errorf("updating %s: %w", table, err)
	}

	rowsAffected, _ := result.RowsAffected()
	if rowsAffected == 0 {
		return &MissingRowError{Table: table, ID: id}
	}

	return nil
}
