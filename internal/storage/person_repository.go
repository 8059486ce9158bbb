package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/eventroster/backend/internal/storage/models"
	"github.com/jmoiron/sqlx"
)

const personColumns = `id, name, email, created_at, updated_at`

// PersonRepository provides data access for members.
type PersonRepository struct {
	BaseRepository
}

// NewPersonRepository creates a new person repository.
func NewPersonRepository(db *DB) *PersonRepository {
	return &PersonRepository{
		BaseRepository: NewBaseRepository(db),
	}
}

// Create inserts a new person, assigning its ID and timestamps.
// Returns ErrDuplicate if the email is already registered.
func (r *PersonRepository) Create(ctx context.Context, person *models.Person) error {
	person.ID = GenerateID()
	person.CreatedAt = r.Now()
	person.UpdatedAt = person.CreatedAt
	if person.Events == nil {
		person.Events = []string{}
	}

	_, err := r.DB().ExecContext(ctx, r.DB().Rebind(`
		INSERT INTO persons (id, name, email, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?)
	`), person.ID, person.Name, person.Email, person.CreatedAt, person.UpdatedAt)

	if isUniqueViolation(err) {
		return fmt.Errorf("inserting person %s: %w", person.Email, ErrDuplicate)
	}
	if err != nil {
		return fmt.Errorf("inserting person: %w", err)
	}

	return nil
}

// Update writes the name and email of an existing person.
func (r *PersonRepository) Update(ctx context.Context, person *models.Person) error {
	person.UpdatedAt = r.Now()

	result, err := r.DB().ExecContext(ctx, r.DB().Rebind(`
		UPDATE persons SET name = ?, email = ?, updated_at = ? WHERE id = ?
	`), person.Name, person.Email, person.UpdatedAt, person.ID)

	if isUniqueViolation(err) {
		return fmt.Errorf("updating person %s: %w", person.ID, ErrDuplicate)
	}
	if err != nil {
		return fmt.Errorf("updating person: %w", err)
	}

	rowsAffected, _ := result.RowsAffected()
	if rowsAffected == 0 {
		return fmt.Errorf("person %s: %w", person.ID, ErrNotFound)
	}

	return nil
}

// GetByID retrieves a person and the IDs of the events they attend.
func (r *PersonRepository) GetByID(ctx context.Context, id string) (*models.Person, error) {
	return r.getOne(ctx, "id = ?", id)
}

// GetByEmail retrieves a person by email. The caller normalizes the email.
func (r *PersonRepository) GetByEmail(ctx context.Context, email string) (*models.Person, error) {
	return r.getOne(ctx, "email = ?", email)
}

func (r *PersonRepository) getOne(ctx context.Context, where string, arg any) (*models.Person, error) {
	person := &models.Person{}

	err := r.DB().GetContext(ctx, person, r.DB().Rebind(
		"SELECT "+personColumns+" FROM persons WHERE "+where,
	), arg)

	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("querying person: %w", err)
	}

	if err := loadPersonEvents(ctx, r.DB(), person); err != nil {
		return nil, err
	}

	return person, nil
}

func loadPersonEvents(ctx context.Context, q sqlx.ExtContext, person *models.Person) error {
	person.Events = []string{}
	err := sqlx.SelectContext(ctx, q, &person.Events, q.Rebind(`
		SELECT event_id FROM attendances WHERE person_id = ?
		ORDER BY checked_in_at, event_id
	`), person.ID)
	if err != nil {
		return fmt.Errorf("querying person events: %w", err)
	}
	return nil
}
