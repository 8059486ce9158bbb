// Package attendance checks members in to and out of events.
package attendance

import (
	"context"
	"errors"
	"fmt"

	"github.com/eventroster/backend/internal/apperror"
	"github.com/eventroster/backend/internal/storage"
	"github.com/eventroster/backend/internal/storage/models"
	"github.com/eventroster/backend/internal/validation"
)

// EventStore reads events with their attendee lists.
type EventStore interface {
	GetByID(ctx context.Context, id string) (*models.Event, error)
}

// PersonStore reads and creates members. Create returns storage.ErrDuplicate
// when the email is taken.
type PersonStore interface {
	GetByID(ctx context.Context, id string) (*models.Person, error)
	GetByEmail(ctx context.Context, email string) (*models.Person, error)
	Create(ctx context.Context, person *models.Person) error
}

// Ledger writes both sides of the attendance relation as one unit.
type Ledger interface {
	AddAttendee(ctx context.Context, eventID, personID string) error
	RemoveAttendee(ctx context.Context, eventID, personID string) error
}

// Engine implements check-in and check-out.
type Engine struct {
	events  EventStore
	persons PersonStore
	ledger  Ledger
}

// NewEngine creates an attendance engine.
func NewEngine(events EventStore, persons PersonStore, ledger Ledger) *Engine {
	return &Engine{events: events, persons: persons, ledger: ledger}
}

// CheckIn checks a member in to eventID and returns the updated event. The
// member is personID when given; otherwise it is resolved by email, and
// created when no member has that email yet.
func (e *Engine) CheckIn(ctx context.Context, eventID, name, email, personID string) (*models.Event, error) {
	event, _, err := e.CheckInMember(ctx, eventID, name, email, personID)
	return event, err
}

// CheckInMember is CheckIn that also returns the resolved member.
func (e *Engine) CheckInMember(ctx context.Context, eventID, name, email, personID string) (*models.Event, *models.Person, error) {
	event, err := e.loadEvent(ctx, eventID)
	if err != nil {
		return nil, nil, err
	}

	var person *models.Person
	if personID != "" {
		person, err = e.loadPerson(ctx, personID)
	} else {
		person, err = e.ResolvePerson(ctx, name, email)
	}
	if err != nil {
		return nil, nil, err
	}

	if event.HasAttendee(person.ID) {
		return nil, nil, apperror.ErrAlreadyCheckedIn
	}

	if err := e.ledger.AddAttendee(ctx, event.ID, person.ID); err != nil {
		switch {
		case errors.Is(err, storage.ErrDuplicate):
			return nil, nil, apperror.ErrAlreadyCheckedIn
		case errors.Is(err, storage.ErrNotFound):
			var missing *storage.MissingRowError
			if errors.As(err, &missing) && missing.Table == storage.TablePersons {
				return nil, nil, apperror.ErrPersonNotFound
			}
			return nil, nil, apperror.ErrEventNotFound
		default:
			return nil, nil, apperror.StoreWrite(err)
		}
	}

	event, err = e.reload(ctx, event.ID)
	if err != nil {
		return nil, nil, err
	}
	return event, person, nil
}

// CheckOut removes personID from eventID and returns the updated event.
func (e *Engine) CheckOut(ctx context.Context, eventID, personID string) (*models.Event, error) {
	event, err := e.loadEvent(ctx, eventID)
	if err != nil {
		return nil, err
	}

	person, err := e.loadPerson(ctx, personID)
	if err != nil {
		return nil, err
	}

	if !event.HasAttendee(person.ID) {
		return nil, apperror.ErrNotCheckedIn
	}

	if err := e.ledger.RemoveAttendee(ctx, event.ID, person.ID); err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, apperror.ErrNotCheckedIn
		}
		return nil, apperror.StoreWrite(err)
	}

	return e.reload(ctx, event.ID)
}

// ResolvePerson finds the member registered under email or creates one.
// An existing member whose name differs from name is rejected.
func (e *Engine) ResolvePerson(ctx context.Context, name, email string) (*models.Person, error) {
	if err := validation.ValidateName(name); err != nil {
		return nil, err
	}
	if err := validation.ValidateEmail(email); err != nil {
		return nil, err
	}
	name = validation.NormalizeName(name)
	email = validation.NormalizeEmail(email)

	person, err := e.persons.GetByEmail(ctx, email)
	if err != nil {
		return nil, fmt.Errorf("looking up member: %w", err)
	}
	if person != nil {
		return matchName(person, name)
	}

	person = &models.Person{Name: name, Email: email}
	err = e.persons.Create(ctx, person)
	if err == nil {
		return person, nil
	}
	if !errors.Is(err, storage.ErrDuplicate) {
		return nil, apperror.StoreWrite(err)
	}

	// Registered concurrently; the unique email decides.
	person, lookupErr := e.persons.GetByEmail(ctx, email)
	if lookupErr != nil {
		return nil, fmt.Errorf("looking up member: %w", lookupErr)
	}
	if person == nil {
		return nil, apperror.StoreWrite(err)
	}
	return matchName(person, name)
}

func matchName(person *models.Person, name string) (*models.Person, error) {
	if validation.NormalizeName(person.Name) != name {
		return nil, apperror.ErrEmailNameMismatch
	}
	return person, nil
}

func (e *Engine) loadEvent(ctx context.Context, eventID string) (*models.Event, error) {
	if err := validation.ValidateEventID(eventID); err != nil {
		return nil, err
	}

	event, err := e.events.GetByID(ctx, eventID)
	if err != nil {
		return nil, fmt.Errorf("loading event: %w", err)
	}
	if event == nil {
		return nil, apperror.ErrEventNotFound
	}
	return event, nil
}

func (e *Engine) loadPerson(ctx context.Context, personID string) (*models.Person, error) {
	if err := validation.ValidateMemberID(personID); err != nil {
		return nil, err
	}

	person, err := e.persons.GetByID(ctx, personID)
	if err != nil {
		return nil, fmt.Errorf("loading member: %w", err)
	}
	if person == nil {
		return nil, apperror.ErrPersonNotFound
	}
	return person, nil
}

func (e *Engine) reload(ctx context.Context, eventID string) (*models.Event, error) {
	event, err := e.events.GetByID(ctx, eventID)
	if err != nil {
		return nil, fmt.Errorf("reloading event: %w", err)
	}
	if event == nil {
		return nil, apperror.ErrEventNotFound
	}
	return event, nil
}
