package models

import (
	"time"
)

// Person is a member who can check in to events. Email is unique.
type Person struct {
	ID        string    `json:"id" db:"id"`
	Name      string    `json:"name" db:"name"`
	Email     string    `json:"email" db:"email"`
	Events    []string  `json:"events" db:"-"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`
}

// AttendsEvent reports whether the person is checked in to eventID.
func (p *Person) AttendsEvent(eventID string) bool {
	for _, id := range p.Events {
		if id == eventID {
			return true
		}
	}
	return false
}
