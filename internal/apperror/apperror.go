// Package apperror defines the error kinds surfaced by the attendance and
// reconciliation engines, with the user-facing message for each.
package apperror

import (
	"errors"
	"fmt"
)

// Code identifies an error kind.
type Code string

const (
	CodeInvalidIdentifier Code = "invalid_identifier"
	CodeInvalidName       Code = "invalid_name"
	CodeInvalidEmail      Code = "invalid_email"
	CodeEventNotFound     Code = "event_not_found"
	CodePersonNotFound    Code = "person_not_found"
	CodeAlreadyCheckedIn  Code = "already_checked_in"
	CodeNotCheckedIn      Code = "not_checked_in"
	CodeEmailNameMismatch Code = "email_name_mismatch"
	CodeFetchError        Code = "fetch_error"
	CodeStoreWriteError   Code = "store_write_error"
	CodeSyncInProgress    Code = "sync_in_progress"
	CodeInternal          Code = "internal_error"
)

// Error is an application error carrying a Code and a message that is safe
// to show to the caller verbatim.
type Error struct {
	Code    Code
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is reports whether target is an *Error with the same Code.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Code == e.Code
}

// Retryable reports whether retrying the whole operation may succeed.
func (e *Error) Retryable() bool {
	return e.Code == CodeFetchError || e.Code == CodeSyncInProgress
}

// New creates an error with the given code and message.
func New(code Code, message string) *Error {
	return &Error{Code: code, Message: message}
}

// Wrap creates an error with the given code and message wrapping err.
func Wrap(code Code, message string, err error) *Error {
	return &Error{Code: code, Message: message, Err: err}
}

// Sentinels for errors.Is comparisons. Only the Code is compared.
var (
	ErrInvalidEventID    = New(CodeInvalidIdentifier, "Invalid event ID")
	ErrInvalidMemberID   = New(CodeInvalidIdentifier, "Invalid member ID")
	ErrInvalidName       = New(CodeInvalidName, "Invalid name")
	ErrInvalidEmail      = New(CodeInvalidEmail, "Invalid email")
	ErrEventNotFound     = New(CodeEventNotFound, "Event does not exist")
	ErrPersonNotFound    = New(CodePersonNotFound, "Member does not exist")
	ErrAlreadyCheckedIn  = New(CodeAlreadyCheckedIn, "Member already checked in")
	ErrNotCheckedIn      = New(CodeNotCheckedIn, "Member is not checked in to this event")
	ErrEmailNameMismatch = New(CodeEmailNameMismatch, "A member with a different name is associated with this email")
	ErrFetch             = New(CodeFetchError, "Failed to fetch external events")
	ErrStoreWrite        = New(CodeStoreWriteError, "Failed to write to the store")
	ErrSyncInProgress    = New(CodeSyncInProgress, "A sync is already running")
)

// StoreWrite wraps a storage failure as a StoreWriteError.
func StoreWrite(err error) *Error {
	return Wrap(CodeStoreWriteError, ErrStoreWrite.Message, err)
}

// CodeOf returns the Code of err, or CodeInternal when err matches no kind.
func CodeOf(err error) Code {
	var ae *Error
	if errors.As(err, &ae) {
		return ae.Code
	}
	if errors.Is(err, ErrFetch) {
		return CodeFetchError
	}
	return CodeInternal
}

// IsRetryable reports whether any error in err's chain declares itself
// retryable.
func IsRetryable(err error) bool {
	var r interface{ Retryable() bool }
	if errors.As(err, &r) {
		return r.Retryable()
	}
	return false
}
