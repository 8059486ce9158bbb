// Package middleware provides HTTP middleware for the API.
package middleware

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"runtime/debug"

	"github.com/eventroster/backend/internal/apperror"
)

// ErrorResponse represents a standardized API error response.
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
	Details any    `json:"details,omitempty"`
}

// WriteError writes a JSON error response with the given status code.
func WriteError(w http.ResponseWriter, status int, errCode, message string) {
	WriteErrorWithDetails(w, status, errCode, message, nil)
}

// WriteErrorWithDetails writes a JSON error response with additional details.
func WriteErrorWithDetails(w http.ResponseWriter, status int, errCode, message string, details any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(ErrorResponse{
		Error:   errCode,
		Message: message,
		Details: details,
	})
}

// StatusFor maps an error kind to its HTTP status.
func StatusFor(code apperror.Code) int {
	switch code {
	case apperror.CodeInvalidIdentifier, apperror.CodeInvalidName, apperror.CodeInvalidEmail:
		return http.StatusBadRequest
	case apperror.CodeEventNotFound, apperror.CodePersonNotFound:
		return http.StatusNotFound
	case apperror.CodeAlreadyCheckedIn, apperror.CodeNotCheckedIn,
		apperror.CodeEmailNameMismatch, apperror.CodeSyncInProgress:
		return http.StatusConflict
	case apperror.CodeFetchError:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// WriteAppError writes err using its error kind. The message of an
// *apperror.Error is shown verbatim; anything else is reported as an internal
// error. Server-side failures are logged.
func WriteAppError(w http.ResponseWriter, logger *slog.Logger, err error) {
	code := apperror.CodeOf(err)
	status := StatusFor(code)

	if status >= http.StatusInternalServerError {
		logger.Error("request failed", "error", err)
	}

	var ae *apperror.Error
	switch {
	case errors.As(err, &ae):
		WriteError(w, status, string(code), ae.Message)
	case code == apperror.CodeFetchError:
		WriteError(w, status, string(code), apperror.ErrFetch.Message)
	default:
		WriteError(w, http.StatusInternalServerError, string(apperror.CodeInternal), "An unexpected error occurred")
	}
}

// ErrorRecovery returns middleware that recovers from panics and returns a 500 error.
func ErrorRecovery(logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				if err := recover(); err != nil {
					logger.Error("panic recovered", "panic", err, "path", r.URL.Path, "stack", string(debug.Stack()))
					WriteError(w, http.StatusInternalServerError, ErrInternalError, "An unexpected error occurred")
				}
			}()
			next.ServeHTTP(w, r)
		})
	}
}

// Common error codes
const (
	ErrNotFound      = "not_found"
	ErrBadRequest    = "bad_request"
	ErrInternalError = "internal_error"
	ErrValidation    = "validation_error"
	ErrUnavailable   = "unavailable"
)
