package handlers

import (
	"log/slog"
	"net/http"

	"github.com/gorilla/mux"

	"github.com/eventroster/backend/internal/api/middleware"
	"github.com/eventroster/backend/internal/apperror"
	"github.com/eventroster/backend/internal/attendance"
	"github.com/eventroster/backend/internal/storage"
	"github.com/eventroster/backend/internal/validation"
)

// RegisterMemberRequest is the body of a member registration.
type RegisterMemberRequest struct {
	Name  string `json:"name"`
	Email string `json:"email"`
}

// GetMember returns a member with the ids of the events they attend.
func GetMember(persons *storage.PersonRepository, logger *slog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := mux.Vars(r)["id"]
		if err := validation.ValidateMemberID(id); err != nil {
			middleware.WriteAppError(w, logger, err)
			return
		}

		person, err := persons.GetByID(r.Context(), id)
		if err != nil {
			middleware.WriteAppError(w, logger, err)
			return
		}
		if person == nil {
			middleware.WriteAppError(w, logger, apperror.ErrPersonNotFound)
			return
		}

		writeJSON(w, http.StatusOK, person)
	}
}

// RegisterMember registers a member, or returns the existing member with the
// same email and name.
func RegisterMember(engine *attendance.Engine, logger *slog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req RegisterMemberRequest
		if err := decodeJSON(r, &req); err != nil {
			middleware.WriteError(w, http.StatusBadRequest, middleware.ErrBadRequest, "Invalid request body")
			return
		}

		person, err := engine.ResolvePerson(r.Context(), req.Name, req.Email)
		if err != nil {
			middleware.WriteAppError(w, logger, err)
			return
		}

		writeJSON(w, http.StatusOK, person)
	}
}
