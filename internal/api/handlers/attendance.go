package handlers

import (
	"log/slog"
	"net/http"

	"github.com/gorilla/mux"

	"github.com/eventroster/backend/internal/api/middleware"
	"github.com/eventroster/backend/internal/attendance"
	"github.com/eventroster/backend/internal/storage/models"
	"github.com/eventroster/backend/internal/websocket"
)

// CheckInRequest identifies the member by member_id, or by name and email.
type CheckInRequest struct {
	Name     string `json:"name"`
	Email    string `json:"email"`
	MemberID string `json:"member_id"`
}

// CheckOutRequest identifies the member leaving.
type CheckOutRequest struct {
	MemberID string `json:"member_id"`
}

// AttendanceResponse is returned by check-in and check-out.
type AttendanceResponse struct {
	Event    *models.Event `json:"event"`
	MemberID string        `json:"member_id"`
}

// CheckIn checks a member in to the event.
func CheckIn(engine *attendance.Engine, broadcaster *websocket.EventBroadcaster, logger *slog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req CheckInRequest
		if err := decodeJSON(r, &req); err != nil {
			middleware.WriteError(w, http.StatusBadRequest, middleware.ErrBadRequest, "Invalid request body")
			return
		}

		event, person, err := engine.CheckInMember(r.Context(), mux.Vars(r)["id"], req.Name, req.Email, req.MemberID)
		if err != nil {
			middleware.WriteAppError(w, logger, err)
			return
		}

		broadcaster.BroadcastCheckedIn(event, person.ID)
		writeJSON(w, http.StatusOK, AttendanceResponse{Event: event, MemberID: person.ID})
	}
}

// CheckOut checks a member out of the event.
func CheckOut(engine *attendance.Engine, broadcaster *websocket.EventBroadcaster, logger *slog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req CheckOutRequest
		if err := decodeJSON(r, &req); err != nil {
			middleware.WriteError(w, http.StatusBadRequest, middleware.ErrBadRequest, "Invalid request body")
			return
		}

		event, err := engine.CheckOut(r.Context(), mux.Vars(r)["id"], req.MemberID)
		if err != nil {
			middleware.WriteAppError(w, logger, err)
			return
		}

		broadcaster.BroadcastCheckedOut(event, req.MemberID)
		writeJSON(w, http.StatusOK, AttendanceResponse{Event: event, MemberID: req.MemberID})
	}
}
