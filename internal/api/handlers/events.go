package handlers

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gorilla/mux"

	"github.com/eventroster/backend/internal/api/middleware"
	"github.com/eventroster/backend/internal/apperror"
	"github.com/eventroster/backend/internal/storage"
	"github.com/eventroster/backend/internal/storage/models"
	"github.com/eventroster/backend/internal/validation"
	"github.com/eventroster/backend/internal/websocket"
)

// EventRequest is the body of event create and update requests.
type EventRequest struct {
	Name      string    `json:"name"`
	Location  string    `json:"location"`
	EventTime time.Time `json:"event_time"`
	IsPrivate bool      `json:"is_private"`
}

func (req *EventRequest) validate() error {
	if err := validation.ValidateName(req.Name); err != nil {
		return err
	}
	if req.EventTime.IsZero() {
		return errors.New("event_time is required")
	}
	return nil
}

// ListEvents returns events ordered by time. since and until are RFC 3339
// times; an unencoded "+" in the offset arrives as a space and is accepted.
// Private events are included only with include_private=true.
func ListEvents(events *storage.EventRepository, logger *slog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		var filter storage.EventFilter

		var err error
		if filter.Since, err = parseTimeParam(q.Get("since")); err != nil {
			middleware.WriteError(w, http.StatusBadRequest, middleware.ErrValidation, "since must be an RFC 3339 time")
			return
		}
		if filter.Until, err = parseTimeParam(q.Get("until")); err != nil {
			middleware.WriteError(w, http.StatusBadRequest, middleware.ErrValidation, "until must be an RFC 3339 time")
			return
		}
		if v := q.Get("include_private"); v != "" {
			include, err := strconv.ParseBool(v)
			if err != nil {
				middleware.WriteError(w, http.StatusBadRequest, middleware.ErrValidation, "include_private must be a boolean")
				return
			}
			filter.IncludePrivate = include
		}

		list, err := events.List(r.Context(), filter)
		if err != nil {
			middleware.WriteAppError(w, logger, err)
			return
		}

		writeJSON(w, http.StatusOK, list)
	}
}

// GetEvent returns a single event with its attendee ids.
func GetEvent(events *storage.EventRepository, logger *slog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		event, ok := loadEvent(w, r, events, logger)
		if !ok {
			return
		}
		writeJSON(w, http.StatusOK, event)
	}
}

// CreateEvent adds a local event. Local events have no external link and are
// never touched by sync.
func CreateEvent(events *storage.EventRepository, broadcaster *websocket.EventBroadcaster, logger *slog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req EventRequest
		if err := decodeJSON(r, &req); err != nil {
			middleware.WriteError(w, http.StatusBadRequest, middleware.ErrBadRequest, "Invalid request body")
			return
		}
		if !validateEventRequest(w, logger, &req) {
			return
		}

		event := &models.Event{
			Name:      validation.NormalizeName(req.Name),
			Location:  req.Location,
			EventTime: req.EventTime,
			IsPrivate: req.IsPrivate,
		}
		if err := events.Create(r.Context(), event); err != nil {
			middleware.WriteAppError(w, logger, apperror.StoreWrite(err))
			return
		}

		broadcaster.BroadcastEventChanged(event)
		writeJSON(w, http.StatusCreated, event)
	}
}

// UpdateEvent replaces the editable fields of an event. Upstream-managed
// events are overwritten again by the next sync.
func UpdateEvent(events *storage.EventRepository, broadcaster *websocket.EventBroadcaster, logger *slog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		event, ok := loadEvent(w, r, events, logger)
		if !ok {
			return
		}

		var req EventRequest
		if err := decodeJSON(r, &req); err != nil {
			middleware.WriteError(w, http.StatusBadRequest, middleware.ErrBadRequest, "Invalid request body")
			return
		}
		if !validateEventRequest(w, logger, &req) {
			return
		}

		event.Name = validation.NormalizeName(req.Name)
		event.Location = req.Location
		event.EventTime = req.EventTime
		event.IsPrivate = req.IsPrivate

		if err := events.Update(r.Context(), event); err != nil {
			if errors.Is(err, storage.ErrNotFound) {
				middleware.WriteAppError(w, logger, apperror.ErrEventNotFound)
				return
			}
			middleware.WriteAppError(w, logger, apperror.StoreWrite(err))
			return
		}

		broadcaster.BroadcastEventChanged(event)
		writeJSON(w, http.StatusOK, event)
	}
}

// DeleteEvent removes an event and its attendance records.
func DeleteEvent(events *storage.EventRepository, broadcaster *websocket.EventBroadcaster, logger *slog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := mux.Vars(r)["id"]
		if err := validation.ValidateEventID(id); err != nil {
			middleware.WriteAppError(w, logger, err)
			return
		}

		if err := events.Delete(r.Context(), id); err != nil {
			if errors.Is(err, storage.ErrNotFound) {
				middleware.WriteAppError(w, logger, apperror.ErrEventNotFound)
				return
			}
			middleware.WriteAppError(w, logger, apperror.StoreWrite(err))
			return
		}

		broadcaster.BroadcastEventDeleted(id)
		w.WriteHeader(http.StatusNoContent)
	}
}

// ListAttendees returns the members checked in to an event.
func ListAttendees(events *storage.EventRepository, attendance *storage.AttendanceRepository, logger *slog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		event, ok := loadEvent(w, r, events, logger)
		if !ok {
			return
		}

		persons, err := attendance.ListAttendees(r.Context(), event.ID)
		if err != nil {
			middleware.WriteAppError(w, logger, err)
			return
		}

		writeJSON(w, http.StatusOK, persons)
	}
}

// parseTimeParam parses an optional RFC 3339 query value. An empty value
// yields the zero time.
func parseTimeParam(v string) (time.Time, error) {
	if v == "" {
		return time.Time{}, nil
	}
	return time.Parse(time.RFC3339, strings.ReplaceAll(v, " ", "+"))
}

// loadEvent resolves the {id} route variable, writing the error response on
// failure.
func loadEvent(w http.ResponseWriter, r *http.Request, events *storage.EventRepository, logger *slog.Logger) (*models.Event, bool) {
	id := mux.Vars(r)["id"]
	if err := validation.ValidateEventID(id); err != nil {
		middleware.WriteAppError(w, logger, err)
		return nil, false
	}

	event, err := events.GetByID(r.Context(), id)
	if err != nil {
		middleware.WriteAppError(w, logger, err)
		return nil, false
	}
	if event == nil {
		middleware.WriteAppError(w, logger, apperror.ErrEventNotFound)
		return nil, false
	}
	return event, true
}

func validateEventRequest(w http.ResponseWriter, logger *slog.Logger, req *EventRequest) bool {
	err := req.validate()
	if err == nil {
		return true
	}
	if apperror.CodeOf(err) != apperror.CodeInternal {
		middleware.WriteAppError(w, logger, err)
	} else {
		middleware.WriteError(w, http.StatusBadRequest, middleware.ErrValidation, err.Error())
	}
	return false
}
