// Package api provides HTTP routing and handlers for the REST API.
package api

import (
	"log/slog"
	"net/http"

	"github.com/gorilla/mux"

	"github.com/eventroster/backend/internal/api/handlers"
	"github.com/eventroster/backend/internal/api/middleware"
	"github.com/eventroster/backend/internal/attendance"
	"github.com/eventroster/backend/internal/reconcile"
	"github.com/eventroster/backend/internal/storage"
	"github.com/eventroster/backend/internal/websocket"
)

// Services are the dependencies of the API routes. Scheduler is nil when no
// feed source is configured; Hub and Broadcaster may be nil.
type Services struct {
	DB          *storage.DB
	Events      *storage.EventRepository
	Persons     *storage.PersonRepository
	Attendance  *storage.AttendanceRepository
	SyncRuns    *storage.SyncRunRepository
	Engine      *attendance.Engine
	Scheduler   *reconcile.Scheduler
	Hub         *websocket.Hub
	Broadcaster *websocket.EventBroadcaster

	// StaticDir, when set, is served at the root.
	StaticDir string
}

// NewServices builds the repositories and the attendance engine on db.
func NewServices(db *storage.DB) *Services {
	events := storage.NewEventRepository(db)
	persons := storage.NewPersonRepository(db)
	ledger := storage.NewAttendanceRepository(db)

	return &Services{
		DB:         db,
		Events:     events,
		Persons:    persons,
		Attendance: ledger,
		SyncRuns:   storage.NewSyncRunRepository(db),
		Engine:     attendance.NewEngine(events, persons, ledger),
	}
}

// NewRouter creates and configures the HTTP router with all API routes.
func NewRouter(s *Services, logger *slog.Logger) *mux.Router {
	if logger == nil {
		logger = slog.Default()
	}
	r := mux.NewRouter()

	r.Use(middleware.Logging(logger))
	r.Use(middleware.ErrorRecovery(logger))

	api := r.PathPrefix("/api").Subrouter()

	// Health and status endpoints
	api.HandleFunc("/health", handlers.HealthCheck(s.DB)).Methods("GET")
	api.HandleFunc("/status", handlers.Status(s.DB, s.Hub, s.Scheduler)).Methods("GET")

	if s.Hub != nil {
		api.HandleFunc("/ws", handlers.WebSocketUpgrade(s.Hub, logger)).Methods("GET")
	}

	// Event endpoints
	api.HandleFunc("/events", handlers.ListEvents(s.Events, logger)).Methods("GET")
	api.HandleFunc("/events", handlers.CreateEvent(s.Events, s.Broadcaster, logger)).Methods("POST")
	api.HandleFunc("/events/{id}", handlers.GetEvent(s.Events, logger)).Methods("GET")
	api.HandleFunc("/events/{id}", handlers.UpdateEvent(s.Events, s.Broadcaster, logger)).Methods("PUT")
	api.HandleFunc("/events/{id}", handlers.DeleteEvent(s.Events, s.Broadcaster, logger)).Methods("DELETE")
	api.HandleFunc("/events/{id}/attendees", handlers.ListAttendees(s.Events, s.Attendance, logger)).Methods("GET")
	api.HandleFunc("/events/{id}/checkin", handlers.CheckIn(s.Engine, s.Broadcaster, logger)).Methods("POST")
	api.HandleFunc("/events/{id}/checkout", handlers.CheckOut(s.Engine, s.Broadcaster, logger)).Methods("POST")

	// Member endpoints
	api.HandleFunc("/members", handlers.RegisterMember(s.Engine, logger)).Methods("POST")
	api.HandleFunc("/members/{id}", handlers.GetMember(s.Persons, logger)).Methods("GET")

	// Sync endpoints
	api.HandleFunc("/sync", handlers.TriggerSync(s.Scheduler, logger)).Methods("POST")
	api.HandleFunc("/sync/runs", handlers.ListSyncRuns(s.SyncRuns, logger)).Methods("GET")

	if s.StaticDir != "" {
		r.PathPrefix("/").Handler(http.FileServer(http.Dir(s.StaticDir)))
	}

	return r
}
