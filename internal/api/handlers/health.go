package handlers

import (
	"net/http"
	"time"

	"github.com/eventroster/backend/internal/reconcile"
	"github.com/eventroster/backend/internal/storage"
	"github.com/eventroster/backend/internal/websocket"
)

// HealthResponse represents the health check response.
type HealthResponse struct {
	Status      string `json:"status"`
	DBConnected bool   `json:"db_connected"`
}

// HealthCheck returns a handler that performs a health check.
func HealthCheck(db *storage.DB) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		dbConnected := db.PingContext(r.Context()) == nil

		status := "healthy"
		code := http.StatusOK
		if !dbConnected {
			status = "degraded"
			code = http.StatusServiceUnavailable
		}

		writeJSON(w, code, HealthResponse{Status: status, DBConnected: dbConnected})
	}
}

// StatusResponse represents the system status response.
type StatusResponse struct {
	FeedSource       string     `json:"feed_source,omitempty"`
	EventsCount      int        `json:"events_count"`
	MembersCount     int        `json:"members_count"`
	CheckInsCount    int        `json:"check_ins_count"`
	WebSocketClients int        `json:"websocket_clients"`
	WindowSince      *time.Time `json:"window_since,omitempty"`
	WindowUntil      *time.Time `json:"window_until,omitempty"`
	NextSyncAt       *time.Time `json:"next_sync_at,omitempty"`
}

// Status returns a handler that provides system status information.
// scheduler may be nil when no feed source is configured.
func Status(db *storage.DB, hub *websocket.Hub, scheduler *reconcile.Scheduler) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()

		var response StatusResponse
		db.QueryRowContext(ctx, "SELECT COUNT(*) FROM events").Scan(&response.EventsCount)
		db.QueryRowContext(ctx, "SELECT COUNT(*) FROM persons").Scan(&response.MembersCount)
		db.QueryRowContext(ctx, "SELECT COUNT(*) FROM attendances").Scan(&response.CheckInsCount)

		if hub != nil {
			response.WebSocketClients = hub.ClientCount()
		}
		if scheduler != nil {
			window := scheduler.Window()
			response.FeedSource = scheduler.SourceName()
			response.WindowSince = &window.Since
			response.WindowUntil = &window.Until
			response.NextSyncAt = scheduler.NextRun()
		}

		writeJSON(w, http.StatusOK, response)
	}
}
