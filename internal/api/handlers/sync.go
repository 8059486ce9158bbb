package handlers

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/eventroster/backend/internal/api/middleware"
	"github.com/eventroster/backend/internal/reconcile"
	"github.com/eventroster/backend/internal/storage"
)

// TriggerSync runs a sync immediately and returns its result.
func TriggerSync(scheduler *reconcile.Scheduler, logger *slog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if scheduler == nil {
			middleware.WriteError(w, http.StatusServiceUnavailable, middleware.ErrUnavailable, "No feed source configured")
			return
		}

		// A disconnecting client must not cancel a pass shared with the scheduler.
		result, err := scheduler.SyncNow(context.WithoutCancel(r.Context()))
		if err != nil {
			middleware.WriteAppError(w, logger, err)
			return
		}

		writeJSON(w, http.StatusOK, result)
	}
}

// ListSyncRuns returns the most recent sync runs, newest first.
func ListSyncRuns(runs *storage.SyncRunRepository, logger *slog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		limit := 20
		if v := r.URL.Query().Get("limit"); v != "" {
			n, err := strconv.Atoi(v)
			if err != nil || n <= 0 || n > 500 {
				middleware.WriteError(w, http.StatusBadRequest, middleware.ErrValidation, "limit must be between 1 and 500")
				return
			}
			limit = n
		}

		list, err := runs.ListRecent(r.Context(), limit)
		if err != nil {
			middleware.WriteAppError(w, logger, err)
			return
		}

		writeJSON(w, http.StatusOK, list)
	}
}
