package websocket

import (
	"log/slog"

	"github.com/eventroster/backend/internal/apperror"
	"github.com/eventroster/backend/internal/storage/models"
)

// EventBroadcaster handles broadcasting WebSocket events. A nil
// *EventBroadcaster drops everything, so callers need no hub.
type EventBroadcaster struct {
	hub    *Hub
	logger *slog.Logger
}

// NewEventBroadcaster creates a new event broadcaster. It returns nil when
// hub is nil.
func NewEventBroadcaster(hub *Hub) *EventBroadcaster {
	if hub == nil {
		return nil
	}
	return &EventBroadcaster{hub: hub, logger: hub.logger}
}

// BroadcastSyncCompleted sends a sync completed event.
func (b *EventBroadcaster) BroadcastSyncCompleted(result *models.SyncResult) {
	if b == nil || result == nil {
		return
	}

	payload := SyncPayload{
		Source:     result.Source,
		Status:     result.Status(),
		EventsSeen: result.EventsSeen,
		Created:    len(result.Created),
		Updated:    len(result.Updated),
		Deleted:    len(result.Deleted),
		Failed:     len(result.Failed),
		DeletedIDs: result.Deleted,
	}

	b.broadcast(NewMessage(TypeSyncCompleted, payload))
}

// BroadcastSyncError sends a sync error event.
func (b *EventBroadcaster) BroadcastSyncError(source string, err error) {
	if b == nil {
		return
	}

	payload := SyncErrorPayload{
		Source:    source,
		Error:     string(apperror.CodeOf(err)),
		Message:   err.Error(),
		Retryable: apperror.IsRetryable(err),
	}

	b.broadcast(NewMessage(TypeSyncError, payload))
}

// BroadcastCheckedIn sends an attendance.checked_in event.
func (b *EventBroadcaster) BroadcastCheckedIn(event *models.Event, memberID string) {
	b.broadcastAttendance(TypeAttendeeCheckedIn, event, memberID)
}

// BroadcastCheckedOut sends an attendance.checked_out event.
func (b *EventBroadcaster) BroadcastCheckedOut(event *models.Event, memberID string) {
	b.broadcastAttendance(TypeAttendeeCheckedOut, event, memberID)
}

func (b *EventBroadcaster) broadcastAttendance(msgType MessageType, event *models.Event, memberID string) {
	if b == nil || event == nil {
		return
	}

	payload := AttendancePayload{
		EventID:       event.ID,
		EventName:     event.Name,
		MemberID:      memberID,
		AttendeeCount: len(event.Attendees),
	}

	b.broadcast(NewMessage(msgType, payload))
}

// BroadcastEventChanged sends an event.changed event for a manual edit.
func (b *EventBroadcaster) BroadcastEventChanged(event *models.Event) {
	if b == nil || event == nil {
		return
	}
	b.broadcast(NewMessage(TypeEventChanged, EventPayload{EventID: event.ID, Name: event.Name}))
}

// BroadcastEventDeleted sends an event.deleted event for a manual delete.
func (b *EventBroadcaster) BroadcastEventDeleted(eventID string) {
	if b == nil {
		return
	}
	b.broadcast(NewMessage(TypeEventDeleted, EventPayload{EventID: eventID}))
}

// broadcast sends a message to all connected clients.
func (b *EventBroadcaster) broadcast(msg Message) {
	data, err := msg.JSON()
	if err != nil {
		b.logger.Error("encoding websocket message", "type", msg.Type, "error", err)
		return
	}

	b.hub.Broadcast(data)
}
