package websocket

import (
	"encoding/json"
	"time"
)

// MessageType identifies the type of WebSocket message.
type MessageType string

const (
	// Server -> Client event types
	TypeSyncCompleted      MessageType = "sync.completed"
	TypeSyncError          MessageType = "sync.error"
	TypeAttendeeCheckedIn  MessageType = "attendance.checked_in"
	TypeAttendeeCheckedOut MessageType = "attendance.checked_out"
	TypeEventChanged       MessageType = "event.changed"
	TypeEventDeleted       MessageType = "event.deleted"

	// Client -> Server command types
	TypePing MessageType = "ping"

	// Server -> Client response types
	TypePong  MessageType = "pong"
	TypeError MessageType = "error"
)

// Message represents a WebSocket message envelope.
type Message struct {
	Type      MessageType `json:"type"`
	Timestamp time.Time   `json:"timestamp"`
	Payload   any         `json:"payload"`
}

// NewMessage creates a new message with the current timestamp.
func NewMessage(msgType MessageType, payload any) Message {
	return Message{
		Type:      msgType,
		Timestamp: time.Now().UTC(),
		Payload:   payload,
	}
}

// JSON serializes the message to JSON bytes.
func (m Message) JSON() ([]byte, error) {
	return json.Marshal(m)
}

// SyncPayload is the payload for sync.completed events.
type SyncPayload struct {
	Source     string   `json:"source"`
	Status     string   `json:"status"`
	EventsSeen int      `json:"events_seen"`
	Created    int      `json:"created"`
	Updated    int      `json:"updated"`
	Deleted    int      `json:"deleted"`
	Failed     int      `json:"failed"`
	DeletedIDs []string `json:"deleted_ids,omitempty"`
}

// SyncErrorPayload is the payload for sync.error events.
type SyncErrorPayload struct {
	Source    string `json:"source"`
	Error     string `json:"error"`
	Message   string `json:"message"`
	Retryable bool   `json:"retryable"`
}

// AttendancePayload is the payload for attendance.* events.
type AttendancePayload struct {
	EventID       string `json:"event_id"`
	EventName     string `json:"event_name"`
	MemberID      string `json:"member_id"`
	AttendeeCount int    `json:"attendee_count"`
}

// EventPayload is the payload for event.* events.
type EventPayload struct {
	EventID string `json:"event_id"`
	Name    string `json:"name,omitempty"`
}

// ErrorPayload is the payload for error messages.
type ErrorPayload struct {
	Code         string `json:"code"`
	Message      string `json:"message"`
	OriginalType string `json:"original_type,omitempty"`
}

// ParseMessage decodes a client message envelope.
func ParseMessage(data []byte) (Message, error) {
	var msg Message
	if err := json.Unmarshal(data, &msg); err != nil {
		return Message{}, err
	}
	return msg, nil
}
