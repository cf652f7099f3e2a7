package events

import (
	"time"

	"github.com/voxline/livechat-service/internal/domain"
)

// EventType enumerates supported event identifiers.
type EventType string

const (
	EventSessionOpened         EventType = "session_opened"
	EventSessionAssigned       EventType = "session_assigned"
	EventSessionClosed         EventType = "session_closed"
	EventSessionDeleted        EventType = "session_deleted"
	EventSessionMessageAdded   EventType = "session_message_added"
	EventSessionRated          EventType = "session_rated"
	EventOperatorStatusChanged EventType = "operator_status_changed"
)

// Actor encapsulates actor metadata for an event.
type Actor struct {
	Type       domain.SenderType `json:"type"`
	UserID     *string           `json:"user_id,omitempty"`
	OperatorID *string           `json:"operator_id,omitempty"`
}

// Event represents a domain event emitted by services.
type Event struct {
	ID         string      `json:"id"`
	Type       EventType   `json:"type"`
	SessionID  string      `json:"session_id,omitempty"`
	OperatorID string      `json:"operator_id,omitempty"`
	Actor      Actor       `json:"actor"`
	Timestamp  time.Time   `json:"timestamp"`
	Payload    interface{} `json:"payload"`
}

// SessionOpenedPayload payload.
type SessionOpenedPayload struct {
	RequesterID string                 `json:"requester_id"`
	Subject     string                 `json:"subject"`
	Priority    domain.SessionPriority `json:"priority"`
}

// SessionAssignedPayload payload.
type SessionAssignedPayload struct {
	OperatorID string `json:"operator_id"`
}

// SessionClosedPayload payload.
type SessionClosedPayload struct {
	OperatorID *string `json:"operator_id,omitempty"`
	Reason     string  `json:"reason,omitempty"`
}

// SessionDeletedPayload payload.
type SessionDeletedPayload struct {
	WasActive bool `json:"was_active"`
}

// SessionMessageAddedPayload payload.
type SessionMessageAddedPayload struct {
	MessageID   string            `json:"message_id"`
	SenderType  domain.SenderType `json:"sender_type"`
	SenderID    *string           `json:"sender_id,omitempty"`
	BodyPreview string            `json:"body_preview"`
}

// SessionRatedPayload payload.
type SessionRatedPayload struct {
	OperatorID string `json:"operator_id"`
	Value      int    `json:"value"`
}

// OperatorStatusChangedPayload payload.
type OperatorStatusChangedPayload struct {
	OldStatus      domain.OperatorStatus `json:"old_status"`
	NewStatus      domain.OperatorStatus `json:"new_status"`
	SessionsClosed int                   `json:"sessions_closed,omitempty"`
}
