package domain

import "time"

// SessionChangeType captures what changed in a history entry.
type SessionChangeType string

const (
	ChangeTypeStatus     SessionChangeType = "STATUS_CHANGE"
	ChangeTypeAssignment SessionChangeType = "ASSIGNMENT"
)

// SessionHistory is an immutable audit trail entry for a session.
type SessionHistory struct {
	ID            string
	SessionID     string
	ChangedByType SenderType
	ChangedByID   *string
	ChangeType    SessionChangeType
	OldValue      map[string]any
	NewValue      map[string]any
	CreatedAt     time.Time
}
