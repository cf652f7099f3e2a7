package domain

import "time"

// SenderType indicates who authored a chat message.
type SenderType string

const (
	SenderTypeUser     SenderType = "USER"
	SenderTypeOperator SenderType = "OPERATOR"
	SenderTypeSystem   SenderType = "SYSTEM"
)

// ChatMessage is one immutable message inside a session. Appending a message
// advances the parent session's UpdatedAt.
type ChatMessage struct {
	ID         string
	SessionID  string
	SenderType SenderType
	SenderID   *string
	Body       string
	CreatedAt  time.Time
}
