package dto

import (
	"time"

	"github.com/voxline/livechat-service/internal/domain"
)

// OpenSessionRequest payload.
type OpenSessionRequest struct {
	Subject  string                 `json:"subject"`
	Priority domain.SessionPriority `json:"priority"`
}

// SessionSummary response.
type SessionSummary struct {
	ID          string                 `json:"id"`
	ExternalKey string                 `json:"external_key"`
	OperatorID  *string                `json:"operator_id"`
	Subject     string                 `json:"subject"`
	Status      domain.SessionStatus   `json:"status"`
	Priority    domain.SessionPriority `json:"priority"`
	CreatedAt   time.Time              `json:"created_at"`
	UpdatedAt   time.Time              `json:"updated_at"`
}

// SessionDetailResponse provides full session info.
type SessionDetailResponse struct {
	ID          string                 `json:"id"`
	ExternalKey string                 `json:"external_key"`
	RequesterID string                 `json:"requester_id"`
	OperatorID  *string                `json:"operator_id"`
	Subject     string                 `json:"subject"`
	Status      domain.SessionStatus   `json:"status"`
	Priority    domain.SessionPriority `json:"priority"`
	CreatedAt   time.Time              `json:"created_at"`
	UpdatedAt   time.Time              `json:"updated_at"`
	ClosedAt    *time.Time             `json:"closed_at"`
	Messages    []MessageResponse      `json:"messages"`
}

// MessageResponse represents a transcript message.
type MessageResponse struct {
	ID         string            `json:"id"`
	SenderType domain.SenderType `json:"sender_type"`
	SenderID   *string           `json:"sender_id"`
	Body       string            `json:"body"`
	CreatedAt  time.Time         `json:"created_at"`
}

// AppendMessageRequest payload.
type AppendMessageRequest struct {
	Body string `json:"body"`
}

// RateSessionRequest payload.
type RateSessionRequest struct {
	Value   int    `json:"value"`
	Comment string `json:"comment"`
}

// RatingResponse response.
type RatingResponse struct {
	ID         string    `json:"id"`
	SessionID  string    `json:"session_id"`
	OperatorID string    `json:"operator_id"`
	Value      int       `json:"value"`
	Comment    string    `json:"comment,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
}

// HistoryEntryResponse represents an audit trail entry.
type HistoryEntryResponse struct {
	ID            string                   `json:"id"`
	ChangedByType domain.SenderType        `json:"changed_by_type"`
	ChangedByID   *string                  `json:"changed_by_id"`
	ChangeType    domain.SessionChangeType `json:"change_type"`
	OldValue      map[string]any           `json:"old_value,omitempty"`
	NewValue      map[string]any           `json:"new_value,omitempty"`
	CreatedAt     time.Time                `json:"created_at"`
}

// SessionFromDomain maps a session to its summary representation.
func SessionFromDomain(sess *domain.Session) SessionSummary {
	return SessionSummary{
		ID:          sess.ID,
		ExternalKey: sess.ExternalKey,
		OperatorID:  sess.OperatorID,
		Subject:     sess.Subject,
		Status:      sess.Status,
		Priority:    sess.Priority,
		CreatedAt:   sess.CreatedAt,
		UpdatedAt:   sess.UpdatedAt,
	}
}

// SessionDetailFromDomain maps a session and its transcript.
func SessionDetailFromDomain(sess *domain.Session, messages []domain.ChatMessage) SessionDetailResponse {
	resp := SessionDetailResponse{
		ID:          sess.ID,
		ExternalKey: sess.ExternalKey,
		RequesterID: sess.RequesterID,
		OperatorID:  sess.OperatorID,
		Subject:     sess.Subject,
		Status:      sess.Status,
		Priority:    sess.Priority,
		CreatedAt:   sess.CreatedAt,
		UpdatedAt:   sess.UpdatedAt,
		ClosedAt:    sess.ClosedAt,
		Messages:    make([]MessageResponse, 0, len(messages)),
	}
	for _, msg := range messages {
		resp.Messages = append(resp.Messages, MessageFromDomain(&msg))
	}
	return resp
}

// MessageFromDomain maps a transcript message.
func MessageFromDomain(msg *domain.ChatMessage) MessageResponse {
	return MessageResponse{
		ID:         msg.ID,
		SenderType: msg.SenderType,
		SenderID:   msg.SenderID,
		Body:       msg.Body,
		CreatedAt:  msg.CreatedAt,
	}
}

// RatingFromDomain maps a rating.
func RatingFromDomain(rating *domain.Rating) RatingResponse {
	return RatingResponse{
		ID:         rating.ID,
		SessionID:  rating.SessionID,
		OperatorID: rating.OperatorID,
		Value:      rating.Value,
		Comment:    rating.Comment,
		CreatedAt:  rating.CreatedAt,
	}
}

// HistoryFromDomain maps an audit entry.
func HistoryFromDomain(entry *domain.SessionHistory) HistoryEntryResponse {
	return HistoryEntryResponse{
		ID:            entry.ID,
		ChangedByType: entry.ChangedByType,
		ChangedByID:   entry.ChangedByID,
		ChangeType:    entry.ChangeType,
		OldValue:      entry.OldValue,
		NewValue:      entry.NewValue,
		CreatedAt:     entry.CreatedAt,
	}
}
