package domain

import (
	"errors"
	"fmt"
	"time"
)

// SessionStatus enumerates lifecycle states for chat sessions.
type SessionStatus string

const (
	SessionStatusOpen   SessionStatus = "OPEN"
	SessionStatusActive SessionStatus = "ACTIVE"
	SessionStatusClosed SessionStatus = "CLOSED"
)

// SessionPriority enumerates routing urgency. Higher-ranked sessions are
// served first; ties break on creation order.
type SessionPriority string

const (
	SessionPriorityLow    SessionPriority = "LOW"
	SessionPriorityNormal SessionPriority = "NORMAL"
	SessionPriorityHigh   SessionPriority = "HIGH"
	SessionPriorityUrgent SessionPriority = "URGENT"
)

// Rank returns the ordering weight of a priority.
func (p SessionPriority) Rank() int {
	switch p {
	case SessionPriorityUrgent:
		return 4
	case SessionPriorityHigh:
		return 3
	case SessionPriorityNormal:
		return 2
	case SessionPriorityLow:
		return 1
	default:
		return 0
	}
}

// Valid reports whether the priority is a known value.
func (p SessionPriority) Valid() bool {
	return p.Rank() > 0
}

// ErrInvalidTransition signals a session status change that is not reachable
// from the current status. The session is left untouched.
var ErrInvalidTransition = errors.New("invalid session transition")

var allowedTransitions = map[SessionStatus][]SessionStatus{
	SessionStatusOpen:   {SessionStatusActive, SessionStatusClosed},
	SessionStatusActive: {SessionStatusClosed},
	SessionStatusClosed: {},
}

// CanTransition reports whether next is reachable from current.
func CanTransition(current, next SessionStatus) bool {
	for _, candidate := range allowedTransitions[current] {
		if candidate == next {
			return true
		}
	}
	return false
}

// Session is the aggregate for one support conversation. OperatorID is a
// non-owning back-reference; it is retained after close so the rating
// recorder can resolve the handling operator.
type Session struct {
	ID          string
	ExternalKey string
	RequesterID string
	OperatorID  *string
	Subject     string
	Status      SessionStatus
	Priority    SessionPriority
	CreatedAt   time.Time
	UpdatedAt   time.Time
	ClosedAt    *time.Time
}

// TransitionTo moves the session to next, stamping ClosedAt on entry into
// CLOSED and advancing UpdatedAt. Invalid transitions are no-ops wrapped in
// ErrInvalidTransition.
func (s *Session) TransitionTo(next SessionStatus, now time.Time) error {
	if !CanTransition(s.Status, next) {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, s.Status, next)
	}
	s.Status = next
	s.UpdatedAt = now
	if next == SessionStatusClosed {
		closedAt := now
		s.ClosedAt = &closedAt
	}
	return nil
}

// Assign transitions OPEN -> ACTIVE and stamps the operator reference.
func (s *Session) Assign(operatorID string, now time.Time) error {
	if err := s.TransitionTo(SessionStatusActive, now); err != nil {
		return err
	}
	s.OperatorID = &operatorID
	return nil
}
