package domain

import (
	"errors"
	"testing"
	"time"
)

func TestSessionTransitionTable(t *testing.T) {
	cases := []struct {
		from    SessionStatus
		to      SessionStatus
		allowed bool
	}{
		{SessionStatusOpen, SessionStatusActive, true},
		{SessionStatusOpen, SessionStatusClosed, true},
		{SessionStatusActive, SessionStatusClosed, true},
		{SessionStatusActive, SessionStatusOpen, false},
		{SessionStatusClosed, SessionStatusOpen, false},
		{SessionStatusClosed, SessionStatusActive, false},
		{SessionStatusClosed, SessionStatusClosed, false},
		{SessionStatusOpen, SessionStatusOpen, false},
	}

	now := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	for _, tc := range cases {
		sess := &Session{ID: "sess-1", Status: tc.from}
		err := sess.TransitionTo(tc.to, now)
		if tc.allowed {
			if err != nil {
				t.Fatalf("%s -> %s: unexpected error %v", tc.from, tc.to, err)
			}
			if sess.Status != tc.to {
				t.Fatalf("%s -> %s: status not updated, got %s", tc.from, tc.to, sess.Status)
			}
			continue
		}
		if !errors.Is(err, ErrInvalidTransition) {
			t.Fatalf("%s -> %s: expected ErrInvalidTransition, got %v", tc.from, tc.to, err)
		}
		if sess.Status != tc.from {
			t.Fatalf("%s -> %s: rejected transition mutated status to %s", tc.from, tc.to, sess.Status)
		}
	}
}

func TestTransitionIntoClosedStampsClosedAt(t *testing.T) {
	now := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	sess := &Session{ID: "sess-1", Status: SessionStatusActive}
	if err := sess.TransitionTo(SessionStatusClosed, now); err != nil {
		t.Fatalf("close: %v", err)
	}
	if sess.ClosedAt == nil || !sess.ClosedAt.Equal(now) {
		t.Fatalf("expected ClosedAt %v, got %v", now, sess.ClosedAt)
	}
	if !sess.UpdatedAt.Equal(now) {
		t.Fatalf("expected UpdatedAt %v, got %v", now, sess.UpdatedAt)
	}
}

func TestAssignStampsOperator(t *testing.T) {
	now := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	sess := &Session{ID: "sess-1", Status: SessionStatusOpen}
	if err := sess.Assign("op-1", now); err != nil {
		t.Fatalf("assign: %v", err)
	}
	if sess.Status != SessionStatusActive {
		t.Fatalf("expected ACTIVE, got %s", sess.Status)
	}
	if sess.OperatorID == nil || *sess.OperatorID != "op-1" {
		t.Fatalf("expected operator op-1, got %v", sess.OperatorID)
	}
}

func TestAssignRejectedOnTerminalSession(t *testing.T) {
	now := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	sess := &Session{ID: "sess-1", Status: SessionStatusClosed}
	if err := sess.Assign("op-1", now); !errors.Is(err, ErrInvalidTransition) {
		t.Fatalf("expected ErrInvalidTransition, got %v", err)
	}
	if sess.OperatorID != nil {
		t.Fatalf("rejected assign must not stamp operator, got %v", *sess.OperatorID)
	}
}

func TestPriorityRankOrdering(t *testing.T) {
	ordered := []SessionPriority{SessionPriorityLow, SessionPriorityNormal, SessionPriorityHigh, SessionPriorityUrgent}
	for i := 1; i < len(ordered); i++ {
		if ordered[i].Rank() <= ordered[i-1].Rank() {
			t.Fatalf("expected %s to outrank %s", ordered[i], ordered[i-1])
		}
	}
	if SessionPriority("BOGUS").Valid() {
		t.Fatal("unknown priority must not be valid")
	}
}
