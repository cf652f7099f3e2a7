package service

import (
	"context"
	"testing"

	"github.com/voxline/livechat-service/internal/domain"
)

func TestAssignNextEmptyBacklog(t *testing.T) {
	f := newChatFixture()
	op := f.addOperator(domain.OperatorStatusOnline, 1)

	sess, err := f.router.AssignNext(context.Background(), op)
	if err != nil {
		t.Fatalf("AssignNext: %v", err)
	}
	if sess != nil {
		t.Fatalf("assigned %v, want nil", sess)
	}
	if got := f.operators.load(op.ID); got != 0 {
		t.Fatalf("load = %d, want 0 (no reservation on empty backlog)", got)
	}
}

func TestAssignNextOrdering(t *testing.T) {
	f := newChatFixture()
	ctx := context.Background()

	mk := func(user string, p domain.SessionPriority) *domain.Session {
		sess := &domain.Session{
			ExternalKey: "CHT-" + user,
			RequesterID: user,
			Subject:     "s",
			Status:      domain.SessionStatusOpen,
			Priority:    p,
		}
		if err := f.sessions.Create(ctx, sess); err != nil {
			t.Fatalf("Create: %v", err)
		}
		return sess
	}

	low := mk("u1", domain.SessionPriorityLow)
	normalFirst := mk("u2", domain.SessionPriorityNormal)
	normalSecond := mk("u3", domain.SessionPriorityNormal)
	high := mk("u4", domain.SessionPriorityHigh)

	op := f.addOperator(domain.OperatorStatusOnline, 4)

	want := []string{high.ID, normalFirst.ID, normalSecond.ID, low.ID}
	for i, expected := range want {
		got, err := f.router.AssignNext(ctx, op)
		if err != nil {
			t.Fatalf("AssignNext #%d: %v", i, err)
		}
		if got == nil || got.ID != expected {
			t.Fatalf("AssignNext #%d = %v, want %s", i, got, expected)
		}
	}

	if sess, _ := f.router.AssignNext(ctx, op); sess != nil {
		t.Fatalf("drained backlog still assigned %v", sess)
	}
}

func TestAssignNextDeniedWhenOffline(t *testing.T) {
	f := newChatFixture()
	ctx := context.Background()

	sess := &domain.Session{
		ExternalKey: "CHT-X",
		RequesterID: "u1",
		Subject:     "s",
		Status:      domain.SessionStatusOpen,
		Priority:    domain.SessionPriorityNormal,
	}
	if err := f.sessions.Create(ctx, sess); err != nil {
		t.Fatalf("Create: %v", err)
	}
	op := f.addOperator(domain.OperatorStatusOffline, 3)

	got, err := f.router.AssignNext(ctx, op)
	if err != nil {
		t.Fatalf("AssignNext: %v", err)
	}
	if got != nil {
		t.Fatalf("assigned %v, want nil for OFFLINE operator", got)
	}
	stored, _ := f.sessions.GetByID(ctx, sess.ID)
	if stored.Status != domain.SessionStatusOpen {
		t.Fatalf("session = %s, want OPEN", stored.Status)
	}
}

// A session that left OPEN between the backlog read and the status write must
// give the reserved slot back.
func TestAssignNextReleasesReservationOnLostRace(t *testing.T) {
	f := newChatFixture()
	ctx := context.Background()

	sess := &domain.Session{
		ExternalKey: "CHT-X",
		RequesterID: "u1",
		Subject:     "s",
		Status:      domain.SessionStatusOpen,
		Priority:    domain.SessionPriorityNormal,
	}
	if err := f.sessions.Create(ctx, sess); err != nil {
		t.Fatalf("Create: %v", err)
	}
	op := f.addOperator(domain.OperatorStatusOnline, 3)

	// Simulate the concurrent writer: flip the stored row to CLOSED right
	// after the router takes its backlog snapshot, so the guarded status
	// update affects zero rows.
	f.sessions.afterNextWaiting = func() {
		f.sessions.mu.Lock()
		f.sessions.sessions[sess.ID].Status = domain.SessionStatusClosed
		f.sessions.mu.Unlock()
	}

	got, err := f.router.AssignNext(ctx, op)
	if err != nil {
		t.Fatalf("AssignNext: %v", err)
	}
	if got != nil {
		t.Fatalf("assigned %v, want nil", got)
	}
	if load := f.operators.load(op.ID); load != 0 {
		t.Fatalf("load = %d, want 0 after released reservation", load)
	}
}

func TestAssignNextRecordsAssignmentHistory(t *testing.T) {
	f := newChatFixture()
	ctx := context.Background()

	sess := &domain.Session{
		ExternalKey: "CHT-X",
		RequesterID: "u1",
		Subject:     "s",
		Status:      domain.SessionStatusOpen,
		Priority:    domain.SessionPriorityNormal,
	}
	if err := f.sessions.Create(ctx, sess); err != nil {
		t.Fatalf("Create: %v", err)
	}
	op := f.addOperator(domain.OperatorStatusOnline, 1)

	if _, err := f.router.AssignNext(ctx, op); err != nil {
		t.Fatalf("AssignNext: %v", err)
	}

	entries, _ := f.history.ListBySession(ctx, sess.ID, 10, 0)
	found := false
	for _, entry := range entries {
		if entry.ChangeType == domain.ChangeTypeAssignment {
			found = true
		}
	}
	if !found {
		t.Fatal("no assignment history entry recorded")
	}
}
