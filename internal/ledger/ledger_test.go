package ledger

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"

	"github.com/voxline/livechat-service/internal/domain"
	"github.com/voxline/livechat-service/internal/observability"
	"github.com/voxline/livechat-service/internal/repository"
	"github.com/voxline/livechat-service/pkg/util"
)

type stubOperatorRepo struct {
	mu        sync.Mutex
	operators map[string]*domain.Operator
}

func newStubOperatorRepo(ops ...*domain.Operator) *stubOperatorRepo {
	r := &stubOperatorRepo{operators: make(map[string]*domain.Operator)}
	for _, op := range ops {
		cp := *op
		r.operators[op.ID] = &cp
	}
	return r
}

func (r *stubOperatorRepo) Create(context.Context, *domain.Operator) error { return nil }
func (r *stubOperatorRepo) Update(context.Context, *domain.Operator) error { return nil }

func (r *stubOperatorRepo) GetByID(_ context.Context, id string) (*domain.Operator, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	op, ok := r.operators[id]
	if !ok {
		return nil, pgx.ErrNoRows
	}
	cp := *op
	return &cp, nil
}

func (r *stubOperatorRepo) GetByEmail(context.Context, string) (*domain.Operator, error) {
	return nil, pgx.ErrNoRows
}

func (r *stubOperatorRepo) List(context.Context, repository.OperatorFilter) ([]domain.Operator, error) {
	return nil, nil
}

func (r *stubOperatorRepo) ListAssignable(context.Context) ([]domain.Operator, error) {
	return nil, nil
}

func (r *stubOperatorRepo) ListByStatuses(context.Context, []domain.OperatorStatus) ([]domain.Operator, error) {
	return nil, nil
}

func (r *stubOperatorRepo) ReserveSlot(_ context.Context, id string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	op, ok := r.operators[id]
	if !ok {
		return false, nil
	}
	if op.Status == domain.OperatorStatusOffline || op.CurrentLoad >= op.MaxSessions {
		return false, nil
	}
	op.CurrentLoad++
	return true, nil
}

func (r *stubOperatorRepo) ReleaseSlot(_ context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if op, ok := r.operators[id]; ok && op.CurrentLoad > 0 {
		op.CurrentLoad--
	}
	return nil
}

func (r *stubOperatorRepo) SetStatus(_ context.Context, id string, status domain.OperatorStatus) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	op, ok := r.operators[id]
	if !ok {
		return pgx.ErrNoRows
	}
	op.Status = status
	return nil
}

func (r *stubOperatorRepo) Touch(context.Context, string) error { return nil }

func (r *stubOperatorRepo) load(id string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.operators[id].CurrentLoad
}

func newTestLedger(ops ...*domain.Operator) (*Ledger, *stubOperatorRepo) {
	repo := newStubOperatorRepo(ops...)
	return New(repo, nil, observability.NewMetrics(), zap.NewNop()), repo
}

func TestReserveUpToCapacity(t *testing.T) {
	l, repo := newTestLedger(&domain.Operator{
		ID: "op-1", Status: domain.OperatorStatusOnline, MaxSessions: 2,
	})
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		granted, err := l.Reserve(ctx, "op-1")
		if err != nil {
			t.Fatalf("Reserve #%d: %v", i, err)
		}
		if !granted {
			t.Fatalf("Reserve #%d denied below capacity", i)
		}
	}

	granted, err := l.Reserve(ctx, "op-1")
	if err != nil {
		t.Fatalf("Reserve at capacity: %v", err)
	}
	if granted {
		t.Fatal("Reserve granted beyond capacity")
	}
	if got := repo.load("op-1"); got != 2 {
		t.Fatalf("load = %d, want 2", got)
	}
}

func TestReserveDeniedWhenOffline(t *testing.T) {
	l, repo := newTestLedger(&domain.Operator{
		ID: "op-1", Status: domain.OperatorStatusOffline, MaxSessions: 3,
	})

	granted, err := l.Reserve(context.Background(), "op-1")
	if err != nil {
		t.Fatalf("Reserve: %v", err)
	}
	if granted {
		t.Fatal("Reserve granted for OFFLINE operator")
	}
	if got := repo.load("op-1"); got != 0 {
		t.Fatalf("load = %d, want 0", got)
	}
}

func TestReserveUnknownOperator(t *testing.T) {
	l, _ := newTestLedger()

	_, err := l.Reserve(context.Background(), "ghost")
	var de *util.DomainError
	if !errors.As(err, &de) || de.Code != "NOT_FOUND" {
		t.Fatalf("err = %v, want NOT_FOUND", err)
	}
}

func TestReleaseFloorsAtZero(t *testing.T) {
	l, repo := newTestLedger(&domain.Operator{
		ID: "op-1", Status: domain.OperatorStatusOnline, MaxSessions: 2, CurrentLoad: 1,
	})
	ctx := context.Background()

	if err := l.Release(ctx, "op-1"); err != nil {
		t.Fatalf("Release: %v", err)
	}
	if got := repo.load("op-1"); got != 0 {
		t.Fatalf("load = %d, want 0", got)
	}

	// Duplicate release event: still zero, still no error.
	if err := l.Release(ctx, "op-1"); err != nil {
		t.Fatalf("duplicate Release: %v", err)
	}
	if got := repo.load("op-1"); got != 0 {
		t.Fatalf("load after duplicate release = %d, want 0", got)
	}
}

func TestConcurrentReservesNeverExceedCapacity(t *testing.T) {
	l, repo := newTestLedger(&domain.Operator{
		ID: "op-1", Status: domain.OperatorStatusOnline, MaxSessions: 3,
	})
	ctx := context.Background()

	const attempts = 24
	granted := make(chan bool, attempts)
	var wg sync.WaitGroup
	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ok, err := l.Reserve(ctx, "op-1")
			if err != nil {
				t.Errorf("Reserve: %v", err)
				return
			}
			granted <- ok
		}()
	}
	wg.Wait()
	close(granted)

	wins := 0
	for ok := range granted {
		if ok {
			wins++
		}
	}
	if wins != 3 {
		t.Fatalf("granted %d reservations, want 3", wins)
	}
	if got := repo.load("op-1"); got != 3 {
		t.Fatalf("load = %d, want 3", got)
	}
}

func TestSetStatusUnknownOperator(t *testing.T) {
	l, _ := newTestLedger()

	err := l.SetStatus(context.Background(), "ghost", domain.OperatorStatusOnline)
	var de *util.DomainError
	if !errors.As(err, &de) || de.Code != "NOT_FOUND" {
		t.Fatalf("err = %v, want NOT_FOUND", err)
	}
}
