package service

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"

	"github.com/voxline/livechat-service/internal/domain"
	"github.com/voxline/livechat-service/internal/events"
	"github.com/voxline/livechat-service/internal/ledger"
	"github.com/voxline/livechat-service/internal/observability"
	"github.com/voxline/livechat-service/internal/repository"
)

type fakeSessionRepo struct {
	mu       sync.Mutex
	sessions map[string]*domain.Session
	seq      int
	clock    func() time.Time

	// afterNextWaiting, when set, runs after NextWaiting returns its snapshot.
	// Lets tests interleave a concurrent writer between the backlog read and
	// the guarded status update.
	afterNextWaiting func()
}

func newFakeSessionRepo(clock func() time.Time) *fakeSessionRepo {
	return &fakeSessionRepo{sessions: make(map[string]*domain.Session), clock: clock}
}

func (r *fakeSessionRepo) Create(_ context.Context, sess *domain.Session) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.seq++
	sess.ID = fmt.Sprintf("sess-%d", r.seq)
	sess.CreatedAt = r.clock()
	sess.UpdatedAt = sess.CreatedAt
	cp := *sess
	r.sessions[sess.ID] = &cp
	return nil
}

func (r *fakeSessionRepo) GetByID(_ context.Context, id string) (*domain.Session, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	sess, ok := r.sessions[id]
	if !ok {
		return nil, pgx.ErrNoRows
	}
	cp := *sess
	return &cp, nil
}

func (r *fakeSessionRepo) UpdateStatus(_ context.Context, sess *domain.Session, prev domain.SessionStatus) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	stored, ok := r.sessions[sess.ID]
	if !ok {
		return false, nil
	}
	if stored.Status != prev {
		return false, nil
	}
	stored.Status = sess.Status
	stored.OperatorID = sess.OperatorID
	stored.ClosedAt = sess.ClosedAt
	stored.UpdatedAt = r.clock()
	return true, nil
}

func (r *fakeSessionRepo) Touch(_ context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if sess, ok := r.sessions[id]; ok {
		sess.UpdatedAt = r.clock()
	}
	return nil
}

func (r *fakeSessionRepo) Delete(_ context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.sessions[id]; !ok {
		return pgx.ErrNoRows
	}
	delete(r.sessions, id)
	return nil
}

func (r *fakeSessionRepo) NextWaiting(_ context.Context) (*domain.Session, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var best *domain.Session
	for _, sess := range r.sessions {
		if sess.Status != domain.SessionStatusOpen {
			continue
		}
		if best == nil {
			best = sess
			continue
		}
		if sess.Priority.Rank() > best.Priority.Rank() ||
			(sess.Priority.Rank() == best.Priority.Rank() && sess.CreatedAt.Before(best.CreatedAt)) {
			best = sess
		}
	}
	if best == nil {
		return nil, nil
	}
	cp := *best
	if r.afterNextWaiting != nil {
		hook := r.afterNextWaiting
		r.mu.Unlock()
		hook()
		r.mu.Lock()
	}
	return &cp, nil
}

func (r *fakeSessionRepo) ListActiveByOperator(_ context.Context, operatorID string) ([]domain.Session, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []domain.Session
	for _, sess := range r.sessions {
		if sess.Status == domain.SessionStatusActive && sess.OperatorID != nil && *sess.OperatorID == operatorID {
			out = append(out, *sess)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (r *fakeSessionRepo) ListWithFilter(_ context.Context, filter repository.SessionFilter) ([]domain.Session, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []domain.Session
	for _, sess := range r.sessions {
		if filter.RequesterID != nil && sess.RequesterID != *filter.RequesterID {
			continue
		}
		if filter.OperatorID != nil && (sess.OperatorID == nil || *sess.OperatorID != *filter.OperatorID) {
			continue
		}
		if len(filter.Statuses) > 0 {
			match := false
			for _, st := range filter.Statuses {
				if sess.Status == st {
					match = true
					break
				}
			}
			if !match {
				continue
			}
		}
		out = append(out, *sess)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (r *fakeSessionRepo) CountActiveByOperator(ctx context.Context, operatorID string) (int, error) {
	active, err := r.ListActiveByOperator(ctx, operatorID)
	return len(active), err
}

type fakeOperatorRepo struct {
	mu        sync.Mutex
	operators map[string]*domain.Operator
	seq       int
}

func newFakeOperatorRepo() *fakeOperatorRepo {
	return &fakeOperatorRepo{operators: make(map[string]*domain.Operator)}
}

func (r *fakeOperatorRepo) Create(_ context.Context, op *domain.Operator) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.seq++
	op.ID = fmt.Sprintf("op-%d", r.seq)
	cp := *op
	r.operators[op.ID] = &cp
	return nil
}

func (r *fakeOperatorRepo) Update(_ context.Context, op *domain.Operator) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.operators[op.ID]; !ok {
		return pgx.ErrNoRows
	}
	cp := *op
	r.operators[op.ID] = &cp
	return nil
}

func (r *fakeOperatorRepo) GetByID(_ context.Context, id string) (*domain.Operator, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	op, ok := r.operators[id]
	if !ok {
		return nil, pgx.ErrNoRows
	}
	cp := *op
	return &cp, nil
}

func (r *fakeOperatorRepo) GetByEmail(_ context.Context, email string) (*domain.Operator, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, op := range r.operators {
		if op.Email == email {
			cp := *op
			return &cp, nil
		}
	}
	return nil, pgx.ErrNoRows
}

func (r *fakeOperatorRepo) List(_ context.Context, filter repository.OperatorFilter) ([]domain.Operator, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []domain.Operator
	for _, op := range r.operators {
		if filter.Role != nil && op.Role != *filter.Role {
			continue
		}
		if filter.Status != nil && op.Status != *filter.Status {
			continue
		}
		out = append(out, *op)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (r *fakeOperatorRepo) ListAssignable(_ context.Context) ([]domain.Operator, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []domain.Operator
	for _, op := range r.operators {
		if op.Assignable() {
			out = append(out, *op)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CurrentLoad != out[j].CurrentLoad {
			return out[i].CurrentLoad < out[j].CurrentLoad
		}
		return out[i].LastActive.Before(out[j].LastActive)
	})
	return out, nil
}

func (r *fakeOperatorRepo) ListByStatuses(_ context.Context, statuses []domain.OperatorStatus) ([]domain.Operator, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []domain.Operator
	for _, op := range r.operators {
		for _, st := range statuses {
			if op.Status == st {
				out = append(out, *op)
				break
			}
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (r *fakeOperatorRepo) ReserveSlot(_ context.Context, id string) (bool, error) {
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

func (r *fakeOperatorRepo) ReleaseSlot(_ context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	op, ok := r.operators[id]
	if !ok {
		return nil
	}
	if op.CurrentLoad > 0 {
		op.CurrentLoad--
	}
	return nil
}

func (r *fakeOperatorRepo) SetStatus(_ context.Context, id string, status domain.OperatorStatus) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	op, ok := r.operators[id]
	if !ok {
		return pgx.ErrNoRows
	}
	op.Status = status
	return nil
}

func (r *fakeOperatorRepo) Touch(_ context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if op, ok := r.operators[id]; ok {
		op.LastActive = op.LastActive.Add(time.Second)
	}
	return nil
}

func (r *fakeOperatorRepo) load(id string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.operators[id].CurrentLoad
}

type fakeMessageRepo struct {
	mu       sync.Mutex
	messages []domain.ChatMessage
	seq      int
}

func (r *fakeMessageRepo) Create(_ context.Context, msg *domain.ChatMessage) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.seq++
	msg.ID = fmt.Sprintf("msg-%d", r.seq)
	r.messages = append(r.messages, *msg)
	return nil
}

func (r *fakeMessageRepo) ListBySession(_ context.Context, sessionID string) ([]domain.ChatMessage, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []domain.ChatMessage
	for _, msg := range r.messages {
		if msg.SessionID == sessionID {
			out = append(out, msg)
		}
	}
	return out, nil
}

type fakeHistoryRepo struct {
	mu      sync.Mutex
	entries []domain.SessionHistory
	seq     int
}

func (r *fakeHistoryRepo) Create(_ context.Context, entry *domain.SessionHistory) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.seq++
	entry.ID = fmt.Sprintf("hist-%d", r.seq)
	r.entries = append(r.entries, *entry)
	return nil
}

func (r *fakeHistoryRepo) ListBySession(_ context.Context, sessionID string, _, _ int) ([]domain.SessionHistory, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []domain.SessionHistory
	for _, entry := range r.entries {
		if entry.SessionID == sessionID {
			out = append(out, entry)
		}
	}
	return out, nil
}

type fakeRatingRepo struct {
	mu      sync.Mutex
	ratings map[string]*domain.Rating
	seq     int
}

func newFakeRatingRepo() *fakeRatingRepo {
	return &fakeRatingRepo{ratings: make(map[string]*domain.Rating)}
}

func (r *fakeRatingRepo) Create(_ context.Context, rating *domain.Rating) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.ratings[rating.SessionID]; exists {
		return repository.ErrDuplicateRating
	}
	r.seq++
	rating.ID = fmt.Sprintf("rating-%d", r.seq)
	cp := *rating
	r.ratings[rating.SessionID] = &cp
	return nil
}

func (r *fakeRatingRepo) GetBySession(_ context.Context, sessionID string) (*domain.Rating, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	rating, ok := r.ratings[sessionID]
	if !ok {
		return nil, pgx.ErrNoRows
	}
	cp := *rating
	return &cp, nil
}

func (r *fakeRatingRepo) ListByOperator(_ context.Context, operatorID string, _, _ int) ([]domain.Rating, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []domain.Rating
	for _, rating := range r.ratings {
		if rating.OperatorID == operatorID {
			out = append(out, *rating)
		}
	}
	return out, nil
}

type recordingDispatcher struct {
	mu     sync.Mutex
	events []events.Event
}

func (d *recordingDispatcher) Publish(_ context.Context, event events.Event) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.events = append(d.events, event)
	return nil
}

func (d *recordingDispatcher) Subscribe(events.EventType, events.EventHandler) {}

func (d *recordingDispatcher) byType(t events.EventType) []events.Event {
	d.mu.Lock()
	defer d.mu.Unlock()
	var out []events.Event
	for _, ev := range d.events {
		if ev.Type == t {
			out = append(out, ev)
		}
	}
	return out
}

// chatFixture wires a coordinator against in-memory fakes.
type chatFixture struct {
	chat       *ChatService
	router     *Router
	sessions   *fakeSessionRepo
	operators  *fakeOperatorRepo
	messages   *fakeMessageRepo
	history    *fakeHistoryRepo
	dispatcher *recordingDispatcher
	ledger     *ledger.Ledger
	clock      time.Time
}

func newChatFixture() *chatFixture {
	clock := time.Date(2025, time.March, 10, 12, 0, 0, 0, time.UTC)
	f := &chatFixture{clock: clock}
	var clockMu sync.Mutex
	now := func() time.Time {
		clockMu.Lock()
		defer clockMu.Unlock()
		f.clock = f.clock.Add(time.Millisecond)
		return f.clock
	}

	f.sessions = newFakeSessionRepo(now)
	f.operators = newFakeOperatorRepo()
	f.messages = &fakeMessageRepo{}
	f.history = &fakeHistoryRepo{}
	f.dispatcher = &recordingDispatcher{}

	logger := zap.NewNop()
	metrics := observability.NewMetrics()
	f.ledger = ledger.New(f.operators, nil, metrics, logger)

	f.router = NewRouter(RouterDependencies{
		SessionRepo: f.sessions,
		Ledger:      f.ledger,
		HistoryRepo: f.history,
		Dispatcher:  f.dispatcher,
		Metrics:     metrics,
		Logger:      logger,
	})
	f.router.now = now

	f.chat = NewChatService(ChatDependencies{
		SessionRepo:  f.sessions,
		OperatorRepo: f.operators,
		MessageRepo:  f.messages,
		HistoryRepo:  f.history,
		Ledger:       f.ledger,
		Router:       f.router,
		Dispatcher:   f.dispatcher,
		Metrics:      metrics,
		Logger:       logger,
	})
	f.chat.now = now
	return f
}

func (f *chatFixture) addOperator(status domain.OperatorStatus, capacity int) *domain.Operator {
	op := &domain.Operator{
		Name:        "Operator",
		Email:       fmt.Sprintf("op%d@example.com", f.operators.seq+1),
		Role:        domain.OperatorRoleAgent,
		Status:      status,
		MaxSessions: capacity,
		LastActive:  f.clock,
	}
	if err := f.operators.Create(context.Background(), op); err != nil {
		panic(err)
	}
	return op
}
