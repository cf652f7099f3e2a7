package service

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/voxline/livechat-service/internal/domain"
	"github.com/voxline/livechat-service/internal/events"
	"github.com/voxline/livechat-service/internal/ledger"
	"github.com/voxline/livechat-service/internal/observability"
	"github.com/voxline/livechat-service/internal/repository"
	apperrors "github.com/voxline/livechat-service/pkg/util"
)

// Router assigns waiting sessions to operators with spare capacity. It is the
// sole entry point that moves a session out of OPEN. Assignment is greedy and
// work-conserving: each call hands the now-available slot of one operator to
// the most deserving waiting session, without attempting global optimality.
type Router struct {
	sessions repository.SessionRepository
	ledger   *ledger.Ledger
	history  repository.SessionHistoryRepository
	dispatch events.Dispatcher
	metrics  *observability.Metrics
	logger   *zap.Logger
	now      func() time.Time
}

// RouterDependencies bundles router collaborators.
type RouterDependencies struct {
	SessionRepo repository.SessionRepository
	Ledger      *ledger.Ledger
	HistoryRepo repository.SessionHistoryRepository
	Dispatcher  events.Dispatcher
	Metrics     *observability.Metrics
	Logger      *zap.Logger
}

// NewRouter creates the router.
func NewRouter(deps RouterDependencies) *Router {
	return &Router{
		sessions: deps.SessionRepo,
		ledger:   deps.Ledger,
		history:  deps.HistoryRepo,
		dispatch: deps.Dispatcher,
		metrics:  deps.Metrics,
		logger:   deps.Logger,
		now:      time.Now,
	}
}

// AssignNext routes the highest-priority waiting session (FIFO on ties) to
// the given operator. Returns (nil, nil) when the backlog is empty or the
// operator has no free slot; neither case mutates anything. A lost race on
// the session row releases the reservation and reports no assignment.
func (r *Router) AssignNext(ctx context.Context, operator *domain.Operator) (*domain.Session, error) {
	sess, err := r.sessions.NextWaiting(ctx)
	if err != nil {
		return nil, apperrors.MapError(err)
	}
	if sess == nil {
		return nil, nil
	}

	granted, err := r.ledger.Reserve(ctx, operator.ID)
	if err != nil {
		return nil, err
	}
	if !granted {
		return nil, nil
	}

	if err := sess.Assign(operator.ID, r.now()); err != nil {
		// NextWaiting only returns OPEN sessions; reaching here means the
		// snapshot went stale between the read and the reserve.
		if relErr := r.ledger.Release(ctx, operator.ID); relErr != nil {
			return nil, relErr
		}
		return nil, nil
	}

	applied, err := r.sessions.UpdateStatus(ctx, sess, domain.SessionStatusOpen)
	if err != nil {
		if relErr := r.ledger.Release(ctx, operator.ID); relErr != nil {
			r.logger.Error("release after failed assignment", zap.Error(relErr))
		}
		return nil, apperrors.MapError(err)
	}
	if !applied {
		// Another caller transitioned the session first; give the slot back.
		if err := r.ledger.Release(ctx, operator.ID); err != nil {
			return nil, err
		}
		return nil, nil
	}

	r.metrics.RecordAssignment()
	r.recordAssignment(ctx, sess, operator.ID)
	r.publishAssigned(ctx, sess, operator.ID)
	r.logger.Info("session assigned",
		zap.String("session_id", sess.ID),
		zap.String("operator_id", operator.ID),
		zap.String("priority", string(sess.Priority)))
	return sess, nil
}

func (r *Router) recordAssignment(ctx context.Context, sess *domain.Session, operatorID string) {
	if r.history == nil {
		return
	}
	entry := &domain.SessionHistory{
		SessionID:     sess.ID,
		ChangedByType: domain.SenderTypeSystem,
		ChangeType:    domain.ChangeTypeAssignment,
		OldValue:      map[string]any{"operator_id": nil},
		NewValue:      map[string]any{"operator_id": operatorID},
	}
	if err := r.history.Create(ctx, entry); err != nil {
		r.logger.Warn("record assignment history", zap.Error(err))
	}
}

func (r *Router) publishAssigned(ctx context.Context, sess *domain.Session, operatorID string) {
	if r.dispatch == nil {
		return
	}
	_ = r.dispatch.Publish(ctx, events.Event{
		ID:         uuid.NewString(),
		Type:       events.EventSessionAssigned,
		SessionID:  sess.ID,
		OperatorID: operatorID,
		Actor:      events.Actor{Type: domain.SenderTypeSystem},
		Timestamp:  r.now(),
		Payload:    events.SessionAssignedPayload{OperatorID: operatorID},
	})
}
