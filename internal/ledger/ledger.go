// Package ledger owns operator capacity accounting. Every mutation of an
// operator's current load flows through Reserve and Release; both are atomic
// read-modify-write operations at the storage layer, so two sessions assigned
// to the same operator concurrently can never lose an update.
package ledger

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"

	"github.com/voxline/livechat-service/internal/domain"
	"github.com/voxline/livechat-service/internal/observability"
	"github.com/voxline/livechat-service/internal/presence"
	"github.com/voxline/livechat-service/internal/repository"
	apperrors "github.com/voxline/livechat-service/pkg/util"
)

// Ledger tracks each operator's current vs. maximum concurrent sessions.
// Invariant after every committed operation: 0 <= load <= capacity and
// load equals the number of ACTIVE sessions assigned to the operator.
type Ledger struct {
	operators repository.OperatorRepository
	presence  *presence.Tracker
	metrics   *observability.Metrics
	logger    *zap.Logger
}

// New builds a ledger.
func New(operators repository.OperatorRepository, tracker *presence.Tracker, metrics *observability.Metrics, logger *zap.Logger) *Ledger {
	return &Ledger{operators: operators, presence: tracker, metrics: metrics, logger: logger}
}

// Reserve increments the operator's load iff it is below capacity and the
// operator is not OFFLINE. Returns false with no mutation otherwise; a false
// return is a routing signal, not an error.
func (l *Ledger) Reserve(ctx context.Context, operatorID string) (bool, error) {
	granted, err := l.operators.ReserveSlot(ctx, operatorID)
	if err != nil {
		return false, apperrors.MapError(err)
	}
	l.metrics.RecordReserve(granted)
	if granted {
		_ = l.presence.Touch(ctx, operatorID)
		return true, nil
	}

	// Distinguish "at capacity / offline" from "no such operator".
	if _, err := l.operators.GetByID(ctx, operatorID); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return false, apperrors.NewNotFound("operator", map[string]any{"operator_id": operatorID})
		}
		return false, apperrors.MapError(err)
	}
	return false, nil
}

// Release decrements the operator's load, floored at zero. Releasing an
// already-zero load is a no-op, which makes duplicate release events safe.
func (l *Ledger) Release(ctx context.Context, operatorID string) error {
	if err := l.operators.ReleaseSlot(ctx, operatorID); err != nil {
		return apperrors.MapError(err)
	}
	l.metrics.RecordRelease()
	_ = l.presence.Touch(ctx, operatorID)
	return nil
}

// SetStatus writes the operator status. Going OFFLINE does not release load
// here; the lifecycle coordinator releases per-session so every held session
// is individually closed and its capacity freed exactly once.
func (l *Ledger) SetStatus(ctx context.Context, operatorID string, status domain.OperatorStatus) error {
	if err := l.operators.SetStatus(ctx, operatorID, status); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return apperrors.NewNotFound("operator", map[string]any{"operator_id": operatorID})
		}
		return apperrors.MapError(err)
	}
	if status == domain.OperatorStatusOffline {
		l.presence.Forget(ctx, operatorID)
	} else {
		_ = l.presence.Touch(ctx, operatorID)
	}
	return nil
}

// Verify recomputes the invariant for one operator and logs a drift warning.
// Intended for diagnostics; the ledger never self-heals silently.
func (l *Ledger) Verify(ctx context.Context, sessions repository.SessionRepository, operatorID string) (bool, error) {
	op, err := l.operators.GetByID(ctx, operatorID)
	if err != nil {
		return false, apperrors.MapError(err)
	}
	active, err := sessions.CountActiveByOperator(ctx, operatorID)
	if err != nil {
		return false, apperrors.MapError(err)
	}
	ok := op.CurrentLoad == active && op.CurrentLoad >= 0 && op.CurrentLoad <= op.MaxSessions
	if !ok {
		l.logger.Warn("capacity ledger drift",
			zap.String("operator_id", operatorID),
			zap.Int("load", op.CurrentLoad),
			zap.Int("active_sessions", active),
			zap.Int("capacity", op.MaxSessions))
	}
	return ok, nil
}
