package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"

	"github.com/voxline/livechat-service/internal/domain"
	"github.com/voxline/livechat-service/internal/events"
	"github.com/voxline/livechat-service/internal/repository"
	apperrors "github.com/voxline/livechat-service/pkg/util"
)

// RatingService appends a terminal rating to a closed session. At most one
// rating per session; the operator reference is resolved from the session's
// retained operator at close time.
type RatingService struct {
	sessions repository.SessionRepository
	ratings  repository.RatingRepository
	dispatch events.Dispatcher
	logger   *zap.Logger
	maxValue int
	now      func() time.Time
}

// RatingDependencies bundles collaborators.
type RatingDependencies struct {
	SessionRepo repository.SessionRepository
	RatingRepo  repository.RatingRepository
	Dispatcher  events.Dispatcher
	Logger      *zap.Logger
	MaxValue    int
}

// NewRatingService constructs the service.
func NewRatingService(deps RatingDependencies) *RatingService {
	maxValue := deps.MaxValue
	if maxValue <= 0 {
		maxValue = 5
	}
	return &RatingService{
		sessions: deps.SessionRepo,
		ratings:  deps.RatingRepo,
		dispatch: deps.Dispatcher,
		logger:   deps.Logger,
		maxValue: maxValue,
		now:      time.Now,
	}
}

// RateSession records the rating. Fails with INVALID_STATE unless the session
// is CLOSED and was handled by an operator, and with ALREADY_RATED on any
// second attempt.
func (s *RatingService) RateSession(ctx context.Context, sessionID, requesterID string, value int, comment string) (*domain.Rating, error) {
	if value < 1 || value > s.maxValue {
		return nil, apperrors.NewValidationError("rating value out of range",
			map[string]any{"min": 1, "max": s.maxValue})
	}

	sess, err := s.sessions.GetByID(ctx, sessionID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.NewNotFound("session", map[string]any{"session_id": sessionID})
		}
		return nil, apperrors.MapError(err)
	}
	if sess.RequesterID != requesterID {
		return nil, apperrors.NewForbidden("access denied")
	}
	if sess.Status != domain.SessionStatusClosed {
		return nil, apperrors.NewInvalidState("session not closed", map[string]any{"status": sess.Status})
	}
	if sess.OperatorID == nil {
		return nil, apperrors.NewInvalidState("session was never assigned", nil)
	}

	rating := &domain.Rating{
		SessionID:   sess.ID,
		RequesterID: requesterID,
		OperatorID:  *sess.OperatorID,
		Value:       value,
		Comment:     strings.TrimSpace(comment),
	}
	if err := s.ratings.Create(ctx, rating); err != nil {
		if errors.Is(err, repository.ErrDuplicateRating) {
			return nil, apperrors.NewAlreadyRated(sess.ID)
		}
		return nil, apperrors.MapError(err)
	}

	if s.dispatch != nil {
		_ = s.dispatch.Publish(ctx, events.Event{
			ID:         uuid.NewString(),
			Type:       events.EventSessionRated,
			SessionID:  sess.ID,
			OperatorID: *sess.OperatorID,
			Actor:      events.Actor{Type: domain.SenderTypeUser, UserID: &requesterID},
			Timestamp:  s.now(),
			Payload: events.SessionRatedPayload{
				OperatorID: *sess.OperatorID,
				Value:      value,
			},
		})
	}
	return rating, nil
}

// OperatorRatings lists ratings received by an operator.
func (s *RatingService) OperatorRatings(ctx context.Context, operatorID string, limit, offset int) ([]domain.Rating, error) {
	result, err := s.ratings.ListByOperator(ctx, operatorID, limit, offset)
	if err != nil {
		return nil, apperrors.MapError(err)
	}
	return result, nil
}
