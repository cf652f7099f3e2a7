package service

import (
	"context"
	"errors"
	"strings"

	"github.com/jackc/pgx/v5"

	"github.com/voxline/livechat-service/internal/auth"
	"github.com/voxline/livechat-service/internal/config"
	"github.com/voxline/livechat-service/internal/domain"
	"github.com/voxline/livechat-service/internal/presence"
	"github.com/voxline/livechat-service/internal/repository"
	apperrors "github.com/voxline/livechat-service/pkg/util"
)

// OperatorService manages operator accounts and presence heartbeats. Status
// changes go through the lifecycle coordinator, never through this service.
type OperatorService struct {
	operators       repository.OperatorRepository
	tracker         *presence.Tracker
	bcryptCost      int
	defaultCapacity int
}

// OperatorCreateInput describes registration payload.
type OperatorCreateInput struct {
	Name        string
	Email       string
	Password    string
	Role        domain.OperatorRole
	MaxSessions int
}

// NewOperatorService constructs the service.
func NewOperatorService(cfg config.Config, operators repository.OperatorRepository, tracker *presence.Tracker) *OperatorService {
	return &OperatorService{
		operators:       operators,
		tracker:         tracker,
		bcryptCost:      cfg.Auth.BcryptCost,
		defaultCapacity: cfg.Chat.DefaultOperatorCapacity,
	}
}

// RegisterOperator creates an operator account. Capacity defaults to the
// configured value when not provided; new operators start OFFLINE with zero
// load.
func (s *OperatorService) RegisterOperator(ctx context.Context, actor *domain.Operator, input OperatorCreateInput) (*domain.Operator, error) {
	if actor == nil || actor.Role != domain.OperatorRoleAdmin {
		return nil, apperrors.NewForbidden("admin role required")
	}
	email := strings.TrimSpace(strings.ToLower(input.Email))
	if email == "" || strings.TrimSpace(input.Name) == "" || input.Password == "" {
		return nil, apperrors.NewValidationError("name, email, password required", nil)
	}
	if _, err := s.operators.GetByEmail(ctx, email); err == nil {
		return nil, apperrors.NewConflict("email already registered", map[string]any{"email": email})
	} else if !errors.Is(err, pgx.ErrNoRows) {
		return nil, apperrors.MapError(err)
	}

	role := input.Role
	if role == "" {
		role = domain.OperatorRoleAgent
	}
	capacity := input.MaxSessions
	if capacity <= 0 {
		capacity = s.defaultCapacity
	}

	hash, err := auth.HashPassword(input.Password, s.bcryptCost)
	if err != nil {
		return nil, apperrors.MapError(err)
	}

	op := &domain.Operator{
		Name:         strings.TrimSpace(input.Name),
		Email:        email,
		PasswordHash: hash,
		Role:         role,
		Status:       domain.OperatorStatusOffline,
		MaxSessions:  capacity,
	}
	if err := s.operators.Create(ctx, op); err != nil {
		return nil, apperrors.MapError(err)
	}
	return op, nil
}

// GetOperator fetches one operator.
func (s *OperatorService) GetOperator(ctx context.Context, id string) (*domain.Operator, error) {
	op, err := s.operators.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.NewNotFound("operator", map[string]any{"operator_id": id})
		}
		return nil, apperrors.MapError(err)
	}
	return op, nil
}

// ListOperators returns operators matching the filter.
func (s *OperatorService) ListOperators(ctx context.Context, filter repository.OperatorFilter) ([]domain.Operator, error) {
	result, err := s.operators.List(ctx, filter)
	if err != nil {
		return nil, apperrors.MapError(err)
	}
	return result, nil
}

// UpdateCapacity changes an operator's max concurrent sessions. The ledger's
// reserve guard picks the new value up on the next attempt; a capacity cut
// below the current load never evicts running sessions.
func (s *OperatorService) UpdateCapacity(ctx context.Context, actor *domain.Operator, operatorID string, maxSessions int) (*domain.Operator, error) {
	if actor == nil || actor.Role != domain.OperatorRoleAdmin {
		return nil, apperrors.NewForbidden("admin role required")
	}
	if maxSessions < 0 {
		return nil, apperrors.NewValidationError("max_sessions must be >= 0", nil)
	}
	op, err := s.GetOperator(ctx, operatorID)
	if err != nil {
		return nil, err
	}
	op.MaxSessions = maxSessions
	if err := s.operators.Update(ctx, op); err != nil {
		return nil, apperrors.MapError(err)
	}
	return op, nil
}

// Heartbeat refreshes the operator's presence, advancing both the redis TTL
// key and the durable last_active stamp.
func (s *OperatorService) Heartbeat(ctx context.Context, operatorID string) error {
	if err := s.operators.Touch(ctx, operatorID); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return apperrors.NewNotFound("operator", map[string]any{"operator_id": operatorID})
		}
		return apperrors.MapError(err)
	}
	_ = s.tracker.Touch(ctx, operatorID)
	return nil
}
