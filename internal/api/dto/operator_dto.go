package dto

import (
	"time"

	"github.com/voxline/livechat-service/internal/domain"
)

// OperatorLoginRequest payload.
type OperatorLoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// RegisterOperatorRequest payload for admin-created operators.
type RegisterOperatorRequest struct {
	Name        string              `json:"name"`
	Email       string              `json:"email"`
	Password    string              `json:"password"`
	Role        domain.OperatorRole `json:"role"`
	MaxSessions int                 `json:"max_sessions"`
}

// UpdateStatusRequest payload.
type UpdateStatusRequest struct {
	Status domain.OperatorStatus `json:"status"`
}

// UpdateCapacityRequest payload.
type UpdateCapacityRequest struct {
	MaxSessions int `json:"max_sessions"`
}

// OperatorResponse response.
type OperatorResponse struct {
	ID          string                `json:"id"`
	Name        string                `json:"name"`
	Email       string                `json:"email"`
	Role        domain.OperatorRole   `json:"role"`
	Status      domain.OperatorStatus `json:"status"`
	MaxSessions int                   `json:"max_sessions"`
	CurrentLoad int                   `json:"current_load"`
	LastActive  time.Time             `json:"last_active"`
	CreatedAt   time.Time             `json:"created_at"`
}

// OperatorFromDomain maps an operator to its response shape.
func OperatorFromDomain(op *domain.Operator) OperatorResponse {
	return OperatorResponse{
		ID:          op.ID,
		Name:        op.Name,
		Email:       op.Email,
		Role:        op.Role,
		Status:      op.Status,
		MaxSessions: op.MaxSessions,
		CurrentLoad: op.CurrentLoad,
		LastActive:  op.LastActive,
		CreatedAt:   op.CreatedAt,
	}
}
