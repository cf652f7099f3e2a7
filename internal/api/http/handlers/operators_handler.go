package handlers

import (
	"net/http"

	"github.com/gofiber/fiber/v2"

	"github.com/voxline/livechat-service/internal/api/dto"
	"github.com/voxline/livechat-service/internal/auth"
	"github.com/voxline/livechat-service/internal/domain"
	"github.com/voxline/livechat-service/internal/repository"
	"github.com/voxline/livechat-service/internal/service"
	"github.com/voxline/livechat-service/pkg/util"
)

// OperatorsHandler exposes operator auth and admin management endpoints.
type OperatorsHandler struct {
	auth      *service.AuthService
	operators *service.OperatorService
}

// NewOperatorsHandler constructs handler.
func NewOperatorsHandler(authService *service.AuthService, operatorService *service.OperatorService) *OperatorsHandler {
	return &OperatorsHandler{auth: authService, operators: operatorService}
}

// Login handles POST /auth/operators/login.
func (h *OperatorsHandler) Login(c *fiber.Ctx) error {
	var req dto.OperatorLoginRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(http.StatusBadRequest, "invalid payload")
	}
	if req.Email == "" || req.Password == "" {
		return fiber.NewError(http.StatusBadRequest, "email and password required")
	}

	operator, token, exp, err := h.auth.LoginOperator(c.Context(), req.Email, req.Password)
	if err != nil {
		return fiber.NewError(http.StatusUnauthorized, "invalid credentials")
	}

	return c.JSON(fiber.Map{
		"data": fiber.Map{
			"operator": dto.OperatorFromDomain(operator),
			"auth":     dto.AuthResponse{Token: token, ExpiresAt: exp},
		},
	})
}

// Register handles POST /operators (admin only).
func (h *OperatorsHandler) Register(c *fiber.Ctx) error {
	principal, ok := auth.PrincipalFromContext(c)
	if !ok || principal.Operator == nil {
		return util.NewUnauthorized("operator required")
	}
	var req dto.RegisterOperatorRequest
	if err := c.BodyParser(&req); err != nil {
		return util.NewValidationError("invalid payload", nil)
	}
	if req.Name == "" || req.Email == "" || req.Password == "" {
		return util.NewValidationError("name, email, password required", nil)
	}

	operator, err := h.operators.RegisterOperator(c.Context(), principal.Operator, service.OperatorCreateInput{
		Name:        req.Name,
		Email:       req.Email,
		Password:    req.Password,
		Role:        req.Role,
		MaxSessions: req.MaxSessions,
	})
	if err != nil {
		return err
	}
	return c.Status(http.StatusCreated).JSON(fiber.Map{"data": dto.OperatorFromDomain(operator)})
}

// List handles GET /operators (admin only).
func (h *OperatorsHandler) List(c *fiber.Ctx) error {
	filter := repository.OperatorFilter{}
	if roleStr := c.Query("role"); roleStr != "" {
		role := domain.OperatorRole(roleStr)
		filter.Role = &role
	}
	if statusStr := c.Query("status"); statusStr != "" {
		status := domain.OperatorStatus(statusStr)
		filter.Status = &status
	}
	filter.Limit, filter.Offset = parsePagination(c)

	operators, err := h.operators.ListOperators(c.Context(), filter)
	if err != nil {
		return err
	}
	items := make([]dto.OperatorResponse, 0, len(operators))
	for i := range operators {
		items = append(items, dto.OperatorFromDomain(&operators[i]))
	}
	return c.JSON(fiber.Map{"data": items})
}

// Get handles GET /operators/:id (admin only).
func (h *OperatorsHandler) Get(c *fiber.Ctx) error {
	operator, err := h.operators.GetOperator(c.Context(), c.Params("id"))
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": dto.OperatorFromDomain(operator)})
}

// UpdateCapacity handles PATCH /operators/:id/capacity (admin only).
func (h *OperatorsHandler) UpdateCapacity(c *fiber.Ctx) error {
	principal, ok := auth.PrincipalFromContext(c)
	if !ok || principal.Operator == nil {
		return util.NewUnauthorized("operator required")
	}
	var req dto.UpdateCapacityRequest
	if err := c.BodyParser(&req); err != nil {
		return util.NewValidationError("invalid payload", nil)
	}

	operator, err := h.operators.UpdateCapacity(c.Context(), principal.Operator, c.Params("id"), req.MaxSessions)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": dto.OperatorFromDomain(operator)})
}
