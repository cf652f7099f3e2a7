package handlers

import (
	"net/http"

	"github.com/gofiber/fiber/v2"

	"github.com/voxline/livechat-service/internal/api/dto"
	"github.com/voxline/livechat-service/internal/auth"
	"github.com/voxline/livechat-service/internal/domain"
	"github.com/voxline/livechat-service/internal/service"
	"github.com/voxline/livechat-service/pkg/util"
)

// OperatorSessionsHandler exposes the operator-side session surface.
type OperatorSessionsHandler struct {
	chat      *service.ChatService
	operators *service.OperatorService
	ratings   *service.RatingService
}

// NewOperatorSessionsHandler constructs handler.
func NewOperatorSessionsHandler(chatService *service.ChatService, operatorService *service.OperatorService, ratingService *service.RatingService) *OperatorSessionsHandler {
	return &OperatorSessionsHandler{chat: chatService, operators: operatorService, ratings: ratingService}
}

func operatorFromContext(c *fiber.Ctx) (*domain.Operator, error) {
	principal, ok := auth.PrincipalFromContext(c)
	if !ok || principal.Operator == nil {
		return nil, util.NewUnauthorized("operator required")
	}
	return principal.Operator, nil
}

// ListSessions GET /operator/sessions.
func (h *OperatorSessionsHandler) ListSessions(c *fiber.Ctx) error {
	operator, err := operatorFromContext(c)
	if err != nil {
		return err
	}
	statuses := parseSessionStatuses(c.Query("status"))
	limit, offset := parsePagination(c)

	sessions, err := h.chat.ListOperatorSessions(c.Context(), operator.ID, statuses, limit, offset)
	if err != nil {
		return err
	}
	items := make([]dto.SessionSummary, 0, len(sessions))
	for i := range sessions {
		items = append(items, dto.SessionFromDomain(&sessions[i]))
	}
	return c.JSON(fiber.Map{"data": items})
}

// GetSession GET /operator/sessions/:id.
func (h *OperatorSessionsHandler) GetSession(c *fiber.Ctx) error {
	operator, err := operatorFromContext(c)
	if err != nil {
		return err
	}
	sess, msgs, err := h.chat.GetSessionForOperator(c.Context(), operator.ID, c.Params("id"))
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": dto.SessionDetailFromDomain(sess, msgs)})
}

// AddMessage POST /operator/sessions/:id/messages.
func (h *OperatorSessionsHandler) AddMessage(c *fiber.Ctx) error {
	operator, err := operatorFromContext(c)
	if err != nil {
		return err
	}
	var req dto.AppendMessageRequest
	if err := c.BodyParser(&req); err != nil {
		return util.NewValidationError("invalid payload", nil)
	}

	msg, err := h.chat.AppendMessage(c.Context(), c.Params("id"), service.OperatorActor(operator.ID), req.Body)
	if err != nil {
		return err
	}
	return c.Status(http.StatusCreated).JSON(fiber.Map{"data": dto.MessageFromDomain(msg)})
}

// CloseSession POST /operator/sessions/:id/close.
func (h *OperatorSessionsHandler) CloseSession(c *fiber.Ctx) error {
	operator, err := operatorFromContext(c)
	if err != nil {
		return err
	}
	sess, err := h.chat.CloseSession(c.Context(), c.Params("id"), service.OperatorActor(operator.ID))
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": dto.SessionFromDomain(sess)})
}

// SessionHistory GET /operator/sessions/:id/history.
func (h *OperatorSessionsHandler) SessionHistory(c *fiber.Ctx) error {
	if _, err := operatorFromContext(c); err != nil {
		return err
	}
	limit, offset := parsePagination(c)
	entries, err := h.chat.ListSessionHistory(c.Context(), c.Params("id"), limit, offset)
	if err != nil {
		return err
	}
	items := make([]dto.HistoryEntryResponse, 0, len(entries))
	for i := range entries {
		items = append(items, dto.HistoryFromDomain(&entries[i]))
	}
	return c.JSON(fiber.Map{"data": items})
}

// UpdateStatus PUT /operator/status.
func (h *OperatorSessionsHandler) UpdateStatus(c *fiber.Ctx) error {
	operator, err := operatorFromContext(c)
	if err != nil {
		return err
	}
	var req dto.UpdateStatusRequest
	if err := c.BodyParser(&req); err != nil {
		return util.NewValidationError("invalid payload", nil)
	}
	switch req.Status {
	case domain.OperatorStatusOnline, domain.OperatorStatusBusy, domain.OperatorStatusOffline:
	default:
		return util.NewValidationError("unknown status", fiber.Map{"status": req.Status})
	}

	if err := h.chat.SetOperatorStatus(c.Context(), operator.ID, req.Status); err != nil {
		return err
	}
	updated, err := h.operators.GetOperator(c.Context(), operator.ID)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": dto.OperatorFromDomain(updated)})
}

// Heartbeat POST /operator/heartbeat.
func (h *OperatorSessionsHandler) Heartbeat(c *fiber.Ctx) error {
	operator, err := operatorFromContext(c)
	if err != nil {
		return err
	}
	if err := h.operators.Heartbeat(c.Context(), operator.ID); err != nil {
		return err
	}
	return c.SendStatus(http.StatusNoContent)
}

// Ratings GET /operator/ratings.
func (h *OperatorSessionsHandler) Ratings(c *fiber.Ctx) error {
	operator, err := operatorFromContext(c)
	if err != nil {
		return err
	}
	limit, offset := parsePagination(c)
	ratings, err := h.ratings.OperatorRatings(c.Context(), operator.ID, limit, offset)
	if err != nil {
		return err
	}
	items := make([]dto.RatingResponse, 0, len(ratings))
	for i := range ratings {
		items = append(items, dto.RatingFromDomain(&ratings[i]))
	}
	return c.JSON(fiber.Map{"data": items})
}
