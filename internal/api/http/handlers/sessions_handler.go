package handlers

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/gofiber/fiber/v2"

	"github.com/voxline/livechat-service/internal/api/dto"
	"github.com/voxline/livechat-service/internal/auth"
	"github.com/voxline/livechat-service/internal/domain"
	"github.com/voxline/livechat-service/internal/service"
	"github.com/voxline/livechat-service/pkg/util"
)

// SessionsHandler manages end-user session endpoints.
type SessionsHandler struct {
	chat    *service.ChatService
	ratings *service.RatingService
}

// NewSessionsHandler constructs handler.
func NewSessionsHandler(chatService *service.ChatService, ratingService *service.RatingService) *SessionsHandler {
	return &SessionsHandler{chat: chatService, ratings: ratingService}
}

// OpenSession POST /sessions.
func (h *SessionsHandler) OpenSession(c *fiber.Ctx) error {
	principal, ok := auth.PrincipalFromContext(c)
	if !ok || principal.User == nil {
		return util.NewUnauthorized("user required")
	}
	var req dto.OpenSessionRequest
	if err := c.BodyParser(&req); err != nil {
		return util.NewValidationError("invalid payload", nil)
	}
	if strings.TrimSpace(req.Subject) == "" {
		return util.NewValidationError("subject required", nil)
	}

	sess, err := h.chat.OpenSession(c.Context(), principal.User.ID, service.SessionCreateInput{
		Subject:  req.Subject,
		Priority: req.Priority,
	})
	if err != nil {
		return err
	}
	return c.Status(http.StatusCreated).JSON(fiber.Map{"data": dto.SessionFromDomain(sess)})
}

// ListSessions GET /sessions.
func (h *SessionsHandler) ListSessions(c *fiber.Ctx) error {
	principal, ok := auth.PrincipalFromContext(c)
	if !ok || principal.User == nil {
		return util.NewUnauthorized("user required")
	}
	statuses := parseSessionStatuses(c.Query("status"))
	limit, offset := parsePagination(c)

	sessions, err := h.chat.ListUserSessions(c.Context(), principal.User.ID, statuses, limit, offset)
	if err != nil {
		return err
	}
	items := make([]dto.SessionSummary, 0, len(sessions))
	for i := range sessions {
		items = append(items, dto.SessionFromDomain(&sessions[i]))
	}
	return c.JSON(fiber.Map{"data": items})
}

// GetSession GET /sessions/:id.
func (h *SessionsHandler) GetSession(c *fiber.Ctx) error {
	principal, ok := auth.PrincipalFromContext(c)
	if !ok || principal.User == nil {
		return util.NewUnauthorized("user required")
	}
	sess, msgs, err := h.chat.GetSessionForUser(c.Context(), principal.User.ID, c.Params("id"))
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": dto.SessionDetailFromDomain(sess, msgs)})
}

// AddMessage POST /sessions/:id/messages.
func (h *SessionsHandler) AddMessage(c *fiber.Ctx) error {
	principal, ok := auth.PrincipalFromContext(c)
	if !ok || principal.User == nil {
		return util.NewUnauthorized("user required")
	}
	var req dto.AppendMessageRequest
	if err := c.BodyParser(&req); err != nil {
		return util.NewValidationError("invalid payload", nil)
	}
	if strings.TrimSpace(req.Body) == "" {
		return util.NewValidationError("body required", nil)
	}

	msg, err := h.chat.AppendMessage(c.Context(), c.Params("id"), service.UserActor(principal.User.ID), req.Body)
	if err != nil {
		return err
	}
	return c.Status(http.StatusCreated).JSON(fiber.Map{"data": dto.MessageFromDomain(msg)})
}

// CloseSession POST /sessions/:id/close.
func (h *SessionsHandler) CloseSession(c *fiber.Ctx) error {
	principal, ok := auth.PrincipalFromContext(c)
	if !ok || principal.User == nil {
		return util.NewUnauthorized("user required")
	}
	sess, err := h.chat.CloseSession(c.Context(), c.Params("id"), service.UserActor(principal.User.ID))
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": dto.SessionFromDomain(sess)})
}

// DeleteSession DELETE /sessions/:id.
func (h *SessionsHandler) DeleteSession(c *fiber.Ctx) error {
	principal, ok := auth.PrincipalFromContext(c)
	if !ok || principal.User == nil {
		return util.NewUnauthorized("user required")
	}
	// Ownership check before the destructive call.
	if _, _, err := h.chat.GetSessionForUser(c.Context(), principal.User.ID, c.Params("id")); err != nil {
		return err
	}
	if err := h.chat.DeleteSession(c.Context(), c.Params("id")); err != nil {
		return err
	}
	return c.SendStatus(http.StatusNoContent)
}

// RateSession POST /sessions/:id/rating.
func (h *SessionsHandler) RateSession(c *fiber.Ctx) error {
	principal, ok := auth.PrincipalFromContext(c)
	if !ok || principal.User == nil {
		return util.NewUnauthorized("user required")
	}
	var req dto.RateSessionRequest
	if err := c.BodyParser(&req); err != nil {
		return util.NewValidationError("invalid payload", nil)
	}

	rating, err := h.ratings.RateSession(c.Context(), c.Params("id"), principal.User.ID, req.Value, req.Comment)
	if err != nil {
		return err
	}
	return c.Status(http.StatusCreated).JSON(fiber.Map{"data": dto.RatingFromDomain(rating)})
}

func parseSessionStatuses(raw string) []domain.SessionStatus {
	if raw == "" {
		return nil
	}
	var statuses []domain.SessionStatus
	for _, part := range strings.Split(raw, ",") {
		statuses = append(statuses, domain.SessionStatus(strings.TrimSpace(part)))
	}
	return statuses
}

func parsePagination(c *fiber.Ctx) (limit, offset int) {
	page := parseInt(c.Query("page"), 1)
	pageSize := parseInt(c.Query("page_size"), 20)
	return pageSize, (page - 1) * pageSize
}

func parseInt(val string, def int) int {
	if val == "" {
		return def
	}
	parsed, err := strconv.Atoi(val)
	if err != nil || parsed <= 0 {
		return def
	}
	return parsed
}
