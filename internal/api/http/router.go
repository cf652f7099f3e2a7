package http

import (
	"github.com/gofiber/fiber/v2"

	"github.com/voxline/livechat-service/internal/api/http/handlers"
	"github.com/voxline/livechat-service/internal/auth"
	"github.com/voxline/livechat-service/internal/domain"
)

// RouteConfig bundles dependencies for route registration.
type RouteConfig struct {
	Health           *handlers.HealthHandler
	Users            *handlers.UsersHandler
	Sessions         *handlers.SessionsHandler
	OperatorSessions *handlers.OperatorSessionsHandler
	Operators        *handlers.OperatorsHandler
	AuthMiddleware   *auth.AuthMiddleware
}

// RegisterRoutes wires HTTP routes.
func RegisterRoutes(app *fiber.App, cfg RouteConfig) {
	app.Get("/health/live", cfg.Health.Live)
	app.Get("/health/ready", cfg.Health.Ready)

	authGroup := app.Group("/auth")
	authGroup.Post("/users/register", cfg.Users.Register)
	authGroup.Post("/users/login", cfg.Users.Login)
	authGroup.Post("/operators/login", cfg.Operators.Login)

	// End-user surface.
	sessions := app.Group("/sessions", cfg.AuthMiddleware.Handle, auth.RequireUser())
	sessions.Post("", cfg.Sessions.OpenSession)
	sessions.Get("", cfg.Sessions.ListSessions)
	sessions.Get("/:id", cfg.Sessions.GetSession)
	sessions.Post("/:id/messages", cfg.Sessions.AddMessage)
	sessions.Post("/:id/close", cfg.Sessions.CloseSession)
	sessions.Delete("/:id", cfg.Sessions.DeleteSession)
	sessions.Post("/:id/rating", cfg.Sessions.RateSession)

	// Operator surface.
	operator := app.Group("/operator", cfg.AuthMiddleware.Handle, auth.RequireOperatorRole())
	operator.Get("/sessions", cfg.OperatorSessions.ListSessions)
	operator.Get("/sessions/:id", cfg.OperatorSessions.GetSession)
	operator.Post("/sessions/:id/messages", cfg.OperatorSessions.AddMessage)
	operator.Post("/sessions/:id/close", cfg.OperatorSessions.CloseSession)
	operator.Get("/sessions/:id/history", cfg.OperatorSessions.SessionHistory)
	operator.Put("/status", cfg.OperatorSessions.UpdateStatus)
	operator.Post("/heartbeat", cfg.OperatorSessions.Heartbeat)
	operator.Get("/ratings", cfg.OperatorSessions.Ratings)

	// Admin surface.
	admin := app.Group("/operators", cfg.AuthMiddleware.Handle, auth.RequireOperatorRole(domain.OperatorRoleAdmin))
	admin.Post("", cfg.Operators.Register)
	admin.Get("", cfg.Operators.List)
	admin.Get("/:id", cfg.Operators.Get)
	admin.Patch("/:id/capacity", cfg.Operators.UpdateCapacity)
}
