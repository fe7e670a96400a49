package http

import (
	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/tire-request-service/internal/api/http/handlers"
	"github.com/spec-kit/tire-request-service/internal/auth"
	"github.com/spec-kit/tire-request-service/internal/domain"
	"github.com/spec-kit/tire-request-service/internal/realtime"
)

// RouteConfig bundles dependencies for route registration.
type RouteConfig struct {
	Health         *handlers.HealthHandler
	Auth           *handlers.AuthHandler
	Requests       *handlers.RequestsHandler
	Hub            *realtime.Hub
	AuthMiddleware *auth.AuthMiddleware
}

// RegisterRoutes wires HTTP routes.
func RegisterRoutes(app *fiber.App, cfg RouteConfig) {
	app.Get("/health/live", cfg.Health.Live)
	app.Get("/health/ready", cfg.Health.Ready)

	app.Post("/auth/login", cfg.Auth.Login)
	app.Get("/auth/me", cfg.AuthMiddleware.Handle, cfg.Auth.Me)

	// the websocket endpoint authenticates in-band via the handshake
	app.Use("/realtime/ws", realtime.UpgradeGuard())
	app.Get("/realtime/ws", cfg.Hub.Handler())

	requests := app.Group("/requests", cfg.AuthMiddleware.Handle, auth.RequireAnyRole())
	requests.Get("/deleted", auth.RequireRole(auth.ApproverRoles()...), cfg.Requests.ListDeleted)
	requests.Get("/", cfg.Requests.List)
	requests.Post("/", cfg.Requests.Submit)
	requests.Post("/restore/:id", auth.RequireRole(auth.ApproverRoles()...), cfg.Requests.Restore)
	requests.Get("/:id/events", cfg.Requests.ListEvents)
	requests.Get("/:id", cfg.Requests.Get)
	requests.Put("/:id", auth.RequireRole(
		domain.RoleSupervisor,
		domain.RoleTechnicalManager,
		domain.RoleEngineer,
		domain.RoleCustomerOfficer,
	), cfg.Requests.Transition)
	requests.Delete("/:id", cfg.Requests.SoftDelete)
}
