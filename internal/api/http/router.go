package http

import (
	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/incidence-service/internal/api/http/handlers"
	"github.com/spec-kit/incidence-service/internal/auth"
	"github.com/spec-kit/incidence-service/internal/domain"
)

// RouteConfig bundles dependencies for route registration.
type RouteConfig struct {
	Health         *handlers.HealthHandler
	Auth           *handlers.AuthHandler
	Incidences     *handlers.IncidencesHandler
	Admin          *handlers.AdminHandler
	AuthMiddleware *auth.AuthMiddleware
}

// RegisterRoutes wires HTTP routes.
func RegisterRoutes(app *fiber.App, cfg RouteConfig) {
	app.Get("/health/live", cfg.Health.Live)
	app.Get("/health/ready", cfg.Health.Ready)

	app.Post("/auth/login", cfg.Auth.Login)

	authn := cfg.AuthMiddleware.Handle
	app.Get("/incidences", authn, cfg.Incidences.ListIncidences)
	app.Get("/incidences/:id", authn, cfg.Incidences.GetIncidence)
	app.Get("/incidences/:id/history", authn, cfg.Incidences.GetIncidenceHistory)
	app.Get("/metrics", authn, cfg.Admin.Metrics)

	admin := app.Group("/admin", authn, auth.RequireRole(domain.RoleAdmin))
	admin.Get("/routing", cfg.Admin.Routing)
	admin.Post("/reload", cfg.Admin.Reload)
}
