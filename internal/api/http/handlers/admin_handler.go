package handlers

import (
	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/spec-kit/incidence-service/internal/observability"
	"github.com/spec-kit/incidence-service/internal/routing"
	apperrors "github.com/spec-kit/incidence-service/pkg/util/errorutil"
)

// AdminHandler exposes counters and routing reload.
type AdminHandler struct {
	routing *routing.Store
	metrics *observability.Metrics
	logger  *zap.Logger
}

// NewAdminHandler constructs handler.
func NewAdminHandler(store *routing.Store, metrics *observability.Metrics, logger *zap.Logger) *AdminHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &AdminHandler{routing: store, metrics: metrics, logger: logger}
}

// Metrics GET /metrics.
func (h *AdminHandler) Metrics(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{"data": h.metrics.Snapshot()})
}

// Routing GET /admin/routing reports the active snapshot version.
func (h *AdminHandler) Routing(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{"data": routingSummary(h.routing.Current())})
}

// Reload POST /admin/reload.
func (h *AdminHandler) Reload(c *fiber.Ctx) error {
	snap, err := h.routing.Reload(c.UserContext())
	if err != nil {
		h.logger.Error("routing reload failed", zap.Error(err))
		return apperrors.NewValidationError("routing reload failed", map[string]any{"reason": err.Error()})
	}
	h.logger.Info("routing reloaded", zap.Int64("version", snap.Version))
	return c.JSON(fiber.Map{"data": routingSummary(snap)})
}

func routingSummary(snap *routing.Snapshot) fiber.Map {
	categories := make([]fiber.Map, 0, len(snap.Categories))
	for _, cat := range snap.Categories {
		categories = append(categories, fiber.Map{
			"name":         cat.Name,
			"conversation": cat.Conversation,
			"routed":       cat.Conversation != "",
		})
	}
	return fiber.Map{
		"version":    snap.Version,
		"loaded_at":  snap.LoadedAt,
		"categories": categories,
		"origins":    snap.Origins,
		"users":      len(snap.Users),
	}
}
