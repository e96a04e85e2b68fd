package handlers

import (
	"strconv"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/incidence-service/internal/api/dto"
	"github.com/spec-kit/incidence-service/internal/clock"
	"github.com/spec-kit/incidence-service/internal/domain"
	"github.com/spec-kit/incidence-service/internal/repository"
	"github.com/spec-kit/incidence-service/internal/service"
	apperrors "github.com/spec-kit/incidence-service/pkg/util/errorutil"
)

// IncidencesHandler serves read-only incidence endpoints.
type IncidencesHandler struct {
	service *service.QueryService
	clock   clock.Clock
}

// NewIncidencesHandler constructs handler.
func NewIncidencesHandler(queryService *service.QueryService, clk clock.Clock) *IncidencesHandler {
	if clk == nil {
		clk = clock.Real()
	}
	return &IncidencesHandler{service: queryService, clock: clk}
}

// ListIncidences GET /incidences.
func (h *IncidencesHandler) ListIncidences(c *fiber.Ctx) error {
	filter, err := parseIncidenceQuery(c)
	if err != nil {
		return err
	}
	list, err := h.service.List(c.UserContext(), filter)
	if err != nil {
		return err
	}
	items := make([]dto.IncidenceSummary, 0, len(list))
	for i := range list {
		items = append(items, dto.NewIncidenceSummary(&list[i]))
	}
	return c.JSON(fiber.Map{"data": items})
}

// GetIncidence GET /incidences/:id.
func (h *IncidencesHandler) GetIncidence(c *fiber.Ctx) error {
	id, err := strconv.ParseInt(c.Params("id"), 10, 64)
	if err != nil || id <= 0 {
		return apperrors.NewValidationError("invalid incidence id", nil)
	}
	inc, err := h.service.Get(c.UserContext(), id)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": dto.NewIncidenceDetail(inc, h.clock.Now())})
}

// GetIncidenceHistory GET /incidences/:id/history.
func (h *IncidencesHandler) GetIncidenceHistory(c *fiber.Ctx) error {
	id, err := strconv.ParseInt(c.Params("id"), 10, 64)
	if err != nil || id <= 0 {
		return apperrors.NewValidationError("invalid incidence id", nil)
	}
	entries, err := h.service.History(c.UserContext(), id, parseInt(c.Query("limit"), 50), parseInt(c.Query("offset"), 0))
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": dto.NewHistoryEntries(entries)})
}

func parseIncidenceQuery(c *fiber.Ctx) (repository.IncidenceFilter, error) {
	filter := repository.IncidenceFilter{}
	if statusStr := c.Query("status"); statusStr != "" {
		for _, part := range strings.Split(statusStr, ",") {
			filter.Statuses = append(filter.Statuses, domain.IncidenceStatus(strings.TrimSpace(part)))
		}
	}
	if category := strings.TrimSpace(c.Query("category")); category != "" {
		filter.Category = &category
	}
	var err error
	if filter.CreatedFrom, err = parseTime(c.Query("created_from"), "created_from"); err != nil {
		return filter, err
	}
	if filter.CreatedTo, err = parseTime(c.Query("created_to"), "created_to"); err != nil {
		return filter, err
	}
	filter.Limit = parseInt(c.Query("limit"), 20)
	filter.Offset = parseInt(c.Query("offset"), 0)
	return filter, nil
}

func parseTime(val, field string) (*time.Time, error) {
	if val == "" {
		return nil, nil
	}
	t, err := time.Parse(time.RFC3339, val)
	if err != nil {
		return nil, apperrors.NewValidationError(field+" must be RFC3339", nil)
	}
	return &t, nil
}

func parseInt(val string, def int) int {
	if val == "" {
		return def
	}
	parsed, err := strconv.Atoi(val)
	if err != nil || parsed < 0 {
		return def
	}
	return parsed
}
