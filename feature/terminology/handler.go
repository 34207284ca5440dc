package terminology

import (
	"errors"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"termsync/core/logger"
)

// Handler handles HTTP requests for terminology views.
type Handler struct {
	service *Service
}

// NewHandler creates a new HTTP handler.
func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

// RegisterRoutes registers the terminology routes.
func (h *Handler) RegisterRoutes(app fiber.Router) {
	group := app.Group("/terminologies")
	group.Get("/", h.HandleList)
	group.Get("/:id", h.HandleGet)
}

// HandleList returns the flatten summary and the terminology list.
// @Summary List Terminologies
// @Description Flattens the terminology collection (cached) and lists the terminologies with entity counts.
// @Tags terminology
// @Produce json
// @Param refresh query boolean false "Drop the cached flatten result first"
// @Success 200 {object} Overview
// @Failure 500 {object} map[string]string "Internal Server Error"
// @Router /terminologies [get]
func (h *Handler) HandleList(c *fiber.Ctx) error {
	l := logger.WithRayID(h.service.logger, c)
	if c.Query("refresh") == "true" {
		h.service.Invalidate()
	}

	ov, err := h.service.Overview(c.Context())
	if err != nil {
		l.Error("Listing terminologies failed", zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": err.Error()})
	}
	return c.JSON(ov)
}

// HandleGet returns one terminology with its codes, mappings and orphans.
// @Summary Get Terminology
// @Tags terminology
// @Produce json
// @Param id path string true "Terminology ID"
// @Success 200 {object} Detail
// @Failure 404 {object} map[string]string "Not Found"
// @Failure 500 {object} map[string]string "Internal Server Error"
// @Router /terminologies/{id} [get]
func (h *Handler) HandleGet(c *fiber.Ctx) error {
	l := logger.WithRayID(h.service.logger, c)
	id := c.Params("id")

	d, err := h.service.Terminology(c.Context(), id)
	if errors.Is(err, ErrNotFound) {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": err.Error()})
	}
	if err != nil {
		l.Error("Loading terminology failed", zap.String("terminology", id), zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": err.Error()})
	}
	return c.JSON(d)
}
