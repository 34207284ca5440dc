package integrity

import (
	"errors"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"termsync/core/logger"
)

// Handler handles HTTP requests for integrity checks.
type Handler struct {
	service *Service
}

// NewHandler creates a new HTTP handler.
func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

// RegisterRoutes registers the integrity routes.
func (h *Handler) RegisterRoutes(app fiber.Router) {
	group := app.Group("/integrity")
	group.Get("/", h.HandleIntegrityCheck)
	group.Get("/empty", h.HandleEmptyCheck)
	group.Get("/snapshots", h.HandleSnapshotCheck)
	group.Get("/schema", h.HandleSchemaCheck)
}

func status(err error) int {
	if errors.Is(err, ErrNotConfigured) {
		return fiber.StatusServiceUnavailable
	}
	return fiber.StatusInternalServerError
}

// HandleIntegrityCheck runs the schema and snapshot checks.
// @Summary Run All Integrity Checks
// @Description Performs the schema and snapshot listing checks. Backends that are not configured are reported as errors.
// @Tags integrity
// @Produce json
// @Success 200 {object} map[string]interface{} "Combined Report"
// @Router /integrity [get]
func (h *Handler) HandleIntegrityCheck(c *fiber.Ctx) error {
	l := logger.WithRayID(h.service.logger, c)
	l.Info("Triggering all integrity checks")

	ctx := c.Context()
	report := make(map[string]interface{})

	if schema, err := h.service.CheckSchema(ctx); err != nil {
		report["schema"] = map[string]interface{}{"status": "error", "error": err.Error()}
	} else {
		report["schema"] = schema
	}

	if objs, err := h.service.ListSnapshots(ctx); err != nil {
		report["snapshots"] = map[string]interface{}{"status": "error", "error": err.Error()}
	} else {
		report["snapshots"] = map[string]interface{}{"status": "ok", "objects": objs}
	}

	return c.JSON(report)
}

// HandleEmptyCheck reports whether a collection subtree is empty.
// @Summary Check Collection Emptiness
// @Description Counts the documents left under a collection, including orphaned subcollection documents.
// @Tags integrity
// @Produce json
// @Param collection query string true "Collection path"
// @Success 200 {object} checks.EmptinessReport
// @Failure 400 {object} map[string]string "Missing collection"
// @Failure 500 {object} map[string]string "Internal Server Error"
// @Router /integrity/empty [get]
func (h *Handler) HandleEmptyCheck(c *fiber.Ctx) error {
	l := logger.WithRayID(h.service.logger, c)
	collection := c.Query("collection")
	if collection == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "collection is required"})
	}

	rep, err := h.service.CheckEmpty(c.Context(), collection)
	if err != nil {
		l.Error("Emptiness check failed", zap.String("collection", collection), zap.Error(err))
		return c.Status(status(err)).JSON(fiber.Map{"error": err.Error()})
	}
	if !rep.Empty {
		l.Warn("Collection not empty", zap.String("collection", collection), zap.Int("remaining", rep.Remaining))
	}
	return c.JSON(rep)
}

// HandleSnapshotCheck lists snapshot files and optionally decodes them.
// @Summary Check Snapshots
// @Description Lists the snapshot files in the storage bucket. With validate=true every file is downloaded and decoded.
// @Tags integrity
// @Produce json
// @Param validate query boolean false "Decode each snapshot"
// @Success 200 {object} map[string]interface{} "Snapshot Report"
// @Failure 500 {object} map[string]string "Internal Server Error"
// @Router /integrity/snapshots [get]
func (h *Handler) HandleSnapshotCheck(c *fiber.Ctx) error {
	l := logger.WithRayID(h.service.logger, c)

	objs, err := h.service.ListSnapshots(c.Context())
	if err != nil {
		l.Error("Snapshot listing failed", zap.Error(err))
		return c.Status(status(err)).JSON(fiber.Map{"error": err.Error()})
	}

	body := fiber.Map{"status": "checked", "objects": objs}
	if c.Query("validate") == "true" {
		reports := h.service.ValidateSnapshots(c.Context(), objs)
		invalid := 0
		for _, r := range reports {
			if r.Status != "ok" {
				invalid++
			}
		}
		body["reports"] = reports
		body["invalid"] = invalid
	}
	return c.JSON(body)
}

// HandleSchemaCheck checks the sink database schema.
// @Summary Check Sink Schema
// @Description Checks that the relational sink tables have every column the loader writes.
// @Tags integrity
// @Produce json
// @Success 200 {object} checks.SchemaReport "Schema Check Report"
// @Failure 500 {object} map[string]string "Internal Server Error"
// @Router /integrity/schema [get]
func (h *Handler) HandleSchemaCheck(c *fiber.Ctx) error {
	l := logger.WithRayID(h.service.logger, c)
	l.Info("Starting sink schema check")

	report, err := h.service.CheckSchema(c.Context())
	if err != nil {
		l.Error("Sink schema check failed", zap.Error(err))
		return c.Status(status(err)).JSON(fiber.Map{"error": err.Error()})
	}
	return c.JSON(report)
}
