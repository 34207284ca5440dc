package terminology

import (
	"time"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"termsync/core/docstore"
	"termsync/core/metrics"
)

// Feature implements the loader.Feature interface.
type Feature struct {
	service *Service
	handler *Handler
}

// NewFeature creates the terminology feature.
func NewFeature(store docstore.Store, root string, ttl time.Duration, logger *zap.Logger, m *metrics.Metrics) *Feature {
	svc := NewService(store, root, ttl, logger, m)
	return &Feature{service: svc, handler: NewHandler(svc)}
}

// Name returns the name of the feature.
func (f *Feature) Name() string {
	return "terminology"
}

// IsEnabled reports whether a document store is configured.
func (f *Feature) IsEnabled() bool {
	return f.service.store != nil
}

// Load registers the feature's routes.
func (f *Feature) Load(app fiber.Router) error {
	f.handler.RegisterRoutes(app)
	return nil
}
