package terminology

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"termsync/core/docstore"
	"termsync/core/metrics"
	"termsync/feature/terminology/flatten"
	"termsync/feature/terminology/models"
)

// ErrNotFound is returned for terminology ids absent from the store.
var ErrNotFound = errors.New("terminology not found")

// Service serves flattened views of a terminology collection.
type Service struct {
	store     docstore.Store
	root      string
	ttl       time.Duration
	flattener *flatten.Flattener
	cache     *cacheStore
	logger    *zap.Logger
}

// NewService creates a terminology service over the collection root of store.
func NewService(store docstore.Store, root string, ttl time.Duration, logger *zap.Logger, m *metrics.Metrics) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{
		store:     store,
		root:      root,
		ttl:       ttl,
		flattener: flatten.New(flatten.WithLogger(logger), flatten.WithMetrics(m)),
		cache:     newCacheStore(),
		logger:    logger,
	}
}

// Flatten returns the flattened collection, served from cache while fresh.
// Partial results from a failed walk are never cached.
func (s *Service) Flatten(ctx context.Context) (*models.FlattenResult, error) {
	return s.cache.getOrBuild(ctx, s.root, s.ttl, func(ctx context.Context) (*models.FlattenResult, error) {
		s.logger.Debug("Building flatten cache", zap.String("collection", s.root))
		res, err := s.flattener.Flatten(ctx, s.store, s.root)
		if err != nil {
			return nil, fmt.Errorf("flatten %s: %w", s.root, err)
		}
		return res, nil
	})
}

// Invalidate drops the cached result.
func (s *Service) Invalidate() {
	s.cache.invalidate(s.root)
}

// Overview lists the terminologies with the run counts.
type Overview struct {
	Summary       models.Summary       `json:"summary"`
	Terminologies []models.Terminology `json:"terminologies"`
	Failures      []models.Failure     `json:"failures,omitempty"`
}

// Overview returns the counts and terminologies of the collection.
func (s *Service) Overview(ctx context.Context) (*Overview, error) {
	res, err := s.Flatten(ctx)
	if err != nil {
		return nil, err
	}
	return &Overview{
		Summary:       res.Summary(),
		Terminologies: res.Terminologies,
		Failures:      res.Failures,
	}, nil
}

// Detail is one terminology with everything flattened from it.
type Detail struct {
	Terminology    models.Terminology     `json:"terminology"`
	Codes          []models.Code          `json:"codes"`
	Mappings       []models.Mapping       `json:"mappings"`
	OrphanCodes    []models.OrphanCode    `json:"orphan_codes"`
	OrphanMappings []models.OrphanMapping `json:"orphan_mappings"`
}

// Terminology returns the flattened entities of terminology id.
func (s *Service) Terminology(ctx context.Context, id string) (*Detail, error) {
	res, err := s.Flatten(ctx)
	if err != nil {
		return nil, err
	}
	t, ok := res.Terminology(id)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	d := &Detail{
		Terminology:    t,
		Codes:          res.CodesOf(id),
		Mappings:       res.MappingsOf(id),
		OrphanCodes:    []models.OrphanCode{},
		OrphanMappings: []models.OrphanMapping{},
	}
	for _, o := range res.OrphanCodes {
		if o.TerminologyID == id {
			d.OrphanCodes = append(d.OrphanCodes, o)
		}
	}
	for _, o := range res.OrphanMappings {
		if o.TerminologyID == id {
			d.OrphanMappings = append(d.OrphanMappings, o)
		}
	}
	if d.Codes == nil {
		d.Codes = []models.Code{}
	}
	if d.Mappings == nil {
		d.Mappings = []models.Mapping{}
	}
	return d, nil
}
