package integrity

import (
	"context"
	"errors"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"termsync/core/docstore"
	"termsync/core/storage"
	"termsync/feature/integrity/checks"
)

// ErrNotConfigured is returned by checks whose backend is not set up.
var ErrNotConfigured = errors.New("not configured")

// Service handles integrity checks.
type Service struct {
	store  docstore.Store
	client storage.Client
	bucket string
	prefix string
	db     *gorm.DB
	logger *zap.Logger
}

// NewService creates a new integrity service. Any of store, client and db
// may be nil; the checks needing them then fail with ErrNotConfigured.
func NewService(store docstore.Store, client storage.Client, bucket, prefix string, db *gorm.DB, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{
		store:  store,
		client: client,
		bucket: bucket,
		prefix: prefix,
		db:     db,
		logger: logger,
	}
}

// CheckEmpty reports what is left under collection.
func (s *Service) CheckEmpty(ctx context.Context, collection string) (checks.EmptinessReport, error) {
	if s.store == nil {
		return checks.EmptinessReport{Collection: collection}, ErrNotConfigured
	}
	return checks.CheckEmpty(ctx, s.store, collection)
}

// ListSnapshots returns the snapshot files in the bucket.
func (s *Service) ListSnapshots(ctx context.Context) ([]checks.SnapshotObject, error) {
	if s.client == nil {
		return nil, ErrNotConfigured
	}
	return checks.ListSnapshots(ctx, s.client, s.bucket, s.prefix)
}

// ValidateSnapshots decodes every snapshot file in the bucket.
func (s *Service) ValidateSnapshots(ctx context.Context, objs []checks.SnapshotObject) []checks.SnapshotReport {
	out := make([]checks.SnapshotReport, 0, len(objs))
	for _, o := range objs {
		rep := checks.ValidateSnapshot(ctx, s.client, s.bucket, o.Key)
		if rep.Status != "ok" {
			s.logger.Warn("Invalid snapshot", zap.String("key", o.Key), zap.String("error", rep.Error))
		}
		out = append(out, rep)
	}
	return out
}

// CheckSchema compares the sink schema with the expected columns.
func (s *Service) CheckSchema(ctx context.Context) (*checks.SchemaReport, error) {
	if s.db == nil {
		return nil, ErrNotConfigured
	}
	return checks.CheckSchema(s.db.WithContext(ctx))
}
