package flatten

import (
	"context"
	"errors"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.uber.org/zap"

	"termsync/core/docstore"
	"termsync/core/docstore/memory"
	"termsync/core/metrics"
	"termsync/core/walker"
	"termsync/feature/terminology/models"
)

var tracer = otel.Tracer("termsync.flatten")

// Flattener turns terminology documents into flat entity sets.
type Flattener struct {
	log      *zap.Logger
	metrics  *metrics.Metrics
	pageSize int
}

// Option configures a Flattener.
type Option func(*Flattener)

// WithLogger sets the logger. A nil logger keeps the no-op default.
func WithLogger(log *zap.Logger) Option {
	return func(f *Flattener) {
		if log != nil {
			f.log = log
		}
	}
}

// WithMetrics sets the metrics sink.
func WithMetrics(m *metrics.Metrics) Option {
	return func(f *Flattener) { f.metrics = m }
}

// WithPageSize sets how many refs are listed per store call.
func WithPageSize(n int) Option {
	return func(f *Flattener) { f.pageSize = n }
}

// New returns a Flattener.
func New(opts ...Option) *Flattener {
	f := &Flattener{log: zap.NewNop(), pageSize: 100}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// pending buffers one terminology document and its direct subcollections
// while the walk is inside it.
type pending struct {
	id       string
	fields   docstore.Fields
	subs     []string
	children map[string][]walker.Entry
}

// Flatten walks the terminology collection root of store. Terminologies that
// fail are listed in the result's Failures and do not stop the run. When the
// walk itself fails, including on cancellation, the terminologies completed
// so far are returned together with the error.
func (f *Flattener) Flatten(ctx context.Context, store docstore.Store, root string) (*models.FlattenResult, error) {
	ctx, span := tracer.Start(ctx, "flatten.Flatten")
	defer span.End()
	span.SetAttributes(attribute.String("collection", root))

	result := models.NewFlattenResult()
	var cur *pending

	finish := func() {
		if cur == nil {
			return
		}
		part, err := flattenTerminology(cur)
		if err != nil {
			f.log.Warn("Skipping terminology",
				zap.String("terminology", cur.id),
				zap.Error(err),
			)
			result.Failures = append(result.Failures, models.Failure{TerminologyID: cur.id, Error: err.Error()})
		} else {
			result.Merge(part)
		}
		cur = nil
	}

	w := walker.New(store, root, walker.WithPageSize(f.pageSize), walker.WithMaxDepth(1))
	for {
		e, err := w.Next(ctx)
		if errors.Is(err, walker.Done) {
			break
		}
		if err != nil {
			result.Sort()
			f.record(result)
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			return result, err
		}

		if e.Depth == 0 {
			finish()
			if e.Missing {
				f.log.Warn("Skipping deleted terminology with surviving subcollections",
					zap.String("terminology", e.Ref.ID),
					zap.Strings("subcollections", e.Subcollections),
				)
				continue
			}
			cur = &pending{id: e.Ref.ID, fields: e.Fields, subs: e.Subcollections, children: map[string][]walker.Entry{}}
			continue
		}
		if cur == nil || e.Missing {
			continue
		}
		name := docstore.CollectionName(e.Ref.Collection)
		cur.children[name] = append(cur.children[name], e)
	}
	finish()

	result.Sort()
	f.record(result)

	s := result.Summary()
	span.SetAttributes(
		attribute.Int("terminologies", s.Terminologies),
		attribute.Int("codes", s.Codes),
		attribute.Int("mappings", s.Mappings),
		attribute.Int("orphans", s.OrphanCodes+s.OrphanMappings),
	)
	f.log.Info("Flatten finished",
		zap.String("collection", root),
		zap.Int("terminologies", s.Terminologies),
		zap.Int("codes", s.Codes),
		zap.Int("mappings", s.Mappings),
		zap.Int("orphan_codes", s.OrphanCodes),
		zap.Int("orphan_mappings", s.OrphanMappings),
		zap.Int("failures", s.Failures),
		zap.Int("empty_system_targets", s.EmptySystemTargets),
		zap.Int("duplicate_codes", s.DuplicateCodes),
		zap.Int("duplicate_mappings", s.DuplicateMappings),
	)
	return result, nil
}

// FlattenTree flattens an in-memory tree.
func (f *Flattener) FlattenTree(ctx context.Context, tree *docstore.Tree) (*models.FlattenResult, error) {
	return f.Flatten(ctx, memory.FromTrees(tree), tree.Name)
}

func (f *Flattener) record(r *models.FlattenResult) {
	s := r.Summary()
	f.metrics.AddFlattened("terminology", s.Terminologies)
	f.metrics.AddFlattened("code", s.Codes)
	f.metrics.AddFlattened("mapping", s.Mappings)
	f.metrics.AddOrphans("code", s.OrphanCodes)
	f.metrics.AddOrphans("mapping", s.OrphanMappings)
}
