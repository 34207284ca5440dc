package deleter

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"termsync/core/docstore"
	"termsync/core/metrics"
)

var tracer = otel.Tracer("termsync.deleter")

// State is the lifecycle state of one collection deletion.
type State string

const (
	StatePending   State = "PENDING"
	StateDeleting  State = "DELETING"
	StateEmpty     State = "EMPTY"
	StateTimedOut  State = "TIMED_OUT"
	StateCancelled State = "CANCELLED"
	// StateFailed means the collection itself could not be listed.
	StateFailed State = "FAILED"
)

// Terminal reports whether s ends a deletion.
func (s State) Terminal() bool {
	return s != StatePending && s != StateDeleting
}

var (
	// ErrTimedOut marks resumable partial work.
	ErrTimedOut = errors.New("deletion timed out")
	// ErrVerificationFailed is returned when documents remain after deletion.
	ErrVerificationFailed = errors.New("verification failed")
)

// Config bounds a deletion run.
type Config struct {
	BatchSize     int           `mapstructure:"batch_size" default:"10"`
	TimeBudget    time.Duration `mapstructure:"time_budget" default:"300s"`
	SubTimeBudget time.Duration `mapstructure:"sub_time_budget" default:"60s"`
	// Concurrency is the number of sibling documents deleted in parallel.
	Concurrency int `mapstructure:"concurrency" default:"1"`
}

// DefaultConfig returns the limits used by the delete command.
func DefaultConfig() Config {
	return Config{
		BatchSize:     10,
		TimeBudget:    300 * time.Second,
		SubTimeBudget: 60 * time.Second,
		Concurrency:   1,
	}
}

// Outcome summarises the deletion of one collection.
type Outcome struct {
	Collection string
	State      State
	// DocumentsDeleted counts documents of Collection itself.
	DocumentsDeleted int
	// DescendantsDeleted counts documents of nested subcollections.
	DescendantsDeleted int
	// Failed counts documents that could not be deleted or were kept because
	// part of their subtree could not be deleted.
	Failed  int
	Elapsed time.Duration
	Err     error
}

// Total returns every document removed under Collection.
func (o Outcome) Total() int {
	return o.DocumentsDeleted + o.DescendantsDeleted
}

// Deleter deletes collections from a store.
type Deleter struct {
	store   docstore.Store
	cfg     Config
	log     *zap.Logger
	metrics *metrics.Metrics
	now     func() time.Time
}

// Option configures a Deleter.
type Option func(*Deleter)

// WithLogger sets the logger.
func WithLogger(log *zap.Logger) Option {
	return func(d *Deleter) { d.log = log }
}

// WithMetrics sets the metrics sink.
func WithMetrics(m *metrics.Metrics) Option {
	return func(d *Deleter) { d.metrics = m }
}

// WithClock replaces time.Now for budget accounting.
func WithClock(now func() time.Time) Option {
	return func(d *Deleter) { d.now = now }
}

// New returns a Deleter. Non-positive batch size and concurrency fall back to
// the defaults.
func New(store docstore.Store, cfg Config, opts ...Option) *Deleter {
	def := DefaultConfig()
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = def.BatchSize
	}
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = def.Concurrency
	}
	d := &Deleter{store: store, cfg: cfg, log: zap.NewNop(), now: time.Now}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Delete drains a top-level collection within the configured time budget.
func (d *Deleter) Delete(ctx context.Context, collection string) Outcome {
	ctx, span := tracer.Start(ctx, "deleter.Delete")
	defer span.End()
	span.SetAttributes(attribute.String("collection", collection))

	start := time.Now()
	out := d.deleteCollection(ctx, collection, d.cfg.TimeBudget)

	d.metrics.AddDeleted(collection, out.Total())
	d.metrics.AddDeleteFailures(collection, out.Failed)
	d.metrics.ObserveDeletion(string(out.State), start)
	span.SetAttributes(
		attribute.String("state", string(out.State)),
		attribute.Int("deleted", out.Total()),
		attribute.Int("failed", out.Failed),
	)
	if out.Err != nil {
		span.RecordError(out.Err)
		span.SetStatus(codes.Error, out.Err.Error())
	}

	d.log.Info("Collection deletion finished",
		zap.String("collection", collection),
		zap.String("state", string(out.State)),
		zap.Int("documents", out.DocumentsDeleted),
		zap.Int("descendants", out.DescendantsDeleted),
		zap.Int("failed", out.Failed),
		zap.Duration("elapsed", out.Elapsed),
	)
	return out
}

// DeleteAll deletes each collection in turn, each with a full time budget.
// Collections not reached because ctx ended are reported as CANCELLED.
func (d *Deleter) DeleteAll(ctx context.Context, collections []string) []Outcome {
	outcomes := make([]Outcome, 0, len(collections))
	for _, c := range collections {
		if ctx.Err() != nil {
			outcomes = append(outcomes, Outcome{Collection: c, State: StateCancelled, Err: ctx.Err()})
			continue
		}
		outcomes = append(outcomes, d.Delete(ctx, c))
	}
	return outcomes
}

type docResult struct {
	deleted     int
	descendants int
	failed      int
	state       State
	err         error
}

func (d *Deleter) deleteCollection(ctx context.Context, collection string, budget time.Duration) (out Outcome) {
	start := d.now()
	out = Outcome{Collection: collection, State: StateDeleting}
	defer func() { out.Elapsed = d.now().Sub(start) }()

	cursor := ""
	for {
		if err := ctx.Err(); err != nil {
			out.State, out.Err = StateCancelled, err
			return out
		}
		if d.now().Sub(start) >= budget {
			out.State, out.Err = StateTimedOut, fmt.Errorf("%w: %s after %s", ErrTimedOut, collection, budget)
			return out
		}

		refs, err := d.store.ListDocuments(ctx, collection, cursor, d.cfg.BatchSize)
		if err != nil {
			if ctx.Err() != nil {
				out.State, out.Err = StateCancelled, ctx.Err()
				return out
			}
			d.log.Error("Failed to list documents", zap.String("collection", collection), zap.Error(err))
			out.State, out.Err = StateFailed, err
			return out
		}
		if len(refs) == 0 {
			out.State = StateEmpty
			return out
		}

		stop := d.deleteBatch(ctx, refs, budget, &out)
		if stop {
			return out
		}
		if len(refs) < d.cfg.BatchSize {
			out.State = StateEmpty
			return out
		}
		// Documents that failed stay in the collection; continue after them.
		cursor = refs[len(refs)-1].ID
	}
}

// deleteBatch deletes refs with bounded concurrency and folds the results into
// out. It reports whether the collection loop must stop.
func (d *Deleter) deleteBatch(ctx context.Context, refs []docstore.DocumentRef, budget time.Duration, out *Outcome) bool {
	var (
		mu      sync.Mutex
		stopped State
		stopErr error
	)
	g := new(errgroup.Group)
	g.SetLimit(d.cfg.Concurrency)
	for _, ref := range refs {
		g.Go(func() error {
			r := d.deleteDocument(ctx, ref, budget)
			mu.Lock()
			defer mu.Unlock()
			out.DocumentsDeleted += r.deleted
			out.DescendantsDeleted += r.descendants
			out.Failed += r.failed
			if r.state != "" && stopped == "" {
				stopped, stopErr = r.state, r.err
			}
			return nil
		})
	}
	_ = g.Wait()
	if stopped != "" {
		out.State, out.Err = stopped, stopErr
		return true
	}
	return false
}

// subBudget returns the budget for one subcollection of a collection running
// under budget. It is always smaller than budget, so every nesting level gets
// less time than its parent.
func (d *Deleter) subBudget(budget time.Duration) time.Duration {
	if sub := d.cfg.SubTimeBudget; sub > 0 && sub < budget {
		return sub
	}
	return budget / 2
}

// deleteDocument removes ref's subcollections and then ref. A non-empty state
// in the result means a subcollection did not drain and the parent was kept.
func (d *Deleter) deleteDocument(ctx context.Context, ref docstore.DocumentRef, budget time.Duration) docResult {
	var r docResult
	if err := ctx.Err(); err != nil {
		r.state, r.err = StateCancelled, err
		return r
	}
	subs, err := d.store.ListSubcollections(ctx, ref)
	if err != nil {
		if ctx.Err() != nil {
			r.state, r.err = StateCancelled, ctx.Err()
			return r
		}
		d.log.Warn("Failed to list subcollections, keeping document",
			zap.String("document", ref.Path()), zap.Error(err))
		r.failed++
		return r
	}

	subBudget := d.subBudget(budget)
	for _, name := range subs {
		sub := d.deleteCollection(ctx, ref.Child(name), subBudget)
		r.descendants += sub.Total()
		r.failed += sub.Failed
		switch sub.State {
		case StateEmpty:
		case StateFailed:
			r.failed++
			return r
		default:
			r.state, r.err = sub.State, sub.Err
			return r
		}
		if sub.Failed > 0 {
			// Deleting the parent now would hide the surviving children.
			r.failed++
			return r
		}
	}

	if err := d.store.DeleteDocument(ctx, ref); err != nil {
		d.log.Warn("Failed to delete document", zap.String("document", ref.Path()), zap.Error(err))
		r.failed++
		return r
	}
	r.deleted = 1
	return r
}
