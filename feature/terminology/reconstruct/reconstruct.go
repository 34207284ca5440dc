package reconstruct

import (
	"context"
	"errors"
	"sort"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.uber.org/zap"

	"termsync/core/keys"
	"termsync/core/metrics"
	"termsync/feature/terminology/models"
)

var tracer = otel.Tracer("termsync.reconstruct")

// Reconstructor replays flat entity sets into a DomainModel.
type Reconstructor struct {
	log     *zap.Logger
	metrics *metrics.Metrics
}

// Option configures a Reconstructor.
type Option func(*Reconstructor)

// WithLogger sets the logger. A nil logger keeps the no-op default.
func WithLogger(log *zap.Logger) Option {
	return func(r *Reconstructor) {
		if log != nil {
			r.log = log
		}
	}
}

// WithMetrics sets the metrics sink.
func WithMetrics(m *metrics.Metrics) Option {
	return func(r *Reconstructor) { r.metrics = m }
}

// New returns a Reconstructor.
func New(opts ...Option) *Reconstructor {
	r := &Reconstructor{log: zap.NewNop()}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// run holds the state of one Reconstruct call.
type run struct {
	*Reconstructor
	flat   *models.FlattenResult
	sink   DomainModel
	report *Report
	failed map[string]bool
}

// Reconstruct replays flat into sink phase by phase. Every phase completes for
// all terminologies before the next starts. A terminology whose creation or
// codes fail is left out of the later phases; every other rejection is
// counted and skipped. On cancellation the report so far is returned with the
// context error.
func (r *Reconstructor) Reconstruct(ctx context.Context, flat *models.FlattenResult, sink DomainModel) (*Report, error) {
	ctx, span := tracer.Start(ctx, "reconstruct.Reconstruct")
	defer span.End()

	rn := &run{Reconstructor: r, flat: flat, sink: sink, report: newReport(flat), failed: map[string]bool{}}
	steps := []struct {
		phase Phase
		fn    func(context.Context) error
	}{
		{PhaseTerminologies, rn.terminologies},
		{PhaseCodes, rn.codes},
		{PhaseMappings, rn.mappings},
		{PhaseProvenance, rn.provenance},
		{PhaseAnnotations, rn.annotations},
	}

	for _, step := range steps {
		pctx, pspan := tracer.Start(ctx, "reconstruct."+string(step.phase))
		err := step.fn(pctx)
		pspan.SetAttributes(attribute.Int("applied", rn.report.Applied[step.phase]))
		pspan.End()
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			r.log.Warn("Reconstruction interrupted", zap.String("phase", string(step.phase)), zap.Error(err))
			return rn.report, err
		}
	}

	sort.Strings(rn.report.FailedTerminologies)
	span.SetAttributes(
		attribute.Int("applied", rn.report.TotalApplied()),
		attribute.Int("rejected", len(rn.report.Rejected)),
	)
	r.log.Info("Reconstruction finished",
		zap.Int("applied", rn.report.TotalApplied()),
		zap.Int("rejected", len(rn.report.Rejected)),
		zap.Int("failed_terminologies", len(rn.report.FailedTerminologies)),
		zap.Int("skipped", rn.report.Skipped),
		zap.Int("orphan_codes", len(rn.report.OrphanCodes)),
		zap.Int("orphan_mappings", len(rn.report.OrphanMappings)),
	)
	return rn.report, nil
}

func (rn *run) applied(p Phase, n int) {
	rn.report.Applied[p] += n
	for i := 0; i < n; i++ {
		rn.metrics.IncApplied(string(p))
	}
}

func (rn *run) reject(p Phase, kind, tid, key string, err error) {
	rn.report.Rejected = append(rn.report.Rejected, Rejection{
		Phase:         p,
		Kind:          kind,
		TerminologyID: tid,
		Key:           key,
		Error:         err.Error(),
	})
	rn.metrics.IncRejected(kind)
	rn.log.Warn("Sink rejected entity",
		zap.String("phase", string(p)),
		zap.String("kind", kind),
		zap.String("terminology", tid),
		zap.String("key", key),
		zap.Error(err),
	)
}

func (rn *run) fail(tid string) {
	if !rn.failed[tid] {
		rn.failed[tid] = true
		rn.report.FailedTerminologies = append(rn.report.FailedTerminologies, tid)
	}
}

func (rn *run) terminologies(ctx context.Context) error {
	for _, t := range rn.flat.Terminologies {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := rn.sink.CreateOrReplaceTerminology(ctx, t); err != nil {
			rn.reject(PhaseTerminologies, KindSinkError, t.ID, t.ID, err)
			rn.fail(t.ID)
			continue
		}
		rn.applied(PhaseTerminologies, 1)
	}
	return nil
}

func (rn *run) codes(ctx context.Context) error {
	for _, c := range rn.flat.Codes {
		if err := ctx.Err(); err != nil {
			return err
		}
		if c.Code == "" || rn.failed[c.TerminologyID] {
			rn.report.Skipped++
			continue
		}
		if err := rn.sink.AttachCode(ctx, c.TerminologyID, c); err != nil {
			rn.reject(PhaseCodes, KindSinkError, c.TerminologyID, string(c.CodeID), err)
			rn.fail(c.TerminologyID)
			continue
		}
		rn.applied(PhaseCodes, 1)
	}
	return nil
}

// mappingGroup is every target of one source code.
type mappingGroup struct {
	tid      string
	source   string
	sourceID keys.CodeID
	targets  []models.CodeRef
	by       Attribution
}

func groupMappings(mappings []models.Mapping) []*mappingGroup {
	var groups []*mappingGroup
	index := map[keys.CodeID]*mappingGroup{}
	for _, m := range mappings {
		g, ok := index[m.SourceCodeID]
		if !ok {
			g = &mappingGroup{tid: m.TerminologyID, source: m.SourceCode, sourceID: m.SourceCodeID}
			index[m.SourceCodeID] = g
			groups = append(groups, g)
		}
		g.targets = append(g.targets, m.TargetCodes...)
		if g.by.Editor == "" && m.Editor != "" {
			g.by = Attribution{Editor: m.Editor, Timestamp: m.Timestamp}
		}
	}
	for _, g := range groups {
		if g.by.Editor == "" {
			g.by.Editor = SystemEditor
		}
	}
	return groups
}

func (rn *run) mappings(ctx context.Context) error {
	for _, g := range groupMappings(rn.flat.Mappings) {
		if err := ctx.Err(); err != nil {
			return err
		}
		if rn.failed[g.tid] {
			rn.report.Skipped += len(g.targets)
			continue
		}
		err := rn.sink.SetMapping(ctx, g.tid, g.source, g.targets, g.by)
		switch {
		case errors.Is(err, ErrCodeNotPresent):
			rn.reject(PhaseMappings, KindCodeNotPresent, g.tid, string(g.sourceID), err)
		case err != nil:
			rn.reject(PhaseMappings, KindSinkError, g.tid, string(g.sourceID), err)
		default:
			rn.applied(PhaseMappings, len(g.targets))
		}
	}
	return nil
}

// provenance clears the non-self history the sink holds for each terminology
// that has recorded provenance, then replays the recorded changes unchanged.
func (rn *run) provenance(ctx context.Context) error {
	changes := map[string][]models.ProvenanceChange{}
	for _, t := range rn.flat.Terminologies {
		changes[t.ID] = append(changes[t.ID], t.Provenance...)
	}
	for _, c := range rn.flat.Codes {
		changes[c.TerminologyID] = append(changes[c.TerminologyID], c.Provenance...)
	}

	for _, t := range rn.flat.Terminologies {
		if err := ctx.Err(); err != nil {
			return err
		}
		if rn.failed[t.ID] || len(changes[t.ID]) == 0 {
			continue
		}

		stored, err := rn.sink.FindProvenance(ctx, t.ID)
		if err != nil {
			rn.reject(PhaseProvenance, KindSinkError, t.ID, "find", err)
			continue
		}
		for _, p := range stored {
			if p.Target == "" || p.Target == models.Self {
				continue
			}
			if err := rn.sink.DeleteProvenance(ctx, t.ID, p.ID); err != nil {
				rn.reject(PhaseProvenance, KindSinkError, t.ID, "delete "+p.ID, err)
			}
		}

		for _, ch := range changes[t.ID] {
			if err := ctx.Err(); err != nil {
				return err
			}
			if err := rn.sink.AddProvenance(ctx, t.ID, ch); err != nil {
				rn.reject(PhaseProvenance, KindSinkError, t.ID, ch.Target, err)
				continue
			}
			rn.applied(PhaseProvenance, 1)
		}
	}
	return nil
}

func (rn *run) annotations(ctx context.Context) error {
	prefer := func(tid, code string, pref models.APIPreference) error {
		apis := make([]string, 0, len(pref))
		for api := range pref {
			apis = append(apis, api)
		}
		sort.Strings(apis)
		for _, api := range apis {
			if err := ctx.Err(); err != nil {
				return err
			}
			if err := rn.sink.AddAPIPreference(ctx, tid, code, api, pref[api]); err != nil {
				rn.reject(PhaseAnnotations, KindSinkError, tid, code+"/"+api, err)
				continue
			}
			rn.applied(PhaseAnnotations, 1)
		}
		return nil
	}

	for _, t := range rn.flat.Terminologies {
		if rn.failed[t.ID] {
			continue
		}
		if err := prefer(t.ID, models.Self, t.APIPreference); err != nil {
			return err
		}
	}
	for _, c := range rn.flat.Codes {
		if rn.failed[c.TerminologyID] || c.Code == "" {
			continue
		}
		if err := prefer(c.TerminologyID, c.Code, c.APIPreference); err != nil {
			return err
		}
	}

	for _, m := range rn.flat.Mappings {
		if rn.failed[m.TerminologyID] || len(m.TargetCodes) == 0 {
			continue
		}
		target := m.TargetCodes[0].Code
		for _, in := range m.UserInput {
			if err := ctx.Err(); err != nil {
				return err
			}
			if err := rn.sink.RecordUserInput(ctx, m.TerminologyID, m.SourceCode, target, in); err != nil {
				rn.reject(PhaseAnnotations, KindSinkError, m.TerminologyID, string(m.MappingID), err)
				continue
			}
			rn.applied(PhaseAnnotations, 1)
		}
	}
	return nil
}
