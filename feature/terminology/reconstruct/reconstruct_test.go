package reconstruct_test

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"termsync/core/docstore"
	"termsync/core/keys"
	"termsync/feature/terminology/flatten"
	"termsync/feature/terminology/models"
	"termsync/feature/terminology/reconstruct"
)

type storedChange struct {
	id     string
	change models.ProvenanceChange
}

// fakeModel is an in-memory DomainModel that records the order of calls.
type fakeModel struct {
	terms    map[string]models.Terminology
	codes    map[string]map[string]models.Code
	mappings map[string][]models.CodeRef
	editors  map[string]reconstruct.Attribution
	prov     map[string][]storedChange
	prefs    map[string][]string
	inputs   []models.UserInput
	calls    []string
	nextID   int

	failTerminology string
}

func newFakeModel() *fakeModel {
	return &fakeModel{
		terms:    map[string]models.Terminology{},
		codes:    map[string]map[string]models.Code{},
		mappings: map[string][]models.CodeRef{},
		editors:  map[string]reconstruct.Attribution{},
		prov:     map[string][]storedChange{},
		prefs:    map[string][]string{},
	}
}

func (f *fakeModel) CreateOrReplaceTerminology(_ context.Context, t models.Terminology) error {
	f.calls = append(f.calls, "terminology")
	if t.ID == f.failTerminology {
		return errors.New("sink down")
	}
	f.terms[t.ID] = t
	if f.codes[t.ID] == nil {
		f.codes[t.ID] = map[string]models.Code{}
	}
	return nil
}

func (f *fakeModel) AttachCode(_ context.Context, tid string, c models.Code) error {
	f.calls = append(f.calls, "code")
	if _, ok := f.terms[tid]; !ok {
		return fmt.Errorf("no terminology %s", tid)
	}
	f.codes[tid][c.Code] = c
	return nil
}

func (f *fakeModel) SetMapping(_ context.Context, tid, source string, targets []models.CodeRef, by reconstruct.Attribution) error {
	f.calls = append(f.calls, "mapping")
	if _, ok := f.codes[tid][source]; !ok {
		return fmt.Errorf("%w: %s/%s", reconstruct.ErrCodeNotPresent, tid, source)
	}
	f.mappings[tid+"/"+source] = targets
	f.editors[tid+"/"+source] = by
	return nil
}

func (f *fakeModel) AddProvenance(_ context.Context, tid string, ch models.ProvenanceChange) error {
	f.calls = append(f.calls, "provenance")
	f.nextID++
	f.prov[tid] = append(f.prov[tid], storedChange{id: strconv.Itoa(f.nextID), change: ch})
	return nil
}

func (f *fakeModel) FindProvenance(_ context.Context, tid string) ([]reconstruct.StoredProvenance, error) {
	var out []reconstruct.StoredProvenance
	for _, p := range f.prov[tid] {
		out = append(out, reconstruct.StoredProvenance{ID: p.id, Target: p.change.Target})
	}
	return out, nil
}

func (f *fakeModel) DeleteProvenance(_ context.Context, tid, id string) error {
	kept := f.prov[tid][:0]
	for _, p := range f.prov[tid] {
		if p.id != id {
			kept = append(kept, p)
		}
	}
	f.prov[tid] = kept
	return nil
}

func (f *fakeModel) AddAPIPreference(_ context.Context, tid, code, api string, ontologies []string) error {
	f.calls = append(f.calls, "preference")
	f.prefs[tid+"/"+code+"/"+api] = ontologies
	return nil
}

func (f *fakeModel) RecordUserInput(_ context.Context, tid, code, target string, in models.UserInput) error {
	f.calls = append(f.calls, "user_input")
	f.inputs = append(f.inputs, in)
	return nil
}

func mapping(tid, src, tgt string) models.Mapping {
	id, _ := keys.MappingIDFor(tid, src, tgt)
	sid, _ := keys.NewCodeID(tid, src)
	return models.Mapping{
		MappingID:     id,
		TerminologyID: tid,
		SourceCodeID:  sid,
		SourceCode:    src,
		TargetCodes:   []models.CodeRef{{Code: tgt, System: "http://sys"}},
		UserInput:     []models.UserInput{},
	}
}

func codeOf(tid, c string) models.Code {
	id, _ := keys.NewCodeID(tid, c)
	return models.Code{CodeID: id, TerminologyID: tid, Code: c}
}

func flatT1() *models.FlattenResult {
	flat := models.NewFlattenResult()
	flat.Terminologies = append(flat.Terminologies, models.Terminology{ID: "T1", Name: "One"})
	flat.Codes = append(flat.Codes, codeOf("T1", "A"), codeOf("T1", "B"))
	flat.Mappings = append(flat.Mappings, mapping("T1", "A", "B"))
	return flat
}

func TestRoundTripFromTree(t *testing.T) {
	tree := docstore.NewTree("Terminology")
	doc := tree.Put("T1", docstore.Fields{
		"name": docstore.String("One"),
		"codes": docstore.List(
			docstore.Map(docstore.Fields{"code": docstore.String("A"), "system": docstore.String("http://sys")}),
			docstore.Map(docstore.Fields{"code": docstore.String("B"), "system": docstore.String("http://sys")}),
			docstore.Map(docstore.Fields{"code": docstore.String("")}),
		),
	})
	doc.Subcollection("mappings").Put("A", docstore.Fields{
		"codes": docstore.List(
			docstore.Map(docstore.Fields{"code": docstore.String("B")}),
			docstore.Map(docstore.Fields{"code": docstore.String("A")}),
		),
	})
	doc.Subcollection("user_input").Put("A|B", docstore.Fields{
		"mapping_votes": docstore.Map(docstore.Fields{
			"alice": docstore.Map(docstore.Fields{"vote": docstore.String("up"), "date": docstore.String("d1")}),
		}),
	})

	flat, err := flatten.New().FlattenTree(context.Background(), tree)
	require.NoError(t, err)

	sink := newFakeModel()
	report, err := reconstruct.New().Reconstruct(context.Background(), flat, sink)
	require.NoError(t, err)

	assert.Empty(t, report.Rejected)
	assert.Equal(t, 1, report.Applied[reconstruct.PhaseTerminologies])
	assert.Equal(t, 2, report.Applied[reconstruct.PhaseCodes])
	assert.Equal(t, 2, report.Applied[reconstruct.PhaseMappings])
	assert.Equal(t, 1, report.Skipped)

	assert.Len(t, sink.codes["T1"], 2)
	targets := sink.mappings["T1/A"]
	require.Len(t, targets, 2)
	assert.ElementsMatch(t, []string{"A", "B"}, []string{targets[0].Code, targets[1].Code})
	assert.Equal(t, reconstruct.SystemEditor, sink.editors["T1/A"].Editor)
	require.Len(t, sink.inputs, 1)
	assert.Equal(t, "alice", sink.inputs[0].Editor)
}

func TestMissingSourceCodeIsRejectedOnce(t *testing.T) {
	flat := flatT1()
	flat.Mappings = append(flat.Mappings, mapping("T1", "Q", "A"), mapping("T1", "B", "A"))

	sink := newFakeModel()
	report, err := reconstruct.New().Reconstruct(context.Background(), flat, sink)
	require.NoError(t, err)

	require.Len(t, report.Rejected, 1)
	assert.Equal(t, reconstruct.KindCodeNotPresent, report.Rejected[0].Kind)
	assert.Equal(t, "T1/Q", report.Rejected[0].Key)
	assert.Equal(t, 1, report.RejectedOf(reconstruct.KindCodeNotPresent))
	assert.Contains(t, sink.mappings, "T1/A")
	assert.Contains(t, sink.mappings, "T1/B")
	assert.Equal(t, 2, report.Applied[reconstruct.PhaseMappings])
}

func TestPhasesRunInOrder(t *testing.T) {
	flat := flatT1()
	flat.Terminologies = append(flat.Terminologies, models.Terminology{ID: "T2"})
	flat.Codes = append(flat.Codes, codeOf("T2", "X"))
	flat.Mappings = append(flat.Mappings, mapping("T2", "X", "X"))
	flat.Mappings[0].UserInput = []models.UserInput{{Kind: models.KindVote, Value: "up", Editor: "alice"}}
	flat.Terminologies[0].Provenance = []models.ProvenanceChange{{Action: "import", Target: "self"}}
	flat.Codes[0].APIPreference = models.APIPreference{"ols": {"mondo"}}

	sink := newFakeModel()
	_, err := reconstruct.New().Reconstruct(context.Background(), flat, sink)
	require.NoError(t, err)

	rank := map[string]int{"terminology": 0, "code": 1, "mapping": 2, "provenance": 3, "preference": 4, "user_input": 4}
	for i := 1; i < len(sink.calls); i++ {
		assert.LessOrEqual(t, rank[sink.calls[i-1]], rank[sink.calls[i]], "call %d (%s) after %s", i, sink.calls[i], sink.calls[i-1])
	}
	assert.Equal(t, []string{"mondo"}, sink.prefs["T1/A/ols"])
}

func TestFailedTerminologyIsIsolated(t *testing.T) {
	flat := flatT1()
	flat.Terminologies = append([]models.Terminology{{ID: "T0"}}, flat.Terminologies...)
	flat.Codes = append([]models.Code{codeOf("T0", "A")}, flat.Codes...)
	flat.Mappings = append([]models.Mapping{mapping("T0", "A", "A")}, flat.Mappings...)

	sink := newFakeModel()
	sink.failTerminology = "T0"
	report, err := reconstruct.New().Reconstruct(context.Background(), flat, sink)
	require.NoError(t, err)

	assert.Equal(t, []string{"T0"}, report.FailedTerminologies)
	require.Len(t, report.Rejected, 1)
	assert.Equal(t, reconstruct.KindSinkError, report.Rejected[0].Kind)
	assert.Equal(t, 2, report.Skipped)
	assert.Len(t, sink.codes["T1"], 2)
	assert.Contains(t, sink.mappings, "T1/A")
}

func TestProvenanceReplaceKeepsSelf(t *testing.T) {
	sink := newFakeModel()
	ctx := context.Background()
	require.NoError(t, sink.AddProvenance(ctx, "T1", models.ProvenanceChange{Action: "create", Target: "self"}))
	require.NoError(t, sink.AddProvenance(ctx, "T1", models.ProvenanceChange{Action: "set mapping", Target: "A"}))

	flat := flatT1()
	flat.Codes[0].Provenance = []models.ProvenanceChange{
		{Action: "add mapping", Editor: "carol", Timestamp: "2024-02-02", Target: "A", NewValue: docstore.String("B")},
	}

	report, err := reconstruct.New().Reconstruct(ctx, flat, sink)
	require.NoError(t, err)
	assert.Equal(t, 1, report.Applied[reconstruct.PhaseProvenance])

	var actions []string
	for _, p := range sink.prov["T1"] {
		actions = append(actions, p.change.Action)
	}
	assert.Equal(t, []string{"create", "add mapping"}, actions)
	last := sink.prov["T1"][1].change
	assert.Equal(t, "carol", last.Editor)
	assert.Equal(t, "2024-02-02", last.Timestamp)
}

func TestCancelledReconstructReturnsReport(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	report, err := reconstruct.New().Reconstruct(ctx, flatT1(), newFakeModel())
	assert.ErrorIs(t, err, context.Canceled)
	require.NotNil(t, report)
	assert.Zero(t, report.TotalApplied())
}

type mockModel struct {
	mock.Mock
	*fakeModel
}

func (m *mockModel) SetMapping(ctx context.Context, tid, source string, targets []models.CodeRef, by reconstruct.Attribution) error {
	args := m.Called(ctx, tid, source, targets, by)
	return args.Error(0)
}

func TestMappingAttribution(t *testing.T) {
	flat := flatT1()
	flat.Mappings[0].Editor = "erin"
	flat.Mappings[0].Timestamp = "2024-04-04"

	m := &mockModel{fakeModel: newFakeModel()}
	m.On("SetMapping", mock.Anything, "T1", "A", mock.Anything, reconstruct.Attribution{Editor: "erin", Timestamp: "2024-04-04"}).Return(nil).Once()

	_, err := reconstruct.New().Reconstruct(context.Background(), flat, m)
	require.NoError(t, err)
	m.AssertExpectations(t)
}
