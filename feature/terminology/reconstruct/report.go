package reconstruct

import "termsync/feature/terminology/models"

// Phase is one ordered step of a reconstruction.
type Phase string

const (
	PhaseTerminologies Phase = "terminologies"
	PhaseCodes         Phase = "codes"
	PhaseMappings      Phase = "mappings"
	PhaseProvenance    Phase = "provenance"
	PhaseAnnotations   Phase = "annotations"
)

// Phases lists the phases in execution order.
var Phases = []Phase{PhaseTerminologies, PhaseCodes, PhaseMappings, PhaseProvenance, PhaseAnnotations}

// Rejection kinds.
const (
	KindCodeNotPresent = "CodeNotPresent"
	KindSinkError      = "SinkError"
)

// Rejection is one entity the sink refused.
type Rejection struct {
	Phase         Phase  `json:"phase"`
	Kind          string `json:"kind"`
	TerminologyID string `json:"terminology_id"`
	Key           string `json:"key"`
	Error         string `json:"error"`
}

// Report summarises a reconstruction. Orphans are passed through from the
// flatten result for manual review; they are never replayed.
type Report struct {
	Applied             map[Phase]int `json:"applied"`
	Rejected            []Rejection   `json:"rejected"`
	FailedTerminologies []string      `json:"failed_terminologies"`
	// Skipped counts entities not sent to the sink: codes without a value and
	// entities of failed terminologies.
	Skipped        int                    `json:"skipped"`
	OrphanCodes    []models.OrphanCode    `json:"orphan_codes"`
	OrphanMappings []models.OrphanMapping `json:"orphan_mappings"`
}

func newReport(flat *models.FlattenResult) *Report {
	r := &Report{
		Applied:             map[Phase]int{},
		Rejected:            []Rejection{},
		FailedTerminologies: []string{},
		OrphanCodes:         flat.OrphanCodes,
		OrphanMappings:      flat.OrphanMappings,
	}
	for _, p := range Phases {
		r.Applied[p] = 0
	}
	return r
}

// TotalApplied sums Applied over every phase.
func (r *Report) TotalApplied() int {
	n := 0
	for _, v := range r.Applied {
		n += v
	}
	return n
}

// RejectedOf counts rejections of kind.
func (r *Report) RejectedOf(kind string) int {
	n := 0
	for _, rej := range r.Rejected {
		if rej.Kind == kind {
			n++
		}
	}
	return n
}
