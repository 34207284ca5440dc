package models

import (
	"errors"
	"sort"

	"termsync/core/docstore"
	"termsync/core/keys"
)

// ErrMissingCodeSet is returned for a terminology document that has neither a
// codes subcollection nor an inline codes field.
var ErrMissingCodeSet = errors.New("terminology has no code set")

// Self is the document id that addresses the terminology itself inside its
// provenance and preference subcollections.
const Self = "self"

// Subcollection names of a terminology document.
const (
	CodesCollection         = "codes"
	MappingsCollection      = "mappings"
	ProvenanceCollection    = "provenance"
	PreferenceCollection    = "onto_api_preference"
	PreferencesCollection   = "onto_api_preferences"
	UserInputCollection     = "user_input"
	PreferredTermCollection = "preferred_terminology"
)

// APIPreference maps an ontology API to the ontologies preferred on it.
type APIPreference map[string][]string

// ProvenanceChange is one entry of a provenance change log, kept exactly as
// it was recorded.
type ProvenanceChange struct {
	Action    string         `json:"action"`
	Editor    string         `json:"editor,omitempty"`
	Timestamp string         `json:"timestamp,omitempty"`
	Target    string         `json:"target,omitempty"`
	NewValue  docstore.Value `json:"new_value"`
	OldValue  docstore.Value `json:"old_value"`
}

// Terminology is the aggregate root of a code system.
type Terminology struct {
	ID                     string             `json:"id"`
	Name                   string             `json:"name"`
	Description            string             `json:"description"`
	URL                    string             `json:"url"`
	PreferredTerminologies []string           `json:"preferred_terminologies"`
	Provenance             []ProvenanceChange `json:"provenance,omitempty"`
	APIPreference          APIPreference      `json:"api_preference,omitempty"`
}

// Code is one concept of a terminology. CodeID is empty when Code is empty;
// such codes are carried through flattening and skipped on reconstruction.
type Code struct {
	CodeID        keys.CodeID        `json:"code_id"`
	TerminologyID string             `json:"terminology_id"`
	Code          string             `json:"code"`
	Display       string             `json:"display"`
	Description   string             `json:"description"`
	System        string             `json:"system"`
	Provenance    []ProvenanceChange `json:"provenance,omitempty"`
	APIPreference APIPreference      `json:"api_preference,omitempty"`
}

// CodeRef is the target side of a mapping.
type CodeRef struct {
	Code        string `json:"code"`
	Display     string `json:"display"`
	System      string `json:"system"`
	Description string `json:"description"`
}

// UserInputKind names the kind of a user input record.
type UserInputKind string

const (
	KindVote         UserInputKind = "mapping_votes"
	KindConversation UserInputKind = "mapping_conversations"
)

// UserInput is a vote or a comment on a mapping.
type UserInput struct {
	Kind      UserInputKind `json:"kind"`
	Value     string        `json:"value"`
	Editor    string        `json:"editor"`
	Timestamp string        `json:"timestamp"`
}

// Mapping is a directed edge from one source code to one target code.
type Mapping struct {
	MappingID     keys.MappingID `json:"mapping_id"`
	TerminologyID string         `json:"terminology_id"`
	SourceCodeID  keys.CodeID    `json:"source_code_id"`
	SourceCode    string         `json:"source_code"`
	TargetCodes   []CodeRef      `json:"target_codes"`
	UserInput     []UserInput    `json:"user_input"`
	Editor        string         `json:"editor,omitempty"`
	Timestamp     string         `json:"timestamp,omitempty"`
}

// Orphan reasons.
const (
	ReasonUnknownCode    = "unknown code"
	ReasonUnknownMapping = "unknown mapping"
	ReasonMalformedKey   = "malformed key"
)

// OrphanCode is a provenance or preference record whose code does not exist.
type OrphanCode struct {
	TerminologyID   string          `json:"terminology_id"`
	AttemptedCodeID string          `json:"attempted_code_id"`
	Collection      string          `json:"collection"`
	Reason          string          `json:"reason"`
	RawPayload      docstore.Fields `json:"raw_payload"`
}

// OrphanMapping is a record that references a mapping that does not exist.
type OrphanMapping struct {
	TerminologyID      string          `json:"terminology_id"`
	AttemptedMappingID string          `json:"attempted_mapping_id"`
	Collection         string          `json:"collection"`
	Reason             string          `json:"reason"`
	RawPayload         docstore.Fields `json:"raw_payload"`
}

// Failure records a terminology that could not be flattened.
type Failure struct {
	TerminologyID string `json:"terminology_id"`
	Error         string `json:"error"`
}

// FlattenResult is the flat form of a terminology collection.
type FlattenResult struct {
	Terminologies  []Terminology   `json:"terminologies"`
	Codes          []Code          `json:"codes"`
	Mappings       []Mapping       `json:"mappings"`
	OrphanCodes    []OrphanCode    `json:"orphan_codes"`
	OrphanMappings []OrphanMapping `json:"orphan_mappings"`
	Failures       []Failure       `json:"failures,omitempty"`
	// EmptySystemTargets counts mapping targets without a system.
	EmptySystemTargets int `json:"empty_system_targets"`
	// DuplicateCodes and DuplicateMappings count repeated entries that were
	// dropped in favour of the first occurrence.
	DuplicateCodes    int `json:"duplicate_codes"`
	DuplicateMappings int `json:"duplicate_mappings"`
}

// NewFlattenResult returns a result with non-nil slices, so that empty sets
// encode as [] rather than null.
func NewFlattenResult() *FlattenResult {
	return &FlattenResult{
		Terminologies:  []Terminology{},
		Codes:          []Code{},
		Mappings:       []Mapping{},
		OrphanCodes:    []OrphanCode{},
		OrphanMappings: []OrphanMapping{},
	}
}

// Merge appends o into r.
func (r *FlattenResult) Merge(o *FlattenResult) {
	r.Terminologies = append(r.Terminologies, o.Terminologies...)
	r.Codes = append(r.Codes, o.Codes...)
	r.Mappings = append(r.Mappings, o.Mappings...)
	r.OrphanCodes = append(r.OrphanCodes, o.OrphanCodes...)
	r.OrphanMappings = append(r.OrphanMappings, o.OrphanMappings...)
	r.Failures = append(r.Failures, o.Failures...)
	r.EmptySystemTargets += o.EmptySystemTargets
	r.DuplicateCodes += o.DuplicateCodes
	r.DuplicateMappings += o.DuplicateMappings
}

// Sort puts every set in key order.
func (r *FlattenResult) Sort() {
	sort.SliceStable(r.Terminologies, func(i, j int) bool { return r.Terminologies[i].ID < r.Terminologies[j].ID })
	sort.SliceStable(r.Codes, func(i, j int) bool {
		a, b := r.Codes[i], r.Codes[j]
		if a.TerminologyID != b.TerminologyID {
			return a.TerminologyID < b.TerminologyID
		}
		return a.Code < b.Code
	})
	sort.SliceStable(r.Mappings, func(i, j int) bool { return r.Mappings[i].MappingID < r.Mappings[j].MappingID })
	sort.SliceStable(r.OrphanCodes, func(i, j int) bool {
		a, b := r.OrphanCodes[i], r.OrphanCodes[j]
		if a.TerminologyID != b.TerminologyID {
			return a.TerminologyID < b.TerminologyID
		}
		if a.Collection != b.Collection {
			return a.Collection < b.Collection
		}
		return a.AttemptedCodeID < b.AttemptedCodeID
	})
	sort.SliceStable(r.OrphanMappings, func(i, j int) bool {
		a, b := r.OrphanMappings[i], r.OrphanMappings[j]
		if a.TerminologyID != b.TerminologyID {
			return a.TerminologyID < b.TerminologyID
		}
		if a.Collection != b.Collection {
			return a.Collection < b.Collection
		}
		return a.AttemptedMappingID < b.AttemptedMappingID
	})
	sort.SliceStable(r.Failures, func(i, j int) bool { return r.Failures[i].TerminologyID < r.Failures[j].TerminologyID })
}

// Summary counts every set.
type Summary struct {
	Terminologies      int `json:"terminologies"`
	Codes              int `json:"codes"`
	Mappings           int `json:"mappings"`
	OrphanCodes        int `json:"orphan_codes"`
	OrphanMappings     int `json:"orphan_mappings"`
	Failures           int `json:"failures"`
	EmptySystemTargets int `json:"empty_system_targets"`
	DuplicateCodes     int `json:"duplicate_codes"`
	DuplicateMappings  int `json:"duplicate_mappings"`
}

// Summary returns the counts of r.
func (r *FlattenResult) Summary() Summary {
	return Summary{
		Terminologies:      len(r.Terminologies),
		Codes:              len(r.Codes),
		Mappings:           len(r.Mappings),
		OrphanCodes:        len(r.OrphanCodes),
		OrphanMappings:     len(r.OrphanMappings),
		Failures:           len(r.Failures),
		EmptySystemTargets: r.EmptySystemTargets,
		DuplicateCodes:     r.DuplicateCodes,
		DuplicateMappings:  r.DuplicateMappings,
	}
}

// Terminology returns the terminology with id.
func (r *FlattenResult) Terminology(id string) (Terminology, bool) {
	for _, t := range r.Terminologies {
		if t.ID == id {
			return t, true
		}
	}
	return Terminology{}, false
}

// CodesOf returns the codes of terminology id.
func (r *FlattenResult) CodesOf(id string) []Code {
	var out []Code
	for _, c := range r.Codes {
		if c.TerminologyID == id {
			out = append(out, c)
		}
	}
	return out
}

// MappingsOf returns the mappings of terminology id.
func (r *FlattenResult) MappingsOf(id string) []Mapping {
	var out []Mapping
	for _, m := range r.Mappings {
		if m.TerminologyID == id {
			out = append(out, m)
		}
	}
	return out
}
