package reconstruct

import (
	"context"
	"errors"

	"termsync/feature/terminology/models"
)

// ErrCodeNotPresent is returned by a DomainModel when a mapping names a source
// code the terminology does not have.
var ErrCodeNotPresent = errors.New("code not present")

// SystemEditor is credited with changes whose original editor is unknown.
const SystemEditor = "system-reload"

// Attribution names who made a change and when.
type Attribution struct {
	Editor    string
	Timestamp string
}

// StoredProvenance is a provenance entry already held by a DomainModel.
type StoredProvenance struct {
	ID     string
	Target string
}

// DomainModel is the sink reconstructed entities are written to.
type DomainModel interface {
	// CreateOrReplaceTerminology creates t, or replaces its fields if it
	// exists. Codes and mappings of an existing terminology are kept.
	CreateOrReplaceTerminology(ctx context.Context, t models.Terminology) error
	AttachCode(ctx context.Context, terminologyID string, code models.Code) error
	// SetMapping replaces every target of sourceCode in one call. It fails
	// with ErrCodeNotPresent when sourceCode does not exist.
	SetMapping(ctx context.Context, terminologyID, sourceCode string, targets []models.CodeRef, by Attribution) error
	AddProvenance(ctx context.Context, terminologyID string, change models.ProvenanceChange) error
	FindProvenance(ctx context.Context, terminologyID string) ([]StoredProvenance, error)
	DeleteProvenance(ctx context.Context, terminologyID, id string) error
	// AddAPIPreference sets the ontologies preferred on api for code, where
	// code is models.Self for the terminology itself.
	AddAPIPreference(ctx context.Context, terminologyID, code, api string, ontologies []string) error
	RecordUserInput(ctx context.Context, terminologyID, code, targetCode string, input models.UserInput) error
}
