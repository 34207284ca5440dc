package sink

import (
	"context"

	"termsync/feature/terminology/models"
)

// Terminologies returns every stored terminology ordered by id.
func (s *Sink) Terminologies(ctx context.Context) ([]models.TerminologyRow, error) {
	var rows []models.TerminologyRow
	err := s.db.WithContext(ctx).Order("id").Find(&rows).Error
	return rows, err
}

// Codes returns the codes of a terminology ordered by code.
func (s *Sink) Codes(ctx context.Context, terminologyID string) ([]models.CodeRow, error) {
	var rows []models.CodeRow
	err := s.db.WithContext(ctx).Where("terminology_id = ?", terminologyID).Order("code").Find(&rows).Error
	return rows, err
}

// Mappings returns the mapping edges of a terminology.
func (s *Sink) Mappings(ctx context.Context, terminologyID string) ([]models.MappingRow, error) {
	var rows []models.MappingRow
	err := s.db.WithContext(ctx).Where("terminology_id = ?", terminologyID).
		Order("source_code").Order("target_code").
		Find(&rows).Error
	return rows, err
}

// Provenance returns the provenance of a terminology in insertion order.
func (s *Sink) Provenance(ctx context.Context, terminologyID string) ([]models.ProvenanceRow, error) {
	var rows []models.ProvenanceRow
	err := s.db.WithContext(ctx).Where("terminology_id = ?", terminologyID).Order("id").Find(&rows).Error
	return rows, err
}

// APIPreferences returns the API preferences of a terminology.
func (s *Sink) APIPreferences(ctx context.Context, terminologyID string) ([]models.APIPreferenceRow, error) {
	var rows []models.APIPreferenceRow
	err := s.db.WithContext(ctx).Where("terminology_id = ?", terminologyID).
		Order("code").Order("api").
		Find(&rows).Error
	return rows, err
}

// UserInputs returns the user input of a terminology in insertion order.
func (s *Sink) UserInputs(ctx context.Context, terminologyID string) ([]models.UserInputRow, error) {
	var rows []models.UserInputRow
	err := s.db.WithContext(ctx).Where("terminology_id = ?", terminologyID).Order("id").Find(&rows).Error
	return rows, err
}
