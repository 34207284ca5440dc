package sink

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"termsync/core/database"
	"termsync/feature/terminology/models"
	"termsync/feature/terminology/reconstruct"
)

// Provenance actions written by the sink itself.
const (
	ActionCreate     = "create"
	ActionSetMapping = "set mapping"
)

// Sink is a relational reconstruct.DomainModel.
type Sink struct {
	db  *gorm.DB
	log *zap.Logger
	now func() time.Time
}

var _ reconstruct.DomainModel = (*Sink)(nil)

// New returns a sink over db. Call Migrate before first use.
func New(db *gorm.DB, log *zap.Logger) *Sink {
	if log == nil {
		log = zap.NewNop()
	}
	return &Sink{db: db, log: log, now: time.Now}
}

// Migrate creates or updates the sink tables.
func (s *Sink) Migrate(ctx context.Context) error {
	if err := s.db.WithContext(ctx).AutoMigrate(models.Tables()...); err != nil {
		return fmt.Errorf("migrate sink tables: %w", err)
	}
	return nil
}

// Reset drops every sink table and recreates it empty.
func (s *Sink) Reset(ctx context.Context) error {
	if err := s.db.WithContext(ctx).Migrator().DropTable(models.Tables()...); err != nil {
		return fmt.Errorf("drop sink tables: %w", err)
	}
	s.log.Warn("Sink tables dropped")
	return s.Migrate(ctx)
}

// MissingColumns reports, per table, the expected columns the database lacks.
func (s *Sink) MissingColumns(ctx context.Context) (map[string][]string, error) {
	out := map[string][]string{}
	for table, cols := range models.ExpectedColumns() {
		missing, err := database.MissingColumns(s.db.WithContext(ctx), table, cols)
		if err != nil {
			return nil, err
		}
		if len(missing) > 0 {
			out[table] = missing
		}
	}
	return out, nil
}

func (s *Sink) timestamp(ts string) string {
	if ts != "" {
		return ts
	}
	return s.now().UTC().Format(time.RFC3339)
}

// CreateOrReplaceTerminology upserts t. A newly created terminology gets a
// "self" provenance entry.
func (s *Sink) CreateOrReplaceTerminology(ctx context.Context, t models.Terminology) error {
	if t.ID == "" {
		return errors.New("terminology id is required")
	}
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var count int64
		if err := tx.Model(&models.TerminologyRow{}).Where("id = ?", t.ID).Count(&count).Error; err != nil {
			return err
		}

		row := models.TerminologyRow{
			ID:                     t.ID,
			Name:                   t.Name,
			Description:            t.Description,
			URL:                    t.URL,
			PreferredTerminologies: datatypes.JSONSlice[string](nonNil(t.PreferredTerminologies)),
		}
		err := tx.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "id"}},
			DoUpdates: clause.AssignmentColumns([]string{"name", "description", "url", "preferred_terminologies", "updated_at"}),
		}).Create(&row).Error
		if err != nil {
			return fmt.Errorf("upsert terminology %s: %w", t.ID, err)
		}

		if count == 0 {
			return tx.Create(&models.ProvenanceRow{
				TerminologyID: t.ID,
				Target:        models.Self,
				Action:        ActionCreate,
				Editor:        reconstruct.SystemEditor,
				Timestamp:     s.timestamp(""),
				NewValue:      datatypes.JSON("null"),
				OldValue:      datatypes.JSON("null"),
			}).Error
		}
		return nil
	})
}

func (s *Sink) terminologyExists(ctx context.Context, id string) error {
	var count int64
	if err := s.db.WithContext(ctx).Model(&models.TerminologyRow{}).Where("id = ?", id).Count(&count).Error; err != nil {
		return err
	}
	if count == 0 {
		return fmt.Errorf("terminology %s: %w", id, gorm.ErrRecordNotFound)
	}
	return nil
}

// AttachCode upserts a code of an existing terminology.
func (s *Sink) AttachCode(ctx context.Context, terminologyID string, c models.Code) error {
	if err := s.terminologyExists(ctx, terminologyID); err != nil {
		return err
	}
	row := models.CodeRow{
		TerminologyID: terminologyID,
		Code:          c.Code,
		Display:       c.Display,
		Description:   c.Description,
		System:        c.System,
	}
	return s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "terminology_id"}, {Name: "code"}},
		DoUpdates: clause.AssignmentColumns([]string{"display", "description", "system"}),
	}).Create(&row).Error
}

// SetMapping replaces the targets of sourceCode and logs the change as
// provenance attributed to by.
func (s *Sink) SetMapping(ctx context.Context, terminologyID, sourceCode string, targets []models.CodeRef, by reconstruct.Attribution) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var count int64
		err := tx.Model(&models.CodeRow{}).
			Where("terminology_id = ? AND code = ?", terminologyID, sourceCode).
			Count(&count).Error
		if err != nil {
			return err
		}
		if count == 0 {
			return fmt.Errorf("%w: %s/%s", reconstruct.ErrCodeNotPresent, terminologyID, sourceCode)
		}

		err = tx.Where("terminology_id = ? AND source_code = ?", terminologyID, sourceCode).
			Delete(&models.MappingRow{}).Error
		if err != nil {
			return err
		}

		editor := by.Editor
		if editor == "" {
			editor = reconstruct.SystemEditor
		}
		rows := make([]models.MappingRow, 0, len(targets))
		codes := make([]string, 0, len(targets))
		for _, t := range targets {
			rows = append(rows, models.MappingRow{
				TerminologyID: terminologyID,
				SourceCode:    sourceCode,
				TargetCode:    t.Code,
				Display:       t.Display,
				System:        t.System,
				Description:   t.Description,
				Editor:        editor,
				Timestamp:     by.Timestamp,
			})
			codes = append(codes, t.Code)
		}
		if len(rows) > 0 {
			if err := tx.Create(&rows).Error; err != nil {
				return err
			}
		}

		newValue, err := json.Marshal(codes)
		if err != nil {
			return err
		}
		return tx.Create(&models.ProvenanceRow{
			TerminologyID: terminologyID,
			Target:        sourceCode,
			Action:        ActionSetMapping,
			Editor:        editor,
			Timestamp:     s.timestamp(by.Timestamp),
			NewValue:      datatypes.JSON(newValue),
			OldValue:      datatypes.JSON("null"),
		}).Error
	})
}

// AddProvenance stores change exactly as given.
func (s *Sink) AddProvenance(ctx context.Context, terminologyID string, change models.ProvenanceChange) error {
	newValue, err := json.Marshal(change.NewValue)
	if err != nil {
		return err
	}
	oldValue, err := json.Marshal(change.OldValue)
	if err != nil {
		return err
	}
	return s.db.WithContext(ctx).Create(&models.ProvenanceRow{
		TerminologyID: terminologyID,
		Target:        change.Target,
		Action:        change.Action,
		Editor:        change.Editor,
		Timestamp:     change.Timestamp,
		NewValue:      datatypes.JSON(newValue),
		OldValue:      datatypes.JSON(oldValue),
	}).Error
}

// FindProvenance lists the provenance entries of a terminology in insertion
// order.
func (s *Sink) FindProvenance(ctx context.Context, terminologyID string) ([]reconstruct.StoredProvenance, error) {
	var rows []models.ProvenanceRow
	err := s.db.WithContext(ctx).Select("id", "target").
		Where("terminology_id = ?", terminologyID).
		Order("id").
		Find(&rows).Error
	if err != nil {
		return nil, err
	}
	out := make([]reconstruct.StoredProvenance, 0, len(rows))
	for _, r := range rows {
		out = append(out, reconstruct.StoredProvenance{ID: strconv.FormatUint(uint64(r.ID), 10), Target: r.Target})
	}
	return out, nil
}

// DeleteProvenance removes one provenance entry.
func (s *Sink) DeleteProvenance(ctx context.Context, terminologyID, id string) error {
	n, err := strconv.ParseUint(id, 10, 64)
	if err != nil {
		return fmt.Errorf("provenance id %q: %w", id, err)
	}
	return s.db.WithContext(ctx).
		Where("id = ? AND terminology_id = ?", n, terminologyID).
		Delete(&models.ProvenanceRow{}).Error
}

// AddAPIPreference sets the ontologies preferred on api.
func (s *Sink) AddAPIPreference(ctx context.Context, terminologyID, code, api string, ontologies []string) error {
	row := models.APIPreferenceRow{
		TerminologyID: terminologyID,
		Code:          code,
		API:           api,
		Ontologies:    datatypes.JSONSlice[string](nonNil(ontologies)),
	}
	return s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "terminology_id"}, {Name: "code"}, {Name: "api"}},
		DoUpdates: clause.AssignmentColumns([]string{"ontologies"}),
	}).Create(&row).Error
}

// RecordUserInput stores a vote or a comment. A vote replaces the earlier
// vote of the same editor on the same mapping. Distinct comments accumulate;
// a comment already stored is kept as is.
func (s *Sink) RecordUserInput(ctx context.Context, terminologyID, code, targetCode string, in models.UserInput) error {
	row := models.UserInputRow{
		TerminologyID: terminologyID,
		Code:          code,
		MappedCode:    targetCode,
		Kind:          string(in.Kind),
		Value:         in.Value,
		Editor:        in.Editor,
		Timestamp:     in.Timestamp,
	}
	if in.Kind != models.KindVote {
		// A comment is identified by everything it carries, so replaying it
		// finds the stored row instead of adding a copy.
		return s.db.WithContext(ctx).Where(map[string]any{
			"terminology_id": terminologyID,
			"code":           code,
			"mapped_code":    targetCode,
			"kind":           row.Kind,
			"editor":         in.Editor,
			"timestamp":      in.Timestamp,
			"value":          in.Value,
		}).FirstOrCreate(&row).Error
	}
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		err := tx.Where("terminology_id = ? AND code = ? AND mapped_code = ? AND kind = ? AND editor = ?",
			terminologyID, code, targetCode, row.Kind, in.Editor).
			Delete(&models.UserInputRow{}).Error
		if err != nil {
			return err
		}
		return tx.Create(&row).Error
	})
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
