package models

import (
	"time"

	"gorm.io/datatypes"
)

// TerminologyRow is the 'terminologies' table.
type TerminologyRow struct {
	ID                     string                      `gorm:"column:id;primaryKey;size:191"`
	Name                   string                      `gorm:"column:name"`
	Description            string                      `gorm:"column:description"`
	URL                    string                      `gorm:"column:url"`
	PreferredTerminologies datatypes.JSONSlice[string] `gorm:"column:preferred_terminologies"`
	CreatedAt              time.Time                   `gorm:"column:created_at"`
	UpdatedAt              time.Time                   `gorm:"column:updated_at"`
}

// TableName overrides the table name.
func (TerminologyRow) TableName() string { return "terminologies" }

// CodeRow is the 'codes' table.
type CodeRow struct {
	TerminologyID string `gorm:"column:terminology_id;primaryKey;size:191"`
	Code          string `gorm:"column:code;primaryKey;size:191"`
	Display       string `gorm:"column:display"`
	Description   string `gorm:"column:description"`
	System        string `gorm:"column:system"`
}

// TableName overrides the table name.
func (CodeRow) TableName() string { return "codes" }

// MappingRow is the 'mappings' table: one row per source -> target edge.
type MappingRow struct {
	ID            uint   `gorm:"column:id;primaryKey;autoIncrement"`
	TerminologyID string `gorm:"column:terminology_id;size:191;index:idx_mapping_source"`
	SourceCode    string `gorm:"column:source_code;size:191;index:idx_mapping_source"`
	TargetCode    string `gorm:"column:target_code"`
	Display       string `gorm:"column:display"`
	System        string `gorm:"column:system"`
	Description   string `gorm:"column:description"`
	Editor        string `gorm:"column:editor"`
	Timestamp     string `gorm:"column:timestamp"`
}

// TableName overrides the table name.
func (MappingRow) TableName() string { return "mappings" }

// ProvenanceRow is the 'provenance' table.
type ProvenanceRow struct {
	ID            uint           `gorm:"column:id;primaryKey;autoIncrement"`
	TerminologyID string         `gorm:"column:terminology_id;size:191;index"`
	Target        string         `gorm:"column:target"`
	Action        string         `gorm:"column:action"`
	Editor        string         `gorm:"column:editor"`
	Timestamp     string         `gorm:"column:timestamp"`
	NewValue      datatypes.JSON `gorm:"column:new_value"`
	OldValue      datatypes.JSON `gorm:"column:old_value"`
}

// TableName overrides the table name.
func (ProvenanceRow) TableName() string { return "provenance" }

// APIPreferenceRow is the 'api_preferences' table.
type APIPreferenceRow struct {
	TerminologyID string                      `gorm:"column:terminology_id;primaryKey;size:191"`
	Code          string                      `gorm:"column:code;primaryKey;size:191"`
	API           string                      `gorm:"column:api;primaryKey;size:191"`
	Ontologies    datatypes.JSONSlice[string] `gorm:"column:ontologies"`
}

// TableName overrides the table name.
func (APIPreferenceRow) TableName() string { return "api_preferences" }

// UserInputRow is the 'user_inputs' table.
type UserInputRow struct {
	ID            uint   `gorm:"column:id;primaryKey;autoIncrement"`
	TerminologyID string `gorm:"column:terminology_id;size:191;index:idx_user_input_edge"`
	Code          string `gorm:"column:code;size:191;index:idx_user_input_edge"`
	MappedCode    string `gorm:"column:mapped_code;size:191;index:idx_user_input_edge"`
	Kind          string `gorm:"column:kind;size:64"`
	Value         string `gorm:"column:value"`
	Editor        string `gorm:"column:editor;size:191"`
	Timestamp     string `gorm:"column:timestamp"`
}

// TableName overrides the table name.
func (UserInputRow) TableName() string { return "user_inputs" }

// Tables lists every sink table model in creation order.
func Tables() []any {
	return []any{
		&TerminologyRow{},
		&CodeRow{},
		&MappingRow{},
		&ProvenanceRow{},
		&APIPreferenceRow{},
		&UserInputRow{},
	}
}

// ExpectedColumns lists the columns each sink table must have.
func ExpectedColumns() map[string][]string {
	return map[string][]string{
		"terminologies":   {"id", "name", "description", "url", "preferred_terminologies"},
		"codes":           {"terminology_id", "code", "display", "description", "system"},
		"mappings":        {"id", "terminology_id", "source_code", "target_code", "display", "system", "description", "editor", "timestamp"},
		"provenance":      {"id", "terminology_id", "target", "action", "editor", "timestamp", "new_value", "old_value"},
		"api_preferences": {"terminology_id", "code", "api", "ontologies"},
		"user_inputs":     {"id", "terminology_id", "code", "mapped_code", "kind", "value", "editor", "timestamp"},
	}
}
