package database

import (
	"fmt"
	"strings"

	"gorm.io/gorm"
)

// ColumnInfo describes one table column.
type ColumnInfo struct {
	Field string
	Type  string
}

// GetTableColumns retrieves the column names and types of tableName. A missing
// table yields no columns.
func GetTableColumns(db *gorm.DB, tableName string) ([]ColumnInfo, error) {
	var columns []ColumnInfo
	switch db.Dialector.Name() {
	case "sqlite":
		type sqliteColumn struct {
			Name string
			Type string
		}
		var rows []sqliteColumn
		if err := db.Raw(fmt.Sprintf("PRAGMA table_info('%s')", tableName)).Scan(&rows).Error; err != nil {
			return nil, fmt.Errorf("failed to get columns for table %s: %w", tableName, err)
		}
		for _, r := range rows {
			columns = append(columns, ColumnInfo{Field: r.Name, Type: r.Type})
		}
	default:
		// information_schema is shared by mysql and postgres.
		query := db.Raw(
			"SELECT column_name AS field, data_type AS type FROM information_schema.columns WHERE table_name = ? ORDER BY ordinal_position",
			tableName,
		)
		if err := query.Scan(&columns).Error; err != nil {
			return nil, fmt.Errorf("failed to get columns for table %s: %w", tableName, err)
		}
	}
	for i := range columns {
		columns[i].Field = strings.ToLower(columns[i].Field)
		columns[i].Type = strings.ToLower(columns[i].Type)
	}
	return columns, nil
}

// MissingColumns returns the expected columns tableName lacks.
func MissingColumns(db *gorm.DB, tableName string, expected []string) ([]string, error) {
	cols, err := GetTableColumns(db, tableName)
	if err != nil {
		return nil, err
	}
	have := make(map[string]struct{}, len(cols))
	for _, c := range cols {
		have[c.Field] = struct{}{}
	}
	var missing []string
	for _, want := range expected {
		if _, ok := have[strings.ToLower(want)]; !ok {
			missing = append(missing, want)
		}
	}
	return missing, nil
}
