// Package database opens the GORM connection used by the terminology domain
// model.
//
// MySQL and PostgreSQL serve shared deployments; SQLite serves local runs and
// tests. Connect pings before returning, so a bad configuration fails at
// startup instead of on the first write.
//
// The inspector reads column definitions back from the live schema; the
// integrity feature uses it to confirm the domain tables match the models.
//
//	db, err := database.Connect(cfg.Database)
//	missing, err := database.MissingColumns(db, "codes", []string{"code_id", "display"})
package database
