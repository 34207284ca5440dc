// Package config loads termsync configuration.
//
// Values come from the environment, optionally seeded from a .env file, with
// defaults declared in `default:"..."` struct tags. Nested keys map to
// environment variables by replacing dots with underscores, so
// store.firestore.project_id is read from STORE_FIRESTORE_PROJECT_ID.
//
// # Configuration Structure
//
//   - Server: HTTP port and API key
//   - Storage: S3/MinIO credentials and bucket
//   - Log: level and format
//   - Database: relational sink (mysql, postgres, sqlite)
//   - Store: document store backend and its settings
//   - Deletion: batch size and time budgets
//   - Snapshot: default location, GCS credentials, API cache TTL
//   - Redis: run lock
//   - Metrics, Tracing: optional exports
//
// # Usage
//
//	cfg, err := config.LoadConfig(".")
//	if err != nil {
//	    return err
//	}
//	fmt.Println(cfg.Store.Backend)
package config
