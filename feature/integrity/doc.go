// Package integrity provides operational health checks for termsync.
//
// # Checks Provided
//
//   - Empty: counts what is left under a document store collection, orphaned
//     subcollection documents included. Used after a bounded delete.
//   - Snapshots: lists the snapshot files in the storage bucket and can decode
//     each of them.
//   - Schema: validates that the relational sink tables carry every column the
//     loader writes.
//
// # HTTP Endpoints
//
//   - GET /integrity : Runs the schema and snapshot checks.
//   - GET /integrity/empty?collection= : Runs the emptiness check.
//   - GET /integrity/snapshots : Lists snapshots (supports ?validate=true).
//   - GET /integrity/schema : Runs the sink schema check.
package integrity
