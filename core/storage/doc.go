// Package storage wraps the MinIO client behind a small interface used for
// S3-compatible buckets.
//
// termsync uses a bucket in two ways: as a document store (see
// core/docstore/objectstore), where each document is a JSON object, and as a
// destination for exported snapshots (see core/snapshot).
//
// The Client interface exists so both can be tested against the mock in
// core/storage/mocks.
//
//	client, err := storage.NewClient(cfg)
//	if err := storage.EnsureBucket(ctx, client, cfg.Bucket); err != nil { ... }
package storage
