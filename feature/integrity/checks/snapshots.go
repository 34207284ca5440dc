package checks

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/minio/minio-go/v7"

	"termsync/core/snapshot"
	"termsync/core/storage"
)

// SnapshotObject is one snapshot file in the bucket.
type SnapshotObject struct {
	Key          string    `json:"key"`
	Size         int64     `json:"size"`
	LastModified time.Time `json:"last_modified"`
}

// ListSnapshots returns the .json objects under prefix, sorted by key.
func ListSnapshots(ctx context.Context, client storage.Client, bucket, prefix string) ([]SnapshotObject, error) {
	exists, err := client.BucketExists(ctx, bucket)
	if err != nil {
		return nil, fmt.Errorf("failed to check bucket existence: %w", err)
	}
	if !exists {
		return nil, fmt.Errorf("bucket %s does not exist", bucket)
	}

	if prefix != "" && !strings.HasSuffix(prefix, "/") {
		prefix += "/"
	}
	opts := minio.ListObjectsOptions{Prefix: prefix, Recursive: true}

	out := []SnapshotObject{}
	for obj := range client.ListObjects(ctx, bucket, opts) {
		if obj.Err != nil {
			return nil, fmt.Errorf("list %s/%s: %w", bucket, prefix, obj.Err)
		}
		if !strings.HasSuffix(obj.Key, ".json") {
			continue
		}
		out = append(out, SnapshotObject{Key: obj.Key, Size: obj.Size, LastModified: obj.LastModified})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key < out[j].Key })
	return out, nil
}

// SnapshotReport is the result of decoding one snapshot object.
type SnapshotReport struct {
	Key         string   `json:"key"`
	Status      string   `json:"status"` // "ok", "error"
	Collections []string `json:"collections,omitempty"`
	Documents   int      `json:"documents"`
	Error       string   `json:"error,omitempty"`
}

// ValidateSnapshot downloads key and checks that it decodes and expands.
func ValidateSnapshot(ctx context.Context, client storage.Client, bucket, key string) SnapshotReport {
	rep := SnapshotReport{Key: key, Status: "error"}

	r, err := client.GetObject(ctx, bucket, key, minio.GetObjectOptions{})
	if err != nil {
		rep.Error = err.Error()
		return rep
	}
	defer r.Close()

	snap, err := snapshot.Decode(r)
	if err != nil {
		rep.Error = err.Error()
		return rep
	}
	n, err := snap.Count()
	if err != nil {
		rep.Error = err.Error()
		return rep
	}
	for name := range snap.Collections {
		rep.Collections = append(rep.Collections, name)
	}
	sort.Strings(rep.Collections)
	rep.Documents = n
	rep.Status = "ok"
	return rep
}
