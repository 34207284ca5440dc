package snapshot

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	gcs "cloud.google.com/go/storage"
	"github.com/minio/minio-go/v7"

	"termsync/core/storage"
)

// Location is a parsed snapshot address: a local path, s3://bucket/key or
// gs://bucket/key.
type Location struct {
	Scheme string
	Bucket string
	Key    string
	Path   string
}

func (l Location) String() string {
	if l.Scheme == "" {
		return l.Path
	}
	return l.Scheme + "://" + l.Bucket + "/" + l.Key
}

// ParseLocation parses a snapshot address.
func ParseLocation(raw string) (Location, error) {
	for _, scheme := range []string{"s3", "gs"} {
		rest, ok := strings.CutPrefix(raw, scheme+"://")
		if !ok {
			continue
		}
		bucket, key, _ := strings.Cut(rest, "/")
		if bucket == "" || key == "" {
			return Location{}, fmt.Errorf("snapshot location %q needs a bucket and a key", raw)
		}
		return Location{Scheme: scheme, Bucket: bucket, Key: key}, nil
	}
	if raw == "" {
		return Location{}, errors.New("empty snapshot location")
	}
	return Location{Path: raw}, nil
}

// Backends holds the clients used for remote locations. Either may be nil
// when that scheme is not configured.
type Backends struct {
	S3  storage.Client
	GCS *gcs.Client
}

// Save encodes snap and writes it to location.
func (b Backends) Save(ctx context.Context, location string, snap *Snapshot) error {
	loc, err := ParseLocation(location)
	if err != nil {
		return err
	}
	var buf bytes.Buffer
	if err := snap.Encode(&buf); err != nil {
		return err
	}

	switch loc.Scheme {
	case "s3":
		if b.S3 == nil {
			return fmt.Errorf("no S3 client configured for %s", loc)
		}
		_, err := b.S3.PutObject(ctx, loc.Bucket, loc.Key, bytes.NewReader(buf.Bytes()), int64(buf.Len()),
			minio.PutObjectOptions{ContentType: "application/json"})
		if err != nil {
			return fmt.Errorf("upload %s: %w", loc, err)
		}
		return nil
	case "gs":
		if b.GCS == nil {
			return fmt.Errorf("no GCS client configured for %s", loc)
		}
		w := b.GCS.Bucket(loc.Bucket).Object(loc.Key).NewWriter(ctx)
		w.ContentType = "application/json"
		if _, err := io.Copy(w, &buf); err != nil {
			_ = w.Close()
			return fmt.Errorf("upload %s: %w", loc, err)
		}
		if err := w.Close(); err != nil {
			return fmt.Errorf("upload %s: %w", loc, err)
		}
		return nil
	default:
		if dir := filepath.Dir(loc.Path); dir != "." {
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return err
			}
		}
		return os.WriteFile(loc.Path, buf.Bytes(), 0o644)
	}
}

// Load reads and decodes the snapshot at location.
func (b Backends) Load(ctx context.Context, location string) (*Snapshot, error) {
	loc, err := ParseLocation(location)
	if err != nil {
		return nil, err
	}

	var r io.ReadCloser
	switch loc.Scheme {
	case "s3":
		if b.S3 == nil {
			return nil, fmt.Errorf("no S3 client configured for %s", loc)
		}
		r, err = b.S3.GetObject(ctx, loc.Bucket, loc.Key, minio.GetObjectOptions{})
	case "gs":
		if b.GCS == nil {
			return nil, fmt.Errorf("no GCS client configured for %s", loc)
		}
		r, err = b.GCS.Bucket(loc.Bucket).Object(loc.Key).NewReader(ctx)
	default:
		r, err = os.Open(loc.Path)
	}
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", loc, err)
	}
	defer r.Close()
	return Decode(r)
}
