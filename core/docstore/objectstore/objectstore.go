// Package objectstore implements docstore.Store on an S3-compatible bucket.
//
// A document at C/id is stored as the object "<prefix>C/id.json"; its
// subcollections live under "<prefix>C/id/". Listing is non-recursive, so
// ListDocuments and ListSubcollections read one directory level at a time.
package objectstore

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/minio/minio-go/v7"

	"termsync/core/docstore"
	"termsync/core/storage"
)

const docSuffix = ".json"

// Store is a docstore.Store over a storage.Client bucket.
type Store struct {
	client storage.Client
	bucket string
	prefix string
}

var (
	_ docstore.Store             = (*Store)(nil)
	_ docstore.DescendantCounter = (*Store)(nil)
)

// New returns a store rooted at prefix inside bucket.
func New(client storage.Client, bucket, prefix string) *Store {
	if prefix != "" && !strings.HasSuffix(prefix, "/") {
		prefix += "/"
	}
	return &Store{client: client, bucket: bucket, prefix: prefix}
}

func (s *Store) objectName(ref docstore.DocumentRef) string {
	return s.prefix + ref.Path() + docSuffix
}

// list returns the entries directly under dir. Keys ending in "/" are common
// prefixes.
func (s *Store) list(ctx context.Context, dir, startAfter string, recursive bool, fn func(key string) bool) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	opts := minio.ListObjectsOptions{Prefix: dir, Recursive: recursive, StartAfter: startAfter}
	for obj := range s.client.ListObjects(ctx, s.bucket, opts) {
		if obj.Err != nil {
			return obj.Err
		}
		if !fn(strings.TrimPrefix(obj.Key, dir)) {
			return nil
		}
	}
	return ctx.Err()
}

func (s *Store) ListCollections(ctx context.Context) ([]string, error) {
	var out []string
	err := s.list(ctx, s.prefix, "", false, func(key string) bool {
		if name, ok := strings.CutSuffix(key, "/"); ok && name != "" {
			out = append(out, name)
		}
		return true
	})
	if err != nil {
		return nil, docstore.WrapIO("list collections", s.prefix, err)
	}
	sort.Strings(out)
	return out, nil
}

func (s *Store) ListDocuments(ctx context.Context, collection, startAfter string, limit int) ([]docstore.DocumentRef, error) {
	dir := s.prefix + collection + "/"
	after := ""
	if startAfter != "" {
		after = dir + startAfter + docSuffix
	}
	var out []docstore.DocumentRef
	err := s.list(ctx, dir, after, false, func(key string) bool {
		id, ok := strings.CutSuffix(key, docSuffix)
		if !ok || id == "" || strings.Contains(id, "/") {
			return true
		}
		out = append(out, docstore.Ref(collection, id))
		return limit <= 0 || len(out) < limit
	})
	if err != nil {
		return nil, docstore.WrapIO("list documents", collection, err)
	}
	return out, nil
}

func (s *Store) GetDocument(ctx context.Context, ref docstore.DocumentRef) (*docstore.Document, error) {
	obj, err := s.client.GetObject(ctx, s.bucket, s.objectName(ref), minio.GetObjectOptions{})
	if err != nil {
		if storage.IsNotFound(err) {
			return nil, docstore.NotFound(ref.Path())
		}
		return nil, docstore.WrapIO("get", ref.Path(), err)
	}
	defer obj.Close()

	data, err := io.ReadAll(obj)
	if err != nil {
		if storage.IsNotFound(err) {
			return nil, docstore.NotFound(ref.Path())
		}
		return nil, docstore.WrapIO("get", ref.Path(), err)
	}
	fields := docstore.Fields{}
	if len(data) > 0 {
		if err := json.Unmarshal(data, &fields); err != nil {
			return nil, docstore.WrapIO("decode", ref.Path(), err)
		}
	}
	return &docstore.Document{ID: ref.ID, Fields: fields}, nil
}

func (s *Store) ListSubcollections(ctx context.Context, ref docstore.DocumentRef) ([]string, error) {
	var out []string
	err := s.list(ctx, s.prefix+ref.Path()+"/", "", false, func(key string) bool {
		if name, ok := strings.CutSuffix(key, "/"); ok && name != "" {
			out = append(out, name)
		}
		return true
	})
	if err != nil {
		return nil, docstore.WrapIO("list subcollections", ref.Path(), err)
	}
	sort.Strings(out)
	return out, nil
}

func (s *Store) DeleteDocument(ctx context.Context, ref docstore.DocumentRef) error {
	err := s.client.RemoveObject(ctx, s.bucket, s.objectName(ref), minio.RemoveObjectOptions{})
	if storage.IsNotFound(err) {
		return nil
	}
	return docstore.WrapIO("delete", ref.Path(), err)
}

func (s *Store) SetDocument(ctx context.Context, ref docstore.DocumentRef, fields docstore.Fields) error {
	if err := docstore.ValidateID(ref.ID); err != nil {
		return err
	}
	if err := docstore.ValidateCollection(ref.Collection); err != nil {
		return err
	}
	if fields == nil {
		fields = docstore.Fields{}
	}
	data, err := json.Marshal(fields)
	if err != nil {
		return fmt.Errorf("encode %s: %w", ref.Path(), err)
	}
	_, err = s.client.PutObject(ctx, s.bucket, s.objectName(ref), bytes.NewReader(data), int64(len(data)),
		minio.PutObjectOptions{ContentType: "application/json"})
	return docstore.WrapIO("set", ref.Path(), err)
}

// CountDescendants counts every document object under collection.
func (s *Store) CountDescendants(ctx context.Context, collection string) (int, error) {
	n := 0
	err := s.list(ctx, s.prefix+collection+"/", "", true, func(key string) bool {
		if strings.HasSuffix(key, docSuffix) {
			n++
		}
		return true
	})
	if err != nil {
		return 0, docstore.WrapIO("count", collection, err)
	}
	return n, nil
}
