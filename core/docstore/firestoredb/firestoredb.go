// Package firestoredb implements docstore.Store on Google Cloud Firestore,
// the store terminology data is hosted in.
package firestoredb

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"math"
	"sort"
	"strings"
	"time"

	"cloud.google.com/go/firestore"
	"google.golang.org/api/iterator"
	"google.golang.org/api/option"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"termsync/core/docstore"
)

// Config selects the Firestore project and database.
type Config struct {
	ProjectID       string `mapstructure:"project_id" default:""`
	Database        string `mapstructure:"database" default:"(default)"`
	CredentialsFile string `mapstructure:"credentials_file" default:""`
}

// Store is a docstore.Store backed by a Firestore client.
type Store struct {
	client *firestore.Client
}

var _ docstore.Store = (*Store)(nil)

// Open connects to Firestore. Credentials fall back to the environment's
// application default credentials when CredentialsFile is empty.
func Open(ctx context.Context, cfg Config) (*Store, error) {
	if cfg.ProjectID == "" {
		return nil, errors.New("firestore project id is required")
	}
	var opts []option.ClientOption
	if cfg.CredentialsFile != "" {
		opts = append(opts, option.WithCredentialsFile(cfg.CredentialsFile))
	}
	database := cfg.Database
	if database == "" {
		database = firestore.DefaultDatabaseID
	}
	client, err := firestore.NewClientWithDatabase(ctx, cfg.ProjectID, database, opts...)
	if err != nil {
		return nil, fmt.Errorf("firestore client: %w", err)
	}
	return &Store{client: client}, nil
}

// Close releases the client.
func (s *Store) Close() error {
	return s.client.Close()
}

func isNotFound(err error) bool {
	return status.Code(err) == codes.NotFound
}

func (s *Store) ListCollections(ctx context.Context) ([]string, error) {
	it := s.client.Collections(ctx)
	var out []string
	for {
		col, err := it.Next()
		if errors.Is(err, iterator.Done) {
			break
		}
		if err != nil {
			return nil, docstore.WrapIO("list collections", "", err)
		}
		out = append(out, col.ID)
	}
	sort.Strings(out)
	return out, nil
}

// ListDocuments pages over DocumentRefs, which also returns missing
// documents: ids deleted while their subcollections survived. Queries never
// return those, so a query-based listing would hide orphaned subtrees from
// deletion and verification. DocumentRefs has no id cursor, so the page is
// cut here.
func (s *Store) ListDocuments(ctx context.Context, collection, startAfter string, limit int) ([]docstore.DocumentRef, error) {
	it := s.client.Collection(collection).DocumentRefs(ctx)
	var ids []string
	for {
		ref, err := it.Next()
		if errors.Is(err, iterator.Done) {
			break
		}
		if err != nil {
			return nil, docstore.WrapIO("list documents", collection, err)
		}
		if ref.ID > startAfter {
			ids = append(ids, ref.ID)
		}
	}
	return pageRefs(collection, ids, limit), nil
}

func pageRefs(collection string, ids []string, limit int) []docstore.DocumentRef {
	sort.Strings(ids)
	if limit > 0 && len(ids) > limit {
		ids = ids[:limit]
	}
	out := make([]docstore.DocumentRef, len(ids))
	for i, id := range ids {
		out[i] = docstore.Ref(collection, id)
	}
	return out
}

func (s *Store) GetDocument(ctx context.Context, ref docstore.DocumentRef) (*docstore.Document, error) {
	snap, err := s.client.Doc(ref.Path()).Get(ctx)
	if isNotFound(err) {
		return nil, docstore.NotFound(ref.Path())
	}
	if err != nil {
		return nil, docstore.WrapIO("get", ref.Path(), err)
	}
	fields, err := docstore.FieldsFromMap(normalizeMap(snap.Data()))
	if err != nil {
		return nil, docstore.WrapIO("decode", ref.Path(), err)
	}
	return &docstore.Document{ID: ref.ID, Fields: fields}, nil
}

func (s *Store) ListSubcollections(ctx context.Context, ref docstore.DocumentRef) ([]string, error) {
	it := s.client.Doc(ref.Path()).Collections(ctx)
	var out []string
	for {
		col, err := it.Next()
		if errors.Is(err, iterator.Done) {
			break
		}
		if err != nil {
			return nil, docstore.WrapIO("list subcollections", ref.Path(), err)
		}
		out = append(out, col.ID)
	}
	sort.Strings(out)
	return out, nil
}

func (s *Store) DeleteDocument(ctx context.Context, ref docstore.DocumentRef) error {
	_, err := s.client.Doc(ref.Path()).Delete(ctx)
	if isNotFound(err) {
		return nil
	}
	return docstore.WrapIO("delete", ref.Path(), err)
}

func (s *Store) SetDocument(ctx context.Context, ref docstore.DocumentRef, fields docstore.Fields) error {
	if err := docstore.ValidateID(ref.ID); err != nil {
		return err
	}
	_, err := s.client.Doc(ref.Path()).Set(ctx, toFirestore(fields))
	return docstore.WrapIO("set", ref.Path(), err)
}

// normalizeMap rewrites SDK-specific values into plain data FromAny accepts.
func normalizeMap(m map[string]interface{}) map[string]any {
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = normalize(v)
	}
	return out
}

func normalize(v interface{}) any {
	switch t := v.(type) {
	case *firestore.DocumentRef:
		if t == nil {
			return nil
		}
		if i := strings.Index(t.Path, "/documents/"); i >= 0 {
			return t.Path[i+len("/documents/"):]
		}
		return t.Path
	case []byte:
		return base64.StdEncoding.EncodeToString(t)
	case time.Time:
		return t.UTC().Format(time.RFC3339Nano)
	case []interface{}:
		out := make([]any, len(t))
		for i, item := range t {
			out[i] = normalize(item)
		}
		return out
	case map[string]interface{}:
		return normalizeMap(t)
	case nil, string, bool, int64, float64:
		return t
	default:
		return fmt.Sprint(t)
	}
}

// toFirestore converts fields for writing. Integral numbers are written as
// integers so counters and timestamps keep their stored type.
func toFirestore(f docstore.Fields) map[string]interface{} {
	out := make(map[string]interface{}, len(f))
	for k, v := range f {
		out[k] = toValue(v)
	}
	return out
}

func toValue(v docstore.Value) interface{} {
	switch v.Kind() {
	case docstore.KindNumber:
		n, _ := v.AsNumber()
		if n == math.Trunc(n) && math.Abs(n) < 1<<53 {
			return int64(n)
		}
		return n
	case docstore.KindList:
		items, _ := v.AsList()
		out := make([]interface{}, len(items))
		for i, item := range items {
			out[i] = toValue(item)
		}
		return out
	case docstore.KindMap:
		m, _ := v.AsMap()
		return toFirestore(m)
	default:
		return v.Any()
	}
}
