// Package badgerstore implements docstore.Store on an embedded BadgerDB.
//
// Every document is one key: "doc:" + collection path + "\x00" + id, holding
// the JSON-encoded fields. Ordered key iteration gives paging and
// subcollection discovery without secondary indexes. Deleting a document
// removes its key only, so descendants stay reachable until deleted.
package badgerstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"sort"
	"strings"

	"github.com/dgraph-io/badger/v4"
	"go.uber.org/zap"

	"termsync/core/docstore"
)

const keyPrefix = "doc:"

// Config configures the embedded database.
type Config struct {
	Path       string `mapstructure:"path" default:"./data/badger"`
	InMemory   bool   `mapstructure:"in_memory" default:"false"`
	SyncWrites bool   `mapstructure:"sync_writes" default:"true"`
}

// Store is a docstore.Store backed by BadgerDB.
type Store struct {
	db *badger.DB
}

var (
	_ docstore.Store             = (*Store)(nil)
	_ docstore.DescendantCounter = (*Store)(nil)
)

type zapLogger struct {
	log *zap.SugaredLogger
}

func (l zapLogger) Errorf(format string, args ...interface{})   { l.log.Errorf(format, args...) }
func (l zapLogger) Warningf(format string, args ...interface{}) { l.log.Warnf(format, args...) }
func (l zapLogger) Infof(format string, args ...interface{})    { l.log.Debugf(format, args...) }
func (l zapLogger) Debugf(format string, args ...interface{})   { l.log.Debugf(format, args...) }

// Open opens the database described by cfg. A nil logger silences badger.
func Open(cfg Config, log *zap.Logger) (*Store, error) {
	var opts badger.Options
	if cfg.InMemory {
		opts = badger.DefaultOptions("").WithInMemory(true)
	} else {
		if cfg.Path == "" {
			return nil, errors.New("badger path is required for a persistent store")
		}
		if err := os.MkdirAll(cfg.Path, 0o750); err != nil {
			return nil, fmt.Errorf("create badger directory %s: %w", cfg.Path, err)
		}
		opts = badger.DefaultOptions(cfg.Path)
	}
	opts = opts.WithSyncWrites(cfg.SyncWrites).WithNumVersionsToKeep(1)
	if log != nil {
		opts = opts.WithLogger(zapLogger{log: log.Named("badger").Sugar()})
	} else {
		opts = opts.WithLogger(nil)
	}
	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open badger database: %w", err)
	}
	return &Store{db: db}, nil
}

// Close releases the database.
func (s *Store) Close() error {
	return s.db.Close()
}

func docKey(ref docstore.DocumentRef) []byte {
	return []byte(keyPrefix + ref.Collection + "\x00" + ref.ID)
}

func collectionPrefix(collection string) []byte {
	return []byte(keyPrefix + collection + "\x00")
}

func (s *Store) ListCollections(ctx context.Context) ([]string, error) {
	seen := map[string]struct{}{}
	err := s.scanKeys(ctx, []byte(keyPrefix), nil, func(rest string) bool {
		end := strings.IndexAny(rest, "/\x00")
		if end > 0 {
			seen[rest[:end]] = struct{}{}
		}
		return true
	})
	if err != nil {
		return nil, docstore.WrapIO("list collections", "", err)
	}
	return sortedKeys(seen), nil
}

func (s *Store) ListDocuments(ctx context.Context, collection, startAfter string, limit int) ([]docstore.DocumentRef, error) {
	prefix := collectionPrefix(collection)
	var seek []byte
	if startAfter != "" {
		seek = append(append([]byte{}, prefix...), startAfter+"\x00"...)
	}
	var out []docstore.DocumentRef
	err := s.scanKeys(ctx, prefix, seek, func(id string) bool {
		out = append(out, docstore.Ref(collection, id))
		return limit <= 0 || len(out) < limit
	})
	if err != nil {
		return nil, docstore.WrapIO("list documents", collection, err)
	}
	return out, nil
}

func (s *Store) GetDocument(ctx context.Context, ref docstore.DocumentRef) (*docstore.Document, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	var fields docstore.Fields
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(docKey(ref))
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			return json.Unmarshal(val, &fields)
		})
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, docstore.NotFound(ref.Path())
	}
	if err != nil {
		return nil, docstore.WrapIO("get", ref.Path(), err)
	}
	if fields == nil {
		fields = docstore.Fields{}
	}
	return &docstore.Document{ID: ref.ID, Fields: fields}, nil
}

func (s *Store) ListSubcollections(ctx context.Context, ref docstore.DocumentRef) ([]string, error) {
	seen := map[string]struct{}{}
	err := s.scanKeys(ctx, []byte(keyPrefix+ref.Path()+"/"), nil, func(rest string) bool {
		end := strings.IndexAny(rest, "/\x00")
		if end > 0 {
			seen[rest[:end]] = struct{}{}
		}
		return true
	})
	if err != nil {
		return nil, docstore.WrapIO("list subcollections", ref.Path(), err)
	}
	return sortedKeys(seen), nil
}

func (s *Store) DeleteDocument(ctx context.Context, ref docstore.DocumentRef) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	err := s.db.Update(func(txn *badger.Txn) error {
		return txn.Delete(docKey(ref))
	})
	return docstore.WrapIO("delete", ref.Path(), err)
}

func (s *Store) SetDocument(ctx context.Context, ref docstore.DocumentRef, fields docstore.Fields) error {
	if err := ctx.Err(); err != nil {
		return err
	}
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
	err = s.db.Update(func(txn *badger.Txn) error {
		return txn.Set(docKey(ref), data)
	})
	return docstore.WrapIO("set", ref.Path(), err)
}

// CountDescendants counts the documents of collection and of every
// subcollection below it.
func (s *Store) CountDescendants(ctx context.Context, collection string) (int, error) {
	n := 0
	count := func(string) bool { n++; return true }
	if err := s.scanKeys(ctx, collectionPrefix(collection), nil, count); err != nil {
		return 0, docstore.WrapIO("count", collection, err)
	}
	if err := s.scanKeys(ctx, []byte(keyPrefix+collection+"/"), nil, count); err != nil {
		return 0, docstore.WrapIO("count", collection, err)
	}
	return n, nil
}

// scanKeys visits keys under prefix in order, starting at seek when set, and
// passes the key remainder after prefix to fn until fn returns false.
func (s *Store) scanKeys(ctx context.Context, prefix, seek []byte, fn func(rest string) bool) error {
	return s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		opts.Prefix = prefix
		it := txn.NewIterator(opts)
		defer it.Close()

		start := prefix
		if seek != nil {
			start = seek
		}
		for it.Seek(start); it.ValidForPrefix(prefix); it.Next() {
			if err := ctx.Err(); err != nil {
				return err
			}
			key := it.Item().Key()
			if !fn(string(key[len(prefix):])) {
				return nil
			}
		}
		return nil
	})
}

func sortedKeys(set map[string]struct{}) []string {
	out := make([]string, 0, len(set))
	for k := range set {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
