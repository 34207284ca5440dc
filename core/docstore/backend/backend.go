// Package backend opens the docstore.Store selected by configuration.
package backend

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"termsync/core/docstore"
	"termsync/core/docstore/badgerstore"
	"termsync/core/docstore/firestoredb"
	"termsync/core/docstore/memory"
	"termsync/core/docstore/objectstore"
	"termsync/core/storage"
)

const (
	Memory      = "memory"
	Badger      = "badger"
	ObjectStore = "objectstore"
	Firestore   = "firestore"
)

// Config selects and configures the document store.
type Config struct {
	// Backend is one of memory, badger, objectstore or firestore.
	Backend string `mapstructure:"backend" default:"firestore"`
	// Collection is the root collection holding terminology documents.
	Collection string `mapstructure:"collection" default:"Terminology"`
	// PageSize is the number of refs listed per store call.
	PageSize int `mapstructure:"page_size" default:"100"`
	// Prefix roots the objectstore backend inside the storage bucket.
	Prefix string `mapstructure:"prefix" default:"documents"`

	Badger    badgerstore.Config `mapstructure:"badger"`
	Firestore firestoredb.Config `mapstructure:"firestore"`
}

// Handle is an opened store.
type Handle struct {
	docstore.Store
	Backend string
	close   func() error
}

// Close releases the backend.
func (h *Handle) Close() error {
	if h.close == nil {
		return nil
	}
	return h.close()
}

// Open opens the backend named by cfg.Backend. The objectstore backend writes
// into s3.Bucket.
func Open(ctx context.Context, cfg Config, s3 storage.Config, log *zap.Logger) (*Handle, error) {
	if log == nil {
		log = zap.NewNop()
	}

	switch cfg.Backend {
	case Memory:
		return &Handle{Store: memory.New(), Backend: Memory}, nil

	case Badger:
		db, err := badgerstore.Open(cfg.Badger, log)
		if err != nil {
			return nil, err
		}
		return &Handle{Store: db, Backend: Badger, close: db.Close}, nil

	case ObjectStore:
		client, err := storage.NewClient(s3)
		if err != nil {
			return nil, fmt.Errorf("storage client: %w", err)
		}
		if err := storage.EnsureBucket(ctx, client, s3.Bucket); err != nil {
			return nil, err
		}
		return &Handle{Store: objectstore.New(client, s3.Bucket, cfg.Prefix), Backend: ObjectStore}, nil

	case Firestore:
		fs, err := firestoredb.Open(ctx, cfg.Firestore)
		if err != nil {
			return nil, err
		}
		return &Handle{Store: fs, Backend: Firestore, close: fs.Close}, nil
	}

	return nil, fmt.Errorf("unknown store backend %q", cfg.Backend)
}
