package backend_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"termsync/core/docstore"
	"termsync/core/docstore/backend"
	"termsync/core/docstore/badgerstore"
	"termsync/core/storage"
)

func TestOpenMemory(t *testing.T) {
	h, err := backend.Open(context.Background(), backend.Config{Backend: backend.Memory}, storage.Config{}, nil)
	require.NoError(t, err)
	defer h.Close()

	ctx := context.Background()
	require.NoError(t, h.SetDocument(ctx, docstore.Ref("Terminology", "T1"), docstore.Fields{}))
	cols, err := h.ListCollections(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"Terminology"}, cols)
}

func TestOpenBadgerInMemory(t *testing.T) {
	cfg := backend.Config{Backend: backend.Badger, Badger: badgerstore.Config{InMemory: true}}
	h, err := backend.Open(context.Background(), cfg, storage.Config{}, nil)
	require.NoError(t, err)
	assert.Equal(t, backend.Badger, h.Backend)
	assert.NoError(t, h.Close())
}

func TestOpenErrors(t *testing.T) {
	tests := []struct {
		name string
		cfg  backend.Config
		want string
	}{
		{"Unknown", backend.Config{Backend: "mongo"}, `unknown store backend "mongo"`},
		{"FirestoreWithoutProject", backend.Config{Backend: backend.Firestore}, "project id is required"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := backend.Open(context.Background(), tt.cfg, storage.Config{}, nil)
			assert.ErrorContains(t, err, tt.want)
		})
	}
}
