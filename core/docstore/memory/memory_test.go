package memory_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"termsync/core/docstore"
	"termsync/core/docstore/memory"
)

func TestSetAndGet(t *testing.T) {
	ctx := context.Background()
	s := memory.New()
	ref := docstore.Ref("Terminology", "T1")
	require.NoError(t, s.SetDocument(ctx, ref, docstore.Fields{"name": docstore.String("One")}))

	doc, err := s.GetDocument(ctx, ref)
	require.NoError(t, err)
	assert.Equal(t, "T1", doc.ID)
	name, err := doc.Fields["name"].AsString()
	require.NoError(t, err)
	assert.Equal(t, "One", name)

	_, err = s.GetDocument(ctx, docstore.Ref("Terminology", "missing"))
	assert.ErrorIs(t, err, docstore.ErrNotFound)
}

func TestSetRejectsSlashInID(t *testing.T) {
	s := memory.New()
	err := s.SetDocument(context.Background(), docstore.Ref("Terminology", "a/b"), nil)
	assert.ErrorIs(t, err, docstore.ErrInvalidPath)
}

func TestListDocumentsPaging(t *testing.T) {
	ctx := context.Background()
	s := memory.New()
	for _, id := range []string{"c", "a", "b", "d"} {
		require.NoError(t, s.SetDocument(ctx, docstore.Ref("X", id), nil))
	}

	page, err := s.ListDocuments(ctx, "X", "", 2)
	require.NoError(t, err)
	require.Len(t, page, 2)
	assert.Equal(t, "a", page[0].ID)
	assert.Equal(t, "b", page[1].ID)

	page, err = s.ListDocuments(ctx, "X", "b", 10)
	require.NoError(t, err)
	require.Len(t, page, 2)
	assert.Equal(t, "c", page[0].ID)
	assert.Equal(t, "d", page[1].ID)
}

func TestDeleteKeepsSubcollections(t *testing.T) {
	ctx := context.Background()
	s := memory.New()
	parent := docstore.Ref("Terminology", "T1")
	require.NoError(t, s.SetDocument(ctx, parent, nil))
	require.NoError(t, s.SetDocument(ctx, docstore.Ref(parent.Child("codes"), "A"), nil))

	require.NoError(t, s.DeleteDocument(ctx, parent))

	refs, err := s.ListDocuments(ctx, "Terminology", "", 10)
	require.NoError(t, err)
	assert.Equal(t, []docstore.DocumentRef{parent}, refs)
	_, err = s.GetDocument(ctx, parent)
	assert.ErrorIs(t, err, docstore.ErrNotFound)

	subs, err := s.ListSubcollections(ctx, parent)
	require.NoError(t, err)
	assert.Equal(t, []string{"codes"}, subs)

	n, err := s.CountDescendants(ctx, "Terminology")
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	require.NoError(t, s.DeleteDocument(ctx, docstore.Ref(parent.Child("codes"), "A")))
	n, err = s.CountDescendants(ctx, "Terminology")
	require.NoError(t, err)
	assert.Zero(t, n)

	refs, err = s.ListDocuments(ctx, "Terminology", "", 10)
	require.NoError(t, err)
	assert.Empty(t, refs)

	colls, err := s.ListCollections(ctx)
	require.NoError(t, err)
	assert.Empty(t, colls)
}

func TestDeleteMissingIsNoop(t *testing.T) {
	s := memory.New()
	assert.NoError(t, s.DeleteDocument(context.Background(), docstore.Ref("Nope", "x")))
}

func TestTreeRoundTrip(t *testing.T) {
	tree := docstore.NewTree("Terminology")
	d := tree.Put("T1", docstore.Fields{"name": docstore.String("One")})
	d.Subcollection("codes").Put("A", docstore.Fields{"display": docstore.String("Alpha")})

	s := memory.FromTrees(tree)
	out := s.Tree("Terminology")
	assert.Equal(t, 2, out.Count())
	got, ok := out.Get("T1")
	require.True(t, ok)
	assert.True(t, got.Fields.Equal(d.Fields))
	assert.Equal(t, []string{"codes"}, got.SubcollectionNames())
}

func TestCanceledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := memory.New().ListCollections(ctx)
	assert.ErrorIs(t, err, context.Canceled)
}
