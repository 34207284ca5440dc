package snapshot_test

import (
	"bytes"
	"context"
	"errors"
	"io"
	"path/filepath"
	"strings"
	"testing"

	"github.com/minio/minio-go/v7"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"termsync/core/docstore"
	"termsync/core/docstore/memory"
	"termsync/core/metrics"
	"termsync/core/snapshot"
	"termsync/core/storage"
	"termsync/core/storage/mocks"
)

func sampleTree() *docstore.Tree {
	tree := docstore.NewTree("Terminology")
	t1 := tree.Put("T1", docstore.Fields{
		"name": docstore.String("One"),
		"meta": docstore.Map(docstore.Fields{"k": docstore.String("v")}),
	})
	t1.Subcollection("codes").Put("A", docstore.Fields{"display": docstore.String("Alpha")})
	m := t1.Subcollection("mappings").Put("A", docstore.Fields{"code": docstore.String("A")})
	m.Subcollection("notes").Put("n1", docstore.Fields{"text": docstore.String("hi")})
	return tree
}

func TestInlineAndExpand(t *testing.T) {
	snap := snapshot.FromTrees(sampleTree())
	assert.Equal(t, []string{"codes", "mappings", "notes"}, snap.SubcollectionNames)

	t1 := snap.Collections["Terminology"]["T1"]
	codes, err := t1["codes"].AsMap()
	require.NoError(t, err)
	assert.Contains(t, codes, "A")

	trees, err := snap.Trees()
	require.NoError(t, err)
	require.Len(t, trees, 1)
	assert.Equal(t, sampleTree().Count(), trees[0].Count())

	doc, ok := trees[0].Get("T1")
	require.True(t, ok)
	assert.Equal(t, []string{"codes", "mappings"}, doc.SubcollectionNames())
	_, isField := doc.Fields["meta"]
	assert.True(t, isField, "ordinary map fields stay fields")
	notes := doc.Subcollections["mappings"].Documents["A"].Subcollections["notes"]
	assert.Equal(t, []string{"n1"}, notes.IDs())
}

func TestNestedLayout(t *testing.T) {
	raw := `{
	  "collections": {
	    "Terminology": {
	      "T1": {
	        "name": "One",
	        "subcollections": {"provenance": {"self": {"changes": []}}}
	      }
	    }
	  },
	  "subcollection_names": []
	}`
	snap, err := snapshot.Decode(strings.NewReader(raw))
	require.NoError(t, err)
	tree, err := snap.Tree("Terminology")
	require.NoError(t, err)
	doc, ok := tree.Get("T1")
	require.True(t, ok)
	assert.Equal(t, []string{"provenance"}, doc.SubcollectionNames())
	_, leaked := doc.Fields["subcollections"]
	assert.False(t, leaked)
}

func TestMalformedSubcollection(t *testing.T) {
	raw := `{"collections":{"C":{"d":{"subcollections":"nope"}}},"subcollection_names":[]}`
	snap, err := snapshot.Decode(strings.NewReader(raw))
	require.NoError(t, err)
	_, err = snap.Trees()
	assert.ErrorIs(t, err, snapshot.ErrMalformed)
}

func TestEncodeDecode(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, snapshot.FromTrees(sampleTree()).Encode(&buf))
	snap, err := snapshot.Decode(&buf)
	require.NoError(t, err)
	n, err := snap.Count()
	require.NoError(t, err)
	assert.Equal(t, 4, n)
}

func TestExportImport(t *testing.T) {
	ctx := context.Background()
	src := memory.FromTrees(sampleTree())
	m := metrics.New()

	snap, err := snapshot.Export(ctx, src, nil, 2, m)
	require.NoError(t, err)
	assert.Contains(t, snap.Collections, "Terminology")

	dst := memory.New()
	rep, err := snapshot.Import(ctx, dst, snap, nil, m)
	require.NoError(t, err)
	assert.Equal(t, 4, rep.Documents)
	assert.Zero(t, rep.Failed)

	again, err := snapshot.Export(ctx, dst, []string{"Terminology"}, 10, nil)
	require.NoError(t, err)
	var a, b bytes.Buffer
	require.NoError(t, snap.Encode(&a))
	require.NoError(t, again.Encode(&b))
	assert.JSONEq(t, a.String(), b.String())
}

type failingStore struct {
	docstore.Store
	failID string
}

func (s failingStore) SetDocument(ctx context.Context, ref docstore.DocumentRef, f docstore.Fields) error {
	if ref.ID == s.failID {
		return &docstore.IOError{Op: "set", Path: ref.Path(), Err: errors.New("quota")}
	}
	return s.Store.SetDocument(ctx, ref, f)
}

func TestImportCountsFailures(t *testing.T) {
	ctx := context.Background()
	dst := failingStore{Store: memory.New(), failID: "A"}
	rep, err := snapshot.Import(ctx, dst, snapshot.FromTrees(sampleTree()), nil, nil)
	require.NoError(t, err)
	// mappings/A fails and takes notes/n1 with it; codes/A fails on its own.
	assert.Equal(t, 3, rep.Failed)
	assert.Equal(t, 1, rep.Documents)
	assert.Len(t, rep.Errors, 2)
}

func TestParseLocation(t *testing.T) {
	loc, err := snapshot.ParseLocation("s3://bucket/exports/a.json")
	require.NoError(t, err)
	assert.Equal(t, snapshot.Location{Scheme: "s3", Bucket: "bucket", Key: "exports/a.json"}, loc)
	assert.Equal(t, "s3://bucket/exports/a.json", loc.String())

	loc, err = snapshot.ParseLocation("./out.json")
	require.NoError(t, err)
	assert.Equal(t, "./out.json", loc.Path)

	_, err = snapshot.ParseLocation("gs://bucket")
	assert.Error(t, err)
	_, err = snapshot.ParseLocation("")
	assert.Error(t, err)
}

func TestFileLocation(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "nested", "snap.json")
	var b snapshot.Backends
	require.NoError(t, b.Save(ctx, path, snapshot.FromTrees(sampleTree())))

	snap, err := b.Load(ctx, path)
	require.NoError(t, err)
	n, err := snap.Count()
	require.NoError(t, err)
	assert.Equal(t, 4, n)
}

func TestS3Location(t *testing.T) {
	ctx := context.Background()
	var uploaded []byte
	client := new(mocks.Client)
	client.On("PutObject", ctx, "bucket", "snap.json", mock.Anything, mock.Anything, mock.Anything).
		Run(func(args mock.Arguments) {
			data, err := io.ReadAll(args.Get(3).(io.Reader))
			require.NoError(t, err)
			uploaded = data
		}).
		Return(minio.UploadInfo{}, nil)

	b := snapshot.Backends{S3: client}
	require.NoError(t, b.Save(ctx, "s3://bucket/snap.json", snapshot.FromTrees(sampleTree())))
	require.NotEmpty(t, uploaded)

	client.On("GetObject", ctx, "bucket", "snap.json", minio.GetObjectOptions{}).
		Return(io.NopCloser(bytes.NewReader(uploaded)), nil)
	snap, err := b.Load(ctx, "s3://bucket/snap.json")
	require.NoError(t, err)
	assert.Contains(t, snap.Collections, "Terminology")

	_, err = snapshot.Backends{}.Load(ctx, "gs://bucket/snap.json")
	assert.Error(t, err)
}

func TestOpenBackends(t *testing.T) {
	ctx := context.Background()

	b, closeFn, err := snapshot.OpenBackends(ctx, "out/a.json", snapshot.Config{}, storage.Config{})
	require.NoError(t, err)
	assert.Nil(t, b.S3)
	assert.Nil(t, b.GCS)
	assert.NoError(t, closeFn())

	b, closeFn, err = snapshot.OpenBackends(ctx, "s3://bucket/a.json", snapshot.Config{}, storage.Config{Endpoint: "localhost:9000"})
	require.NoError(t, err)
	assert.NotNil(t, b.S3)
	assert.NoError(t, closeFn())

	_, closeFn, err = snapshot.OpenBackends(ctx, "", snapshot.Config{}, storage.Config{})
	assert.Error(t, err)
	assert.NotNil(t, closeFn)
}

func TestExportLeavesOutDeletedSubtrees(t *testing.T) {
	ctx := context.Background()
	tree := sampleTree()
	tree.Put("T2", docstore.Fields{"name": docstore.String("Two")})
	src := memory.FromTrees(tree)
	require.NoError(t, src.DeleteDocument(ctx, docstore.Ref("Terminology", "T1")))

	snap, err := snapshot.Export(ctx, src, []string{"Terminology"}, 10, nil)
	require.NoError(t, err)
	n, err := snap.Count()
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.Contains(t, snap.Collections["Terminology"], "T2")
	assert.NotContains(t, snap.Collections["Terminology"], "T1")
}
