package snapshot

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"termsync/core/docstore"
	"termsync/core/metrics"
	"termsync/core/walker"
)

// Export walks the given root collections of store into a snapshot. With no
// collections every root collection is exported.
func Export(ctx context.Context, store docstore.Store, collections []string, pageSize int, m *metrics.Metrics) (*Snapshot, error) {
	if len(collections) == 0 {
		var err error
		collections, err = store.ListCollections(ctx)
		if err != nil {
			return nil, err
		}
	}
	trees := make([]*docstore.Tree, 0, len(collections))
	total := 0
	for _, name := range collections {
		t, n, err := collect(ctx, store, name, pageSize)
		if err != nil {
			return nil, fmt.Errorf("export %s: %w", name, err)
		}
		trees = append(trees, t)
		total += n
	}
	m.AddSnapshotDocuments("export", total)
	return FromTrees(trees...), nil
}

// collect rebuilds a collection as a Tree from walk entries. Parents are
// always yielded before their children, so every child finds its parent.
// Subtrees of deleted documents are left out.
func collect(ctx context.Context, store docstore.Store, root string, pageSize int) (*docstore.Tree, int, error) {
	tree := docstore.NewTree(docstore.CollectionName(root))
	trees := map[string]*docstore.Tree{root: tree}
	docs := map[string]*docstore.Document{}
	// Documents below a deleted document have no parent to inline into.
	skipped := map[string]bool{}
	n := 0
	err := walker.Walk(ctx, store, root, func(e walker.Entry) error {
		if e.Missing {
			skipped[e.Ref.Path()] = true
			return nil
		}
		t, ok := trees[e.Ref.Collection]
		if !ok {
			parentRef, _ := docstore.Parent(e.Ref.Collection)
			if skipped[parentRef.Path()] {
				skipped[e.Ref.Path()] = true
				return nil
			}
			parent, ok := docs[parentRef.Path()]
			if !ok {
				return fmt.Errorf("%s visited before its parent", e.Ref.Path())
			}
			t = parent.Subcollection(docstore.CollectionName(e.Ref.Collection))
			trees[e.Ref.Collection] = t
		}
		docs[e.Ref.Path()] = t.Put(e.Ref.ID, e.Fields)
		n++
		return nil
	}, walker.WithPageSize(pageSize))
	return tree, n, err
}

// ImportReport summarises an import.
type ImportReport struct {
	Documents int      `json:"documents"`
	Failed    int      `json:"failed"`
	Errors    []string `json:"errors,omitempty"`
}

// Import writes every document of snap into store. A failed write is logged
// and counted together with the descendants it makes unreachable; the import
// continues with the next document. Only cancellation and malformed
// snapshots abort.
func Import(ctx context.Context, store docstore.Store, snap *Snapshot, log *zap.Logger, m *metrics.Metrics) (ImportReport, error) {
	if log == nil {
		log = zap.NewNop()
	}
	var rep ImportReport
	trees, err := snap.Trees()
	if err != nil {
		return rep, err
	}
	for _, t := range trees {
		if err := importTree(ctx, store, t.Name, t, log, &rep); err != nil {
			m.AddSnapshotDocuments("import", rep.Documents)
			return rep, err
		}
	}
	m.AddSnapshotDocuments("import", rep.Documents)
	return rep, nil
}

type frame struct {
	collection string
	tree       *docstore.Tree
}

func importTree(ctx context.Context, store docstore.Store, collection string, root *docstore.Tree, log *zap.Logger, rep *ImportReport) error {
	stack := []frame{{collection: collection, tree: root}}
	for len(stack) > 0 {
		f := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		for _, id := range f.tree.IDs() {
			if err := ctx.Err(); err != nil {
				return err
			}
			doc := f.tree.Documents[id]
			ref := docstore.Ref(f.collection, id)
			if err := store.SetDocument(ctx, ref, doc.Fields); err != nil {
				if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
					return err
				}
				skipped := 0
				for _, sub := range doc.Subcollections {
					skipped += sub.Count()
				}
				log.Warn("Failed to import document",
					zap.String("document", ref.Path()), zap.Int("skipped_descendants", skipped), zap.Error(err))
				rep.Failed += 1 + skipped
				rep.Errors = append(rep.Errors, fmt.Sprintf("%s: %v", ref.Path(), err))
				continue
			}
			rep.Documents++
			for _, name := range doc.SubcollectionNames() {
				stack = append(stack, frame{collection: ref.Child(name), tree: doc.Subcollections[name]})
			}
		}
	}
	return nil
}
