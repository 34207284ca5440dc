package docstore

import (
	"context"
	"errors"
)

// Store is the document store capability used by the walker, the deleter and
// snapshot import/export.
//
// Implementations must be safe for concurrent use. ListDocuments and
// ListSubcollections return results in ascending order. DeleteDocument removes
// a single document and leaves its subcollections in place; deleting a
// missing document is not an error.
//
// A document deleted while its subcollections survive is "missing". Stores
// that can enumerate missing documents (memory, firestore) keep listing them
// in ListDocuments while GetDocument reports ErrNotFound, so the walker and
// the deleter can still reach their subtrees. Stores that cannot implement
// DescendantCounter instead, so verification still sees what is left.
type Store interface {
	ListCollections(ctx context.Context) ([]string, error)
	ListDocuments(ctx context.Context, collection, startAfter string, limit int) ([]DocumentRef, error)
	GetDocument(ctx context.Context, ref DocumentRef) (*Document, error)
	ListSubcollections(ctx context.Context, ref DocumentRef) ([]string, error)
	DeleteDocument(ctx context.Context, ref DocumentRef) error
	SetDocument(ctx context.Context, ref DocumentRef, fields Fields) error
}

// DescendantCounter is implemented by stores that can count every document
// stored under a collection path, including documents whose ancestors have
// already been deleted.
type DescendantCounter interface {
	CountDescendants(ctx context.Context, collection string) (int, error)
}

// Done is returned by RefIterator.Next when the collection is exhausted.
var Done = errors.New("no more documents")

// RefIterator pages through the document refs of one collection.
type RefIterator struct {
	store      Store
	collection string
	pageSize   int
	page       []DocumentRef
	pos        int
	last       string
	exhausted  bool
}

// Documents returns an iterator over collection, fetching pageSize refs per
// store call.
func Documents(store Store, collection string, pageSize int) *RefIterator {
	if pageSize <= 0 {
		pageSize = 100
	}
	return &RefIterator{store: store, collection: collection, pageSize: pageSize}
}

// Next returns the next ref, or Done.
func (it *RefIterator) Next(ctx context.Context) (DocumentRef, error) {
	if it.pos < len(it.page) {
		ref := it.page[it.pos]
		it.pos++
		return ref, nil
	}
	if it.exhausted {
		return DocumentRef{}, Done
	}
	if err := ctx.Err(); err != nil {
		return DocumentRef{}, err
	}
	page, err := it.store.ListDocuments(ctx, it.collection, it.last, it.pageSize)
	if err != nil {
		return DocumentRef{}, err
	}
	if len(page) < it.pageSize {
		it.exhausted = true
	}
	if len(page) == 0 {
		return DocumentRef{}, Done
	}
	it.page = page
	it.pos = 1
	it.last = page[len(page)-1].ID
	return page[0], nil
}

// All drains the iterator.
func (it *RefIterator) All(ctx context.Context) ([]DocumentRef, error) {
	var out []DocumentRef
	for {
		ref, err := it.Next(ctx)
		if errors.Is(err, Done) {
			return out, nil
		}
		if err != nil {
			return out, err
		}
		out = append(out, ref)
	}
}

// Load reads a whole collection, with its subcollections, into a Tree.
func Load(ctx context.Context, store Store, collection string, pageSize int) (*Tree, error) {
	tree := NewTree(CollectionName(collection))
	it := Documents(store, collection, pageSize)
	for {
		ref, err := it.Next(ctx)
		if errors.Is(err, Done) {
			return tree, nil
		}
		if err != nil {
			return nil, err
		}
		doc, err := store.GetDocument(ctx, ref)
		if errors.Is(err, ErrNotFound) {
			continue
		}
		if err != nil {
			return nil, err
		}
		node := tree.Put(ref.ID, doc.Fields)
		subs, err := store.ListSubcollections(ctx, ref)
		if err != nil {
			return nil, err
		}
		for _, name := range subs {
			sub, err := Load(ctx, store, ref.Child(name), pageSize)
			if err != nil {
				return nil, err
			}
			if node.Subcollections == nil {
				node.Subcollections = map[string]*Tree{}
			}
			node.Subcollections[name] = sub
		}
	}
}

// Save writes a Tree into store under collection, recursively.
func Save(ctx context.Context, store Store, collection string, tree *Tree) error {
	for _, id := range tree.IDs() {
		doc := tree.Documents[id]
		ref := Ref(collection, id)
		if err := store.SetDocument(ctx, ref, doc.Fields); err != nil {
			return err
		}
		for _, name := range doc.SubcollectionNames() {
			if err := Save(ctx, store, ref.Child(name), doc.Subcollections[name]); err != nil {
				return err
			}
		}
	}
	return nil
}
