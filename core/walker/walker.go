// Package walker traverses a document store subtree depth first.
//
// The walk is lazy: documents are fetched one at a time and collections are
// paged, so a subtree never has to fit in memory. An explicit stack replaces
// call recursion, which keeps deep trees off the goroutine stack. A document
// is always yielded before anything in its subcollections.
package walker

import (
	"context"
	"errors"
	"fmt"

	"termsync/core/docstore"
)

// Entry is one visited document.
type Entry struct {
	Ref            docstore.DocumentRef
	Fields         docstore.Fields
	Subcollections []string
	// Depth is 0 for documents of the root collection, 1 for documents of
	// their subcollections, and so on.
	Depth int
	// Missing marks a document that was deleted while its subcollections
	// survived. It has no fields.
	Missing bool
}

// Done is returned by Next when the walk is complete.
var Done = docstore.Done

type frame struct {
	it         *docstore.RefIterator
	collection string
	depth      int
}

// Walker is a single-use iterator over a subtree. It is not safe for
// concurrent use.
type Walker struct {
	store    docstore.Store
	pageSize int
	maxDepth int
	stack    []frame
}

// Option configures a Walker.
type Option func(*Walker)

// WithPageSize sets how many refs are listed per store call.
func WithPageSize(n int) Option {
	return func(w *Walker) {
		if n > 0 {
			w.pageSize = n
		}
	}
}

// WithMaxDepth stops descending below depth n. Negative means unlimited.
func WithMaxDepth(n int) Option {
	return func(w *Walker) { w.maxDepth = n }
}

// New returns a walker over root. root may be any collection path.
func New(store docstore.Store, root string, opts ...Option) *Walker {
	w := &Walker{store: store, pageSize: 100, maxDepth: -1}
	for _, opt := range opts {
		opt(w)
	}
	w.push(root, 0)
	return w
}

func (w *Walker) push(collection string, depth int) {
	w.stack = append(w.stack, frame{it: docstore.Documents(w.store, collection, w.pageSize), collection: collection, depth: depth})
}

// Next returns the next document, or Done. A listed document that no longer
// exists is yielded with Missing set while it still owns subcollections, and
// skipped otherwise.
func (w *Walker) Next(ctx context.Context) (Entry, error) {
	for len(w.stack) > 0 {
		if err := ctx.Err(); err != nil {
			return Entry{}, err
		}
		top := w.stack[len(w.stack)-1]
		ref, err := top.it.Next(ctx)
		if errors.Is(err, docstore.Done) {
			w.stack = w.stack[:len(w.stack)-1]
			continue
		}
		if err != nil {
			return Entry{}, fmt.Errorf("list %s: %w", top.collection, err)
		}

		doc, err := w.store.GetDocument(ctx, ref)
		missing := errors.Is(err, docstore.ErrNotFound)
		if err != nil && !missing {
			return Entry{}, err
		}
		subs, err := w.store.ListSubcollections(ctx, ref)
		if errors.Is(err, docstore.ErrNotFound) {
			continue
		}
		if err != nil {
			return Entry{}, err
		}
		if missing && len(subs) == 0 {
			continue
		}

		if w.maxDepth < 0 || top.depth < w.maxDepth {
			for i := len(subs) - 1; i >= 0; i-- {
				w.push(ref.Child(subs[i]), top.depth+1)
			}
		}
		if missing {
			return Entry{Ref: ref, Subcollections: subs, Depth: top.depth, Missing: true}, nil
		}
		return Entry{Ref: ref, Fields: doc.Fields, Subcollections: subs, Depth: top.depth}, nil
	}
	return Entry{}, Done
}

// Walk calls fn for every document under root, in walk order. It stops at the
// first error from the store or from fn.
func Walk(ctx context.Context, store docstore.Store, root string, fn func(Entry) error, opts ...Option) error {
	w := New(store, root, opts...)
	for {
		e, err := w.Next(ctx)
		if errors.Is(err, Done) {
			return nil
		}
		if err != nil {
			return err
		}
		if err := fn(e); err != nil {
			return err
		}
	}
}
