// Package memory implements docstore.Store on in-process maps.
//
// Deleting a document keeps its subcollections reachable, as hosted document
// stores do: the document keeps being listed as missing, GetDocument reports
// it not found, and its descendants survive until they are deleted
// themselves.
package memory

import (
	"context"
	"sort"
	"strings"
	"sync"

	"termsync/core/docstore"
)

type node struct {
	fields docstore.Fields
	exists bool
	subs   map[string]*collection
}

type collection struct {
	docs map[string]*node
}

func newCollection() *collection {
	return &collection{docs: map[string]*node{}}
}

func (c *collection) count() int {
	n := 0
	for _, d := range c.docs {
		if d.exists {
			n++
		}
		for _, sub := range d.subs {
			n += sub.count()
		}
	}
	return n
}

// listed reports whether n shows up in its collection's listing: it exists,
// or it was deleted while documents below it survived.
func (n *node) listed() bool {
	if n.exists {
		return true
	}
	for _, sub := range n.subs {
		if sub.count() > 0 {
			return true
		}
	}
	return false
}

// Store is a concurrency-safe in-memory document store.
type Store struct {
	mu    sync.RWMutex
	roots map[string]*collection
}

var (
	_ docstore.Store             = (*Store)(nil)
	_ docstore.DescendantCounter = (*Store)(nil)
)

// New returns an empty store.
func New() *Store {
	return &Store{roots: map[string]*collection{}}
}

// FromTrees returns a store seeded with the given root collections.
func FromTrees(trees ...*docstore.Tree) *Store {
	s := New()
	for _, t := range trees {
		s.roots[t.Name] = fromTree(t)
	}
	return s
}

func fromTree(t *docstore.Tree) *collection {
	c := newCollection()
	for id, d := range t.Documents {
		n := &node{fields: d.Fields.Clone(), exists: true}
		for name, sub := range d.Subcollections {
			if n.subs == nil {
				n.subs = map[string]*collection{}
			}
			n.subs[name] = fromTree(sub)
		}
		c.docs[id] = n
	}
	return c
}

// resolve walks a collection path. With create set, missing segments are
// created as non-existent placeholder documents.
func (s *Store) resolve(path string, create bool) (*collection, error) {
	if err := docstore.ValidateCollection(path); err != nil {
		return nil, err
	}
	segs := strings.Split(path, "/")
	c, ok := s.roots[segs[0]]
	if !ok {
		if !create {
			return nil, nil
		}
		c = newCollection()
		s.roots[segs[0]] = c
	}
	for i := 1; i+1 < len(segs); i += 2 {
		d, ok := c.docs[segs[i]]
		if !ok {
			if !create {
				return nil, nil
			}
			d = &node{}
			c.docs[segs[i]] = d
		}
		sub, ok := d.subs[segs[i+1]]
		if !ok {
			if !create {
				return nil, nil
			}
			if d.subs == nil {
				d.subs = map[string]*collection{}
			}
			sub = newCollection()
			d.subs[segs[i+1]] = sub
		}
		c = sub
	}
	return c, nil
}

func (s *Store) lookup(ref docstore.DocumentRef) (*node, error) {
	c, err := s.resolve(ref.Collection, false)
	if err != nil || c == nil {
		return nil, err
	}
	return c.docs[ref.ID], nil
}

func (s *Store) ListCollections(ctx context.Context) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]string, 0, len(s.roots))
	for name, c := range s.roots {
		if c.count() > 0 {
			out = append(out, name)
		}
	}
	sort.Strings(out)
	return out, nil
}

func (s *Store) ListDocuments(ctx context.Context, coll, startAfter string, limit int) ([]docstore.DocumentRef, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, err := s.resolve(coll, false)
	if err != nil || c == nil {
		return nil, err
	}
	ids := make([]string, 0, len(c.docs))
	for id, d := range c.docs {
		if d.listed() && id > startAfter {
			ids = append(ids, id)
		}
	}
	sort.Strings(ids)
	if limit > 0 && len(ids) > limit {
		ids = ids[:limit]
	}
	out := make([]docstore.DocumentRef, len(ids))
	for i, id := range ids {
		out[i] = docstore.Ref(coll, id)
	}
	return out, nil
}

func (s *Store) GetDocument(ctx context.Context, ref docstore.DocumentRef) (*docstore.Document, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	n, err := s.lookup(ref)
	if err != nil {
		return nil, err
	}
	if n == nil || !n.exists {
		return nil, docstore.NotFound(ref.Path())
	}
	return &docstore.Document{ID: ref.ID, Fields: n.fields.Clone()}, nil
}

func (s *Store) ListSubcollections(ctx context.Context, ref docstore.DocumentRef) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	n, err := s.lookup(ref)
	if err != nil || n == nil {
		return nil, err
	}
	var out []string
	for name, sub := range n.subs {
		if sub.count() > 0 {
			out = append(out, name)
		}
	}
	sort.Strings(out)
	return out, nil
}

func (s *Store) DeleteDocument(ctx context.Context, ref docstore.DocumentRef) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	c, err := s.resolve(ref.Collection, false)
	if err != nil || c == nil {
		return err
	}
	n, ok := c.docs[ref.ID]
	if !ok {
		return nil
	}
	n.exists = false
	n.fields = nil
	for name, sub := range n.subs {
		if sub.count() == 0 {
			delete(n.subs, name)
		}
	}
	if len(n.subs) == 0 {
		delete(c.docs, ref.ID)
	}
	return nil
}

func (s *Store) SetDocument(ctx context.Context, ref docstore.DocumentRef, fields docstore.Fields) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := docstore.ValidateID(ref.ID); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	c, err := s.resolve(ref.Collection, true)
	if err != nil {
		return err
	}
	n, ok := c.docs[ref.ID]
	if !ok {
		n = &node{}
		c.docs[ref.ID] = n
	}
	if fields == nil {
		fields = docstore.Fields{}
	}
	n.fields = fields.Clone()
	n.exists = true
	return nil
}

// CountDescendants counts every stored document under collection, including
// documents below deleted ancestors.
func (s *Store) CountDescendants(ctx context.Context, coll string) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, err := s.resolve(coll, false)
	if err != nil || c == nil {
		return 0, err
	}
	return c.count(), nil
}

// Tree materialises a root collection, skipping documents that only exist as
// ancestors of surviving subcollections.
func (s *Store) Tree(name string) *docstore.Tree {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.roots[name]
	if !ok {
		return docstore.NewTree(name)
	}
	return toTree(name, c)
}

func toTree(name string, c *collection) *docstore.Tree {
	t := docstore.NewTree(name)
	for id, n := range c.docs {
		if !n.exists {
			continue
		}
		d := t.Put(id, n.fields.Clone())
		for subName, sub := range n.subs {
			if sub.count() == 0 {
				continue
			}
			if d.Subcollections == nil {
				d.Subcollections = map[string]*docstore.Tree{}
			}
			d.Subcollections[subName] = toTree(subName, sub)
		}
	}
	return t
}
