package docstore

import "sort"

// Tree is a materialised collection: documents with their own subcollections.
// Trees are used to stage data in memory and to describe snapshots.
type Tree struct {
	Name      string
	Documents map[string]*Document
}

// Document is one document, optionally with subcollections.
type Document struct {
	ID             string
	Fields         Fields
	Subcollections map[string]*Tree
}

// NewTree returns an empty tree.
func NewTree(name string) *Tree {
	return &Tree{Name: name, Documents: map[string]*Document{}}
}

// Put inserts or replaces a document and returns it.
func (t *Tree) Put(id string, fields Fields) *Document {
	if t.Documents == nil {
		t.Documents = map[string]*Document{}
	}
	if fields == nil {
		fields = Fields{}
	}
	d, ok := t.Documents[id]
	if !ok {
		d = &Document{ID: id}
		t.Documents[id] = d
	}
	d.Fields = fields
	return d
}

// Get returns a document by id.
func (t *Tree) Get(id string) (*Document, bool) {
	d, ok := t.Documents[id]
	return d, ok
}

// IDs returns the document ids in sorted order.
func (t *Tree) IDs() []string {
	out := make([]string, 0, len(t.Documents))
	for id := range t.Documents {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}

// Count returns the number of documents in t, including nested ones.
func (t *Tree) Count() int {
	if t == nil {
		return 0
	}
	n := 0
	for _, d := range t.Documents {
		n++
		for _, sub := range d.Subcollections {
			n += sub.Count()
		}
	}
	return n
}

// Clone returns a deep copy of t.
func (t *Tree) Clone() *Tree {
	if t == nil {
		return nil
	}
	out := NewTree(t.Name)
	for id, d := range t.Documents {
		out.Documents[id] = d.Clone()
	}
	return out
}

// Subcollection returns the named subcollection, creating it when missing.
func (d *Document) Subcollection(name string) *Tree {
	if d.Subcollections == nil {
		d.Subcollections = map[string]*Tree{}
	}
	t, ok := d.Subcollections[name]
	if !ok {
		t = NewTree(name)
		d.Subcollections[name] = t
	}
	return t
}

// SubcollectionNames returns subcollection names in sorted order.
func (d *Document) SubcollectionNames() []string {
	out := make([]string, 0, len(d.Subcollections))
	for name := range d.Subcollections {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

// Clone returns a deep copy of d.
func (d *Document) Clone() *Document {
	out := &Document{ID: d.ID, Fields: d.Fields.Clone()}
	if len(d.Subcollections) > 0 {
		out.Subcollections = make(map[string]*Tree, len(d.Subcollections))
		for name, sub := range d.Subcollections {
			out.Subcollections[name] = sub.Clone()
		}
	}
	return out
}
