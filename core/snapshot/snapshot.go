// Package snapshot reads and writes the portable JSON snapshot of a document
// store.
//
// A snapshot maps collection names to documents, and documents to their field
// maps. Subcollections are inlined into their parent's fields under the
// subcollection name; SubcollectionNames lists every such name so readers can
// tell an inlined subcollection from an ordinary map field:
//
//	{
//	  "collections": {
//	    "Terminology": {
//	      "T1": {"name": "One", "codes": {"A": {"display": "Alpha"}}}
//	    }
//	  },
//	  "subcollection_names": ["codes"]
//	}
//
// Older exports that nest subcollections under a "subcollections" field are
// read as well.
package snapshot

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"sort"

	"termsync/core/docstore"
)

// NestedField holds subcollections in the nested snapshot layout.
const NestedField = "subcollections"

// ErrMalformed is returned when a snapshot cannot be turned back into trees.
var ErrMalformed = errors.New("malformed snapshot")

// Snapshot is the portable representation of one or more root collections.
type Snapshot struct {
	Collections        map[string]map[string]docstore.Fields `json:"collections"`
	SubcollectionNames []string                              `json:"subcollection_names"`
}

// New returns an empty snapshot.
func New() *Snapshot {
	return &Snapshot{Collections: map[string]map[string]docstore.Fields{}, SubcollectionNames: []string{}}
}

// FromTrees inlines the given root collections.
func FromTrees(trees ...*docstore.Tree) *Snapshot {
	s := New()
	names := map[string]struct{}{}
	for _, t := range trees {
		s.Collections[t.Name] = inlineTree(t, names)
	}
	for name := range names {
		s.SubcollectionNames = append(s.SubcollectionNames, name)
	}
	sort.Strings(s.SubcollectionNames)
	return s
}

func inlineTree(t *docstore.Tree, names map[string]struct{}) map[string]docstore.Fields {
	out := make(map[string]docstore.Fields, len(t.Documents))
	for id, d := range t.Documents {
		fields := d.Fields.Clone()
		if fields == nil {
			fields = docstore.Fields{}
		}
		for name, sub := range d.Subcollections {
			names[name] = struct{}{}
			docs := inlineTree(sub, names)
			inner := make(docstore.Fields, len(docs))
			for childID, childFields := range docs {
				inner[childID] = docstore.Map(childFields)
			}
			fields[name] = docstore.Map(inner)
		}
		out[id] = fields
	}
	return out
}

// Trees expands the snapshot back into root collections, sorted by name.
func (s *Snapshot) Trees() ([]*docstore.Tree, error) {
	subNames := make(map[string]struct{}, len(s.SubcollectionNames))
	for _, n := range s.SubcollectionNames {
		subNames[n] = struct{}{}
	}
	names := make([]string, 0, len(s.Collections))
	for name := range s.Collections {
		names = append(names, name)
	}
	sort.Strings(names)

	trees := make([]*docstore.Tree, 0, len(names))
	for _, name := range names {
		t, err := expandTree(name, s.Collections[name], subNames)
		if err != nil {
			return nil, err
		}
		trees = append(trees, t)
	}
	return trees, nil
}

// Tree returns one expanded root collection.
func (s *Snapshot) Tree(name string) (*docstore.Tree, error) {
	docs, ok := s.Collections[name]
	if !ok {
		return docstore.NewTree(name), nil
	}
	subNames := make(map[string]struct{}, len(s.SubcollectionNames))
	for _, n := range s.SubcollectionNames {
		subNames[n] = struct{}{}
	}
	return expandTree(name, docs, subNames)
}

func expandTree(name string, docs map[string]docstore.Fields, subNames map[string]struct{}) (*docstore.Tree, error) {
	t := docstore.NewTree(name)
	for id, raw := range docs {
		if err := docstore.ValidateID(id); err != nil {
			return nil, fmt.Errorf("%w: %s: %v", ErrMalformed, name, err)
		}
		fields := docstore.Fields{}
		subs := map[string]docstore.Fields{}
		for key, v := range raw {
			if key == NestedField {
				nested, err := v.AsMap()
				if err != nil {
					return nil, fmt.Errorf("%w: %s/%s.%s: %v", ErrMalformed, name, id, key, err)
				}
				for subName, subVal := range nested {
					m, err := subVal.AsMap()
					if err != nil {
						return nil, fmt.Errorf("%w: %s/%s/%s: %v", ErrMalformed, name, id, subName, err)
					}
					subs[subName] = m
				}
				continue
			}
			if _, isSub := subNames[key]; isSub {
				if m, err := v.AsMap(); err == nil && allMaps(m) {
					subs[key] = m
					continue
				}
			}
			fields[key] = v
		}

		d := t.Put(id, fields)
		for subName, children := range subs {
			childDocs := make(map[string]docstore.Fields, len(children))
			for childID, cv := range children {
				cf, err := cv.AsMap()
				if err != nil {
					return nil, fmt.Errorf("%w: %s/%s/%s/%s: %v", ErrMalformed, name, id, subName, childID, err)
				}
				childDocs[childID] = cf
			}
			sub, err := expandTree(subName, childDocs, subNames)
			if err != nil {
				return nil, err
			}
			if d.Subcollections == nil {
				d.Subcollections = map[string]*docstore.Tree{}
			}
			d.Subcollections[subName] = sub
		}
	}
	return t, nil
}

func allMaps(f docstore.Fields) bool {
	for _, v := range f {
		if v.Kind() != docstore.KindMap {
			return false
		}
	}
	return true
}

// Count returns the number of documents in the snapshot, nested ones included.
func (s *Snapshot) Count() (int, error) {
	trees, err := s.Trees()
	if err != nil {
		return 0, err
	}
	n := 0
	for _, t := range trees {
		n += t.Count()
	}
	return n, nil
}

// Encode writes s as indented JSON.
func (s *Snapshot) Encode(w io.Writer) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	enc.SetEscapeHTML(false)
	return enc.Encode(s)
}

// Decode reads a snapshot.
func Decode(r io.Reader) (*Snapshot, error) {
	s := New()
	if err := json.NewDecoder(r).Decode(s); err != nil {
		return nil, fmt.Errorf("decode snapshot: %w", err)
	}
	if s.Collections == nil {
		s.Collections = map[string]map[string]docstore.Fields{}
	}
	return s, nil
}
