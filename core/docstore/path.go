package docstore

import (
	"fmt"
	"strings"
)

// DocumentRef addresses a single document by collection path and id.
type DocumentRef struct {
	Collection string
	ID         string
}

// Ref builds a DocumentRef.
func Ref(collection, id string) DocumentRef {
	return DocumentRef{Collection: collection, ID: id}
}

// Path returns the full document path.
func (r DocumentRef) Path() string {
	return r.Collection + "/" + r.ID
}

// Child returns the collection path of the named subcollection.
func (r DocumentRef) Child(name string) string {
	return r.Path() + "/" + name
}

func (r DocumentRef) String() string {
	return r.Path()
}

// ValidateID rejects ids that cannot be stored as a single path segment.
func ValidateID(id string) error {
	if id == "" {
		return fmt.Errorf("%w: empty document id", ErrInvalidPath)
	}
	if strings.Contains(id, "/") {
		return fmt.Errorf("%w: document id %q contains '/'", ErrInvalidPath, id)
	}
	return nil
}

// ValidateCollection checks that path names a collection: an odd number of
// non-empty segments.
func ValidateCollection(path string) error {
	segs := strings.Split(path, "/")
	if len(segs)%2 == 0 {
		return fmt.Errorf("%w: %q is not a collection path", ErrInvalidPath, path)
	}
	for _, s := range segs {
		if s == "" {
			return fmt.Errorf("%w: %q has an empty segment", ErrInvalidPath, path)
		}
	}
	return nil
}

// CollectionName returns the last segment of a collection path.
func CollectionName(path string) string {
	if i := strings.LastIndexByte(path, '/'); i >= 0 {
		return path[i+1:]
	}
	return path
}

// Parent returns the document owning a subcollection path. ok is false for
// root collections.
func Parent(collection string) (DocumentRef, bool) {
	i := strings.LastIndexByte(collection, '/')
	if i < 0 {
		return DocumentRef{}, false
	}
	docPath := collection[:i]
	j := strings.LastIndexByte(docPath, '/')
	if j < 0 {
		return DocumentRef{}, false
	}
	return DocumentRef{Collection: docPath[:j], ID: docPath[j+1:]}, true
}

// Depth returns the nesting depth of a collection path; root collections are 0.
func Depth(collection string) int {
	return strings.Count(collection, "/") / 2
}
