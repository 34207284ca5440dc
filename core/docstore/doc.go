// Package docstore defines the capability termsync needs from a hierarchical
// document store, and the value types that cross that boundary.
//
// A store holds collections of documents; every document may own further
// subcollections, to any depth. Paths alternate collection and document
// segments:
//
//	Terminology                      collection
//	Terminology/T1                   document
//	Terminology/T1/mappings          subcollection
//	Terminology/T1/mappings/A        document
//
// # Values
//
// Document fields are loosely typed in every backing store. They are converted
// into the Value tagged variant at the store boundary, and callers project them
// into concrete Go types through the fallible As* methods. Nothing in termsync
// type-asserts raw field data.
//
// # Backends
//
// The Store interface is implemented by the memory, badgerstore, objectstore and
// firestore sub-packages. Iteration over large collections goes through
// RefIterator, which pages through ListDocuments instead of loading a
// collection at once.
package docstore
