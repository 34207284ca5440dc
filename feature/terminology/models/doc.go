// Package models defines the flat terminology entities and the relational rows
// they are stored in.
//
// The flat entities (Terminology, Code, Mapping and the two orphan sets) are
// produced by the flatten package and consumed by the reconstruct package.
// Composite keys come from core/keys and are never stored on their own: the
// relational rows store the (terminology, code) pairs they derive from.
package models
