// Package flatten converts terminology document trees into flat entity sets.
//
// A terminology document owns its codes (a "codes" subcollection or an inline
// "codes" list) and optional mappings, provenance, onto_api_preference,
// user_input and preferred_terminology subcollections. Flattening produces
// one Terminology, its Codes and one Mapping per source -> target edge, keyed
// with core/keys. Records that point at a code or mapping that does not exist
// become orphans and are never dropped.
//
// Output is sorted by key, so flattening an unchanged tree twice yields equal
// results.
package flatten
