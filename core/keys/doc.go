// Package keys derives and parses the synthetic identifiers that link flattened
// terminology entities back together.
//
// In the document store a code only exists relative to its terminology and a
// mapping only exists relative to its source code. Once the tree is flattened
// those relationships are carried by composite keys instead.
//
// # Formats
//
//	code id:    "{terminology_id}/{code}"
//	mapping id: "{code_id}<-{target_code_id}"
//
// Terminology ids are document ids and can never contain "/", so a code id
// always splits unambiguously on its first "/". Codes containing the mapping
// separator "<-" are rejected.
//
// # Normalization
//
// Surrounding whitespace is trimmed and case is preserved. The same rule runs on
// the encode and decode paths; decoding a key that is not in canonical form fails
// with ErrMalformedKey.
package keys
