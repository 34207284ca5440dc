// Package terminology exposes flattened terminology data over HTTP.
//
// The flatten result is cached per collection for the configured TTL and
// rebuilt on demand. Concurrent requests on an expired cache share a single
// walk of the store.
//
// # HTTP Endpoints
//
//   - GET /terminologies : summary counts and the terminology list (supports ?refresh=true).
//   - GET /terminologies/:id : one terminology with its codes, mappings and orphans.
//
// The flatten, reconstruct and sink subpackages hold the conversion logic.
package terminology
