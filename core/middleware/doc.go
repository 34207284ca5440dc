// Package middleware groups the Fiber middleware used by `termsync start`.
//
//   - auth: API key check on every route except the ones it is told to skip.
//   - rayid: request id propagation for log correlation.
//
// rayid must be registered first so that every later log line carries the id.
package middleware
