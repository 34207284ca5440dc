// Package server holds the HTTP server configuration for `termsync start`.
//
// The Config struct defines the HTTP port and the API key. An empty API key
// leaves the read-only endpoints open, which is intended for local use only.
package server
