// Package loader registers the HTTP features served by `termsync start`.
//
// Each feature implements Feature:
//
//	type Feature interface {
//	    Name() string
//	    IsEnabled() bool
//	    Load(app fiber.Router) error
//	}
//
// The Manager loads enabled features in registration order and skips the
// rest, so a feature whose backing service is unavailable can switch itself
// off instead of failing startup.
package loader
