// Package rayid tags every request with a ray id.
//
// An incoming X-Ray-ID header is kept; otherwise a UUID is generated. The id
// is stored in the "ray_id" local, where logger.WithRayID reads it, and echoed
// in the response header.
package rayid

import (
	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
)

const (
	Header = "X-Ray-ID"
	Local  = "ray_id"
)

// New returns the middleware.
func New() fiber.Handler {
	return func(c *fiber.Ctx) error {
		id := c.Get(Header)
		if id == "" {
			id = uuid.NewString()
		}
		c.Locals(Local, id)
		c.Set(Header, id)
		return c.Next()
	}
}
