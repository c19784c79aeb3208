package middleware

import (
	"fmt"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/limiter"
	"github.com/google/uuid"
)

// RateLimit creates a per-user rate limiter middleware instance. Chat and
// streaming endpoints use it to keep one student from monopolizing the
// provider budget.
func RateLimit(identifier string, max int, window time.Duration) fiber.Handler {
	if max <= 0 {
		max = 10
	}
	if window <= 0 {
		window = time.Second
	}

	return limiter.New(limiter.Config{
		Max:        max,
		Expiration: window,
		KeyGenerator: func(c *fiber.Ctx) string {
			if id, ok := c.Locals("user_id").(uuid.UUID); ok && id != uuid.Nil {
				return fmt.Sprintf("%s:%s", identifier, id)
			}
			return fmt.Sprintf("%s:%s", identifier, c.IP())
		},
	})
}
