package ratelimit

import (
	"github.com/gofiber/fiber/v2"
)

// KeyHeader lets clients share or separate buckets independently of their
// address.
const KeyHeader = "X-Faultline-Key"

// MiddlewareConfig configures Middleware.
type MiddlewareConfig struct {
	// KeyFunc derives the bucket key. Defaults to KeyHeader, falling back to
	// the client IP.
	KeyFunc func(c *fiber.Ctx) string

	// OnReject is called for rejected requests, e.g. to count them.
	OnReject func(c *fiber.Ctx, key string)
}

// DefaultKey is the default KeyFunc.
func DefaultKey(c *fiber.Ctx) string {
	if key := c.Get(KeyHeader); key != "" {
		return key
	}
	return c.IP()
}

// Middleware rejects requests with 429 Too Many Requests once the caller's
// bucket is empty.
func Middleware(l *Limiter, cfg MiddlewareConfig) fiber.Handler {
	keyFunc := cfg.KeyFunc
	if keyFunc == nil {
		keyFunc = DefaultKey
	}

	return func(c *fiber.Ctx) error {
		key := keyFunc(c)
		if l.Allow(key) {
			return c.Next()
		}

		if cfg.OnReject != nil {
			cfg.OnReject(c, key)
		}

		return c.Status(fiber.StatusTooManyRequests).JSON(fiber.Map{"error": "rate limit exceeded"})
	}
}
