package middleware

import (
	"log"
	"os"
	"strconv"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/limiter"
)

// RateLimitConfig holds rate limiting settings
type RateLimitConfig struct {
	// Global limits (per IP)
	GlobalAPIMax        int
	GlobalAPIExpiration time.Duration

	// Context-selection endpoint limits (per IP), the hot path before
	// every generation call
	ContextMax        int
	ContextExpiration time.Duration
}

// DefaultRateLimitConfig returns production-safe defaults
func DefaultRateLimitConfig() *RateLimitConfig {
	return &RateLimitConfig{
		// Global: 200/min - generous for normal use
		GlobalAPIMax:        200,
		GlobalAPIExpiration: 1 * time.Minute,

		// Selection runs before every generation call; 60/min per IP
		ContextMax:        60,
		ContextExpiration: 1 * time.Minute,
	}
}

// LoadRateLimitConfig loads config from environment variables with defaults
func LoadRateLimitConfig() *RateLimitConfig {
	cfg := DefaultRateLimitConfig()

	if v := os.Getenv("RATE_LIMIT_GLOBAL_MAX"); v != "" {
		if parsed, err := strconv.Atoi(v); err == nil && parsed > 0 {
			cfg.GlobalAPIMax = parsed
		}
	}
	if v := os.Getenv("RATE_LIMIT_CONTEXT_MAX"); v != "" {
		if parsed, err := strconv.Atoi(v); err == nil && parsed > 0 {
			cfg.ContextMax = parsed
		}
	}

	return cfg
}

// GlobalLimiter returns the per-IP limiter applied to all API routes
func (c *RateLimitConfig) GlobalLimiter() fiber.Handler {
	return limiter.New(limiter.Config{
		Max:        c.GlobalAPIMax,
		Expiration: c.GlobalAPIExpiration,
		LimitReached: func(ctx *fiber.Ctx) error {
			log.Printf("🛡️  [RATE-LIMIT] Global limit reached for %s", ctx.IP())
			return ctx.Status(fiber.StatusTooManyRequests).JSON(fiber.Map{
				"error": "Too many requests, slow down",
			})
		},
	})
}

// ContextLimiter returns the limiter for the context-selection endpoints
func (c *RateLimitConfig) ContextLimiter() fiber.Handler {
	return limiter.New(limiter.Config{
		Max:        c.ContextMax,
		Expiration: c.ContextExpiration,
		LimitReached: func(ctx *fiber.Ctx) error {
			log.Printf("🛡️  [RATE-LIMIT] Context limit reached for %s", ctx.IP())
			return ctx.Status(fiber.StatusTooManyRequests).JSON(fiber.Map{
				"error": "Too many context requests, slow down",
			})
		},
	})
}
