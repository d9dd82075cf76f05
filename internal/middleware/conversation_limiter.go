package middleware

import (
	"log"
	"sync"

	"github.com/gofiber/fiber/v2"
	"golang.org/x/time/rate"
)

// ConversationLimiter applies a per-conversation token bucket on top of the
// per-IP limiters, so one busy conversation cannot starve the rest of the
// selection pipeline.
type ConversationLimiter struct {
	limiters  sync.Map // conversation id -> *rate.Limiter
	perSecond rate.Limit
	burst     int
}

// NewConversationLimiter creates a limiter allowing perSecond requests per
// conversation with the given burst.
func NewConversationLimiter(perSecond float64, burst int) *ConversationLimiter {
	if perSecond <= 0 {
		perSecond = 5
	}
	if burst <= 0 {
		burst = int(perSecond * 2)
	}
	return &ConversationLimiter{
		perSecond: rate.Limit(perSecond),
		burst:     burst,
	}
}

func (l *ConversationLimiter) limiterFor(id string) *rate.Limiter {
	if v, ok := l.limiters.Load(id); ok {
		return v.(*rate.Limiter)
	}
	v, _ := l.limiters.LoadOrStore(id, rate.NewLimiter(l.perSecond, l.burst))
	return v.(*rate.Limiter)
}

// Forget drops the bucket for a deleted conversation
func (l *ConversationLimiter) Forget(id string) {
	l.limiters.Delete(id)
}

// Handler returns the fiber middleware. Routes without an :id param pass
// through untouched.
func (l *ConversationLimiter) Handler() fiber.Handler {
	return func(c *fiber.Ctx) error {
		id := c.Params("id")
		if id == "" {
			return c.Next()
		}
		if !l.limiterFor(id).Allow() {
			log.Printf("🛡️  [RATE-LIMIT] Conversation %s over its request budget", id)
			return c.Status(fiber.StatusTooManyRequests).JSON(fiber.Map{
				"error": "Too many requests for this conversation, slow down",
			})
		}
		return c.Next()
	}
}
