package http

import (
	"sync"

	"github.com/gofiber/fiber/v2"
	"golang.org/x/time/rate"

	"github.com/spec-kit/support-core/internal/auth"
	apperrors "github.com/spec-kit/support-core/pkg/util/errorutil"
)

// ActorRateLimiter hands each authenticated actor its own token bucket.
type ActorRateLimiter struct {
	mu       sync.Mutex
	limiters map[string]*rate.Limiter
	limit    rate.Limit
	burst    int
}

// NewActorRateLimiter returns nil when perSecond is not positive, which
// disables limiting.
func NewActorRateLimiter(perSecond float64, burst int) *ActorRateLimiter {
	if perSecond <= 0 {
		return nil
	}
	if burst <= 0 {
		burst = 1
	}
	return &ActorRateLimiter{
		limiters: make(map[string]*rate.Limiter),
		limit:    rate.Limit(perSecond),
		burst:    burst,
	}
}

// Allow consumes one token for actorID.
func (l *ActorRateLimiter) Allow(actorID string) bool {
	if l == nil {
		return true
	}
	l.mu.Lock()
	limiter, ok := l.limiters[actorID]
	if !ok {
		limiter = rate.NewLimiter(l.limit, l.burst)
		l.limiters[actorID] = limiter
	}
	l.mu.Unlock()
	return limiter.Allow()
}

// Handle must run after the auth middleware.
func (l *ActorRateLimiter) Handle(c *fiber.Ctx) error {
	actor, ok := auth.ActorFromContext(c)
	if !ok {
		return c.Next()
	}
	if !l.Allow(actor.ID) {
		return apperrors.NewRateLimited("too many requests")
	}
	return c.Next()
}
