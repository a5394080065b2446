package middleware

import (
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"

	"aigateway-go/internal/errors"
)

// limiterEntry pairs a token bucket with its last use for eviction.
type limiterEntry struct {
	limiter  *rate.Limiter
	rpm      int
	lastSeen time.Time
}

// TokenRateLimit enforces each token's configured requests-per-minute cap.
// Tokens without a cap pass through. Idle limiters are evicted lazily.
type TokenRateLimit struct {
	mu      sync.Mutex
	entries map[int64]*limiterEntry
	maxIdle time.Duration
}

// NewTokenRateLimit builds the per-token limiter set.
func NewTokenRateLimit() *TokenRateLimit {
	return &TokenRateLimit{
		entries: make(map[int64]*limiterEntry),
		maxIdle: 10 * time.Minute,
	}
}

// Handler is the gin middleware. It must run after TokenAuth.
func (t *TokenRateLimit) Handler() gin.HandlerFunc {
	return func(c *gin.Context) {
		token := TokenFromContext(c)
		if token == nil || token.RPMLimit <= 0 {
			c.Next()
			return
		}
		if !t.allow(token.ID, token.RPMLimit) {
			WriteAPIError(c, errors.New(429, "rate_limit_exceeded", "rate_limit_error",
				"Token request rate limit exceeded"))
			c.Abort()
			return
		}
		c.Next()
	}
}

func (t *TokenRateLimit) allow(tokenID int64, rpm int) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	now := time.Now()
	entry, ok := t.entries[tokenID]
	if !ok || entry.rpm != rpm {
		// Burst of rpm lets a client spend its whole minute at once.
		entry = &limiterEntry{
			limiter: rate.NewLimiter(rate.Limit(float64(rpm)/60.0), rpm),
			rpm:     rpm,
		}
		t.entries[tokenID] = entry
	}
	entry.lastSeen = now

	if len(t.entries) > 1024 {
		t.evictIdle(now)
	}
	return entry.limiter.Allow()
}

func (t *TokenRateLimit) evictIdle(now time.Time) {
	for id, e := range t.entries {
		if now.Sub(e.lastSeen) > t.maxIdle {
			delete(t.entries, id)
		}
	}
}
