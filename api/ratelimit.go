package api

import (
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"

	"chatrelay/common"
)

const codeRateLimited = "RATE_LIMITED"

// RateLimiter enforces the relay's request budget: one aggregate limiter over
// all providers plus one limiter per provider. Budgets refill continuously at
// max_requests (or per_provider) tokens per window. Limiters are
// process-local; a multi-instance deployment multiplies the effective budget.
type RateLimiter struct {
	config    common.RateLimitConfig
	aggregate *rate.Limiter

	mu          sync.Mutex
	perProvider map[string]*rate.Limiter
}

func NewRateLimiter(config common.RateLimitConfig) *RateLimiter {
	return &RateLimiter{
		config:      config,
		aggregate:   rate.NewLimiter(budgetRate(config.MaxRequests, config.Window), config.MaxRequests),
		perProvider: make(map[string]*rate.Limiter),
	}
}

func budgetRate(maxRequests int, window time.Duration) rate.Limit {
	return rate.Limit(float64(maxRequests) / window.Seconds())
}

func (rl *RateLimiter) providerLimiter(provider string) *rate.Limiter {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	limiter, ok := rl.perProvider[provider]
	if !ok {
		limiter = rate.NewLimiter(budgetRate(rl.config.PerProvider, rl.config.Window), rl.config.PerProvider)
		rl.perProvider[provider] = limiter
	}
	return limiter
}

// Allow consumes one request from both budgets. The aggregate reservation is
// canceled if the provider budget rejects, so a throttled provider does not
// starve the others.
func (rl *RateLimiter) Allow(provider string) bool {
	reservation := rl.aggregate.ReserveN(time.Now(), 1)
	if !reservation.OK() || reservation.Delay() > 0 {
		reservation.Cancel()
		return false
	}
	if !rl.providerLimiter(provider).Allow() {
		reservation.Cancel()
		return false
	}
	return true
}

// Remaining reports the approximate unused request count for the provider's
// budget, for the rate limit response headers.
func (rl *RateLimiter) Remaining(provider string) int {
	remaining := int(rl.providerLimiter(provider).Tokens())
	if aggregate := int(rl.aggregate.Tokens()); aggregate < remaining {
		remaining = aggregate
	}
	if remaining < 0 {
		return 0
	}
	return remaining
}

// RateLimitMiddleware rejects over-budget requests with a plain JSON 429, not
// an SSE stream, so throttling is visible before any exchange starts.
func RateLimitMiddleware(rl *RateLimiter) gin.HandlerFunc {
	return func(c *gin.Context) {
		provider := c.Param("provider")
		allowed := rl.Allow(provider)

		c.Header("X-RateLimit-Limit", fmt.Sprintf("%d", rl.config.MaxRequests))
		c.Header("X-RateLimit-Remaining", fmt.Sprintf("%d", rl.Remaining(provider)))
		c.Header("X-RateLimit-Reset", fmt.Sprintf("%d", time.Now().Add(rl.config.Window).Unix()))

		if !allowed {
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
				"error": fmt.Sprintf("%s: request budget exhausted, retry later", codeRateLimited),
			})
			return
		}
		c.Next()
	}
}
