package mw

import (
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/patrickmn/go-cache"
	"golang.org/x/time/rate"
)

// limiterIdleTTL is how long a client's limiter survives without requests.
const limiterIdleTTL = 10 * time.Minute

// ClientRateLimiter hands out one token bucket per client key. Buckets of
// clients that go quiet expire from the cache instead of piling up.
type ClientRateLimiter struct {
	limiters *cache.Cache
	r        rate.Limit
	b        int
}

// NewClientRateLimiter creates a limiter allowing r requests per second with burst b per client.
func NewClientRateLimiter(r rate.Limit, b int) *ClientRateLimiter {
	return &ClientRateLimiter{
		limiters: cache.New(limiterIdleTTL, limiterIdleTTL),
		r:        r,
		b:        b,
	}
}

// Limiter returns the bucket for key, creating it on first use.
func (l *ClientRateLimiter) Limiter(key string) *rate.Limiter {
	if v, found := l.limiters.Get(key); found {
		limiter := v.(*rate.Limiter)
		// Touch the entry so an active client keeps its bucket.
		l.limiters.SetDefault(key, limiter)
		return limiter
	}

	limiter := rate.NewLimiter(l.r, l.b)
	// Add fails when a concurrent request created the bucket first.
	if err := l.limiters.Add(key, limiter, cache.DefaultExpiration); err != nil {
		if v, found := l.limiters.Get(key); found {
			return v.(*rate.Limiter)
		}
	}
	return limiter
}

// RateLimiter is a middleware for per-client rate limiting. When ipHeader
// is set (e.g. "X-Real-IP" behind a proxy) its first value identifies the
// client; otherwise gin's ClientIP does.
func RateLimiter(r rate.Limit, b int, ipHeader string) gin.HandlerFunc {
	limiter := NewClientRateLimiter(r, b)
	return func(c *gin.Context) {
		if !limiter.Limiter(clientKey(c, ipHeader)).Allow() {
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{"error": "too many requests"})
			return
		}
		c.Next()
	}
}

func clientKey(c *gin.Context, ipHeader string) string {
	if ipHeader != "" {
		if v := c.GetHeader(ipHeader); v != "" {
			return strings.TrimSpace(strings.Split(v, ",")[0])
		}
	}
	return c.ClientIP()
}
