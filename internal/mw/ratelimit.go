// Package mw holds the gin middleware shared by the API routes.
package mw

import (
	"net/http"
	"sync"

	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"
)

// TokenHeader carries the session token of a connected wallet.
const TokenHeader = "X-Session-Token"

// ClientLimiter keeps one token bucket per client key.
type ClientLimiter struct {
	clients map[string]*rate.Limiter
	mu      sync.Mutex
	r       rate.Limit
	b       int
}

// NewClientLimiter creates a limiter allowing r requests per second with
// bursts of b for every client.
func NewClientLimiter(r rate.Limit, b int) *ClientLimiter {
	return &ClientLimiter{
		clients: make(map[string]*rate.Limiter),
		r:       r,
		b:       b,
	}
}

// Limiter returns the bucket of key, creating it on first use.
func (l *ClientLimiter) Limiter(key string) *rate.Limiter {
	l.mu.Lock()
	defer l.mu.Unlock()

	limiter, ok := l.clients[key]
	if !ok {
		limiter = rate.NewLimiter(l.r, l.b)
		l.clients[key] = limiter
	}
	return limiter
}

// RateLimiter rejects requests above the per-address rate with 429.
func RateLimiter(r rate.Limit, b int) gin.HandlerFunc {
	return KeyedRateLimiter(NewClientLimiter(r, b), func(c *gin.Context) string {
		return "ip:" + c.ClientIP()
	})
}

// KeyedRateLimiter rejects requests above the rate of the bucket chosen by
// key. Requests with an empty key pass through. Keys must come from state
// the server already validated, never from raw request headers.
func KeyedRateLimiter(limiter *ClientLimiter, key func(*gin.Context) string) gin.HandlerFunc {
	return func(c *gin.Context) {
		k := key(c)
		if k != "" && !limiter.Limiter(k).Allow() {
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{"error": "too many requests"})
			return
		}
		c.Next()
	}
}
