package chain

import (
	"context"
	"sync"

	"golang.org/x/time/rate"
)

// RateLimiter provides per-method rate limiting for node RPC calls using a
// token bucket. Public RPC providers throttle aggressively; bounding our own
// call rate keeps read retries from tripping provider-side limits.
type RateLimiter struct {
	limiters   map[string]*rate.Limiter
	mu         sync.RWMutex
	rateLimit  rate.Limit
	burstLimit int
}

// NewRateLimiter creates a new rate limiter with the specified rate and burst.
// ratePerSecond is requests per second, burst is the maximum burst size.
func NewRateLimiter(ratePerSecond float64, burst int) *RateLimiter {
	return &RateLimiter{
		limiters:   make(map[string]*rate.Limiter),
		rateLimit:  rate.Limit(ratePerSecond),
		burstLimit: burst,
	}
}

// DefaultRateLimiter returns a rate limiter with default settings.
// Default: 10 requests/second, burst of 20.
func DefaultRateLimiter() *RateLimiter {
	return NewRateLimiter(10, 20)
}

// Allow checks if a call to the method is allowed right now.
func (r *RateLimiter) Allow(method string) bool {
	return r.getLimiter(method).Allow()
}

// Wait blocks until a call to the method is allowed or the context is canceled.
func (r *RateLimiter) Wait(ctx context.Context, method string) error {
	return r.getLimiter(method).Wait(ctx)
}

// getLimiter returns the limiter for the given method, creating one if needed.
func (r *RateLimiter) getLimiter(method string) *rate.Limiter {
	r.mu.RLock()
	limiter, exists := r.limiters[method]
	r.mu.RUnlock()

	if exists {
		return limiter
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	// Double-check after acquiring write lock
	if limiter, exists = r.limiters[method]; exists {
		return limiter
	}

	limiter = rate.NewLimiter(r.rateLimit, r.burstLimit)
	r.limiters[method] = limiter
	return limiter
}
