// Package ratelimit throttles how fast new sessions may start.
package ratelimit

import (
	"context"
	"math"
	"sync"

	"golang.org/x/time/rate"
)

// RateLimiter admits at most a configured number of session starts per
// second. A rate of zero disables limiting, and a nil *RateLimiter never
// blocks.
type RateLimiter struct {
	limiter *rate.Limiter
	mu      sync.RWMutex
}

func NewRateLimiter(perSec float64) *RateLimiter {
	return &RateLimiter{
		limiter: rate.NewLimiter(rate.Limit(clampRate(perSec)), burstFor(perSec)),
	}
}

func (r *RateLimiter) Wait(ctx context.Context) error {
	if r == nil {
		return ctx.Err()
	}
	r.mu.RLock()
	limiter := r.limiter
	limit := limiter.Limit()
	r.mu.RUnlock()

	// If rate limit is 0, don't wait (no rate limiting)
	if limit == 0 {
		return ctx.Err()
	}
	return limiter.Wait(ctx)
}

func (r *RateLimiter) SetRate(perSec float64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.limiter.SetLimit(rate.Limit(clampRate(perSec)))
	r.limiter.SetBurst(burstFor(perSec))
}

// Rate returns the current limit in starts per second.
func (r *RateLimiter) Rate() float64 {
	if r == nil {
		return 0
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	return float64(r.limiter.Limit())
}

func clampRate(perSec float64) float64 {
	if perSec < 0 || math.IsNaN(perSec) {
		return 0
	}
	return perSec
}

// burstFor allows one second worth of starts, and at least one so that
// fractional rates can make progress.
func burstFor(perSec float64) int {
	b := int(math.Ceil(clampRate(perSec)))
	if b < 1 {
		return 1
	}
	return b
}
