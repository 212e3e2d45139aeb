// Package ratelimiter throttles bulk transfers with a token bucket.
package ratelimiter

import (
	"context"

	"golang.org/x/time/rate"
)

// RateLimiter limits how many items per second a transfer may move.
//
// Thread safety:
// All methods are safe for concurrent use.
type RateLimiter struct {
	limiter *rate.Limiter
}

// New creates a limiter allowing itemsPerSecond sustained and burst items
// at once. A zero itemsPerSecond means no limit; a zero burst defaults to
// itemsPerSecond.
func New(itemsPerSecond, burst uint) *RateLimiter {
	if itemsPerSecond == 0 {
		return &RateLimiter{limiter: rate.NewLimiter(rate.Inf, 0)}
	}
	if burst == 0 {
		burst = itemsPerSecond
	}
	return &RateLimiter{
		limiter: rate.NewLimiter(rate.Limit(itemsPerSecond), int(burst)),
	}
}

// Unlimited reports whether the limiter never waits.
func (r *RateLimiter) Unlimited() bool {
	return r == nil || r.limiter.Limit() == rate.Inf
}

// WaitN blocks until n items may pass or ctx is cancelled. Requests larger
// than the burst are split into burst-sized waits. A nil limiter never
// waits.
func (r *RateLimiter) WaitN(ctx context.Context, n int) error {
	if r.Unlimited() {
		return ctx.Err()
	}
	burst := r.limiter.Burst()
	for n > 0 {
		step := min(n, burst)
		if err := r.limiter.WaitN(ctx, step); err != nil {
			return err
		}
		n -= step
	}
	return nil
}
