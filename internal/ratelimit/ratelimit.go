// Package ratelimit wraps golang.org/x/time/rate into the dispatcher's
// single global request-per-second ceiling.
package ratelimit

import (
	"context"

	"golang.org/x/time/rate"
)

// Limiter is a global, FIFO-fair token bucket shared by every worker.
// golang.org/x/time/rate already queues Wait callers in arrival order and
// never returns a token once consumed, which is exactly the fairness and
// no-reclaim contract required here.
type Limiter struct {
	rl *rate.Limiter
}

// New creates a limiter issuing up to ratePerSecond tokens per second, with
// bucket capacity equal to ratePerSecond: short bursts up to the target
// rate are permitted, matching a token bucket refilled continuously at
// the target RPS.
func New(ratePerSecond int) *Limiter {
	if ratePerSecond <= 0 {
		ratePerSecond = 1
	}
	return &Limiter{rl: rate.NewLimiter(rate.Limit(ratePerSecond), ratePerSecond)}
}

// UntilReady blocks until a token is available or ctx is done.
func (l *Limiter) UntilReady(ctx context.Context) error {
	return l.rl.Wait(ctx)
}

// SetRate adjusts the limiter's refill rate at runtime. The bucket capacity
// set by New is left unchanged.
func (l *Limiter) SetRate(ratePerSecond int) {
	if ratePerSecond <= 0 {
		ratePerSecond = 1
	}
	l.rl.SetLimit(rate.Limit(ratePerSecond))
}
