// Package ratelimiter throttles how fast the server admits new connections.
package ratelimiter

import (
	"context"

	"golang.org/x/time/rate"
)

// RateLimiter is a token bucket in front of the accept loop.
//
// Each accepted connection consumes one token. Burst bounds how many
// connections can be admitted back to back after an idle period.
//
// A nil *RateLimiter admits everything, so callers can keep an optional
// limiter without nil checks.
//
// Thread safety:
// All methods are safe for concurrent use.
type RateLimiter struct {
	limiter *rate.Limiter
}

// New creates a limiter admitting perSecond connections with the given
// burst. A zero rate means unlimited and returns nil. A burst below 1 is
// raised to 1, otherwise no token could ever be taken.
func New(perSecond float64, burst int) *RateLimiter {
	if perSecond <= 0 {
		return nil
	}
	if burst < 1 {
		burst = 1
	}
	return &RateLimiter{limiter: rate.NewLimiter(rate.Limit(perSecond), burst)}
}

// Allow consumes a token if one is available and never blocks.
func (r *RateLimiter) Allow() bool {
	if r == nil {
		return true
	}
	return r.limiter.Allow()
}

// Wait blocks until a token is available or ctx is done.
func (r *RateLimiter) Wait(ctx context.Context) error {
	if r == nil {
		return ctx.Err()
	}
	return r.limiter.Wait(ctx)
}

// Limit returns the configured rate, or 0 when unlimited.
func (r *RateLimiter) Limit() float64 {
	if r == nil {
		return 0
	}
	return float64(r.limiter.Limit())
}

// Tokens returns the tokens currently in the bucket. Monitoring only.
func (r *RateLimiter) Tokens() float64 {
	if r == nil {
		return 0
	}
	return r.limiter.Tokens()
}
