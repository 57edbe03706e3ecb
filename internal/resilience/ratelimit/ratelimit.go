// Package ratelimit throttles outgoing requests with a token bucket.
package ratelimit

import (
	"context"

	"golang.org/x/time/rate"
)

// Limiter implements token bucket algorithm for rate limiting.
// It keeps the client from flooding the gallery API, e.g. when a user
// scrolls fast and pages are requested back to back.
type Limiter struct {
	limiter *rate.Limiter
}

// New creates a Limiter with the specified rate and burst capacity.
// A non-positive requestsPerSecond disables limiting.
//
// Example:
//
//	limiter := ratelimit.New(5.0, 10)  // 5 req/s with burst of 10
func New(requestsPerSecond float64, burst int) *Limiter {
	if requestsPerSecond <= 0 {
		return &Limiter{limiter: rate.NewLimiter(rate.Inf, 0)}
	}
	if burst < 1 {
		burst = 1
	}
	return &Limiter{limiter: rate.NewLimiter(rate.Limit(requestsPerSecond), burst)}
}

// Wait blocks until a token is available or the context is canceled.
func (l *Limiter) Wait(ctx context.Context) error {
	if l == nil {
		return nil
	}
	return l.limiter.Wait(ctx)
}
