// Package ratelimit wraps a token bucket limiter shared by all fetches in a
// run so the source site never sees more than the configured request rate.
package ratelimit

import (
	"context"
	"fmt"
	"time"

	"golang.org/x/time/rate"

	"github.com/filmesbr/torrent-movies-etl/internal/metrics"
)

// Config holds rate limiter configuration.
type Config struct {
	CallsPerSecond float64
	Burst          int
}

// Limiter blocks callers that exceed the configured rate; calls are delayed,
// never dropped.
type Limiter struct {
	bucket *rate.Limiter
}

// New creates a Limiter. Non-positive CallsPerSecond disables limiting.
func New(cfg Config) *Limiter {
	r := rate.Limit(cfg.CallsPerSecond)
	if cfg.CallsPerSecond <= 0 {
		r = rate.Inf
	}
	burst := cfg.Burst
	if burst <= 0 {
		burst = 1
	}
	return &Limiter{bucket: rate.NewLimiter(r, burst)}
}

// Wait blocks until a token is available, respecting the context.
func (l *Limiter) Wait(ctx context.Context) error {
	start := time.Now()
	if err := l.bucket.Wait(ctx); err != nil {
		return fmt.Errorf("rate limit wait: %w", err)
	}
	if delay := time.Since(start); delay > time.Millisecond {
		metrics.ObserveRateLimitDelay(delay)
	}
	return nil
}
