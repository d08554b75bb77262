package workspace

import (
	"context"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// Service identifies a Google API for rate limiting purposes.
type Service string

const (
	ServiceSheets Service = "sheets"
	ServiceDocs   Service = "docs"
	ServiceDrive  Service = "drive"
)

// RateLimit is a token bucket configuration.
type RateLimit struct {
	RequestsPerSecond float64
	Burst             int
}

// DefaultRateLimits stay below the per-user quotas of each API.
var DefaultRateLimits = map[Service]RateLimit{
	ServiceSheets: {RequestsPerSecond: 1.0, Burst: 5},
	ServiceDocs:   {RequestsPerSecond: 5.0, Burst: 10},
	ServiceDrive:  {RequestsPerSecond: 8.0, Burst: 10},
}

// limiter is a token bucket with a pause that a rate-limit response can extend.
type limiter struct {
	mu      sync.Mutex
	bucket  *rate.Limiter
	retryAt time.Time
}

func newLimiter(cfg RateLimit) *limiter {
	if cfg.RequestsPerSecond <= 0 {
		return &limiter{bucket: rate.NewLimiter(rate.Inf, 0)}
	}
	burst := cfg.Burst
	if burst < 1 {
		burst = 1
	}
	return &limiter{bucket: rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), burst)}
}

// wait blocks until the pause has passed and a token is available.
func (l *limiter) wait(ctx context.Context) error {
	l.mu.Lock()
	retryAt := l.retryAt
	l.mu.Unlock()

	if d := time.Until(retryAt); d > 0 {
		timer := time.NewTimer(d)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}
	return l.bucket.Wait(ctx)
}

// pause holds all callers for d, unless a longer pause is already in effect.
func (l *limiter) pause(d time.Duration) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if until := time.Now().Add(d); until.After(l.retryAt) {
		l.retryAt = until
	}
}

func newLimiters(limits map[Service]RateLimit) map[Service]*limiter {
	out := make(map[Service]*limiter, len(DefaultRateLimits))
	for svc, def := range DefaultRateLimits {
		cfg := def
		if custom, ok := limits[svc]; ok {
			cfg = custom
		}
		out[svc] = newLimiter(cfg)
	}
	return out
}
