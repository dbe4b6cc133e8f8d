// Package ratelimit provides per-source token-bucket rate limiting so
// provider quotas are respected across concurrent campaign work.
package ratelimit

import (
	"context"
	"sync"
	"time"

	"github.com/rotisserie/eris"
	"golang.org/x/time/rate"
)

// ErrUnknownSource is returned for sources that were never configured.
var ErrUnknownSource = eris.New("ratelimit: unknown source")

// Limiters holds one token bucket per source. Distinct sources have
// independent refill rates and burst capacities.
type Limiters struct {
	mu      sync.RWMutex
	buckets map[string]*rate.Limiter
}

// New creates an empty limiter registry.
func New() *Limiters {
	return &Limiters{buckets: make(map[string]*rate.Limiter)}
}

// Configure sets the refill rate (tokens per second) and burst capacity for a
// source, replacing any previous bucket.
func (l *Limiters) Configure(source string, perSec float64, burst int) {
	if perSec <= 0 {
		perSec = 1
	}
	if burst <= 0 {
		burst = 1
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	l.buckets[source] = rate.NewLimiter(rate.Limit(perSec), burst)
}

// Allow takes a token without blocking. Callers that cannot afford to wait
// (e.g. budget near exhaustion) use this to skip a source gracefully.
func (l *Limiters) Allow(source string) bool {
	b := l.bucket(source)
	if b == nil {
		return false
	}
	return b.Allow()
}

// Wait blocks until a token is available or maxWait elapses. A zero maxWait
// means wait as long as the parent context allows.
func (l *Limiters) Wait(ctx context.Context, source string, maxWait time.Duration) error {
	b := l.bucket(source)
	if b == nil {
		return eris.Wrapf(ErrUnknownSource, "%s", source)
	}

	if maxWait > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, maxWait)
		defer cancel()
	}

	if err := b.Wait(ctx); err != nil {
		return eris.Wrapf(err, "ratelimit: wait %s", source)
	}
	return nil
}

// WouldBlock reports whether an immediate call for the source would have to
// wait for a token.
func (l *Limiters) WouldBlock(source string) bool {
	b := l.bucket(source)
	if b == nil {
		return true
	}
	return b.Tokens() < 1
}

func (l *Limiters) bucket(source string) *rate.Limiter {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.buckets[source]
}
