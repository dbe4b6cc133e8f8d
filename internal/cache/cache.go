// Package cache maps deterministic request signatures to previously obtained
// provider responses, so identical requests inside the TTL window are never
// paid for twice.
package cache

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/prospectpro/leadengine/internal/model"
)

// Backend is the persistence contract for cache entries. Both store drivers
// and the in-memory backend satisfy it.
type Backend interface {
	// GetEntry returns the raw entry for a key, or (nil, nil) on miss.
	GetEntry(ctx context.Context, key string) (*model.CacheEntry, error)
	// PutEntry creates or replaces an entry.
	PutEntry(ctx context.Context, entry model.CacheEntry) error
	// TouchEntry increments hit_count and updates last_accessed_at.
	TouchEntry(ctx context.Context, key string, at time.Time) error
	// DeleteExpired removes entries whose expiry has passed, returning the
	// number reclaimed.
	DeleteExpired(ctx context.Context, before time.Time) (int, error)
}

// Cache wraps a Backend with TTL semantics and hit accounting. A nil or
// failing backend degrades to all-miss behavior: the system stays correct,
// just slower and costlier.
type Cache struct {
	backend Backend
	nowFunc func() time.Time
}

// New creates a Cache over the given backend. backend may be nil.
func New(backend Backend) *Cache {
	return &Cache{backend: backend, nowFunc: time.Now}
}

// WithNow sets a fixed clock for testing.
func (c *Cache) WithNow(now func() time.Time) *Cache {
	c.nowFunc = now
	return c
}

// Get looks up a live entry for the signature. Expired or deactivated
// entries are misses; a hit bumps the hit counter and last-accessed time.
func (c *Cache) Get(ctx context.Context, key string) (*model.CacheEntry, bool) {
	if c.backend == nil {
		return nil, false
	}

	entry, err := c.backend.GetEntry(ctx, key)
	if err != nil {
		// Cache unavailability is a miss, never a failure.
		zap.L().Warn("cache: get failed, treating as miss", zap.Error(err))
		return nil, false
	}
	if entry == nil {
		return nil, false
	}

	now := c.nowFunc().UTC()
	if !entry.Live(now) {
		return nil, false
	}

	if err := c.backend.TouchEntry(ctx, key, now); err != nil {
		zap.L().Warn("cache: touch failed", zap.Error(err))
	} else {
		entry.HitCount++
		entry.LastAccessedAt = now
	}

	return entry, true
}

// Put stores a response payload under the signature with the given TTL.
func (c *Cache) Put(ctx context.Context, key, requestType string, params map[string]string, payload []byte, ttl time.Duration, cost decimal.Decimal, confidence float64) {
	if c.backend == nil {
		return
	}

	now := c.nowFunc().UTC()
	entry := model.CacheEntry{
		CacheKey:       key,
		RequestType:    requestType,
		RequestParams:  params,
		ResponseData:   payload,
		Confidence:     confidence,
		Cost:           cost,
		CreatedAt:      now,
		ExpiresAt:      now.Add(ttl),
		HitCount:       0,
		LastAccessedAt: now,
		IsActive:       true,
	}

	if err := c.backend.PutEntry(ctx, entry); err != nil {
		zap.L().Warn("cache: put failed", zap.String("key", shortKey(key)), zap.Error(err))
	}
}

// InvalidateExpired reclaims expired entries. Not needed on the hot path —
// Get already treats expired entries as misses — but keeps the store lean.
func (c *Cache) InvalidateExpired(ctx context.Context) (int, error) {
	if c.backend == nil {
		return 0, nil
	}
	return c.backend.DeleteExpired(ctx, c.nowFunc().UTC())
}

func shortKey(key string) string {
	if len(key) > 12 {
		return key[:12]
	}
	return key
}
