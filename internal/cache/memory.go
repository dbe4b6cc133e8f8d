package cache

import (
	"context"
	"sync"
	"time"

	"github.com/prospectpro/leadengine/internal/model"
)

// Memory is a mutex-guarded in-process Backend. Used when no database is
// configured and throughout tests.
type Memory struct {
	mu      sync.RWMutex
	entries map[string]model.CacheEntry
}

// NewMemory creates an empty in-memory backend.
func NewMemory() *Memory {
	return &Memory{entries: make(map[string]model.CacheEntry)}
}

// GetEntry implements Backend.
func (m *Memory) GetEntry(_ context.Context, key string) (*model.CacheEntry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	entry, ok := m.entries[key]
	if !ok {
		return nil, nil
	}
	cp := entry
	return &cp, nil
}

// PutEntry implements Backend.
func (m *Memory) PutEntry(_ context.Context, entry model.CacheEntry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries[entry.CacheKey] = entry
	return nil
}

// TouchEntry implements Backend.
func (m *Memory) TouchEntry(_ context.Context, key string, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	entry, ok := m.entries[key]
	if !ok {
		return nil
	}
	entry.HitCount++
	entry.LastAccessedAt = at
	m.entries[key] = entry
	return nil
}

// DeleteExpired implements Backend.
func (m *Memory) DeleteExpired(_ context.Context, before time.Time) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	removed := 0
	for key, entry := range m.entries {
		if !entry.ExpiresAt.After(before) {
			delete(m.entries, key)
			removed++
		}
	}
	return removed, nil
}

// Len reports the number of stored entries, expired included.
func (m *Memory) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.entries)
}
