package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// CacheEntry is one previously-answered provider request. Entries are keyed
// by the deterministic request signature, not by campaign, so identical
// requests across campaigns share entries.
type CacheEntry struct {
	CacheKey       string          `json:"cache_key"`
	RequestType    string          `json:"request_type"`
	RequestParams  map[string]string `json:"request_params"`
	ResponseData   []byte          `json:"response_data"`
	Confidence     float64         `json:"confidence"`
	Cost           decimal.Decimal `json:"cost"`
	CreatedAt      time.Time       `json:"created_at"`
	ExpiresAt      time.Time       `json:"expires_at"`
	HitCount       int             `json:"hit_count"`
	LastAccessedAt time.Time       `json:"last_accessed_at"`
	IsActive       bool            `json:"is_active"`
}

// Live reports whether the entry is usable at the given instant.
func (e *CacheEntry) Live(now time.Time) bool {
	return e.IsActive && now.Before(e.ExpiresAt)
}
