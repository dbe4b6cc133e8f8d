package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// UsageEvent is the per-call telemetry record emitted for every provider
// interaction, cache hits included.
type UsageEvent struct {
	RequestID       string          `json:"request_id"`
	CampaignID      string          `json:"campaign_id"`
	SourceName      string          `json:"source_name"`
	Endpoint        string          `json:"endpoint"`
	Success         bool            `json:"success"`
	ResponseTimeMS  int64           `json:"response_time_ms"`
	EstimatedCost   decimal.Decimal `json:"estimated_cost"`
	ActualCost      decimal.Decimal `json:"actual_cost"`
	CacheHit        bool            `json:"cache_hit"`
	ResultsReturned int             `json:"results_returned"`
	ErrorMessage    string          `json:"error_message,omitempty"`
	CreatedAt       time.Time       `json:"created_at"`
}
