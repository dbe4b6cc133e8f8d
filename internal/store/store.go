// Package store persists campaigns, qualified leads, the shared response
// cache, served-lead fingerprints, budget snapshots, and usage telemetry.
package store

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"github.com/prospectpro/leadengine/internal/budget"
	"github.com/prospectpro/leadengine/internal/model"
)

// CampaignFilter specifies criteria for listing campaigns.
type CampaignFilter struct {
	Status  model.CampaignStatus `json:"status,omitempty"`
	OwnerID string               `json:"owner_id,omitempty"`
	Limit   int                  `json:"limit,omitempty"`
	Offset  int                  `json:"offset,omitempty"`
}

// CacheStats summarizes the shared response cache.
type CacheStats struct {
	Entries          int             `json:"entries"`
	ActiveEntries    int             `json:"active_entries"`
	TotalHits        int             `json:"total_hits"`
	EstimatedSavings decimal.Decimal `json:"estimated_savings"`
}

// Store defines the persistence interface for the discovery engine. It
// doubles as the cache backend, the dedup history checker, and the usage
// event sink.
type Store interface {
	// Campaigns
	CreateCampaign(ctx context.Context, cfg model.CampaignConfig) (*model.Campaign, error)
	UpdateCampaignStatus(ctx context.Context, campaignID string, status model.CampaignStatus) error
	UpdateCampaignSummary(ctx context.Context, campaignID string, status model.CampaignStatus, summary *model.CostSummary) error
	GetCampaign(ctx context.Context, campaignID string) (*model.Campaign, error)
	ListCampaigns(ctx context.Context, filter CampaignFilter) ([]model.Campaign, error)

	// Leads
	SaveLeads(ctx context.Context, leads []model.LeadResult) error
	ListLeads(ctx context.Context, campaignID string) ([]model.LeadResult, error)

	// Response cache
	GetEntry(ctx context.Context, key string) (*model.CacheEntry, error)
	PutEntry(ctx context.Context, entry model.CacheEntry) error
	TouchEntry(ctx context.Context, key string, at time.Time) error
	DeleteExpired(ctx context.Context, before time.Time) (int, error)
	CacheStats(ctx context.Context) (*CacheStats, error)

	// Served fingerprints
	FingerprintServed(ctx context.Context, fp, ownerID string, scope model.DedupScope) (bool, error)
	SaveFingerprints(ctx context.Context, recs []model.FingerprintRecord) error

	// Budget snapshots
	SaveLedgerSnapshot(ctx context.Context, snap budget.Snapshot) error
	GetLedgerSnapshot(ctx context.Context, campaignID string) (*budget.Snapshot, error)

	// Usage events
	SaveUsageEvent(ctx context.Context, ev model.UsageEvent) error
	ListUsageEvents(ctx context.Context, campaignID string) ([]model.UsageEvent, error)

	// Lifecycle
	Migrate(ctx context.Context) error
	Close() error
}
