package model

import (
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"github.com/shopspring/decimal"
)

// CampaignStatus represents the current state of a discovery campaign run.
type CampaignStatus string

const (
	CampaignStatusPending         CampaignStatus = "pending"
	CampaignStatusDiscovering     CampaignStatus = "discovering"
	CampaignStatusPreValidating   CampaignStatus = "pre_validating"
	CampaignStatusEnriching       CampaignStatus = "enriching"
	CampaignStatusFinalValidating CampaignStatus = "final_validating"
	CampaignStatusCompleted       CampaignStatus = "completed"
	CampaignStatusBudgetExhausted CampaignStatus = "budget_exhausted"
	CampaignStatusFailed          CampaignStatus = "failed"
)

// DedupScope controls how far cross-campaign deduplication reaches.
type DedupScope string

const (
	// DedupScopeOwner filters leads already served to the same owner.
	DedupScopeOwner DedupScope = "owner"
	// DedupScopeGlobal filters leads served to anyone.
	DedupScopeGlobal DedupScope = "global"
)

// EnrichmentToggles selects which optional paid enrichments a campaign permits.
type EnrichmentToggles struct {
	EmailDiscovery    bool `json:"email_discovery"`
	EmailVerification bool `json:"email_verification"`
	RegistryLookup    bool `json:"registry_lookup"`
}

// CampaignConfig is the immutable configuration for a single campaign run.
type CampaignConfig struct {
	SearchTerms        string            `json:"search_terms"`
	Location           string            `json:"location"`
	TargetCount        int               `json:"target_count"`
	BudgetLimit        decimal.Decimal   `json:"budget_limit"`
	MinConfidenceScore float64           `json:"min_confidence_score"`
	Enrichment         EnrichmentToggles `json:"enrichment"`
	OwnerID            string            `json:"owner_id"`
	DedupScope         DedupScope        `json:"dedup_scope,omitempty"`
}

// Validate checks required campaign fields. Invalid configuration is the only
// caller-visible hard failure; provider-level problems degrade to partial runs.
func (c CampaignConfig) Validate() error {
	if strings.TrimSpace(c.SearchTerms) == "" {
		return eris.New("campaign: search_terms is required")
	}
	if strings.TrimSpace(c.Location) == "" {
		return eris.New("campaign: location is required")
	}
	if c.TargetCount <= 0 {
		return eris.New("campaign: target_count must be positive")
	}
	if c.BudgetLimit.IsNegative() {
		return eris.New("campaign: budget_limit must not be negative")
	}
	if c.MinConfidenceScore < 0 || c.MinConfidenceScore > 100 {
		return eris.New("campaign: min_confidence_score must be within 0-100")
	}
	if c.DedupScope != "" && c.DedupScope != DedupScopeOwner && c.DedupScope != DedupScopeGlobal {
		return eris.Errorf("campaign: unknown dedup_scope %q", c.DedupScope)
	}
	return nil
}

// Campaign is a persisted campaign run with its outcome.
type Campaign struct {
	ID        string         `json:"id"`
	Config    CampaignConfig `json:"config"`
	Status    CampaignStatus `json:"status"`
	Summary   *CostSummary   `json:"summary,omitempty"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
}

// SourceCost is a per-source line item in the cost report.
type SourceCost struct {
	Source string          `json:"source"`
	Calls  int             `json:"calls"`
	Cost   decimal.Decimal `json:"cost"`
}

// CachePerformance summarizes cache behavior for a run.
type CachePerformance struct {
	Hits             int             `json:"hits"`
	Misses           int             `json:"misses"`
	EstimatedSavings decimal.Decimal `json:"estimated_savings"`
}

// CostSummary is the cost report returned alongside campaign results.
type CostSummary struct {
	TotalSpend       decimal.Decimal  `json:"total_spend"`
	SpendPerSource   []SourceCost     `json:"spend_per_source"`
	CachePerformance CachePerformance `json:"cache_performance"`
	LeadsQualified   int              `json:"leads_qualified"`
	LeadsDiscovered  int              `json:"leads_discovered"`
}
