package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// SourceResult is one provider's raw view of a candidate business. It is
// never mutated after creation; merging happens into a CanonicalLead.
type SourceResult struct {
	Source     string         `json:"source"`
	ProviderID string         `json:"provider_id,omitempty"`
	Name       string         `json:"name"`
	Address    string         `json:"address,omitempty"`
	Phone      string         `json:"phone,omitempty"`
	Website    string         `json:"website,omitempty"`
	Latitude   float64        `json:"latitude,omitempty"`
	Longitude  float64        `json:"longitude,omitempty"`
	Raw        map[string]any `json:"raw,omitempty"`
}

// ValidationStatus describes how far a lead made it through validation.
type ValidationStatus string

const (
	ValidationStatusValidated ValidationStatus = "validated"
	ValidationStatusPending   ValidationStatus = "pending"
	ValidationStatusFailed    ValidationStatus = "failed"
)

// ScoreBreakdown holds the per-field contributions to a confidence score.
// Each component contributes 0..weight points; weights sum to 100.
type ScoreBreakdown struct {
	Name          float64 `json:"name"`
	Address       float64 `json:"address"`
	Phone         float64 `json:"phone"`
	Website       float64 `json:"website"`
	Email         float64 `json:"email"`
	EmailVerified float64 `json:"email_verified"`
	Registry      float64 `json:"registry"`
	Total         float64 `json:"total"`
}

// CanonicalLead is the deduplicated, merged view of a business across
// sources, plus accumulated enrichment evidence.
type CanonicalLead struct {
	Fingerprint      string          `json:"fingerprint"`
	Name             string          `json:"name"`
	Address          string          `json:"address,omitempty"`
	Phone            string          `json:"phone,omitempty"`
	Website          string          `json:"website,omitempty"`
	Email            string          `json:"email,omitempty"`
	EmailVerified    bool            `json:"email_verified"`
	RegistryVerified bool            `json:"registry_verified"`
	WebsiteReachable bool            `json:"website_reachable"`
	Latitude         float64         `json:"latitude,omitempty"`
	Longitude        float64         `json:"longitude,omitempty"`
	Sources          []string        `json:"sources"`
	Score            float64         `json:"score"`
	Breakdown        ScoreBreakdown  `json:"breakdown"`
	CostToAcquire    decimal.Decimal `json:"cost_to_acquire"`
}

// HasSource reports whether the named source already contributed to the lead.
func (l *CanonicalLead) HasSource(name string) bool {
	for _, s := range l.Sources {
		if s == name {
			return true
		}
	}
	return false
}

// QualityGrade buckets a confidence score into the quality bands used for
// lead grading.
type QualityGrade string

const (
	GradeExcellent  QualityGrade = "excellent"
	GradeHigh       QualityGrade = "high"
	GradeGood       QualityGrade = "good"
	GradeAcceptable QualityGrade = "acceptable"
	GradePoor       QualityGrade = "poor"
)

// GradeForScore maps a 0-100 confidence score to a quality grade.
func GradeForScore(score float64) QualityGrade {
	switch {
	case score >= 90:
		return GradeExcellent
	case score >= 80:
		return GradeHigh
	case score >= 70:
		return GradeGood
	case score >= 60:
		return GradeAcceptable
	default:
		return GradePoor
	}
}

// LeadResult is the caller-facing representation of a qualified lead.
type LeadResult struct {
	ID               string           `json:"id"`
	CampaignID       string           `json:"campaign_id"`
	Name             string           `json:"name"`
	Address          string           `json:"address,omitempty"`
	Phone            string           `json:"phone,omitempty"`
	Website          string           `json:"website,omitempty"`
	Email            string           `json:"email,omitempty"`
	Score            float64          `json:"score"`
	Breakdown        ScoreBreakdown   `json:"breakdown"`
	Grade            QualityGrade     `json:"grade"`
	Sources          []string         `json:"sources"`
	CostToAcquire    decimal.Decimal  `json:"cost_to_acquire"`
	ValidationStatus ValidationStatus `json:"validation_status"`
	CreatedAt        time.Time        `json:"created_at"`
}

// FingerprintRecord marks a lead as served, scoped to an owner, for
// cross-campaign deduplication.
type FingerprintRecord struct {
	Fingerprint  string    `json:"fingerprint"`
	BusinessName string    `json:"business_name"`
	CampaignID   string    `json:"campaign_id"`
	LeadID       string    `json:"lead_id"`
	OwnerID      string    `json:"owner_id"`
	CreatedAt    time.Time `json:"created_at"`
}
