package main

import (
	"bytes"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"

	"github.com/prospectpro/leadengine/internal/model"
)

func TestFormatCampaignsList(t *testing.T) {
	campaigns := []model.Campaign{
		{
			ID: "11111111-2222-3333-4444-555555555555",
			Config: model.CampaignConfig{
				SearchTerms: "coffee shop",
				Location:    "Seattle, WA",
			},
			Status: model.CampaignStatusCompleted,
			Summary: &model.CostSummary{
				TotalSpend:     decimal.RequireFromString("0.072"),
				LeadsQualified: 7,
			},
			CreatedAt: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC),
		},
		{
			ID: "99999999-8888-7777-6666-555555555555",
			Config: model.CampaignConfig{
				SearchTerms: "dental clinics with very long search terms here",
				Location:    "Portland, OR",
			},
			Status: model.CampaignStatusDiscovering,
		},
	}

	var buf bytes.Buffer
	formatCampaignsList(&buf, campaigns)
	out := buf.String()

	assert.Contains(t, out, "11111111")
	assert.Contains(t, out, "coffee shop")
	assert.Contains(t, out, "$0.0720")
	assert.Contains(t, out, "completed")
	// Long terms truncated, in-flight campaign has no summary columns.
	assert.Contains(t, out, "dental clinics with v...")
	assert.NotContains(t, out, "very long search terms")
	assert.Contains(t, out, "discovering")
}

func TestTruncateID(t *testing.T) {
	assert.Equal(t, "11111111", truncateID("11111111-2222-3333-4444-555555555555"))
	assert.Equal(t, "short", truncateID("short"))
}
