// Package telemetry records per-call usage events and aggregates them into
// campaign health metrics.
package telemetry

import (
	"context"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/prospectpro/leadengine/internal/model"
)

// Sink persists usage events. The store layer implements it.
type Sink interface {
	SaveUsageEvent(ctx context.Context, ev model.UsageEvent) error
	ListUsageEvents(ctx context.Context, campaignID string) ([]model.UsageEvent, error)
}

// Recorder emits usage events. Persistence failures are logged, never
// propagated; telemetry must not fail a discovery run.
type Recorder struct {
	sink    Sink
	nowFunc func() time.Time
}

// NewRecorder creates a usage event recorder.
func NewRecorder(sink Sink) *Recorder {
	return &Recorder{sink: sink, nowFunc: time.Now}
}

// Call describes one provider interaction for recording.
type Call struct {
	CampaignID      string
	SourceName      string
	Endpoint        string
	Started         time.Time
	Err             error
	EstimatedCost   decimal.Decimal
	ActualCost      decimal.Decimal
	CacheHit        bool
	ResultsReturned int
}

// Record persists one usage event built from a call outcome.
func (r *Recorder) Record(ctx context.Context, call Call) {
	if r == nil || r.sink == nil {
		return
	}

	now := r.nowFunc().UTC()
	ev := model.UsageEvent{
		RequestID:       uuid.NewString(),
		CampaignID:      call.CampaignID,
		SourceName:      call.SourceName,
		Endpoint:        call.Endpoint,
		Success:         call.Err == nil,
		ResponseTimeMS:  now.Sub(call.Started).Milliseconds(),
		EstimatedCost:   call.EstimatedCost,
		ActualCost:      call.ActualCost,
		CacheHit:        call.CacheHit,
		ResultsReturned: call.ResultsReturned,
		CreatedAt:       now,
	}
	if call.Err != nil {
		ev.ErrorMessage = call.Err.Error()
	}

	if err := r.sink.SaveUsageEvent(ctx, ev); err != nil {
		zap.L().Warn("failed to record usage event",
			zap.String("campaign_id", call.CampaignID),
			zap.String("source", call.SourceName),
			zap.Error(err))
	}
}

// SourceMetrics aggregates usage for one source within a campaign.
type SourceMetrics struct {
	Source         string          `json:"source"`
	Calls          int             `json:"calls"`
	Failures       int             `json:"failures"`
	CacheHits      int             `json:"cache_hits"`
	CacheHitRate   float64         `json:"cache_hit_rate"`
	TotalCost      decimal.Decimal `json:"total_cost"`
	AvgResponseMS  int64           `json:"avg_response_ms"`
	ResultsTotal   int             `json:"results_total"`
	CostPerResult  decimal.Decimal `json:"cost_per_result"`
	EstimatedSaved decimal.Decimal `json:"estimated_saved"`
}

// CampaignMetrics is the aggregate view of a campaign's provider usage.
type CampaignMetrics struct {
	CampaignID   string          `json:"campaign_id"`
	Calls        int             `json:"calls"`
	Failures     int             `json:"failures"`
	CacheHits    int             `json:"cache_hits"`
	CacheHitRate float64         `json:"cache_hit_rate"`
	TotalCost    decimal.Decimal `json:"total_cost"`
	Saved        decimal.Decimal `json:"saved"`
	Sources      []SourceMetrics `json:"sources"`
	CollectedAt  time.Time       `json:"collected_at"`
}

// Collector aggregates recorded usage events.
type Collector struct {
	sink Sink
}

// NewCollector creates a metrics collector over the usage event sink.
func NewCollector(sink Sink) *Collector {
	return &Collector{sink: sink}
}

// Collect computes campaign metrics from all recorded events.
func (c *Collector) Collect(ctx context.Context, campaignID string) (*CampaignMetrics, error) {
	events, err := c.sink.ListUsageEvents(ctx, campaignID)
	if err != nil {
		return nil, eris.Wrap(err, "telemetry: list usage events")
	}

	out := &CampaignMetrics{
		CampaignID:  campaignID,
		TotalCost:   decimal.Zero,
		Saved:       decimal.Zero,
		CollectedAt: time.Now().UTC(),
	}

	bySource := make(map[string]*SourceMetrics)
	msBySource := make(map[string]int64)

	for _, ev := range events {
		sm := bySource[ev.SourceName]
		if sm == nil {
			sm = &SourceMetrics{
				Source:         ev.SourceName,
				TotalCost:      decimal.Zero,
				CostPerResult:  decimal.Zero,
				EstimatedSaved: decimal.Zero,
			}
			bySource[ev.SourceName] = sm
		}

		out.Calls++
		sm.Calls++
		msBySource[ev.SourceName] += ev.ResponseTimeMS
		if !ev.Success {
			out.Failures++
			sm.Failures++
		}
		if ev.CacheHit {
			out.CacheHits++
			sm.CacheHits++
			// A hit saves what the uncached call would have cost.
			sm.EstimatedSaved = sm.EstimatedSaved.Add(ev.EstimatedCost)
			out.Saved = out.Saved.Add(ev.EstimatedCost)
		}
		sm.TotalCost = sm.TotalCost.Add(ev.ActualCost)
		out.TotalCost = out.TotalCost.Add(ev.ActualCost)
		sm.ResultsTotal += ev.ResultsReturned
	}

	for name, sm := range bySource {
		if sm.Calls > 0 {
			sm.CacheHitRate = float64(sm.CacheHits) / float64(sm.Calls)
			sm.AvgResponseMS = msBySource[name] / int64(sm.Calls)
		}
		if sm.ResultsTotal > 0 {
			sm.CostPerResult = sm.TotalCost.Div(decimal.NewFromInt(int64(sm.ResultsTotal)))
		}
		out.Sources = append(out.Sources, *sm)
	}
	sort.Slice(out.Sources, func(i, j int) bool {
		return out.Sources[i].Source < out.Sources[j].Source
	})
	if out.Calls > 0 {
		out.CacheHitRate = float64(out.CacheHits) / float64(out.Calls)
	}

	return out, nil
}
