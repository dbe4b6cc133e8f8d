package source

import (
	"context"
	"sort"
	"time"

	"github.com/shopspring/decimal"

	"github.com/prospectpro/leadengine/internal/config"
	"github.com/prospectpro/leadengine/pkg/hunter"
)

// SourceHunter is the source name for Hunter.io domain search.
const SourceHunter = "hunter_io"

type hunterAdapter struct {
	client hunter.Client
	cost   decimal.Decimal
	ttl    time.Duration
}

// NewHunterAdapter wraps a Hunter.io client as an email discovery adapter.
func NewHunterAdapter(client hunter.Client, cfg config.SourceConfig) Adapter {
	return &hunterAdapter{
		client: client,
		cost:   decimal.NewFromFloat(cfg.CostPerCall),
		ttl:    cfg.CacheTTL(),
	}
}

func (a *hunterAdapter) Name() string                 { return SourceHunter }
func (a *hunterAdapter) Kind() Kind                   { return KindEmailDiscovery }
func (a *hunterAdapter) CostPerCall() decimal.Decimal { return a.cost }
func (a *hunterAdapter) CacheTTL() time.Duration      { return a.ttl }

func (a *hunterAdapter) Call(ctx context.Context, req Request) (*Response, error) {
	resp, err := a.client.DomainSearch(ctx, req.Domain)
	if err != nil {
		return nil, err
	}

	emails := make([]DiscoveredEmail, 0, len(resp.Data.Emails))
	for _, e := range resp.Data.Emails {
		if e.Value == "" {
			continue
		}
		emails = append(emails, DiscoveredEmail{
			Address:    e.Value,
			Type:       e.Type,
			Confidence: e.Confidence,
		})
	}
	// Highest-confidence first so callers can take the front of the list.
	sort.SliceStable(emails, func(i, j int) bool {
		return emails[i].Confidence > emails[j].Confidence
	})

	return &Response{Emails: emails}, nil
}
