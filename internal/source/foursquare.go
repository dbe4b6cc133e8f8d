package source

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"github.com/prospectpro/leadengine/internal/config"
	"github.com/prospectpro/leadengine/internal/model"
	"github.com/prospectpro/leadengine/pkg/foursquare"
)

// SourceFoursquare is the source name for Foursquare place search.
const SourceFoursquare = "foursquare"

type foursquareAdapter struct {
	client foursquare.Client
	cost   decimal.Decimal
	ttl    time.Duration
}

// NewFoursquareAdapter wraps a Foursquare client as a discovery adapter.
func NewFoursquareAdapter(client foursquare.Client, cfg config.SourceConfig) Adapter {
	return &foursquareAdapter{
		client: client,
		cost:   decimal.NewFromFloat(cfg.CostPerCall),
		ttl:    cfg.CacheTTL(),
	}
}

func (a *foursquareAdapter) Name() string                 { return SourceFoursquare }
func (a *foursquareAdapter) Kind() Kind                   { return KindDiscovery }
func (a *foursquareAdapter) CostPerCall() decimal.Decimal { return a.cost }
func (a *foursquareAdapter) CacheTTL() time.Duration      { return a.ttl }

func (a *foursquareAdapter) Call(ctx context.Context, req Request) (*Response, error) {
	resp, err := a.client.Search(ctx, req.Query, req.Location, req.Limit)
	if err != nil {
		return nil, err
	}

	results := make([]model.SourceResult, 0, len(resp.Results))
	for _, p := range resp.Results {
		if p.Name == "" {
			continue
		}
		results = append(results, model.SourceResult{
			Source:     SourceFoursquare,
			ProviderID: p.FsqID,
			Name:       p.Name,
			Address:    p.Location.FormattedAddress,
			Phone:      p.Tel,
			Website:    p.Website,
			Latitude:   p.Geocodes.Main.Latitude,
			Longitude:  p.Geocodes.Main.Longitude,
		})
	}

	return &Response{Results: results}, nil
}
