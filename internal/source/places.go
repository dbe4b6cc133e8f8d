package source

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"github.com/prospectpro/leadengine/internal/config"
	"github.com/prospectpro/leadengine/internal/model"
	"github.com/prospectpro/leadengine/pkg/places"
)

// SourceGooglePlaces is the source name for Google Places text search.
const SourceGooglePlaces = "google_places"

type placesAdapter struct {
	client places.Client
	cost   decimal.Decimal
	ttl    time.Duration
}

// NewPlacesAdapter wraps a Google Places client as a discovery adapter.
func NewPlacesAdapter(client places.Client, cfg config.SourceConfig) Adapter {
	return &placesAdapter{
		client: client,
		cost:   decimal.NewFromFloat(cfg.CostPerCall),
		ttl:    cfg.CacheTTL(),
	}
}

func (a *placesAdapter) Name() string                 { return SourceGooglePlaces }
func (a *placesAdapter) Kind() Kind                   { return KindDiscovery }
func (a *placesAdapter) CostPerCall() decimal.Decimal { return a.cost }
func (a *placesAdapter) CacheTTL() time.Duration      { return a.ttl }

func (a *placesAdapter) Call(ctx context.Context, req Request) (*Response, error) {
	resp, err := a.client.TextSearch(ctx, req.Query, req.Location)
	if err != nil {
		return nil, err
	}

	results := make([]model.SourceResult, 0, len(resp.Places))
	for _, p := range resp.Places {
		if p.DisplayName.Text == "" {
			continue
		}
		results = append(results, model.SourceResult{
			Source:     SourceGooglePlaces,
			ProviderID: p.ID,
			Name:       p.DisplayName.Text,
			Address:    p.FormattedAddress,
			Phone:      p.NationalPhone,
			Website:    p.WebsiteURI,
			Latitude:   p.Location.Latitude,
			Longitude:  p.Location.Longitude,
			Raw: map[string]any{
				"rating":            p.Rating,
				"user_rating_count": p.UserRatingCount,
			},
		})
	}
	if req.Limit > 0 && len(results) > req.Limit {
		results = results[:req.Limit]
	}

	return &Response{Results: results}, nil
}
