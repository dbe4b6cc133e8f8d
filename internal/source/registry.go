package source

import (
	"context"
	"time"

	"github.com/rotisserie/eris"
	"github.com/shopspring/decimal"

	"github.com/prospectpro/leadengine/internal/config"
	"github.com/prospectpro/leadengine/internal/fingerprint"
	"github.com/prospectpro/leadengine/pkg/statereg"
)

// SourceStateRegistry is the source name for state business registries.
const SourceStateRegistry = "state_registry"

type registryAdapter struct {
	client statereg.Client
	cost   decimal.Decimal
	ttl    time.Duration
}

// NewRegistryAdapter wraps a state registry client as a registry adapter.
func NewRegistryAdapter(client statereg.Client, cfg config.SourceConfig) Adapter {
	return &registryAdapter{
		client: client,
		cost:   decimal.NewFromFloat(cfg.CostPerCall),
		ttl:    cfg.CacheTTL(),
	}
}

func (a *registryAdapter) Name() string                 { return SourceStateRegistry }
func (a *registryAdapter) Kind() Kind                   { return KindRegistry }
func (a *registryAdapter) CostPerCall() decimal.Decimal { return a.cost }
func (a *registryAdapter) CacheTTL() time.Duration      { return a.ttl }

func (a *registryAdapter) Call(ctx context.Context, req Request) (*Response, error) {
	// States without a configured endpoint simply contribute no evidence.
	if !a.client.Supports(req.State) {
		return &Response{}, nil
	}

	resp, err := a.client.Search(ctx, req.State, req.Business)
	if err != nil {
		if eris.Is(err, statereg.ErrUnsupportedState) {
			return &Response{}, nil
		}
		return nil, err
	}

	want := fingerprint.NormalizeName(req.Business)
	if want == "" {
		return &Response{}, nil
	}

	for _, rec := range resp.Records {
		if fingerprint.NormalizeName(rec.EntityName) != want {
			continue
		}
		return &Response{
			Registry: &RegistryMatch{
				EntityName:   rec.EntityName,
				EntityNumber: rec.EntityNumber,
				State:        rec.State,
				Active:       rec.Active(),
			},
		}, nil
	}

	return &Response{}, nil
}
