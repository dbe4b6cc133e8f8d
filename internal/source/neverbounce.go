package source

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"github.com/prospectpro/leadengine/internal/config"
	"github.com/prospectpro/leadengine/pkg/neverbounce"
)

// SourceNeverBounce is the source name for NeverBounce email verification.
const SourceNeverBounce = "neverbounce"

type neverbounceAdapter struct {
	client neverbounce.Client
	cost   decimal.Decimal
	ttl    time.Duration
}

// NewNeverBounceAdapter wraps a NeverBounce client as a verification adapter.
func NewNeverBounceAdapter(client neverbounce.Client, cfg config.SourceConfig) Adapter {
	return &neverbounceAdapter{
		client: client,
		cost:   decimal.NewFromFloat(cfg.CostPerCall),
		ttl:    cfg.CacheTTL(),
	}
}

func (a *neverbounceAdapter) Name() string                 { return SourceNeverBounce }
func (a *neverbounceAdapter) Kind() Kind                   { return KindEmailVerification }
func (a *neverbounceAdapter) CostPerCall() decimal.Decimal { return a.cost }
func (a *neverbounceAdapter) CacheTTL() time.Duration      { return a.ttl }

func (a *neverbounceAdapter) Call(ctx context.Context, req Request) (*Response, error) {
	resp, err := a.client.Check(ctx, req.Email)
	if err != nil {
		return nil, err
	}

	return &Response{
		Verification: &Verification{
			Email:       req.Email,
			Result:      resp.Result,
			Deliverable: resp.Deliverable(),
		},
	}, nil
}
