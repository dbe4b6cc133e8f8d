package source

import (
	"context"
	"time"

	"github.com/rotisserie/eris"
	"github.com/shopspring/decimal"

	"github.com/prospectpro/leadengine/internal/resilience"
)

type resilientAdapter struct {
	inner   Adapter
	retry   resilience.RetryConfig
	breaker *resilience.Breaker
}

// WithResilience wraps an adapter with retry and a circuit breaker. Calls are
// rejected with ErrCircuitOpen while the source is tripped; retries apply
// only to transient failures.
func WithResilience(inner Adapter, retry resilience.RetryConfig, circuit resilience.CircuitConfig) Adapter {
	if retry.OnRetry == nil {
		retry.OnRetry = resilience.RetryLogger(inner.Name(), string(inner.Kind()))
	}
	return &resilientAdapter{
		inner:   inner,
		retry:   retry,
		breaker: resilience.NewBreaker(circuit),
	}
}

func (a *resilientAdapter) Name() string                 { return a.inner.Name() }
func (a *resilientAdapter) Kind() Kind                   { return a.inner.Kind() }
func (a *resilientAdapter) CostPerCall() decimal.Decimal { return a.inner.CostPerCall() }
func (a *resilientAdapter) CacheTTL() time.Duration      { return a.inner.CacheTTL() }

func (a *resilientAdapter) Call(ctx context.Context, req Request) (*Response, error) {
	if !a.breaker.Allow() {
		return nil, eris.Wrapf(resilience.ErrCircuitOpen, "source: %s", a.inner.Name())
	}

	resp, err := resilience.DoVal(ctx, a.retry, func(ctx context.Context) (*Response, error) {
		return a.inner.Call(ctx, req)
	})
	if err != nil {
		a.breaker.RecordFailure(err)
		return nil, err
	}

	a.breaker.RecordSuccess()
	return resp, nil
}
