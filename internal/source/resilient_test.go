package source

import (
	"context"
	"testing"
	"time"

	"github.com/rotisserie/eris"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/prospectpro/leadengine/internal/resilience"
)

type flakyAdapter struct {
	calls    int
	failures int
	err      error
}

func (a *flakyAdapter) Name() string                 { return "flaky" }
func (a *flakyAdapter) Kind() Kind                   { return KindDiscovery }
func (a *flakyAdapter) CostPerCall() decimal.Decimal { return decimal.Zero }
func (a *flakyAdapter) CacheTTL() time.Duration      { return time.Hour }

func (a *flakyAdapter) Call(_ context.Context, _ Request) (*Response, error) {
	a.calls++
	if a.calls <= a.failures {
		return nil, a.err
	}
	return &Response{}, nil
}

func fastRetry(attempts int) resilience.RetryConfig {
	return resilience.RetryConfig{
		MaxAttempts:    attempts,
		InitialBackoff: time.Millisecond,
		MaxBackoff:     5 * time.Millisecond,
		Multiplier:     2.0,
	}
}

func TestWithResilience_RetriesTransient(t *testing.T) {
	inner := &flakyAdapter{
		failures: 2,
		err:      resilience.NewProviderError("flaky", resilience.KindTransient, 500, eris.New("boom")),
	}
	a := WithResilience(inner, fastRetry(3), resilience.CircuitConfig{FailureThreshold: 5, ResetTimeout: time.Minute})

	resp, err := a.Call(context.Background(), Request{Query: "q"})
	require.NoError(t, err)
	assert.NotNil(t, resp)
	assert.Equal(t, 3, inner.calls)
}

func TestWithResilience_PermanentFailsFastAndOpens(t *testing.T) {
	inner := &flakyAdapter{
		failures: 100,
		err:      resilience.NewProviderError("flaky", resilience.KindPermanent, 401, eris.New("bad key")),
	}
	a := WithResilience(inner, fastRetry(3), resilience.CircuitConfig{FailureThreshold: 5, ResetTimeout: time.Minute})

	_, err := a.Call(context.Background(), Request{Query: "q"})
	require.Error(t, err)
	assert.Equal(t, 1, inner.calls, "permanent errors are not retried")

	// A permanent failure trips the breaker immediately.
	_, err = a.Call(context.Background(), Request{Query: "q"})
	assert.ErrorIs(t, err, resilience.ErrCircuitOpen)
	assert.Equal(t, 1, inner.calls, "open breaker rejects before calling")
}

func TestWithResilience_PreservesIdentity(t *testing.T) {
	inner := &flakyAdapter{}
	a := WithResilience(inner, fastRetry(1), resilience.CircuitConfig{})

	assert.Equal(t, "flaky", a.Name())
	assert.Equal(t, KindDiscovery, a.Kind())
	assert.Equal(t, time.Hour, a.CacheTTL())
	assert.True(t, a.CostPerCall().IsZero())
}
