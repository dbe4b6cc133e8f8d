package resilience

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestBreakerOpensAfterThreshold(t *testing.T) {
	b := NewBreaker(CircuitConfig{FailureThreshold: 3, ResetTimeout: time.Minute})
	transient := NewProviderError("s", KindTransient, 500, errors.New("x"))

	assert.True(t, b.Allow())
	b.RecordFailure(transient)
	b.RecordFailure(transient)
	assert.Equal(t, CircuitClosed, b.State())
	assert.True(t, b.Allow())

	b.RecordFailure(transient)
	assert.Equal(t, CircuitOpen, b.State())
	assert.False(t, b.Allow())
}

func TestBreakerOpensImmediatelyOnPermanent(t *testing.T) {
	b := NewBreaker(CircuitConfig{FailureThreshold: 10, ResetTimeout: time.Minute})
	b.RecordFailure(NewProviderError("s", KindPermanent, 401, errors.New("bad key")))
	assert.Equal(t, CircuitOpen, b.State())
	assert.False(t, b.Allow())
}

func TestBreakerHalfOpenAfterReset(t *testing.T) {
	b := NewBreaker(CircuitConfig{FailureThreshold: 1, ResetTimeout: 30 * time.Second})
	now := time.Now()
	b.nowFunc = func() time.Time { return now }

	b.RecordFailure(NewProviderError("s", KindTransient, 500, nil))
	assert.False(t, b.Allow())

	// After the reset timeout the breaker probes.
	now = now.Add(31 * time.Second)
	assert.True(t, b.Allow())
	assert.Equal(t, CircuitHalfOpen, b.State())

	// A half-open failure reopens immediately.
	b.RecordFailure(NewProviderError("s", KindTransient, 500, nil))
	assert.Equal(t, CircuitOpen, b.State())

	// A half-open success closes.
	now = now.Add(31 * time.Second)
	assert.True(t, b.Allow())
	b.RecordSuccess()
	assert.Equal(t, CircuitClosed, b.State())
}

func TestBreakerSuccessResetsCounter(t *testing.T) {
	b := NewBreaker(CircuitConfig{FailureThreshold: 2, ResetTimeout: time.Minute})
	transient := NewProviderError("s", KindTransient, 500, nil)

	b.RecordFailure(transient)
	b.RecordSuccess()
	b.RecordFailure(transient)
	assert.Equal(t, CircuitClosed, b.State())
}

func TestBreakerStateChangeCallback(t *testing.T) {
	var transitions []string
	b := NewBreaker(CircuitConfig{
		FailureThreshold: 1,
		ResetTimeout:     time.Minute,
		OnStateChange: func(from, to CircuitState) {
			transitions = append(transitions, from.String()+"->"+to.String())
		},
	})
	b.RecordFailure(NewProviderError("s", KindTransient, 500, nil))
	assert.Equal(t, []string{"closed->open"}, transitions)
}

func TestCircuitStateString(t *testing.T) {
	assert.Equal(t, "closed", CircuitClosed.String())
	assert.Equal(t, "open", CircuitOpen.String())
	assert.Equal(t, "half-open", CircuitHalfOpen.String())
	assert.Equal(t, "unknown", CircuitState(99).String())
}
