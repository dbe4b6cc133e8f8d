package resilience

import (
	"context"
	"errors"
	"syscall"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestKindFromHTTPStatus(t *testing.T) {
	tests := []struct {
		status int
		want   Kind
	}{
		{429, KindRateLimited},
		{408, KindTimeout},
		{504, KindTimeout},
		{500, KindTransient},
		{502, KindTransient},
		{503, KindTransient},
		{404, KindNotFound},
		{401, KindPermanent},
		{403, KindPermanent},
		{400, KindPermanent},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, KindFromHTTPStatus(tt.status), "status %d", tt.status)
	}
}

func TestKindOf(t *testing.T) {
	assert.Equal(t, Kind(""), KindOf(nil))

	pe := NewProviderError("hunter_io", KindRateLimited, 429, errors.New("quota"))
	assert.Equal(t, KindRateLimited, KindOf(pe))

	wrapped := errors.New("call failed: " + pe.Error())
	_ = wrapped // plain strings are not provider errors
	assert.Equal(t, KindPermanent, KindOf(errors.New("bad key")))

	assert.Equal(t, KindTimeout, KindOf(context.DeadlineExceeded))
	assert.Equal(t, KindTransient, KindOf(syscall.ECONNRESET))
	assert.Equal(t, KindTransient, KindOf(errors.New("read tcp: connection reset by peer")))
	assert.Equal(t, KindTransient, KindOf(errors.New("dial tcp: i/o timeout")))
}

func TestRetryable(t *testing.T) {
	assert.True(t, Retryable(NewProviderError("s", KindTransient, 500, nil)))
	assert.True(t, Retryable(NewProviderError("s", KindRateLimited, 429, nil)))
	assert.True(t, Retryable(NewProviderError("s", KindTimeout, 0, nil)))
	assert.False(t, Retryable(NewProviderError("s", KindNotFound, 404, nil)))
	assert.False(t, Retryable(NewProviderError("s", KindPermanent, 401, nil)))
	assert.False(t, Retryable(nil))
}

func TestPermanent(t *testing.T) {
	assert.True(t, Permanent(NewProviderError("s", KindPermanent, 403, nil)))
	assert.False(t, Permanent(NewProviderError("s", KindTransient, 500, nil)))
}

func TestProviderErrorMessage(t *testing.T) {
	pe := NewProviderError("neverbounce", KindPermanent, 401, errors.New("invalid key"))
	assert.Contains(t, pe.Error(), "neverbounce")
	assert.Contains(t, pe.Error(), "permanent")
	assert.Contains(t, pe.Error(), "invalid key")

	bare := NewProviderError("neverbounce", KindNotFound, 404, nil)
	assert.Equal(t, "neverbounce: not_found", bare.Error())
}
