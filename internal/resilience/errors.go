// Package resilience provides retry and circuit-breaker patterns for
// external provider calls, built around a provider-error taxonomy.
package resilience

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strings"
	"syscall"
)

// Kind classifies a provider failure for retry and control-flow decisions.
type Kind string

const (
	// KindTransient covers 5xx responses and recoverable network faults.
	KindTransient Kind = "transient"
	// KindRateLimited covers 429 responses and provider quota rejections.
	KindRateLimited Kind = "rate_limited"
	// KindTimeout covers per-call deadline expiry.
	KindTimeout Kind = "timeout"
	// KindNotFound means the provider answered but had no data. Not retried.
	KindNotFound Kind = "not_found"
	// KindPermanent covers invalid credentials and malformed requests. The
	// source is unusable for the remainder of the run.
	KindPermanent Kind = "permanent"
)

// ProviderError tags a provider failure with its kind and origin.
type ProviderError struct {
	Source     string
	Kind       Kind
	StatusCode int
	Err        error
}

func (e *ProviderError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s: %s", e.Source, e.Kind)
	}
	return fmt.Sprintf("%s: %s: %v", e.Source, e.Kind, e.Err)
}

func (e *ProviderError) Unwrap() error {
	return e.Err
}

// NewProviderError wraps err with a source name and failure kind.
func NewProviderError(source string, kind Kind, statusCode int, err error) *ProviderError {
	return &ProviderError{Source: source, Kind: kind, StatusCode: statusCode, Err: err}
}

// KindFromHTTPStatus maps an HTTP status code to a failure kind.
func KindFromHTTPStatus(statusCode int) Kind {
	switch {
	case statusCode == 429:
		return KindRateLimited
	case statusCode == 408 || statusCode == 504:
		return KindTimeout
	case statusCode >= 500:
		return KindTransient
	case statusCode == 404:
		return KindNotFound
	case statusCode == 401 || statusCode == 403:
		return KindPermanent
	default:
		return KindPermanent
	}
}

// KindOf extracts the failure kind from an error chain. Network-level faults
// without an explicit ProviderError classify as transient; everything else
// unclassified is permanent.
func KindOf(err error) Kind {
	if err == nil {
		return ""
	}

	var pe *ProviderError
	if errors.As(err, &pe) {
		return pe.Kind
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return KindTimeout
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return KindTimeout
	}

	if errors.Is(err, syscall.ECONNRESET) ||
		errors.Is(err, syscall.ECONNREFUSED) ||
		errors.Is(err, syscall.ECONNABORTED) {
		return KindTransient
	}

	// String-based heuristics for wrapped errors from HTTP clients.
	msg := strings.ToLower(err.Error())
	transientPatterns := []string{
		"connection reset by peer",
		"broken pipe",
		"temporary failure in name resolution",
		"no such host",
		"tls handshake timeout",
		"i/o timeout",
		"server closed idle connection",
		"transport connection broken",
	}
	for _, p := range transientPatterns {
		if strings.Contains(msg, p) {
			return KindTransient
		}
	}

	return KindPermanent
}

// Retryable reports whether the error is worth another attempt.
func Retryable(err error) bool {
	switch KindOf(err) {
	case KindTransient, KindRateLimited, KindTimeout:
		return true
	default:
		return false
	}
}

// Permanent reports whether the error disables the source for the rest of a
// run (misconfiguration, bad credentials).
func Permanent(err error) bool {
	return KindOf(err) == KindPermanent
}
