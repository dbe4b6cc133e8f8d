package neverbounce

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/prospectpro/leadengine/internal/resilience"
)

func TestCheck_Valid(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodGet, r.Method)
		assert.Equal(t, "/single/check", r.URL.Path)
		assert.Equal(t, "nb-key", r.URL.Query().Get("key"))
		assert.Equal(t, "joe@joescafe.example", r.URL.Query().Get("email"))

		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(CheckResponse{
			Status: "success",
			Result: ResultValid,
			Flags:  []string{"has_dns", "smtp_connectable"},
		})
	}))
	defer srv.Close()

	client := NewClient("nb-key", WithBaseURL(srv.URL))
	resp, err := client.Check(context.Background(), "joe@joescafe.example")

	require.NoError(t, err)
	assert.Equal(t, ResultValid, resp.Result)
	assert.True(t, resp.Deliverable())
}

func TestCheck_Catchall(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_ = json.NewEncoder(w).Encode(CheckResponse{Status: "success", Result: ResultCatchall})
	}))
	defer srv.Close()

	client := NewClient("nb-key", WithBaseURL(srv.URL))
	resp, err := client.Check(context.Background(), "anything@catchall.example")

	require.NoError(t, err)
	assert.False(t, resp.Deliverable())
}

func TestCheck_Throttled(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_ = json.NewEncoder(w).Encode(CheckResponse{Status: "throttle_triggered", Message: "too many requests"})
	}))
	defer srv.Close()

	client := NewClient("nb-key", WithBaseURL(srv.URL))
	resp, err := client.Check(context.Background(), "joe@joescafe.example")

	assert.Error(t, err)
	assert.Nil(t, resp)
	assert.Equal(t, resilience.KindRateLimited, resilience.KindOf(err))
	assert.True(t, resilience.Retryable(err))
}

func TestCheck_AuthFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_ = json.NewEncoder(w).Encode(CheckResponse{Status: "auth_failure", Message: "invalid api key"})
	}))
	defer srv.Close()

	client := NewClient("bad-key", WithBaseURL(srv.URL))
	_, err := client.Check(context.Background(), "joe@joescafe.example")

	require.Error(t, err)
	assert.Equal(t, resilience.KindPermanent, resilience.KindOf(err))
}

func TestCheck_ServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	client := NewClient("nb-key", WithBaseURL(srv.URL))
	_, err := client.Check(context.Background(), "joe@joescafe.example")

	require.Error(t, err)
	assert.Equal(t, resilience.KindTransient, resilience.KindOf(err))
}
