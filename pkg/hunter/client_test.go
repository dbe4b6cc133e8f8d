package hunter

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

func TestDomainSearch_Success(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodGet, r.Method)
		assert.Equal(t, "/domain-search", r.URL.Path)
		assert.Equal(t, "joescafe.example", r.URL.Query().Get("domain"))
		assert.Equal(t, "hunter-key", r.URL.Query().Get("api_key"))

		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(DomainSearchResponse{
			Data: DomainSearchData{
				Domain:       "joescafe.example",
				Organization: "Joe's Cafe",
				Emails: []Email{
					{Value: "joe@joescafe.example", Type: "personal", Confidence: 92, FirstName: "Joe", LastName: "Smith", Position: "Owner"},
					{Value: "info@joescafe.example", Type: "generic", Confidence: 80},
				},
			},
		})
	}))
	defer srv.Close()

	client := NewClient("hunter-key", WithBaseURL(srv.URL))
	resp, err := client.DomainSearch(context.Background(), "joescafe.example")

	require.NoError(t, err)
	require.Len(t, resp.Data.Emails, 2)
	assert.Equal(t, "joe@joescafe.example", resp.Data.Emails[0].Value)
	assert.Equal(t, 92, resp.Data.Emails[0].Confidence)
}

func TestDomainSearch_NoEmails(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_ = json.NewEncoder(w).Encode(DomainSearchResponse{
			Data: DomainSearchData{Domain: "empty.example"},
		})
	}))
	defer srv.Close()

	client := NewClient("hunter-key", WithBaseURL(srv.URL))
	resp, err := client.DomainSearch(context.Background(), "empty.example")
	require.NoError(t, err)
	assert.Empty(t, resp.Data.Emails)
}

func TestDomainSearch_RateLimited(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer srv.Close()

	client := NewClient("hunter-key", WithBaseURL(srv.URL))
	resp, err := client.DomainSearch(context.Background(), "joescafe.example")

	assert.Error(t, err)
	assert.Nil(t, resp)
	assert.Equal(t, resilience.KindRateLimited, resilience.KindOf(err))
	assert.True(t, resilience.Retryable(err))
}

func TestDomainSearch_BadKey(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = w.Write([]byte(`{"errors":[{"details":"invalid api key"}]}`)) //nolint:errcheck
	}))
	defer srv.Close()

	client := NewClient("bad-key", WithBaseURL(srv.URL))
	_, err := client.DomainSearch(context.Background(), "joescafe.example")

	require.Error(t, err)
	assert.Equal(t, resilience.KindPermanent, resilience.KindOf(err))
	assert.False(t, resilience.Retryable(err))
}
