// Package statereg provides a client for public state business registry
// search endpoints. Each state exposes its own endpoint; the client routes
// lookups by two-letter state code.
package statereg

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/rotisserie/eris"

	"github.com/prospectpro/leadengine/internal/resilience"
)

// ErrUnsupportedState is returned when no endpoint is configured for the
// requested state.
var ErrUnsupportedState = eris.New("statereg: no endpoint for state")

// Client performs state registry lookups.
type Client interface {
	Search(ctx context.Context, state, businessName string) (*SearchResponse, error)
	Supports(state string) bool
}

// SearchResponse is the response from a registry search.
type SearchResponse struct {
	Records []Record `json:"records"`
}

// Record is a single registered-entity match.
type Record struct {
	EntityName   string `json:"entity_name"`
	EntityNumber string `json:"entity_number"`
	Status       string `json:"status"`
	State        string `json:"state"`
	Address      string `json:"address"`
}

// Active reports whether the entity is in good standing with the registry.
func (r Record) Active() bool {
	switch strings.ToLower(r.Status) {
	case "active", "good standing", "in existence":
		return true
	}
	return false
}

// Option configures the client.
type Option func(*httpClient)

// WithHTTPClient overrides the default http.Client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *httpClient) {
		c.http = hc
	}
}

type httpClient struct {
	endpoints map[string]string
	http      *http.Client
}

// NewClient creates a registry client. endpoints maps upper-case two-letter
// state codes to search URLs.
func NewClient(endpoints map[string]string, opts ...Option) Client {
	norm := make(map[string]string, len(endpoints))
	for state, endpoint := range endpoints {
		norm[strings.ToUpper(strings.TrimSpace(state))] = endpoint
	}
	c := &httpClient{
		endpoints: norm,
		http: &http.Client{
			Timeout: 20 * time.Second,
		},
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

func (c *httpClient) Supports(state string) bool {
	_, ok := c.endpoints[strings.ToUpper(strings.TrimSpace(state))]
	return ok
}

func (c *httpClient) Search(ctx context.Context, state, businessName string) (*SearchResponse, error) {
	code := strings.ToUpper(strings.TrimSpace(state))
	endpoint, ok := c.endpoints[code]
	if !ok {
		return nil, eris.Wrapf(ErrUnsupportedState, "statereg: state %q", state)
	}

	params := url.Values{}
	params.Set("q", businessName)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint+"?"+params.Encode(), nil)
	if err != nil {
		return nil, eris.Wrap(err, "statereg: create request")
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, eris.Wrap(err, "statereg: send request")
	}
	defer resp.Body.Close() //nolint:errcheck

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, eris.Wrap(err, "statereg: read response")
	}

	if resp.StatusCode != http.StatusOK {
		kind := resilience.KindFromHTTPStatus(resp.StatusCode)
		return nil, resilience.NewProviderError("state_registry", kind, resp.StatusCode,
			eris.Errorf("statereg: %s returned status %d: %s", code, resp.StatusCode, string(respBody)))
	}

	var result SearchResponse
	if err := json.Unmarshal(respBody, &result); err != nil {
		return nil, eris.Wrap(err, "statereg: unmarshal response")
	}

	for i := range result.Records {
		if result.Records[i].State == "" {
			result.Records[i].State = code
		}
	}

	return &result, nil
}
