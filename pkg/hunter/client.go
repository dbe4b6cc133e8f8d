// Package hunter provides a client for the Hunter.io domain search API.
package hunter

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/rotisserie/eris"

	"github.com/prospectpro/leadengine/internal/resilience"
)

const defaultBaseURL = "https://api.hunter.io/v2"

// Client performs Hunter.io API operations.
type Client interface {
	DomainSearch(ctx context.Context, domain string) (*DomainSearchResponse, error)
}

// DomainSearchResponse is the response from a domain search.
type DomainSearchResponse struct {
	Data DomainSearchData `json:"data"`
}

// DomainSearchData holds the emails found for a domain.
type DomainSearchData struct {
	Domain       string  `json:"domain"`
	Organization string  `json:"organization"`
	Emails       []Email `json:"emails"`
}

// Email is a single address discovered for a domain.
type Email struct {
	Value      string `json:"value"`
	Type       string `json:"type"`
	Confidence int    `json:"confidence"`
	FirstName  string `json:"first_name"`
	LastName   string `json:"last_name"`
	Position   string `json:"position"`
}

// Option configures the client.
type Option func(*httpClient)

// WithBaseURL overrides the default API base URL.
func WithBaseURL(url string) Option {
	return func(c *httpClient) {
		c.baseURL = url
	}
}

// WithHTTPClient overrides the default http.Client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *httpClient) {
		c.http = hc
	}
}

type httpClient struct {
	apiKey  string
	baseURL string
	http    *http.Client
}

// NewClient creates a Hunter.io API client.
func NewClient(apiKey string, opts ...Option) Client {
	c := &httpClient{
		apiKey:  apiKey,
		baseURL: defaultBaseURL,
		http: &http.Client{
			Timeout: 15 * time.Second,
		},
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

func (c *httpClient) DomainSearch(ctx context.Context, domain string) (*DomainSearchResponse, error) {
	params := url.Values{}
	params.Set("domain", domain)
	params.Set("api_key", c.apiKey)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/domain-search?"+params.Encode(), nil)
	if err != nil {
		return nil, eris.Wrap(err, "hunter: create request")
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, eris.Wrap(err, "hunter: send request")
	}
	defer resp.Body.Close() //nolint:errcheck

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, eris.Wrap(err, "hunter: read response")
	}

	if resp.StatusCode != http.StatusOK {
		kind := resilience.KindFromHTTPStatus(resp.StatusCode)
		return nil, resilience.NewProviderError("hunter_io", kind, resp.StatusCode,
			eris.Errorf("hunter: unexpected status %d: %s", resp.StatusCode, string(respBody)))
	}

	var result DomainSearchResponse
	if err := json.Unmarshal(respBody, &result); err != nil {
		return nil, eris.Wrap(err, "hunter: unmarshal response")
	}

	return &result, nil
}
