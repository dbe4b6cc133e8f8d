// Package foursquare provides a client for the Foursquare Places search API.
package foursquare

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/rotisserie/eris"

	"github.com/prospectpro/leadengine/internal/resilience"
)

const defaultBaseURL = "https://api.foursquare.com/v3"

// Client performs Foursquare Places API operations.
type Client interface {
	Search(ctx context.Context, query, near string, limit int) (*SearchResponse, error)
}

// SearchResponse is the response from a place search.
type SearchResponse struct {
	Results []Place `json:"results"`
}

// Place represents a place returned by the API.
type Place struct {
	FsqID    string   `json:"fsq_id"`
	Name     string   `json:"name"`
	Location Location `json:"location"`
	Tel      string   `json:"tel"`
	Website  string   `json:"website"`
	Geocodes Geocodes `json:"geocodes"`
}

// Location holds a place's address fields.
type Location struct {
	FormattedAddress string `json:"formatted_address"`
	Locality         string `json:"locality"`
	Region           string `json:"region"`
	Postcode         string `json:"postcode"`
}

// Geocodes holds a place's coordinates.
type Geocodes struct {
	Main LatLng `json:"main"`
}

// LatLng holds geographic coordinates.
type LatLng struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
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

// NewClient creates a Foursquare Places API client.
func NewClient(apiKey string, opts ...Option) Client {
	c := &httpClient{
		apiKey:  apiKey,
		baseURL: defaultBaseURL,
		http: &http.Client{
			Timeout: 10 * time.Second,
		},
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

func (c *httpClient) Search(ctx context.Context, query, near string, limit int) (*SearchResponse, error) {
	params := url.Values{}
	params.Set("query", query)
	if near != "" {
		params.Set("near", near)
	}
	if limit > 0 {
		params.Set("limit", strconv.Itoa(limit))
	}
	params.Set("fields", "fsq_id,name,location,tel,website,geocodes")

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/places/search?"+params.Encode(), nil)
	if err != nil {
		return nil, eris.Wrap(err, "foursquare: create request")
	}

	req.Header.Set("Accept", "application/json")
	req.Header.Set("Authorization", c.apiKey)

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, eris.Wrap(err, "foursquare: send request")
	}
	defer resp.Body.Close() //nolint:errcheck

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, eris.Wrap(err, "foursquare: read response")
	}

	if resp.StatusCode != http.StatusOK {
		kind := resilience.KindFromHTTPStatus(resp.StatusCode)
		return nil, resilience.NewProviderError("foursquare", kind, resp.StatusCode,
			eris.Errorf("foursquare: unexpected status %d: %s", resp.StatusCode, string(respBody)))
	}

	var result SearchResponse
	if err := json.Unmarshal(respBody, &result); err != nil {
		return nil, eris.Wrap(err, "foursquare: unmarshal response")
	}

	return &result, nil
}
