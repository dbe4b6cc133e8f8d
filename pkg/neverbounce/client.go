// Package neverbounce provides a client for the NeverBounce email
// verification API.
package neverbounce

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

const defaultBaseURL = "https://api.neverbounce.com/v4"

// Verification results returned by the API.
const (
	ResultValid      = "valid"
	ResultInvalid    = "invalid"
	ResultDisposable = "disposable"
	ResultCatchall   = "catchall"
	ResultUnknown    = "unknown"
)

// Client performs NeverBounce API operations.
type Client interface {
	Check(ctx context.Context, email string) (*CheckResponse, error)
}

// CheckResponse is the response from a single email check.
type CheckResponse struct {
	Status  string   `json:"status"`
	Result  string   `json:"result"`
	Flags   []string `json:"flags"`
	Message string   `json:"message"`
}

// Deliverable reports whether the checked address accepts mail. Catchall
// domains accept everything, so only a definitive valid counts.
func (r *CheckResponse) Deliverable() bool {
	return r.Result == ResultValid
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

// NewClient creates a NeverBounce API client.
func NewClient(apiKey string, opts ...Option) Client {
	c := &httpClient{
		apiKey:  apiKey,
		baseURL: defaultBaseURL,
		http: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

func (c *httpClient) Check(ctx context.Context, email string) (*CheckResponse, error) {
	params := url.Values{}
	params.Set("key", c.apiKey)
	params.Set("email", email)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/single/check?"+params.Encode(), nil)
	if err != nil {
		return nil, eris.Wrap(err, "neverbounce: create request")
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, eris.Wrap(err, "neverbounce: send request")
	}
	defer resp.Body.Close() //nolint:errcheck

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, eris.Wrap(err, "neverbounce: read response")
	}

	if resp.StatusCode != http.StatusOK {
		kind := resilience.KindFromHTTPStatus(resp.StatusCode)
		return nil, resilience.NewProviderError("neverbounce", kind, resp.StatusCode,
			eris.Errorf("neverbounce: unexpected status %d: %s", resp.StatusCode, string(respBody)))
	}

	var result CheckResponse
	if err := json.Unmarshal(respBody, &result); err != nil {
		return nil, eris.Wrap(err, "neverbounce: unmarshal response")
	}

	// The API signals failures inside 200 responses.
	switch result.Status {
	case "success":
		return &result, nil
	case "throttle_triggered":
		return nil, resilience.NewProviderError("neverbounce", resilience.KindRateLimited, resp.StatusCode,
			eris.Errorf("neverbounce: throttled: %s", result.Message))
	case "auth_failure":
		return nil, resilience.NewProviderError("neverbounce", resilience.KindPermanent, resp.StatusCode,
			eris.Errorf("neverbounce: auth failure: %s", result.Message))
	default:
		return nil, resilience.NewProviderError("neverbounce", resilience.KindTransient, resp.StatusCode,
			eris.Errorf("neverbounce: api status %q: %s", result.Status, result.Message))
	}
}
