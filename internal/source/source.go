// Package source defines the adapter interface over external data providers
// and the registry the orchestrator resolves adapters from.
package source

import (
	"context"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/prospectpro/leadengine/internal/model"
)

// Kind categorizes what an adapter contributes to the pipeline.
type Kind string

const (
	// KindDiscovery adapters find candidate businesses from a query.
	KindDiscovery Kind = "discovery"
	// KindEmailDiscovery adapters find email addresses for a domain.
	KindEmailDiscovery Kind = "email_discovery"
	// KindEmailVerification adapters check deliverability of an address.
	KindEmailVerification Kind = "email_verification"
	// KindRegistry adapters confirm registration with a state registry.
	KindRegistry Kind = "registry"
)

// Request carries the inputs for one adapter call. Only the fields relevant
// to the adapter's kind are set.
type Request struct {
	// Discovery
	Query    string
	Location string
	Limit    int

	// Email discovery
	Domain string

	// Email verification
	Email string

	// Registry
	State    string
	Business string
}

// DiscoveredEmail is one address found for a domain.
type DiscoveredEmail struct {
	Address    string `json:"address"`
	Type       string `json:"type"`
	Confidence int    `json:"confidence"`
}

// Verification is the outcome of an email deliverability check.
type Verification struct {
	Email       string `json:"email"`
	Result      string `json:"result"`
	Deliverable bool   `json:"deliverable"`
}

// RegistryMatch is a confirmed state-registry record for a business.
type RegistryMatch struct {
	EntityName   string `json:"entity_name"`
	EntityNumber string `json:"entity_number"`
	State        string `json:"state"`
	Active       bool   `json:"active"`
}

// Response is the union of adapter outputs. Discovery adapters fill Results;
// the enrichment kinds fill their respective field.
type Response struct {
	Results      []model.SourceResult `json:"results,omitempty"`
	Emails       []DiscoveredEmail    `json:"emails,omitempty"`
	Verification *Verification        `json:"verification,omitempty"`
	Registry     *RegistryMatch       `json:"registry,omitempty"`
}

// ResultCount returns how many usable items the response carries, for
// telemetry.
func (r *Response) ResultCount() int {
	if r == nil {
		return 0
	}
	n := len(r.Results) + len(r.Emails)
	if r.Verification != nil {
		n++
	}
	if r.Registry != nil {
		n++
	}
	return n
}

// Adapter is a single external data source.
type Adapter interface {
	// Name returns the source identifier used for rate limits, cache keys,
	// and usage events.
	Name() string
	// Kind returns what stage of the pipeline the adapter serves.
	Kind() Kind
	// CostPerCall returns the estimated charge for one uncached call.
	CostPerCall() decimal.Decimal
	// CacheTTL returns how long responses stay fresh.
	CacheTTL() time.Duration
	// Call performs the provider request.
	Call(ctx context.Context, req Request) (*Response, error)
}

// CacheParams extracts the identity of a request for cache keying. Fields
// not relevant to the adapter's kind are empty and omitted.
func CacheParams(kind Kind, req Request) map[string]string {
	params := make(map[string]string, 3)
	switch kind {
	case KindDiscovery:
		params["query"] = req.Query
		params["location"] = req.Location
	case KindEmailDiscovery:
		params["domain"] = req.Domain
	case KindEmailVerification:
		params["email"] = req.Email
	case KindRegistry:
		params["state"] = req.State
		params["business"] = req.Business
	}
	return params
}

// Registry manages available source adapters.
type Registry struct {
	mu       sync.RWMutex
	adapters map[string]Adapter
}

// NewRegistry creates an empty adapter registry.
func NewRegistry() *Registry {
	return &Registry{
		adapters: make(map[string]Adapter),
	}
}

// Register adds an adapter to the registry.
func (r *Registry) Register(a Adapter) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.adapters[a.Name()] = a
}

// Get returns an adapter by name, or nil if not found.
func (r *Registry) Get(name string) Adapter {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.adapters[name]
}

// List returns all registered adapter names.
func (r *Registry) List() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.adapters))
	for name := range r.adapters {
		names = append(names, name)
	}
	return names
}

// OfKind returns all adapters serving the given pipeline stage.
func (r *Registry) OfKind(kind Kind) []Adapter {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []Adapter
	for _, a := range r.adapters {
		if a.Kind() == kind {
			out = append(out, a)
		}
	}
	return out
}
