// Package score computes weighted confidence scores for candidate leads.
// Two passes are distinguished: pre-validation (cheap local format checks,
// run before any paid enrichment) and final validation (full recomputation
// over enriched evidence, which gates inclusion in results).
package score

import (
	"context"
	"net/http"
	"regexp"
	"strings"
	"time"
	"unicode"

	"github.com/prospectpro/leadengine/internal/config"
	"github.com/prospectpro/leadengine/internal/model"
)

// Weights allocates the 100 confidence points across field checks. Each
// check contributes 0..weight points; missing evidence contributes zero and
// is never fabricated.
type Weights struct {
	Name          float64
	Address       float64
	Phone         float64
	Website       float64
	Email         float64
	EmailVerified float64
	Registry      float64
}

// DefaultWeights returns the pinned default allocation (sums to 100).
func DefaultWeights() Weights {
	return Weights{
		Name:          10,
		Address:       15,
		Phone:         15,
		Website:       20,
		Email:         10,
		EmailVerified: 15,
		Registry:      15,
	}
}

// FromConfig builds Weights from scoring configuration.
func FromConfig(cfg config.ScoringConfig) Weights {
	return Weights{
		Name:          cfg.NameWeight,
		Address:       cfg.AddressWeight,
		Phone:         cfg.PhoneWeight,
		Website:       cfg.WebsiteWeight,
		Email:         cfg.EmailWeight,
		EmailVerified: cfg.EmailVerifiedWeight,
		Registry:      cfg.RegistryWeight,
	}
}

// phonePattern accepts NANP numbers with optional country code, separators,
// and parenthesized area codes.
var phonePattern = regexp.MustCompile(`^\+?1?[\s.-]?\(?\d{3}\)?[\s.-]?\d{3}[\s.-]?\d{4}$`)

// ReachabilityChecker answers whether a website responds successfully. The
// HTTP probe lives behind an interface so final validation is testable
// without network access.
type ReachabilityChecker interface {
	Reachable(ctx context.Context, url string) bool
}

// HTTPChecker probes websites with a HEAD request, falling back to GET for
// servers that reject HEAD.
type HTTPChecker struct {
	client *http.Client
}

// NewHTTPChecker creates a checker with the given timeout.
func NewHTTPChecker(timeout time.Duration) *HTTPChecker {
	return &HTTPChecker{client: &http.Client{Timeout: timeout}}
}

// Reachable implements ReachabilityChecker.
func (h *HTTPChecker) Reachable(ctx context.Context, url string) bool {
	if url == "" {
		return false
	}
	if !strings.HasPrefix(url, "http://") && !strings.HasPrefix(url, "https://") {
		url = "https://" + url
	}

	for _, method := range []string{http.MethodHead, http.MethodGet} {
		req, err := http.NewRequestWithContext(ctx, method, url, nil)
		if err != nil {
			return false
		}
		resp, err := h.client.Do(req)
		if err != nil {
			continue
		}
		resp.Body.Close()
		if resp.StatusCode >= 200 && resp.StatusCode < 400 {
			return true
		}
		if resp.StatusCode == http.StatusMethodNotAllowed {
			continue
		}
		return false
	}
	return false
}

// Scorer computes confidence scores under a fixed weight allocation.
type Scorer struct {
	weights Weights
}

// New creates a Scorer.
func New(weights Weights) *Scorer {
	return &Scorer{weights: weights}
}

// PreValidate runs the cheap, local-only checks (name, address, phone
// format) and reports whether the candidate is worth spending enrichment
// budget on. The returned score is the partial sum over those components.
func (s *Scorer) PreValidate(lead *model.CanonicalLead, minScore float64) (float64, bool) {
	total := 0.0
	if NameValid(lead.Name) {
		total += s.weights.Name
	}
	if AddressValid(lead.Address) {
		total += s.weights.Address
	}
	if PhoneValid(lead.Phone) {
		total += s.weights.Phone
	}
	return total, total >= minScore
}

// Score recomputes the full confidence breakdown from the lead's accumulated
// evidence. Adding valid evidence never lowers the score; absent fields
// simply contribute nothing.
func (s *Scorer) Score(lead *model.CanonicalLead) model.ScoreBreakdown {
	var b model.ScoreBreakdown

	if NameValid(lead.Name) {
		b.Name = s.weights.Name
	}
	if AddressValid(lead.Address) {
		b.Address = s.weights.Address
	}
	if PhoneValid(lead.Phone) {
		b.Phone = s.weights.Phone
	}
	if lead.Website != "" && lead.WebsiteReachable {
		b.Website = s.weights.Website
	}
	if lead.Email != "" {
		b.Email = s.weights.Email
	}
	if lead.EmailVerified {
		b.EmailVerified = s.weights.EmailVerified
	}
	if lead.RegistryVerified {
		b.Registry = s.weights.Registry
	}

	b.Total = b.Name + b.Address + b.Phone + b.Website + b.Email + b.EmailVerified + b.Registry
	return b
}

// NameValid reports whether a business name is present and well-formed.
func NameValid(name string) bool {
	name = strings.TrimSpace(name)
	if len(name) < 2 {
		return false
	}
	for _, r := range name {
		if unicode.IsLetter(r) {
			return true
		}
	}
	return false
}

// AddressValid reports whether an address looks resolvable: it needs both a
// number and street text. Actual geocoding is a provider concern; this is
// the local format gate.
func AddressValid(address string) bool {
	address = strings.TrimSpace(address)
	if len(address) < 5 {
		return false
	}
	hasDigit, hasLetter := false, false
	for _, r := range address {
		if unicode.IsDigit(r) {
			hasDigit = true
		}
		if unicode.IsLetter(r) {
			hasLetter = true
		}
	}
	return hasDigit && hasLetter
}

// PhoneValid reports whether a phone number matches a valid national format.
func PhoneValid(phone string) bool {
	phone = strings.TrimSpace(phone)
	if phone == "" {
		return false
	}
	return phonePattern.MatchString(phone)
}
