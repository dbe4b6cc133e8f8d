package score

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/prospectpro/leadengine/internal/model"
)

func TestDefaultWeightsSumTo100(t *testing.T) {
	w := DefaultWeights()
	total := w.Name + w.Address + w.Phone + w.Website + w.Email + w.EmailVerified + w.Registry
	assert.InDelta(t, 100.0, total, 0.001)
}

func TestPhoneValid(t *testing.T) {
	valid := []string{
		"206-555-0100",
		"(206) 555-0100",
		"2065550100",
		"+1 206 555 0100",
		"1-206-555-0100",
		"206.555.0100",
	}
	for _, p := range valid {
		assert.True(t, PhoneValid(p), "phone %q", p)
	}

	invalid := []string{"", "555-0100", "not a phone", "123", "206-555-01000"}
	for _, p := range invalid {
		assert.False(t, PhoneValid(p), "phone %q", p)
	}
}

func TestNameValid(t *testing.T) {
	assert.True(t, NameValid("Joe's Cafe"))
	assert.False(t, NameValid(""))
	assert.False(t, NameValid("X"))
	assert.False(t, NameValid("12345"))
}

func TestAddressValid(t *testing.T) {
	assert.True(t, AddressValid("100 Main St"))
	assert.False(t, AddressValid(""))
	assert.False(t, AddressValid("Main Street")) // no number
	assert.False(t, AddressValid("12345"))       // no street text
}

func TestScoreFullEvidence(t *testing.T) {
	s := New(DefaultWeights())
	lead := &model.CanonicalLead{
		Name:             "Joe's Cafe",
		Address:          "100 Main St, Seattle, WA",
		Phone:            "206-555-0100",
		Website:          "https://joescafe.example",
		WebsiteReachable: true,
		Email:            "info@joescafe.example",
		EmailVerified:    true,
		RegistryVerified: true,
	}

	b := s.Score(lead)
	assert.InDelta(t, 100.0, b.Total, 0.001)
}

func TestScoreMissingWebsiteAndEmail(t *testing.T) {
	// Spec scenario: a candidate missing website and email scores at most 55
	// (40 local + 15 registry), below a min_confidence_score of 70.
	s := New(DefaultWeights())
	lead := &model.CanonicalLead{
		Name:    "Joe's Cafe",
		Address: "100 Main St, Seattle, WA",
		Phone:   "206-555-0100",
	}

	b := s.Score(lead)
	assert.InDelta(t, 40.0, b.Total, 0.001)

	lead.RegistryVerified = true
	b = s.Score(lead)
	assert.InDelta(t, 55.0, b.Total, 0.001)
	assert.Less(t, b.Total, 70.0)
}

func TestScoreUnreachableWebsiteScoresZero(t *testing.T) {
	s := New(DefaultWeights())
	lead := &model.CanonicalLead{
		Name:    "Joe's Cafe",
		Website: "https://gone.example",
	}
	b := s.Score(lead)
	assert.Zero(t, b.Website)
}

func TestScoreMonotonicity(t *testing.T) {
	s := New(DefaultWeights())
	lead := &model.CanonicalLead{Name: "Joe's Cafe"}
	prev := s.Score(lead).Total

	steps := []func(){
		func() { lead.Address = "100 Main St" },
		func() { lead.Phone = "206-555-0100" },
		func() { lead.Website = "https://x.example"; lead.WebsiteReachable = true },
		func() { lead.Email = "a@b.example" },
		func() { lead.EmailVerified = true },
		func() { lead.RegistryVerified = true },
	}
	for i, step := range steps {
		step()
		total := s.Score(lead).Total
		assert.GreaterOrEqual(t, total, prev, "step %d decreased score", i)
		prev = total
	}
}

func TestPreValidate(t *testing.T) {
	s := New(DefaultWeights())

	good := &model.CanonicalLead{
		Name:    "Joe's Cafe",
		Address: "100 Main St",
		Phone:   "206-555-0100",
	}
	total, ok := s.PreValidate(good, 25)
	assert.True(t, ok)
	assert.InDelta(t, 40.0, total, 0.001)

	bad := &model.CanonicalLead{Name: "Joe's Cafe"}
	total, ok = s.PreValidate(bad, 25)
	assert.False(t, ok)
	assert.InDelta(t, 10.0, total, 0.001)
}

func TestHTTPCheckerReachable(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	checker := NewHTTPChecker(2 * time.Second)
	assert.True(t, checker.Reachable(context.Background(), srv.URL))
}

func TestHTTPCheckerHeadRejectedFallsBackToGet(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodHead {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	checker := NewHTTPChecker(2 * time.Second)
	assert.True(t, checker.Reachable(context.Background(), srv.URL))
}

func TestHTTPCheckerServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	checker := NewHTTPChecker(2 * time.Second)
	assert.False(t, checker.Reachable(context.Background(), srv.URL))
}

func TestHTTPCheckerEmptyURL(t *testing.T) {
	checker := NewHTTPChecker(time.Second)
	assert.False(t, checker.Reachable(context.Background(), ""))
}

func TestHTTPCheckerUnreachableHost(t *testing.T) {
	require.NotPanics(t, func() {
		checker := NewHTTPChecker(200 * time.Millisecond)
		assert.False(t, checker.Reachable(context.Background(), "http://127.0.0.1:1"))
	})
}
