package source

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/prospectpro/leadengine/internal/config"
	"github.com/prospectpro/leadengine/pkg/foursquare"
	"github.com/prospectpro/leadengine/pkg/hunter"
	"github.com/prospectpro/leadengine/pkg/neverbounce"
	"github.com/prospectpro/leadengine/pkg/places"
	"github.com/prospectpro/leadengine/pkg/statereg"
)

func sourceCfg(cost float64) config.SourceConfig {
	return config.SourceConfig{CostPerCall: cost, CacheTTLHours: 24}
}

type stubPlaces struct {
	resp *places.TextSearchResponse
	err  error
}

func (s *stubPlaces) TextSearch(_ context.Context, _, _ string) (*places.TextSearchResponse, error) {
	return s.resp, s.err
}

func TestPlacesAdapter_MapsResults(t *testing.T) {
	stub := &stubPlaces{resp: &places.TextSearchResponse{
		Places: []places.Place{
			{
				ID:               "p1",
				DisplayName:      places.DisplayName{Text: "Joe's Cafe"},
				FormattedAddress: "100 Main St, Seattle, WA",
				NationalPhone:    "(206) 555-0100",
				WebsiteURI:       "https://joescafe.example",
				Location:         places.LatLng{Latitude: 47.6, Longitude: -122.3},
			},
			{ID: "p2"}, // nameless results are dropped
		},
	}}

	a := NewPlacesAdapter(stub, sourceCfg(0.032))
	assert.Equal(t, SourceGooglePlaces, a.Name())
	assert.Equal(t, KindDiscovery, a.Kind())
	assert.Equal(t, "0.032", a.CostPerCall().String())

	resp, err := a.Call(context.Background(), Request{Query: "coffee", Location: "Seattle, WA"})
	require.NoError(t, err)
	require.Len(t, resp.Results, 1)
	assert.Equal(t, SourceGooglePlaces, resp.Results[0].Source)
	assert.Equal(t, "Joe's Cafe", resp.Results[0].Name)
	assert.Equal(t, "p1", resp.Results[0].ProviderID)
	assert.Equal(t, 1, resp.ResultCount())
}

func TestPlacesAdapter_Limit(t *testing.T) {
	stub := &stubPlaces{resp: &places.TextSearchResponse{
		Places: []places.Place{
			{ID: "p1", DisplayName: places.DisplayName{Text: "A"}},
			{ID: "p2", DisplayName: places.DisplayName{Text: "B"}},
			{ID: "p3", DisplayName: places.DisplayName{Text: "C"}},
		},
	}}

	a := NewPlacesAdapter(stub, sourceCfg(0.032))
	resp, err := a.Call(context.Background(), Request{Query: "q", Limit: 2})
	require.NoError(t, err)
	assert.Len(t, resp.Results, 2)
}

type stubFoursquare struct {
	resp *foursquare.SearchResponse
	err  error
}

func (s *stubFoursquare) Search(_ context.Context, _, _ string, _ int) (*foursquare.SearchResponse, error) {
	return s.resp, s.err
}

func TestFoursquareAdapter_MapsResults(t *testing.T) {
	stub := &stubFoursquare{resp: &foursquare.SearchResponse{
		Results: []foursquare.Place{
			{
				FsqID:    "f1",
				Name:     "Joe's Cafe",
				Location: foursquare.Location{FormattedAddress: "100 Main St, Seattle, WA"},
				Tel:      "(206) 555-0100",
			},
		},
	}}

	a := NewFoursquareAdapter(stub, sourceCfg(0))
	assert.Equal(t, SourceFoursquare, a.Name())
	assert.True(t, a.CostPerCall().IsZero())

	resp, err := a.Call(context.Background(), Request{Query: "coffee"})
	require.NoError(t, err)
	require.Len(t, resp.Results, 1)
	assert.Equal(t, SourceFoursquare, resp.Results[0].Source)
}

type stubHunter struct {
	resp *hunter.DomainSearchResponse
	err  error
}

func (s *stubHunter) DomainSearch(_ context.Context, _ string) (*hunter.DomainSearchResponse, error) {
	return s.resp, s.err
}

func TestHunterAdapter_SortsByConfidence(t *testing.T) {
	stub := &stubHunter{resp: &hunter.DomainSearchResponse{
		Data: hunter.DomainSearchData{
			Emails: []hunter.Email{
				{Value: "info@x.example", Confidence: 70},
				{Value: "joe@x.example", Confidence: 95},
				{Value: ""},
			},
		},
	}}

	a := NewHunterAdapter(stub, sourceCfg(0.04))
	assert.Equal(t, KindEmailDiscovery, a.Kind())

	resp, err := a.Call(context.Background(), Request{Domain: "x.example"})
	require.NoError(t, err)
	require.Len(t, resp.Emails, 2)
	assert.Equal(t, "joe@x.example", resp.Emails[0].Address)
}

type stubNeverBounce struct {
	resp *neverbounce.CheckResponse
	err  error
}

func (s *stubNeverBounce) Check(_ context.Context, _ string) (*neverbounce.CheckResponse, error) {
	return s.resp, s.err
}

func TestNeverBounceAdapter(t *testing.T) {
	stub := &stubNeverBounce{resp: &neverbounce.CheckResponse{Status: "success", Result: neverbounce.ResultValid}}

	a := NewNeverBounceAdapter(stub, sourceCfg(0.008))
	assert.Equal(t, KindEmailVerification, a.Kind())

	resp, err := a.Call(context.Background(), Request{Email: "joe@x.example"})
	require.NoError(t, err)
	require.NotNil(t, resp.Verification)
	assert.True(t, resp.Verification.Deliverable)
	assert.Equal(t, "joe@x.example", resp.Verification.Email)
}

type stubRegistry struct {
	resp     *statereg.SearchResponse
	err      error
	supports bool
}

func (s *stubRegistry) Search(_ context.Context, _, _ string) (*statereg.SearchResponse, error) {
	return s.resp, s.err
}

func (s *stubRegistry) Supports(_ string) bool { return s.supports }

func TestRegistryAdapter_MatchesNormalizedName(t *testing.T) {
	stub := &stubRegistry{
		supports: true,
		resp: &statereg.SearchResponse{
			Records: []statereg.Record{
				{EntityName: "SOMEONE ELSE INC", EntityNumber: "111", Status: "Active", State: "WA"},
				{EntityName: "JOE'S CAFE LLC", EntityNumber: "222", Status: "Active", State: "WA"},
			},
		},
	}

	a := NewRegistryAdapter(stub, sourceCfg(0))
	resp, err := a.Call(context.Background(), Request{State: "WA", Business: "Joe's Cafe"})
	require.NoError(t, err)
	require.NotNil(t, resp.Registry)
	assert.Equal(t, "222", resp.Registry.EntityNumber)
	assert.True(t, resp.Registry.Active)
}

func TestRegistryAdapter_UnsupportedStateIsNotAnError(t *testing.T) {
	a := NewRegistryAdapter(&stubRegistry{supports: false}, sourceCfg(0))
	resp, err := a.Call(context.Background(), Request{State: "NV", Business: "Joe's Cafe"})
	require.NoError(t, err)
	assert.Nil(t, resp.Registry)
	assert.Equal(t, 0, resp.ResultCount())
}

func TestRegistryAdapter_NoMatch(t *testing.T) {
	stub := &stubRegistry{
		supports: true,
		resp:     &statereg.SearchResponse{Records: []statereg.Record{{EntityName: "OTHER BUSINESS LLC"}}},
	}

	a := NewRegistryAdapter(stub, sourceCfg(0))
	resp, err := a.Call(context.Background(), Request{State: "WA", Business: "Joe's Cafe"})
	require.NoError(t, err)
	assert.Nil(t, resp.Registry)
}

func TestRegistry_RegisterAndLookup(t *testing.T) {
	reg := NewRegistry()
	reg.Register(NewPlacesAdapter(&stubPlaces{}, sourceCfg(0.032)))
	reg.Register(NewFoursquareAdapter(&stubFoursquare{}, sourceCfg(0)))
	reg.Register(NewHunterAdapter(&stubHunter{}, sourceCfg(0.04)))

	assert.NotNil(t, reg.Get(SourceGooglePlaces))
	assert.Nil(t, reg.Get("unknown"))
	assert.ElementsMatch(t, []string{SourceGooglePlaces, SourceFoursquare, SourceHunter}, reg.List())

	discovery := reg.OfKind(KindDiscovery)
	assert.Len(t, discovery, 2)
	assert.Len(t, reg.OfKind(KindEmailVerification), 0)
}

func TestCacheParams(t *testing.T) {
	req := Request{
		Query: "coffee", Location: "Seattle, WA",
		Domain: "x.example", Email: "joe@x.example",
		State: "WA", Business: "Joe's Cafe",
	}

	assert.Equal(t, map[string]string{"query": "coffee", "location": "Seattle, WA"}, CacheParams(KindDiscovery, req))
	assert.Equal(t, map[string]string{"domain": "x.example"}, CacheParams(KindEmailDiscovery, req))
	assert.Equal(t, map[string]string{"email": "joe@x.example"}, CacheParams(KindEmailVerification, req))
	assert.Equal(t, map[string]string{"state": "WA", "business": "Joe's Cafe"}, CacheParams(KindRegistry, req))
}
