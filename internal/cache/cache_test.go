package cache

import (
	"context"
	"testing"
	"time"

	"github.com/rotisserie/eris"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/prospectpro/leadengine/internal/model"
)

func TestSignatureDeterministic(t *testing.T) {
	a := Signature("place_search", map[string]string{"query": "coffee shop", "location": "Seattle, WA"})
	b := Signature("place_search", map[string]string{"location": "Seattle, WA", "query": "coffee shop"})
	assert.Equal(t, a, b)
	assert.Len(t, a, 64)
}

func TestSignatureCanonicalizesValues(t *testing.T) {
	a := Signature("place_search", map[string]string{"query": "Coffee Shop", "location": " Seattle, WA "})
	b := Signature("place_search", map[string]string{"query": "coffee shop", "location": "seattle, wa"})
	assert.Equal(t, a, b)
}

func TestSignatureDistinguishesRequests(t *testing.T) {
	a := Signature("place_search", map[string]string{"query": "coffee shop"})
	b := Signature("place_search", map[string]string{"query": "tea shop"})
	c := Signature("email_search", map[string]string{"query": "coffee shop"})
	assert.NotEqual(t, a, b)
	assert.NotEqual(t, a, c)
}

func TestCacheGetPutRoundtrip(t *testing.T) {
	ctx := context.Background()
	c := New(NewMemory())

	key := Signature("place_search", map[string]string{"query": "coffee"})
	_, hit := c.Get(ctx, key)
	assert.False(t, hit)

	c.Put(ctx, key, "place_search", map[string]string{"query": "coffee"},
		[]byte(`{"places":[]}`), time.Hour, decimal.NewFromFloat(0.032), 85)

	entry, hit := c.Get(ctx, key)
	require.True(t, hit)
	assert.Equal(t, []byte(`{"places":[]}`), entry.ResponseData)
	assert.Equal(t, "place_search", entry.RequestType)
	assert.True(t, entry.Cost.Equal(decimal.NewFromFloat(0.032)))
	assert.Equal(t, 1, entry.HitCount)
}

func TestCacheHitCounterIncrements(t *testing.T) {
	ctx := context.Background()
	c := New(NewMemory())
	key := "k"
	c.Put(ctx, key, "t", nil, []byte("x"), time.Hour, decimal.Zero, 0)

	for i := 1; i <= 3; i++ {
		entry, hit := c.Get(ctx, key)
		require.True(t, hit)
		assert.Equal(t, i, entry.HitCount)
	}
}

func TestCacheExpiryIsMiss(t *testing.T) {
	ctx := context.Background()
	now := time.Now().UTC()
	c := New(NewMemory()).WithNow(func() time.Time { return now })

	c.Put(ctx, "k", "t", nil, []byte("x"), time.Hour, decimal.Zero, 0)

	_, hit := c.Get(ctx, "k")
	assert.True(t, hit)

	now = now.Add(2 * time.Hour)
	_, hit = c.Get(ctx, "k")
	assert.False(t, hit)
}

func TestCacheInactiveIsMiss(t *testing.T) {
	ctx := context.Background()
	backend := NewMemory()
	c := New(backend)

	entry := model.CacheEntry{
		CacheKey:  "k",
		ExpiresAt: time.Now().Add(time.Hour),
		IsActive:  false,
	}
	require.NoError(t, backend.PutEntry(ctx, entry))

	_, hit := c.Get(ctx, "k")
	assert.False(t, hit)
}

func TestCacheNilBackendDegrades(t *testing.T) {
	ctx := context.Background()
	c := New(nil)

	c.Put(ctx, "k", "t", nil, []byte("x"), time.Hour, decimal.Zero, 0)
	_, hit := c.Get(ctx, "k")
	assert.False(t, hit)

	n, err := c.InvalidateExpired(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)
}

type failingBackend struct{}

func (failingBackend) GetEntry(context.Context, string) (*model.CacheEntry, error) {
	return nil, eris.New("backend down")
}
func (failingBackend) PutEntry(context.Context, model.CacheEntry) error {
	return eris.New("backend down")
}
func (failingBackend) TouchEntry(context.Context, string, time.Time) error {
	return eris.New("backend down")
}
func (failingBackend) DeleteExpired(context.Context, time.Time) (int, error) {
	return 0, eris.New("backend down")
}

func TestCacheBackendFailureIsMiss(t *testing.T) {
	ctx := context.Background()
	c := New(failingBackend{})

	_, hit := c.Get(ctx, "k")
	assert.False(t, hit)

	// Put must not panic or error out.
	c.Put(ctx, "k", "t", nil, []byte("x"), time.Hour, decimal.Zero, 0)
}

func TestInvalidateExpired(t *testing.T) {
	ctx := context.Background()
	backend := NewMemory()
	now := time.Now().UTC()
	c := New(backend).WithNow(func() time.Time { return now })

	c.Put(ctx, "live", "t", nil, []byte("x"), time.Hour, decimal.Zero, 0)
	c.Put(ctx, "dead", "t", nil, []byte("x"), time.Minute, decimal.Zero, 0)

	now = now.Add(30 * time.Minute)
	removed, err := c.InvalidateExpired(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, removed)
	assert.Equal(t, 1, backend.Len())
}
