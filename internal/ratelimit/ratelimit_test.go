package ratelimit

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAllowConsumesBurst(t *testing.T) {
	l := New()
	l.Configure("google_places", 1, 2)

	assert.True(t, l.Allow("google_places"))
	assert.True(t, l.Allow("google_places"))
	assert.False(t, l.Allow("google_places"))
}

func TestAllowUnknownSource(t *testing.T) {
	l := New()
	assert.False(t, l.Allow("nope"))
	assert.True(t, l.WouldBlock("nope"))
}

func TestSourcesAreIndependent(t *testing.T) {
	l := New()
	l.Configure("hunter_io", 1, 1)
	l.Configure("foursquare", 1, 2)

	assert.True(t, l.Allow("hunter_io"))
	assert.False(t, l.Allow("hunter_io"))

	// Exhausting hunter_io leaves foursquare untouched.
	assert.True(t, l.Allow("foursquare"))
	assert.True(t, l.Allow("foursquare"))
}

func TestWouldBlock(t *testing.T) {
	l := New()
	l.Configure("s", 1, 1)
	assert.False(t, l.WouldBlock("s"))
	require.True(t, l.Allow("s"))
	assert.True(t, l.WouldBlock("s"))
}

func TestWaitRefills(t *testing.T) {
	l := New()
	l.Configure("s", 100, 1)
	require.True(t, l.Allow("s"))

	ctx := context.Background()
	start := time.Now()
	require.NoError(t, l.Wait(ctx, "s", time.Second))
	assert.Less(t, time.Since(start), 500*time.Millisecond)
}

func TestWaitMaxWaitExpires(t *testing.T) {
	l := New()
	l.Configure("s", 0.1, 1) // one token per 10s
	require.True(t, l.Allow("s"))

	err := l.Wait(context.Background(), "s", 20*time.Millisecond)
	assert.Error(t, err)
}

func TestWaitUnknownSource(t *testing.T) {
	l := New()
	err := l.Wait(context.Background(), "missing", time.Second)
	assert.Error(t, err)
}

func TestConfigureClampsBadValues(t *testing.T) {
	l := New()
	l.Configure("s", 0, 0)
	assert.True(t, l.Allow("s")) // burst clamped to 1
	assert.False(t, l.Allow("s"))
}
