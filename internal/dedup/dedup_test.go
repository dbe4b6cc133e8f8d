package dedup

import (
	"context"
	"sync"
	"testing"

	"github.com/rotisserie/eris"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/prospectpro/leadengine/internal/model"
)

type stubChecker struct {
	served map[string]bool
	err    error

	mu    sync.Mutex
	calls []string
	scope model.DedupScope
	owner string
}

func (s *stubChecker) FingerprintServed(_ context.Context, fp, ownerID string, scope model.DedupScope) (bool, error) {
	s.mu.Lock()
	s.calls = append(s.calls, fp)
	s.owner = ownerID
	s.scope = scope
	s.mu.Unlock()
	if s.err != nil {
		return false, s.err
	}
	return s.served[fp], nil
}

func TestSeen_NewFingerprint(t *testing.T) {
	checker := &stubChecker{served: map[string]bool{}}
	f := NewFilter(checker, "owner-1", model.DedupScopeOwner)

	seen, err := f.Seen(context.Background(), "fp-1")
	require.NoError(t, err)
	assert.False(t, seen)
	assert.Equal(t, "owner-1", checker.owner)
	assert.Equal(t, model.DedupScopeOwner, checker.scope)
	assert.Equal(t, 1, f.Count())
}

func TestSeen_RepeatWithinRun(t *testing.T) {
	checker := &stubChecker{served: map[string]bool{}}
	f := NewFilter(checker, "owner-1", model.DedupScopeOwner)

	_, err := f.Seen(context.Background(), "fp-1")
	require.NoError(t, err)

	seen, err := f.Seen(context.Background(), "fp-1")
	require.NoError(t, err)
	assert.True(t, seen)
	assert.Len(t, checker.calls, 1, "history consulted only once per fingerprint")
}

func TestSeen_ServedInPastCampaign(t *testing.T) {
	checker := &stubChecker{served: map[string]bool{"fp-old": true}}
	f := NewFilter(checker, "owner-1", model.DedupScopeGlobal)

	seen, err := f.Seen(context.Background(), "fp-old")
	require.NoError(t, err)
	assert.True(t, seen)
	assert.Equal(t, model.DedupScopeGlobal, checker.scope)
}

func TestSeen_CheckerError(t *testing.T) {
	checker := &stubChecker{err: eris.New("db down")}
	f := NewFilter(checker, "owner-1", model.DedupScopeOwner)

	_, err := f.Seen(context.Background(), "fp-1")
	assert.Error(t, err)
}

func TestSeen_ConcurrentClaims(t *testing.T) {
	checker := &stubChecker{served: map[string]bool{}}
	f := NewFilter(checker, "owner-1", model.DedupScopeOwner)

	const workers = 50
	fresh := make(chan bool, workers)
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			seen, err := f.Seen(context.Background(), "fp-contested")
			require.NoError(t, err)
			fresh <- !seen
		}()
	}
	wg.Wait()
	close(fresh)

	claimed := 0
	for ok := range fresh {
		if ok {
			claimed++
		}
	}
	assert.Equal(t, 1, claimed, "exactly one caller claims a fingerprint")
}
