// Package dedup filters out businesses already served to a client, within a
// discovery run and across past campaigns.
package dedup

import (
	"context"
	"sync"

	"github.com/rotisserie/eris"

	"github.com/prospectpro/leadengine/internal/model"
)

// Checker answers whether a fingerprint was served before. The store layer
// implements it.
type Checker interface {
	FingerprintServed(ctx context.Context, fp, ownerID string, scope model.DedupScope) (bool, error)
}

// Filter tracks fingerprints for one discovery run. It merges two layers:
// an in-memory set of fingerprints seen during this run, and the persistent
// served-lead history consulted through the Checker.
type Filter struct {
	checker Checker
	ownerID string
	scope   model.DedupScope

	mu   sync.Mutex
	seen map[string]struct{}
}

// NewFilter creates a filter for one campaign run.
func NewFilter(checker Checker, ownerID string, scope model.DedupScope) *Filter {
	return &Filter{
		checker: checker,
		ownerID: ownerID,
		scope:   scope,
		seen:    make(map[string]struct{}),
	}
}

// Seen reports whether the fingerprint was already encountered in this run or
// served in a past campaign. The first call for a new fingerprint claims it,
// so concurrent callers agree on exactly one owner.
func (f *Filter) Seen(ctx context.Context, fp string) (bool, error) {
	f.mu.Lock()
	if _, ok := f.seen[fp]; ok {
		f.mu.Unlock()
		return true, nil
	}
	f.seen[fp] = struct{}{}
	f.mu.Unlock()

	served, err := f.checker.FingerprintServed(ctx, fp, f.ownerID, f.scope)
	if err != nil {
		return false, eris.Wrap(err, "dedup: check fingerprint")
	}
	return served, nil
}

// Count returns how many distinct fingerprints this run has claimed.
func (f *Filter) Count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.seen)
}
