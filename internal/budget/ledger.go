// Package budget enforces per-campaign spending ceilings. All debits are
// check-then-commit under a per-campaign lock, so concurrent callers can
// never push committed spend past the ceiling.
package budget

import (
	"context"
	"sync"
	"time"

	"github.com/rotisserie/eris"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// ErrUnknownCampaign is returned for campaigns that were never opened.
var ErrUnknownCampaign = eris.New("budget: unknown campaign")

// Snapshot is a persisted view of one campaign's ledger entry.
type Snapshot struct {
	CampaignID string          `json:"campaign_id"`
	Committed  decimal.Decimal `json:"cumulative_cost"`
	Ceiling    decimal.Decimal `json:"ceiling"`
	UpdatedAt  time.Time       `json:"updated_at"`
}

// PersistFunc receives ledger snapshots after every committed change. It is
// best-effort: persistence failures are logged, not propagated, since the
// in-memory ledger remains authoritative for the run.
type PersistFunc func(ctx context.Context, snap Snapshot)

type entry struct {
	mu        sync.Mutex
	committed decimal.Decimal
	ceiling   decimal.Decimal
}

// Ledger tracks committed spend per campaign against a hard ceiling.
type Ledger struct {
	mu      sync.RWMutex
	entries map[string]*entry
	persist PersistFunc
}

// NewLedger creates an empty ledger. persist may be nil.
func NewLedger(persist PersistFunc) *Ledger {
	return &Ledger{
		entries: make(map[string]*entry),
		persist: persist,
	}
}

// Open registers a campaign with its budget ceiling. Reopening an existing
// campaign keeps its committed spend and updates the ceiling.
func (l *Ledger) Open(campaignID string, ceiling decimal.Decimal) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if e, ok := l.entries[campaignID]; ok {
		e.mu.Lock()
		e.ceiling = ceiling
		e.mu.Unlock()
		return
	}
	l.entries[campaignID] = &entry{committed: decimal.Zero, ceiling: ceiling}
}

// Resume restores committed spend persisted by an earlier attempt, e.g. when
// a run is retried after a crash. The ceiling set by Open is kept, and
// committed spend only ratchets upward so a stale snapshot can never widen
// the remaining budget.
func (l *Ledger) Resume(ctx context.Context, campaignID string, committed decimal.Decimal) {
	e := l.entry(campaignID)
	if e == nil {
		return
	}

	e.mu.Lock()
	if !committed.GreaterThan(e.committed) {
		e.mu.Unlock()
		return
	}
	e.committed = committed
	snap := l.snapshot(campaignID, e)
	e.mu.Unlock()

	l.flush(ctx, snap)
}

// TryDebit atomically commits amount against the campaign's remaining budget.
// Returns false without committing when the debit would exceed the ceiling.
// Budget refusal is normal control flow, not an error.
func (l *Ledger) TryDebit(ctx context.Context, campaignID string, amount decimal.Decimal) bool {
	e := l.entry(campaignID)
	if e == nil {
		return false
	}

	e.mu.Lock()
	next := e.committed.Add(amount)
	if next.GreaterThan(e.ceiling) {
		e.mu.Unlock()
		return false
	}
	e.committed = next
	snap := l.snapshot(campaignID, e)
	e.mu.Unlock()

	l.flush(ctx, snap)
	return true
}

// Refund returns a previously authorized amount, e.g. when the provider call
// failed before incurring cost or the run was cancelled mid-flight.
func (l *Ledger) Refund(ctx context.Context, campaignID string, amount decimal.Decimal) {
	e := l.entry(campaignID)
	if e == nil {
		return
	}

	e.mu.Lock()
	e.committed = e.committed.Sub(amount)
	if e.committed.IsNegative() {
		zap.L().Warn("budget: refund exceeded committed spend",
			zap.String("campaign_id", campaignID),
			zap.String("amount", amount.String()),
		)
		e.committed = decimal.Zero
	}
	snap := l.snapshot(campaignID, e)
	e.mu.Unlock()

	l.flush(ctx, snap)
}

// Reconcile replaces an estimated debit with the provider's actual billed
// amount. When the actual exceeds the estimate, the committed total is capped
// at the ceiling: the overrun should have been refused up front, so the
// ledger never reports spend above the ceiling retroactively.
func (l *Ledger) Reconcile(ctx context.Context, campaignID string, estimated, actual decimal.Decimal) {
	e := l.entry(campaignID)
	if e == nil {
		return
	}

	e.mu.Lock()
	e.committed = e.committed.Sub(estimated).Add(actual)
	if e.committed.GreaterThan(e.ceiling) {
		zap.L().Warn("budget: actual cost exceeded estimate at ceiling",
			zap.String("campaign_id", campaignID),
			zap.String("estimated", estimated.String()),
			zap.String("actual", actual.String()),
		)
		e.committed = e.ceiling
	}
	if e.committed.IsNegative() {
		e.committed = decimal.Zero
	}
	snap := l.snapshot(campaignID, e)
	e.mu.Unlock()

	l.flush(ctx, snap)
}

// Remaining returns the uncommitted budget for planning decisions, e.g.
// whether an optional enrichment is affordable before attempting it.
func (l *Ledger) Remaining(campaignID string) (decimal.Decimal, error) {
	e := l.entry(campaignID)
	if e == nil {
		return decimal.Zero, eris.Wrapf(ErrUnknownCampaign, "%s", campaignID)
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	return e.ceiling.Sub(e.committed), nil
}

// Committed returns the cumulative committed spend for a campaign.
func (l *Ledger) Committed(campaignID string) (decimal.Decimal, error) {
	e := l.entry(campaignID)
	if e == nil {
		return decimal.Zero, eris.Wrapf(ErrUnknownCampaign, "%s", campaignID)
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	return e.committed, nil
}

// Close drops a campaign from the in-memory ledger, returning its final
// snapshot for persistence by the caller.
func (l *Ledger) Close(campaignID string) (Snapshot, bool) {
	l.mu.Lock()
	e, ok := l.entries[campaignID]
	delete(l.entries, campaignID)
	l.mu.Unlock()

	if !ok {
		return Snapshot{}, false
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	return l.snapshot(campaignID, e), true
}

func (l *Ledger) entry(campaignID string) *entry {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.entries[campaignID]
}

// snapshot must be called with the entry mutex held.
func (l *Ledger) snapshot(campaignID string, e *entry) Snapshot {
	return Snapshot{
		CampaignID: campaignID,
		Committed:  e.committed,
		Ceiling:    e.ceiling,
		UpdatedAt:  time.Now().UTC(),
	}
}

func (l *Ledger) flush(ctx context.Context, snap Snapshot) {
	if l.persist == nil {
		return
	}
	l.persist(ctx, snap)
}
