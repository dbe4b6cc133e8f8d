package budget

import (
	"context"
	"sync"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func d(s string) decimal.Decimal {
	v, err := decimal.NewFromString(s)
	if err != nil {
		panic(err)
	}
	return v
}

func TestTryDebitWithinCeiling(t *testing.T) {
	l := NewLedger(nil)
	l.Open("c1", d("0.10"))

	ctx := context.Background()
	assert.True(t, l.TryDebit(ctx, "c1", d("0.03")))
	assert.True(t, l.TryDebit(ctx, "c1", d("0.03")))
	assert.True(t, l.TryDebit(ctx, "c1", d("0.04")))
	assert.False(t, l.TryDebit(ctx, "c1", d("0.01")))

	committed, err := l.Committed("c1")
	require.NoError(t, err)
	assert.True(t, committed.Equal(d("0.10")))
}

func TestTryDebitRefusalLeavesLedgerUntouched(t *testing.T) {
	l := NewLedger(nil)
	l.Open("c1", d("0.05"))

	ctx := context.Background()
	assert.True(t, l.TryDebit(ctx, "c1", d("0.03")))
	assert.False(t, l.TryDebit(ctx, "c1", d("0.03")))

	committed, err := l.Committed("c1")
	require.NoError(t, err)
	assert.True(t, committed.Equal(d("0.03")))
}

func TestTryDebitUnknownCampaign(t *testing.T) {
	l := NewLedger(nil)
	assert.False(t, l.TryDebit(context.Background(), "missing", d("0.01")))
}

func TestConcurrentDebitsNeverExceedCeiling(t *testing.T) {
	l := NewLedger(nil)
	ceiling := d("1.00")
	l.Open("c1", ceiling)

	ctx := context.Background()
	amount := d("0.03")

	var wg sync.WaitGroup
	var mu sync.Mutex
	authorized := 0

	for i := 0; i < 100; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if l.TryDebit(ctx, "c1", amount) {
				mu.Lock()
				authorized++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	// 33 * 0.03 = 0.99 <= 1.00 < 34 * 0.03
	assert.Equal(t, 33, authorized)

	committed, err := l.Committed("c1")
	require.NoError(t, err)
	assert.True(t, committed.LessThanOrEqual(ceiling))
	assert.True(t, committed.Equal(d("0.99")))
}

func TestRefund(t *testing.T) {
	l := NewLedger(nil)
	l.Open("c1", d("0.10"))
	ctx := context.Background()

	require.True(t, l.TryDebit(ctx, "c1", d("0.04")))
	l.Refund(ctx, "c1", d("0.04"))

	remaining, err := l.Remaining("c1")
	require.NoError(t, err)
	assert.True(t, remaining.Equal(d("0.10")))
}

func TestRefundClampsAtZero(t *testing.T) {
	l := NewLedger(nil)
	l.Open("c1", d("0.10"))
	ctx := context.Background()

	l.Refund(ctx, "c1", d("0.05"))
	committed, err := l.Committed("c1")
	require.NoError(t, err)
	assert.True(t, committed.IsZero())
}

func TestReconcileDownward(t *testing.T) {
	l := NewLedger(nil)
	l.Open("c1", d("0.10"))
	ctx := context.Background()

	require.True(t, l.TryDebit(ctx, "c1", d("0.04")))
	l.Reconcile(ctx, "c1", d("0.04"), d("0.032"))

	committed, err := l.Committed("c1")
	require.NoError(t, err)
	assert.True(t, committed.Equal(d("0.032")))
}

func TestReconcileNeverExceedsCeiling(t *testing.T) {
	l := NewLedger(nil)
	l.Open("c1", d("0.10"))
	ctx := context.Background()

	require.True(t, l.TryDebit(ctx, "c1", d("0.09")))
	l.Reconcile(ctx, "c1", d("0.09"), d("0.50"))

	committed, err := l.Committed("c1")
	require.NoError(t, err)
	assert.True(t, committed.Equal(d("0.10")))
}

func TestReopenKeepsCommittedSpend(t *testing.T) {
	l := NewLedger(nil)
	l.Open("c1", d("0.10"))
	ctx := context.Background()

	require.True(t, l.TryDebit(ctx, "c1", d("0.08")))
	l.Open("c1", d("0.20"))

	remaining, err := l.Remaining("c1")
	require.NoError(t, err)
	assert.True(t, remaining.Equal(d("0.12")))
}

func TestResumeRestoresCommittedSpend(t *testing.T) {
	l := NewLedger(nil)
	l.Open("c1", d("0.05"))
	ctx := context.Background()

	l.Resume(ctx, "c1", d("0.04"))

	assert.False(t, l.TryDebit(ctx, "c1", d("0.03")))
	require.True(t, l.TryDebit(ctx, "c1", d("0.01")))

	committed, err := l.Committed("c1")
	require.NoError(t, err)
	assert.True(t, committed.Equal(d("0.05")))
}

func TestResumeNeverLowersCommittedSpend(t *testing.T) {
	l := NewLedger(nil)
	l.Open("c1", d("1.00"))
	ctx := context.Background()

	require.True(t, l.TryDebit(ctx, "c1", d("0.30")))
	l.Resume(ctx, "c1", d("0.10"))

	committed, err := l.Committed("c1")
	require.NoError(t, err)
	assert.True(t, committed.Equal(d("0.30")))
}

func TestPersistCallback(t *testing.T) {
	var mu sync.Mutex
	var snaps []Snapshot
	l := NewLedger(func(ctx context.Context, snap Snapshot) {
		mu.Lock()
		snaps = append(snaps, snap)
		mu.Unlock()
	})
	l.Open("c1", d("1.00"))
	ctx := context.Background()

	require.True(t, l.TryDebit(ctx, "c1", d("0.25")))
	l.Refund(ctx, "c1", d("0.25"))

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, snaps, 2)
	assert.Equal(t, "c1", snaps[0].CampaignID)
	assert.True(t, snaps[0].Committed.Equal(d("0.25")))
	assert.True(t, snaps[1].Committed.IsZero())
	assert.True(t, snaps[1].Ceiling.Equal(d("1.00")))
}

func TestCloseReturnsFinalSnapshot(t *testing.T) {
	l := NewLedger(nil)
	l.Open("c1", d("0.10"))
	require.True(t, l.TryDebit(context.Background(), "c1", d("0.06")))

	snap, ok := l.Close("c1")
	require.True(t, ok)
	assert.True(t, snap.Committed.Equal(d("0.06")))

	_, err := l.Remaining("c1")
	assert.ErrorIs(t, err, ErrUnknownCampaign)

	_, ok = l.Close("c1")
	assert.False(t, ok)
}
