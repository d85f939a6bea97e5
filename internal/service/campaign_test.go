package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/ayo6706/wallet-policy/internal/domain"
	"github.com/ayo6706/wallet-policy/internal/models"
	"github.com/ayo6706/wallet-policy/internal/repository/memory"
	"github.com/ayo6706/wallet-policy/internal/usage"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestQualifies_StrictAnd(t *testing.T) {
	c := campaign("merchants", domain.CashbackPercentage, "10", nil,
		models.CampaignTarget{Key: "merchant_id", Operator: domain.OperatorIn, Value: "M1, M2"},
		models.CampaignTarget{Key: "transaction_type", Operator: domain.OperatorEquals, Value: "PURCHASE"},
	)

	tests := []struct {
		name  string
		attrs map[string]string
		want  bool
	}{
		{"purchase at M1", map[string]string{"merchant_id": "M1", "transaction_type": "PURCHASE"}, true},
		{"purchase at M2", map[string]string{"merchant_id": " M2 ", "transaction_type": "PURCHASE"}, true},
		{"purchase at M3", map[string]string{"merchant_id": "M3", "transaction_type": "PURCHASE"}, false},
		{"refund at M1", map[string]string{"merchant_id": "M1", "transaction_type": "REFUND"}, false},
		{"missing attribute", map[string]string{"transaction_type": "PURCHASE"}, false},
		{"case sensitive", map[string]string{"merchant_id": "m1", "transaction_type": "PURCHASE"}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Qualifies(c, "USD", tt.attrs, testNow))
		})
	}
}

func TestQualifies_LivenessAndCurrency(t *testing.T) {
	c := campaign("open", domain.CashbackAmount, "1", nil)
	assert.True(t, Qualifies(c, "usd", nil, testNow))
	assert.False(t, Qualifies(c, "EUR", nil, testNow))
	assert.False(t, Qualifies(c, "USD", nil, c.StartDate.Add(-time.Second)))

	end := testNow
	c.EndDate = &end
	assert.True(t, Qualifies(c, "USD", nil, testNow))
	assert.False(t, Qualifies(c, "USD", nil, testNow.Add(time.Nanosecond)))

	c.Status = domain.StatusInactive
	assert.False(t, Qualifies(c, "USD", nil, testNow))
}

func TestCampaignMatcher_ReportsAllQualifying(t *testing.T) {
	pct := campaign("percent", domain.CashbackPercentage, "1.5", decPtr("100"))
	flat := campaign("flat", domain.CashbackAmount, "2", nil,
		models.CampaignTarget{Key: "segment", Operator: domain.OperatorEquals, Value: "students"})
	other := campaign("other", domain.CashbackAmount, "2", nil,
		models.CampaignTarget{Key: "segment", Operator: domain.OperatorEquals, Value: "retirees"})

	snap := snapshotOf(t, &models.RuleSet{Campaigns: []models.Campaign{pct, flat, other}})
	matches := NewCampaignMatcher().Match(snap, "USD", dec("333"), map[string]string{"segment": "students"}, testNow)
	require.Len(t, matches, 2)
	assert.Equal(t, pct.ID, matches[0].Campaign.ID)
	assert.True(t, matches[0].Cashback.Equal(dec("5.00")), matches[0].Cashback.String()) // 4.995 rounds half-even
	assert.Equal(t, flat.ID, matches[1].Campaign.ID)
	assert.True(t, matches[1].Cashback.Equal(dec("2")))
}

func TestCashbackAccumulator_CapsGrant(t *testing.T) {
	ctx := context.Background()
	counter := memory.NewUsageStore()
	c := campaign("capped", domain.CashbackAmount, "25", decPtr("100"))
	require.NoError(t, counter.SeedUsage(ctx, c.ID, dec("90")))
	acc := NewCashbackAccumulator(counter, 3, nil)

	g, err := acc.Grant(ctx, c, dec("25"))
	require.NoError(t, err)
	assert.True(t, g.Granted.Equal(dec("10")))
	assert.True(t, g.UsageAfter.Equal(dec("100")))
	require.NotNil(t, g.Remaining)
	assert.True(t, g.Remaining.IsZero())
	assert.False(t, g.Exhausted)

	g, err = acc.Grant(ctx, c, dec("25"))
	require.NoError(t, err)
	assert.True(t, g.Granted.IsZero())
	assert.True(t, g.Exhausted)

	total, err := counter.Usage(ctx, c.ID)
	require.NoError(t, err)
	assert.True(t, total.Equal(dec("100")))
}

func TestCashbackAccumulator_UncappedAccumulates(t *testing.T) {
	ctx := context.Background()
	counter := memory.NewUsageStore()
	c := campaign("open", domain.CashbackAmount, "3", nil)
	acc := NewCashbackAccumulator(counter, 0, nil)

	for i := 0; i < 3; i++ {
		g, err := acc.Grant(ctx, c, dec("3"))
		require.NoError(t, err)
		assert.Nil(t, g.Remaining)
		assert.True(t, g.Granted.Equal(dec("3")))
	}
	total, err := counter.Usage(ctx, c.ID)
	require.NoError(t, err)
	assert.True(t, total.Equal(dec("9")))
}

func TestCashbackAccumulator_ConcurrentGrantsNeverExceedCap(t *testing.T) {
	ctx := context.Background()
	counter := memory.NewUsageStore()
	c := campaign("capped", domain.CashbackAmount, "1", decPtr("100"))
	require.NoError(t, counter.SeedUsage(ctx, c.ID, dec("90")))
	acc := NewCashbackAccumulator(counter, 1000, nil)

	const workers = 64
	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		granted = decimal.Zero
	)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			g, err := acc.Grant(ctx, c, dec("0.75"))
			if err != nil {
				assert.ErrorIs(t, err, domain.ErrCashbackGrantContention)
				return
			}
			mu.Lock()
			granted = granted.Add(g.Granted)
			mu.Unlock()
		}()
	}
	wg.Wait()

	assert.True(t, granted.LessThanOrEqual(dec("10")), "granted %s", granted)
	total, err := counter.Usage(ctx, c.ID)
	require.NoError(t, err)
	assert.True(t, total.LessThanOrEqual(dec("100")))
	assert.True(t, total.Sub(dec("90")).Equal(granted))
}

// racingUsage loses every compare-and-swap.
type racingUsage struct {
	calls int
}

func (r *racingUsage) Usage(ctx context.Context, campaignID uuid.UUID) (decimal.Decimal, error) {
	return decimal.NewFromInt(int64(r.calls)), nil
}

func (r *racingUsage) CompareAndSwapUsage(ctx context.Context, campaignID uuid.UUID, old, next decimal.Decimal) (bool, error) {
	r.calls++
	return false, nil
}

func TestCashbackAccumulator_Contention(t *testing.T) {
	store := &racingUsage{}
	acc := NewCashbackAccumulator(store, 4, nil)
	c := campaign("hot", domain.CashbackAmount, "1", decPtr("100"))

	g, err := acc.Grant(context.Background(), c, dec("1"))
	assert.ErrorIs(t, err, domain.ErrCashbackGrantContention)
	assert.Equal(t, 4, store.calls)
	assert.Equal(t, 4, g.Attempts)
	assert.True(t, g.Granted.IsZero())
}

type brokenUsage struct{}

func (brokenUsage) Usage(ctx context.Context, campaignID uuid.UUID) (decimal.Decimal, error) {
	return decimal.Zero, errors.New("usage backend down")
}

func (brokenUsage) CompareAndSwapUsage(ctx context.Context, campaignID uuid.UUID, old, next decimal.Decimal) (bool, error) {
	return false, nil
}

func TestCashbackAccumulator_StoreErrors(t *testing.T) {
	acc := NewCashbackAccumulator(brokenUsage{}, 3, nil)
	c := campaign("any", domain.CashbackAmount, "1", nil)

	_, err := acc.Grant(context.Background(), c, dec("1"))
	require.Error(t, err)
	assert.NotErrorIs(t, err, domain.ErrCashbackGrantContention)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = NewCashbackAccumulator(memory.NewUsageStore(), 3, nil).Grant(ctx, c, dec("1"))
	assert.ErrorIs(t, err, context.Canceled)
}

func TestCashbackAccumulator_PreviewDoesNotWrite(t *testing.T) {
	ctx := context.Background()
	counter := memory.NewUsageStore()
	c := campaign("capped", domain.CashbackAmount, "25", decPtr("100"))
	require.NoError(t, counter.SeedUsage(ctx, c.ID, dec("90")))
	acc := NewCashbackAccumulator(counter, 3, nil)

	g, err := acc.Preview(ctx, c, dec("25"))
	require.NoError(t, err)
	assert.True(t, g.Granted.Equal(dec("10")))

	total, err := counter.Usage(ctx, c.ID)
	require.NoError(t, err)
	assert.True(t, total.Equal(dec("90")))
}

func TestCashbackAccumulator_RejectsUsageOverflow(t *testing.T) {
	ctx := context.Background()
	store := memory.NewUsageStore()
	c := campaign("open", domain.CashbackAmount, "1", nil)
	require.NoError(t, store.SeedUsage(ctx, c.ID, domain.MaxStorableAmount.Sub(dec("1"))))
	acc := NewCashbackAccumulator(store, 3, nil)

	g, err := acc.Grant(ctx, c, dec("2"))
	assert.ErrorIs(t, err, domain.ErrAmountOverflow)
	assert.True(t, g.Granted.IsZero())

	total, err := store.Usage(ctx, c.ID)
	require.NoError(t, err)
	assert.True(t, total.Equal(domain.MaxStorableAmount.Sub(dec("1"))))
}

func TestCashbackAccumulator_LostCounterReseedsFromRecordedUsage(t *testing.T) {
	ctx := context.Background()
	rules := memory.NewRuleStore()
	c := campaign("capped", domain.CashbackAmount, "10", decPtr("10"))
	require.NoError(t, rules.CreateCampaign(ctx, &c))

	grantWith := func(counter *memory.UsageStore) Grant {
		t.Helper()
		_, err := NewSnapshotLoader(rules, NewSnapshotStore(), counter, nil).Refresh(ctx)
		require.NoError(t, err)
		acc := NewCashbackAccumulator(usage.NewWriteThrough(counter, rules, nil), 3, nil)
		g, err := acc.Grant(ctx, c, dec("10"))
		require.NoError(t, err)
		return g
	}

	first := grantWith(memory.NewUsageStore())
	assert.True(t, first.Granted.Equal(dec("10")))

	// a fresh counter stands in for an evicted Redis key
	second := grantWith(memory.NewUsageStore())
	assert.True(t, second.Granted.IsZero())
	assert.True(t, second.Exhausted)
}
