package memory

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/ayo6706/wallet-policy/internal/models"
	"github.com/ayo6706/wallet-policy/internal/repository"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRuleStore_CustomerScope(t *testing.T) {
	store := NewRuleStore()
	ctx := context.Background()

	_, err := store.GetCustomerScope(ctx, "missing")
	require.Error(t, err)
	assert.True(t, errors.Is(err, repository.ErrNotFound))

	require.NoError(t, store.UpsertCustomerScope(ctx, &models.CustomerScope{CustomerID: "c-1", GroupID: "g-1"}))
	scope, err := store.GetCustomerScope(ctx, "c-1")
	require.NoError(t, err)
	assert.Equal(t, "g-1", scope.GroupID)
	assert.False(t, scope.HasIndividualProfile)
}

func TestRuleStore_LoadRuleSetCopies(t *testing.T) {
	store := NewRuleStore()
	ctx := context.Background()

	campaign := &models.Campaign{
		ID:      uuid.New(),
		Name:    "spring",
		Targets: []models.CampaignTarget{{Key: "merchant_id", Operator: "EQUALS", Value: "M1"}},
	}
	require.NoError(t, store.CreateCampaign(ctx, campaign))

	set, err := store.LoadRuleSet(ctx)
	require.NoError(t, err)
	require.Len(t, set.Campaigns, 1)

	set.Campaigns[0].Targets[0].Value = "changed"

	again, err := store.LoadRuleSet(ctx)
	require.NoError(t, err)
	assert.Equal(t, "M1", again.Campaigns[0].Targets[0].Value)
}

func TestUsageStore_CompareAndSwap(t *testing.T) {
	store := NewUsageStore()
	ctx := context.Background()
	id := uuid.New()

	usage, err := store.Usage(ctx, id)
	require.NoError(t, err)
	assert.True(t, usage.IsZero())

	ok, err := store.CompareAndSwapUsage(ctx, id, decimal.Zero, decimal.NewFromInt(5))
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = store.CompareAndSwapUsage(ctx, id, decimal.Zero, decimal.NewFromInt(7))
	require.NoError(t, err)
	assert.False(t, ok, "stale expected value must not swap")

	usage, _ = store.Usage(ctx, id)
	assert.True(t, usage.Equal(decimal.NewFromInt(5)))
}

func TestUsageStore_SeedOnlyRaises(t *testing.T) {
	store := NewUsageStore()
	ctx := context.Background()
	id := uuid.New()

	require.NoError(t, store.SeedUsage(ctx, id, decimal.NewFromInt(90)))
	require.NoError(t, store.SeedUsage(ctx, id, decimal.NewFromInt(10)))

	usage, _ := store.Usage(ctx, id)
	assert.True(t, usage.Equal(decimal.NewFromInt(90)))

	require.NoError(t, store.SeedUsage(ctx, id, decimal.NewFromInt(95)))
	usage, _ = store.Usage(ctx, id)
	assert.True(t, usage.Equal(decimal.NewFromInt(95)))
}

func TestRuleStore_RecordUsageNeverLowers(t *testing.T) {
	store := NewRuleStore()
	ctx := context.Background()
	c := &models.Campaign{ID: uuid.New(), Name: "spring"}
	require.NoError(t, store.CreateCampaign(ctx, c))

	require.NoError(t, store.RecordUsage(ctx, c.ID, decimal.NewFromInt(40)))
	require.NoError(t, store.RecordUsage(ctx, c.ID, decimal.NewFromInt(25)))

	set, err := store.LoadRuleSet(ctx)
	require.NoError(t, err)
	require.Len(t, set.Campaigns, 1)
	assert.True(t, set.Campaigns[0].UsageTotal.Equal(decimal.NewFromInt(40)))

	err = store.RecordUsage(ctx, uuid.New(), decimal.NewFromInt(1))
	assert.True(t, errors.Is(err, repository.ErrNotFound))
}

func TestUsageStore_ConcurrentSwapsSerialize(t *testing.T) {
	store := NewUsageStore()
	ctx := context.Background()
	id := uuid.New()

	var wg sync.WaitGroup
	var mu sync.Mutex
	wins := 0
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ok, err := store.CompareAndSwapUsage(ctx, id, decimal.Zero, decimal.NewFromInt(1))
			assert.NoError(t, err)
			if ok {
				mu.Lock()
				wins++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, 1, wins)
}

func TestRuleStore_CommissionDefaults(t *testing.T) {
	store := NewRuleStore()
	ctx := context.Background()

	require.NoError(t, store.CreateCommissionRule(ctx, &models.CommissionRule{ID: uuid.New()}))
	set, err := store.LoadRuleSet(ctx)
	require.NoError(t, err)
	require.Len(t, set.CommissionRules, 1)
	assert.Equal(t, models.DefaultMinTransactions, set.CommissionRules[0].MinTransactions)
}
