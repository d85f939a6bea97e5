package repository

import (
	"context"
	"errors"
	"os"
	"testing"
	"time"

	"github.com/ayo6706/wallet-policy/internal/db"
	"github.com/ayo6706/wallet-policy/internal/domain"
	"github.com/ayo6706/wallet-policy/internal/models"
	"github.com/ayo6706/wallet-policy/internal/testutil/dblock"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func init() {
	_ = godotenv.Load("../../.env") // Load from root
}

func TestMain(m *testing.M) {
	dblock.Main(m.Run)
}

func setupDB(t *testing.T) *pgxpool.Pool {
	t.Helper()
	if os.Getenv("DATABASE_URL") == "" {
		t.Skip("Skipping integration test: DATABASE_URL not set")
	}

	pool, err := db.Connect(context.Background(), os.Getenv("DATABASE_URL"), db.PoolOptions{ApplicationName: "wallet-policy-test"})
	if err != nil {
		t.Fatalf("Failed to connect to DB: %v", err)
	}
	t.Cleanup(pool.Close)

	ctx := context.Background()
	require.NoError(t, EnsureSchema(ctx, pool))
	_, err = pool.Exec(ctx, "TRUNCATE TABLE campaign_targets, campaigns, commission_rules, limit_rules, customer_scopes CASCADE")
	require.NoError(t, err)
	return pool
}

func mustDec(s string) *decimal.Decimal {
	d := decimal.RequireFromString(s)
	return &d
}

func TestCustomerScopeUpsert(t *testing.T) {
	pool := setupDB(t)
	repo := NewRepository(pool)
	ctx := context.Background()

	_, err := repo.GetCustomerScope(ctx, "c-1")
	assert.True(t, errors.Is(err, ErrNotFound))

	require.NoError(t, repo.UpsertCustomerScope(ctx, &models.CustomerScope{CustomerID: "c-1", GroupID: "g-1"}))
	require.NoError(t, repo.UpsertCustomerScope(ctx, &models.CustomerScope{CustomerID: "c-1", GroupID: "g-2", HasIndividualProfile: true}))

	scope, err := repo.GetCustomerScope(ctx, "c-1")
	require.NoError(t, err)
	assert.Equal(t, "g-2", scope.GroupID)
	assert.True(t, scope.HasIndividualProfile)
}

func TestLimitRuleUniquePerActiveKey(t *testing.T) {
	pool := setupDB(t)
	repo := NewRepository(pool)
	ctx := context.Background()

	rule := models.LimitRule{
		ID:              uuid.New(),
		Scope:           models.SystemScope,
		Currency:        "TRY",
		TransactionType: "topup",
		KYCTier:         domain.KYCVerified,
		Period:          domain.PeriodDaily,
		MinAmount:       decimal.Zero,
		MaxAmount:       mustDec("10000.123456"),
		Status:          domain.StatusActive,
	}
	require.NoError(t, repo.CreateLimitRule(ctx, &rule))
	assert.False(t, rule.UpdatedAt.IsZero())

	dup := rule
	dup.ID = uuid.New()
	require.Error(t, repo.CreateLimitRule(ctx, &dup))

	inactive := rule
	inactive.ID = uuid.New()
	inactive.Status = domain.StatusInactive
	require.NoError(t, repo.CreateLimitRule(ctx, &inactive))

	rules, err := repo.ListActiveLimitRules(ctx)
	require.NoError(t, err)
	require.Len(t, rules, 1)
	assert.Equal(t, rule.ID, rules[0].ID)
	require.NotNil(t, rules[0].MaxAmount)
	assert.True(t, rules[0].MaxAmount.Equal(decimal.RequireFromString("10000.123456")))
}

func TestCommissionRuleRoundTrip(t *testing.T) {
	pool := setupDB(t)
	repo := NewRepository(pool)
	ctx := context.Background()

	start := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	maxTx := 10
	rule := models.CommissionRule{
		ID:              uuid.New(),
		Type:            domain.CommissionPrepaidCard,
		SubType:         "withdrawal",
		ATMType:         "foreign",
		Currency:        "EUR",
		CalculationType: domain.CalculationMixed,
		FixedAmount:     mustDec("1.5"),
		PercentageRate:  mustDec("2.25"),
		MinAmount:       decimal.RequireFromString("10"),
		MaxAmount:       mustDec("5000"),
		MinTransactions: 1,
		MaxTransactions: &maxTx,
		StartDate:       start,
		Status:          domain.StatusActive,
	}
	require.NoError(t, repo.CreateCommissionRule(ctx, &rule))

	rules, err := repo.ListActiveCommissionRules(ctx)
	require.NoError(t, err)
	require.Len(t, rules, 1)
	got := rules[0]
	assert.Equal(t, "foreign", got.ATMType)
	assert.Equal(t, domain.CalculationMixed, got.CalculationType)
	assert.True(t, got.PercentageRate.Equal(decimal.RequireFromString("2.25")))
	assert.True(t, got.FixedAmount.Equal(decimal.RequireFromString("1.5")))
	require.NotNil(t, got.MaxTransactions)
	assert.Equal(t, 10, *got.MaxTransactions)
	assert.Nil(t, got.EndDate)
	assert.True(t, got.StartDate.Equal(start))
}

func TestCampaignTargetsAndUsageSwap(t *testing.T) {
	pool := setupDB(t)
	repo := NewRepository(pool)
	ctx := context.Background()

	campaign := models.Campaign{
		ID:              uuid.New(),
		Name:            "merchant-week",
		StartDate:       time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC),
		Status:          domain.StatusActive,
		CashbackType:    domain.CashbackPercentage,
		CashbackValue:   decimal.RequireFromString("5"),
		Currency:        "USD",
		MaximumCashback: mustDec("100"),
		Targets: []models.CampaignTarget{
			{Key: "merchant_id", Operator: domain.OperatorIn, Value: "M1,M2"},
			{Key: "channel", Operator: domain.OperatorEquals, Value: "app"},
		},
	}
	require.NoError(t, repo.CreateCampaign(ctx, &campaign))

	campaigns, err := repo.ListActiveCampaigns(ctx)
	require.NoError(t, err)
	require.Len(t, campaigns, 1)
	assert.Equal(t, campaign.Targets, campaigns[0].Targets)

	usage, err := repo.Usage(ctx, campaign.ID)
	require.NoError(t, err)
	assert.True(t, usage.IsZero())

	swapped, err := repo.CompareAndSwapUsage(ctx, campaign.ID, decimal.Zero, decimal.RequireFromString("12.5"))
	require.NoError(t, err)
	assert.True(t, swapped)

	// stale expectation loses
	swapped, err = repo.CompareAndSwapUsage(ctx, campaign.ID, decimal.Zero, decimal.RequireFromString("20"))
	require.NoError(t, err)
	assert.False(t, swapped)

	usage, err = repo.Usage(ctx, campaign.ID)
	require.NoError(t, err)
	assert.True(t, usage.Equal(decimal.RequireFromString("12.5")))

	_, err = repo.Usage(ctx, uuid.New())
	assert.True(t, errors.Is(err, ErrNotFound))
}

func TestLoadRuleSet(t *testing.T) {
	pool := setupDB(t)
	store := NewStore(pool)
	repo := store.Repository()
	ctx := context.Background()

	require.NoError(t, repo.CreateLimitRule(ctx, &models.LimitRule{
		ID:              uuid.New(),
		Scope:           models.Scope{Tag: domain.ScopeGroup, ID: "gold"},
		Currency:        "USD",
		TransactionType: "topup",
		KYCTier:         domain.KYCUnverified,
		Period:          domain.PeriodOneTime,
		Status:          domain.StatusActive,
	}))
	require.NoError(t, repo.CreateCommissionRule(ctx, &models.CommissionRule{
		ID:              uuid.New(),
		Type:            domain.CommissionTopup,
		Currency:        "USD",
		CalculationType: domain.CalculationFixed,
		FixedAmount:     mustDec("1"),
		StartDate:       time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC),
		Status:          domain.StatusInactive,
	}))

	set, err := store.LoadRuleSet(ctx)
	require.NoError(t, err)
	require.Len(t, set.LimitRules, 1)
	assert.Equal(t, "gold", set.LimitRules[0].Scope.ID)
	assert.Nil(t, set.LimitRules[0].MaxAmount)
	assert.Empty(t, set.CommissionRules)
	assert.Empty(t, set.Campaigns)
}

func TestCommissionRuleDefaultsMinTransactions(t *testing.T) {
	pool := setupDB(t)
	repo := NewRepository(pool)
	ctx := context.Background()

	rule := models.CommissionRule{
		ID:              uuid.New(),
		Type:            domain.CommissionTopup,
		Currency:        "USD",
		CalculationType: domain.CalculationFixed,
		FixedAmount:     mustDec("1"),
		StartDate:       time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC),
		Status:          domain.StatusActive,
	}
	require.NoError(t, repo.CreateCommissionRule(ctx, &rule))
	assert.Equal(t, models.DefaultMinTransactions, rule.MinTransactions)

	rules, err := repo.ListActiveCommissionRules(ctx)
	require.NoError(t, err)
	require.Len(t, rules, 1)
	assert.Equal(t, 1, rules[0].MinTransactions)
}

func TestCreateCampaignRollsBackOnTargetFailure(t *testing.T) {
	pool := setupDB(t)
	repo := NewRepository(pool)
	ctx := context.Background()

	campaign := models.Campaign{
		ID:            uuid.New(),
		Name:          "half-written",
		StartDate:     time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC),
		Status:        domain.StatusActive,
		CashbackType:  domain.CashbackAmount,
		CashbackValue: decimal.RequireFromString("1"),
		Currency:      "USD",
		Targets: []models.CampaignTarget{
			{Key: "merchant_id", Operator: domain.OperatorEquals, Value: "M1"},
			{Key: "channel", Operator: "CONTAINS", Value: "app"},
		},
	}
	require.Error(t, repo.CreateCampaign(ctx, &campaign))

	_, err := repo.Usage(ctx, campaign.ID)
	assert.True(t, errors.Is(err, ErrNotFound))

	var targets int
	require.NoError(t, pool.QueryRow(ctx, `SELECT COUNT(*) FROM campaign_targets WHERE campaign_id = $1`, campaign.ID).Scan(&targets))
	assert.Zero(t, targets)
}

func TestRecordUsageOnlyRaises(t *testing.T) {
	pool := setupDB(t)
	repo := NewRepository(pool)
	ctx := context.Background()

	campaign := models.Campaign{
		ID:            uuid.New(),
		Name:          "recorded",
		StartDate:     time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC),
		Status:        domain.StatusActive,
		CashbackType:  domain.CashbackAmount,
		CashbackValue: decimal.RequireFromString("1"),
		Currency:      "USD",
	}
	require.NoError(t, repo.CreateCampaign(ctx, &campaign))

	require.NoError(t, repo.RecordUsage(ctx, campaign.ID, decimal.RequireFromString("40")))
	require.NoError(t, repo.RecordUsage(ctx, campaign.ID, decimal.RequireFromString("15")))

	usage, err := repo.Usage(ctx, campaign.ID)
	require.NoError(t, err)
	assert.True(t, usage.Equal(decimal.RequireFromString("40")))

	err = repo.RecordUsage(ctx, uuid.New(), decimal.RequireFromString("1"))
	assert.True(t, errors.Is(err, ErrNotFound))
}

func TestCreateLimitRuleRejectsOverflow(t *testing.T) {
	pool := setupDB(t)
	repo := NewRepository(pool)
	ctx := context.Background()

	err := repo.CreateLimitRule(ctx, &models.LimitRule{
		ID:              uuid.New(),
		Scope:           models.SystemScope,
		Currency:        "USD",
		TransactionType: "topup",
		KYCTier:         domain.KYCVerified,
		Period:          domain.PeriodDaily,
		MaxAmount:       mustDec("10000000000000"),
		Status:          domain.StatusActive,
	})
	assert.ErrorIs(t, err, domain.ErrAmountOverflow)

	rules, err := repo.ListActiveLimitRules(ctx)
	require.NoError(t, err)
	assert.Empty(t, rules)
}
