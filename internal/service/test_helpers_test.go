package service

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/ayo6706/wallet-policy/internal/domain"
	"github.com/ayo6706/wallet-policy/internal/models"
	"github.com/ayo6706/wallet-policy/internal/repository"
	"github.com/ayo6706/wallet-policy/internal/repository/memory"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

var testNow = time.Date(2026, 3, 14, 12, 0, 0, 0, time.UTC)

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func decPtr(s string) *decimal.Decimal {
	d := dec(s)
	return &d
}

func intPtr(i int) *int {
	return &i
}

func limitRule(scope models.Scope, currency, txType string, tier domain.KYCTier, period domain.Period, min string, max *decimal.Decimal) models.LimitRule {
	return models.LimitRule{
		ID:              uuid.New(),
		Scope:           scope,
		Currency:        currency,
		TransactionType: txType,
		KYCTier:         tier,
		Period:          period,
		MinAmount:       dec(min),
		MaxAmount:       max,
		Status:          domain.StatusActive,
	}
}

func commissionRule(calc domain.CalculationType, fixed, rate *decimal.Decimal) models.CommissionRule {
	return models.CommissionRule{
		ID:              uuid.New(),
		Type:            domain.CommissionMoneyTransfer,
		SubType:         "p2p",
		Currency:        "USD",
		CalculationType: calc,
		FixedAmount:     fixed,
		PercentageRate:  rate,
		MinAmount:       decimal.Zero,
		MinTransactions: 1,
		StartDate:       testNow.AddDate(0, -1, 0),
		Status:          domain.StatusActive,
	}
}

func campaign(name string, cashbackType domain.CashbackType, value string, cap *decimal.Decimal, targets ...models.CampaignTarget) models.Campaign {
	return models.Campaign{
		ID:              uuid.New(),
		Name:            name,
		StartDate:       testNow.AddDate(0, -1, 0),
		Status:          domain.StatusActive,
		CashbackType:    cashbackType,
		CashbackValue:   dec(value),
		Currency:        "USD",
		MaximumCashback: cap,
		Targets:         targets,
	}
}

func snapshotOf(t *testing.T, rs *models.RuleSet) *Snapshot {
	t.Helper()
	snap, _ := BuildSnapshot(rs, testNow, nil)
	return snap
}

type testEngine struct {
	rules  *memory.RuleStore
	usage  *memory.UsageStore
	store  *SnapshotStore
	loader *SnapshotLoader
	policy *PolicyService
}

// newTestEngine wires the policy service over in-memory stores.
func newTestEngine(t *testing.T) *testEngine {
	t.Helper()

	rules := memory.NewRuleStore()
	usage := memory.NewUsageStore()
	store := NewSnapshotStore()
	loader := NewSnapshotLoader(rules, store, usage, nil)
	accumulator := NewCashbackAccumulator(usage, DefaultGrantAttempts, nil)
	policy := NewPolicyService(store, NewScopeResolver(rules), accumulator, nil)
	policy.now = func() time.Time { return testNow }

	return &testEngine{rules: rules, usage: usage, store: store, loader: loader, policy: policy}
}

func (e *testEngine) refresh(t *testing.T) {
	t.Helper()
	_, err := e.loader.Refresh(context.Background())
	require.NoError(t, err)
}

// setupTestDB connects to Postgres and resets the policy tables.
func setupTestDB(t *testing.T) *pgxpool.Pool {
	t.Helper()

	connString := os.Getenv("DATABASE_URL")
	if connString == "" {
		t.Skip("Skipping integration test: DATABASE_URL not set")
	}
	db, err := pgxpool.New(context.Background(), connString)
	if err != nil {
		t.Fatalf("Failed to connect to DB: %v", err)
	}
	t.Cleanup(db.Close)

	require.NoError(t, repository.EnsureSchema(context.Background(), db))
	_, err = db.Exec(context.Background(), "TRUNCATE TABLE campaign_targets, campaigns, commission_rules, limit_rules, customer_scopes CASCADE")
	if err != nil {
		t.Fatalf("Failed to truncate tables: %v", err)
	}
	return db
}
