package models

import (
	"testing"
	"time"

	"github.com/ayo6706/wallet-policy/internal/domain"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
)

func d(s string) *decimal.Decimal {
	v := decimal.RequireFromString(s)
	return &v
}

var start = time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

func TestLimitRuleValidate(t *testing.T) {
	valid := LimitRule{
		ID:              uuid.New(),
		Scope:           SystemScope,
		Currency:        "USD",
		TransactionType: "topup",
		KYCTier:         domain.KYCVerified,
		Period:          domain.PeriodDaily,
		MaxAmount:       d("100"),
		Status:          domain.StatusActive,
	}
	assert.NoError(t, valid.Validate())

	tests := []struct {
		name   string
		mutate func(r *LimitRule)
	}{
		{"group without id", func(r *LimitRule) { r.Scope = Scope{Tag: domain.ScopeGroup} }},
		{"unknown scope", func(r *LimitRule) { r.Scope = Scope{Tag: "region", ID: "eu"} }},
		{"negative min", func(r *LimitRule) { r.MinAmount = decimal.NewFromInt(-1) }},
		{"max below min", func(r *LimitRule) { r.MinAmount = decimal.NewFromInt(500) }},
		{"bad period", func(r *LimitRule) { r.Period = "hourly" }},
		{"bad currency", func(r *LimitRule) { r.Currency = "US" }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := valid
			tt.mutate(&r)
			assert.Error(t, r.Validate())
		})
	}
}

func TestCommissionRuleValidate(t *testing.T) {
	valid := CommissionRule{
		ID:              uuid.New(),
		Type:            domain.CommissionMoneyTransfer,
		SubType:         "p2p",
		Currency:        "USD",
		CalculationType: domain.CalculationMixed,
		FixedAmount:     d("1"),
		PercentageRate:  d("2.5"),
		MinTransactions: 1,
		StartDate:       start,
		Status:          domain.StatusActive,
	}
	assert.NoError(t, valid.Validate())

	tests := []struct {
		name   string
		mutate func(r *CommissionRule)
	}{
		{"fixed with rate", func(r *CommissionRule) { r.CalculationType = domain.CalculationFixed }},
		{"percentage with fixed", func(r *CommissionRule) { r.CalculationType = domain.CalculationPercentage }},
		{"mixed missing rate", func(r *CommissionRule) { r.PercentageRate = nil }},
		{"rate over 100", func(r *CommissionRule) { r.PercentageRate = d("100.01") }},
		{"negative fixed", func(r *CommissionRule) { r.FixedAmount = d("-1") }},
		{"count bounds inverted", func(r *CommissionRule) { r.MinTransactions = 5; r.MaxTransactions = intPtr(2) }},
		{"end before start", func(r *CommissionRule) { end := start.Add(-time.Hour); r.EndDate = &end }},
		{"unknown type", func(r *CommissionRule) { r.Type = "loan" }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := valid
			tt.mutate(&r)
			assert.Error(t, r.Validate())
		})
	}
}

func TestCampaignValidate(t *testing.T) {
	valid := Campaign{
		ID:            uuid.New(),
		Name:          "spring",
		StartDate:     start,
		Status:        domain.StatusActive,
		CashbackType:  domain.CashbackPercentage,
		CashbackValue: decimal.NewFromInt(5),
		Currency:      "USD",
		Targets:       []CampaignTarget{{Key: "merchant_id", Operator: domain.OperatorEquals, Value: "M1"}},
	}
	assert.NoError(t, valid.Validate())

	tests := []struct {
		name   string
		mutate func(c *Campaign)
	}{
		{"percentage over 100", func(c *Campaign) { c.CashbackValue = decimal.NewFromInt(101) }},
		{"negative value", func(c *Campaign) { c.CashbackValue = decimal.NewFromInt(-1) }},
		{"negative cap", func(c *Campaign) { c.MaximumCashback = d("-5") }},
		{"bad operator", func(c *Campaign) {
			c.Targets = []CampaignTarget{{Key: "merchant_id", Operator: "CONTAINS", Value: "M"}}
		}},
		{"target without key", func(c *Campaign) {
			c.Targets = []CampaignTarget{{Operator: domain.OperatorEquals, Value: "M"}}
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := valid
			tt.mutate(&c)
			assert.Error(t, c.Validate())
		})
	}
}

func TestLiveAt(t *testing.T) {
	end := start.AddDate(0, 1, 0)
	c := Campaign{Status: domain.StatusActive, StartDate: start, EndDate: &end}

	assert.False(t, c.LiveAt(start.Add(-time.Second)))
	assert.True(t, c.LiveAt(start))
	assert.True(t, c.LiveAt(end))
	assert.False(t, c.LiveAt(end.Add(time.Second)))

	c.Status = domain.StatusInactive
	assert.False(t, c.LiveAt(start))
}

func TestEffectiveLimitAllows(t *testing.T) {
	l := EffectiveLimit{MinAmount: decimal.NewFromInt(10), MaxAmount: d("100")}
	assert.False(t, l.Allows(decimal.NewFromInt(9)))
	assert.True(t, l.Allows(decimal.NewFromInt(10)))
	assert.True(t, l.Allows(decimal.NewFromInt(100)))
	assert.False(t, l.Allows(decimal.RequireFromString("100.01")))

	l.MaxAmount = nil
	assert.True(t, l.Allows(decimal.NewFromInt(1_000_000)))
}

func intPtr(i int) *int { return &i }

func TestCommissionRuleApplyDefaults(t *testing.T) {
	r := CommissionRule{}
	r.ApplyDefaults()
	assert.Equal(t, DefaultMinTransactions, r.MinTransactions)

	r.MinTransactions = 4
	r.ApplyDefaults()
	assert.Equal(t, 4, r.MinTransactions)
}
