package service

import (
	"bytes"
	"fmt"
	"time"

	"github.com/ayo6706/wallet-policy/internal/domain"
	"github.com/ayo6706/wallet-policy/internal/models"
	"github.com/shopspring/decimal"
)

type CommissionQuery struct {
	Type             string
	SubType          string
	ATMType          string
	Currency         string
	Amount           decimal.Decimal
	TransactionCount int
	At               time.Time
}

type CommissionResult struct {
	Rule models.CommissionRule
	Fee  decimal.Decimal
}

type CommissionCalculator struct{}

func NewCommissionCalculator() *CommissionCalculator {
	return &CommissionCalculator{}
}

// Calculate selects the live rule for q and computes its fee. Bounds are
// reported as errors, never clamped.
func (c *CommissionCalculator) Calculate(snap *Snapshot, q CommissionQuery) (CommissionResult, error) {
	rule, ok := selectCommissionRule(snap.commissionRules(q.Type, q.SubType, q.ATMType, q.Currency), q.At)
	if !ok {
		return CommissionResult{}, fmt.Errorf("%w: %s/%s in %s", domain.ErrNoCommissionRule,
			normalizeKey(q.Type), normalizeKey(q.SubType), domain.NormalizeCurrency(q.Currency))
	}

	if q.Amount.LessThan(rule.MinAmount) || (rule.MaxAmount != nil && q.Amount.GreaterThan(*rule.MaxAmount)) {
		return CommissionResult{Rule: rule}, fmt.Errorf("%w: %s outside rule %s", domain.ErrAmountOutOfBounds, q.Amount, rule.ID)
	}
	if q.TransactionCount < rule.MinTransactions || (rule.MaxTransactions != nil && q.TransactionCount > *rule.MaxTransactions) {
		return CommissionResult{Rule: rule}, fmt.Errorf("%w: %d outside rule %s", domain.ErrTransactionCountOutOfBounds, q.TransactionCount, rule.ID)
	}

	return CommissionResult{Rule: rule, Fee: CommissionFee(rule, q.Amount)}, nil
}

// CommissionFee applies the rule's formula and rounds half-even to the
// currency's minor unit. Mixed rules charge the sum of both parts.
func CommissionFee(rule models.CommissionRule, amount decimal.Decimal) decimal.Decimal {
	fee := decimal.Zero
	switch rule.CalculationType {
	case domain.CalculationFixed:
		fee = *rule.FixedAmount
	case domain.CalculationPercentage:
		fee = domain.PercentOf(amount, *rule.PercentageRate)
	case domain.CalculationMixed:
		fee = rule.FixedAmount.Add(domain.PercentOf(amount, *rule.PercentageRate))
	}
	return domain.RoundToMinorUnit(fee, rule.Currency)
}

// selectCommissionRule prefers the latest start date, then the lowest id.
func selectCommissionRule(rules []models.CommissionRule, at time.Time) (models.CommissionRule, bool) {
	var best models.CommissionRule
	found := false
	for _, rule := range rules {
		if !rule.LiveAt(at) {
			continue
		}
		if !found || rule.StartDate.After(best.StartDate) ||
			(rule.StartDate.Equal(best.StartDate) && bytes.Compare(rule.ID[:], best.ID[:]) < 0) {
			best = rule
			found = true
		}
	}
	return best, found
}
