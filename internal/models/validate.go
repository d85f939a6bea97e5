package models

import (
	"errors"
	"fmt"
	"strings"

	"github.com/ayo6706/wallet-policy/internal/domain"
	"github.com/ayo6706/wallet-policy/internal/validation"
	"github.com/shopspring/decimal"
)

var hundred = decimal.NewFromInt(100)

// Validate checks the declared invariants of a limit rule.
func (r LimitRule) Validate() error {
	if err := validation.ValidateStruct(r); err != nil {
		return err
	}
	if !r.Scope.Tag.Valid() {
		return fmt.Errorf("invalid scope tag %q", r.Scope.Tag)
	}
	if r.Scope.Tag != domain.ScopeSystem && strings.TrimSpace(r.Scope.ID) == "" {
		return fmt.Errorf("%s scope requires an id", r.Scope.Tag)
	}
	return validateBounds(r.MinAmount, r.MaxAmount)
}

// Validate checks the declared invariants of a commission rule.
func (r CommissionRule) Validate() error {
	if err := validation.ValidateStruct(r); err != nil {
		return err
	}
	if err := validateBounds(r.MinAmount, r.MaxAmount); err != nil {
		return err
	}
	if r.MaxTransactions != nil && *r.MaxTransactions < r.MinTransactions {
		return errors.New("max_transactions must be >= min_transactions")
	}
	if r.EndDate != nil && r.EndDate.Before(r.StartDate) {
		return errors.New("end_date must not precede start_date")
	}

	hasFixed := r.FixedAmount != nil
	hasRate := r.PercentageRate != nil
	switch r.CalculationType {
	case domain.CalculationFixed:
		if !hasFixed || hasRate {
			return errors.New("fixed calculation requires fixed_amount only")
		}
	case domain.CalculationPercentage:
		if !hasRate || hasFixed {
			return errors.New("percentage calculation requires percentage_rate only")
		}
	case domain.CalculationMixed:
		if !hasFixed || !hasRate {
			return errors.New("mixed calculation requires fixed_amount and percentage_rate")
		}
	}
	if hasFixed && r.FixedAmount.IsNegative() {
		return errors.New("fixed_amount must be >= 0")
	}
	if hasRate && (r.PercentageRate.IsNegative() || r.PercentageRate.GreaterThan(hundred)) {
		return errors.New("percentage_rate must be between 0 and 100")
	}
	return nil
}

// Validate checks the declared invariants of a campaign.
func (c Campaign) Validate() error {
	if err := validation.ValidateStruct(c); err != nil {
		return err
	}
	if c.CashbackValue.IsNegative() {
		return errors.New("cashback_value must be >= 0")
	}
	if c.CashbackType == domain.CashbackPercentage && c.CashbackValue.GreaterThan(hundred) {
		return errors.New("percentage cashback_value must be <= 100")
	}
	if c.MaximumCashback != nil && c.MaximumCashback.IsNegative() {
		return errors.New("maximum_cashback must be >= 0")
	}
	if c.EndDate != nil && c.EndDate.Before(c.StartDate) {
		return errors.New("end_date must not precede start_date")
	}
	return nil
}

func validateBounds(min decimal.Decimal, max *decimal.Decimal) error {
	if min.IsNegative() {
		return errors.New("min_amount must be >= 0")
	}
	if max != nil && max.LessThan(min) {
		return errors.New("max_amount must be >= min_amount")
	}
	return nil
}
