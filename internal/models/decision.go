package models

import (
	"time"

	"github.com/ayo6706/wallet-policy/internal/domain"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// TransactionContext is the proposed wallet transaction being evaluated.
type TransactionContext struct {
	CustomerID             string            `json:"customer_id" validate:"required"`
	Currency               string            `json:"currency" validate:"required,len=3"`
	TransactionType        string            `json:"transaction_type" validate:"required"`
	SubType                string            `json:"sub_type"`
	ATMType                string            `json:"atm_type,omitempty"`
	Amount                 decimal.Decimal   `json:"amount"`
	PeriodTransactionCount int               `json:"period_transaction_count" validate:"gte=0"`
	KYCTier                domain.KYCTier    `json:"kyc_tier" validate:"required,oneof=verified unverified"`
	TargetAttributes       map[string]string `json:"target_attributes,omitempty"`
	Timestamp              time.Time         `json:"timestamp"`
}

// OutcomeError is the wire form of a sub-resolution failure.
type OutcomeError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// NewOutcomeError returns nil for a nil error.
func NewOutcomeError(err error) *OutcomeError {
	if err == nil {
		return nil
	}
	return &OutcomeError{Code: domain.ErrorCode(err), Message: err.Error()}
}

type EffectiveLimit struct {
	Period    domain.Period    `json:"period"`
	MinAmount decimal.Decimal  `json:"min_amount"`
	MaxAmount *decimal.Decimal `json:"max_amount"` // nil is unbounded
	Scope     Scope            `json:"scope"`
	RuleID    uuid.UUID        `json:"rule_id"`

	// AmountWithinBounds reports whether the evaluated amount alone fits the
	// limit. Cumulative period usage is the caller's concern.
	AmountWithinBounds bool `json:"amount_within_bounds"`
}

// Allows reports whether a single amount fits inside the limit.
func (l EffectiveLimit) Allows(amount decimal.Decimal) bool {
	if amount.LessThan(l.MinAmount) {
		return false
	}
	return l.MaxAmount == nil || !amount.GreaterThan(*l.MaxAmount)
}

type LimitOutcome struct {
	Limits []EffectiveLimit `json:"limits"`
	Err    error            `json:"-"`
	Error  *OutcomeError    `json:"error,omitempty"`
}

type CommissionOutcome struct {
	RuleID          *uuid.UUID             `json:"rule_id,omitempty"`
	CalculationType domain.CalculationType `json:"calculation_type,omitempty"`
	Fee             *decimal.Decimal       `json:"fee,omitempty"`
	Currency        string                 `json:"currency"`
	Err             error                  `json:"-"`
	Error           *OutcomeError          `json:"error,omitempty"`
}

type CampaignOutcome struct {
	CampaignID uuid.UUID        `json:"campaign_id"`
	Name       string           `json:"name"`
	Currency   string           `json:"currency"`
	Cashback   decimal.Decimal  `json:"cashback"` // computed, uncapped
	Granted    decimal.Decimal  `json:"granted"`
	Remaining  *decimal.Decimal `json:"remaining,omitempty"` // cap headroom after this outcome, nil when uncapped
	Exhausted  bool             `json:"exhausted"`
	Deferred   bool             `json:"deferred"`
	Err        error            `json:"-"`
	Error      *OutcomeError    `json:"error,omitempty"`
}

type PolicyDecision struct {
	CustomerID  string            `json:"customer_id"`
	Scopes      []Scope           `json:"scopes"`
	Rejected    bool              `json:"rejected"`
	Limit       LimitOutcome      `json:"limit"`
	Commission  CommissionOutcome `json:"commission"`
	Campaigns   []CampaignOutcome `json:"campaigns"`
	EvaluatedAt time.Time         `json:"evaluated_at"`
	Err         error             `json:"-"`
	Error       *OutcomeError     `json:"error,omitempty"`
}
