package models

import (
	"time"

	"github.com/ayo6706/wallet-policy/internal/domain"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type Scope struct {
	Tag domain.ScopeTag `json:"tag"`
	ID  string          `json:"id,omitempty"` // group or customer id, empty for system
}

// SystemScope is the fallback scope every customer has.
var SystemScope = Scope{Tag: domain.ScopeSystem}

// CustomerScope is the scope membership record of a single customer.
type CustomerScope struct {
	CustomerID           string `json:"customer_id"`
	GroupID              string `json:"group_id,omitempty"`
	HasIndividualProfile bool   `json:"has_individual_profile"`
}

type LimitRule struct {
	ID              uuid.UUID        `json:"id"`
	Scope           Scope            `json:"scope"`
	Currency        string           `json:"currency" validate:"required,len=3"`
	TransactionType string           `json:"transaction_type" validate:"required"`
	KYCTier         domain.KYCTier   `json:"kyc_tier" validate:"required,oneof=verified unverified"`
	Period          domain.Period    `json:"period" validate:"required,oneof=daily weekly monthly one_time"`
	MinAmount       decimal.Decimal  `json:"min_amount"`
	MaxAmount       *decimal.Decimal `json:"max_amount,omitempty"`
	Status          string           `json:"status" validate:"required,oneof=active inactive"`
	UpdatedAt       time.Time        `json:"updated_at"`
}

type CommissionRule struct {
	ID              uuid.UUID              `json:"id"`
	Type            string                 `json:"type" validate:"required,oneof=account_usage money_transfer topup prepaid_card"`
	SubType         string                 `json:"sub_type"`
	ATMType         string                 `json:"atm_type,omitempty"`
	Currency        string                 `json:"currency" validate:"required,len=3"`
	CalculationType domain.CalculationType `json:"calculation_type" validate:"required,oneof=fixed percentage mixed"`
	FixedAmount     *decimal.Decimal       `json:"fixed_amount,omitempty"`
	PercentageRate  *decimal.Decimal       `json:"percentage_rate,omitempty"`
	MinAmount       decimal.Decimal        `json:"min_amount"`
	MaxAmount       *decimal.Decimal       `json:"max_amount,omitempty"`
	MinTransactions int                    `json:"min_transactions" validate:"gte=0"`
	MaxTransactions *int                   `json:"max_transactions,omitempty"`
	StartDate       time.Time              `json:"start_date" validate:"required"`
	EndDate         *time.Time             `json:"end_date,omitempty"`
	Status          string                 `json:"status" validate:"required,oneof=active inactive"`
}

// DefaultMinTransactions applies when a commission rule leaves min_transactions unset.
const DefaultMinTransactions = 1

// ApplyDefaults fills unset fields before a rule is stored. A zero minimum
// means unset: the transaction being priced always counts itself.
func (r *CommissionRule) ApplyDefaults() {
	if r.MinTransactions == 0 {
		r.MinTransactions = DefaultMinTransactions
	}
}

// LiveAt reports whether the rule is active and inside its validity window.
func (r CommissionRule) LiveAt(t time.Time) bool {
	return liveAt(r.Status, r.StartDate, r.EndDate, t)
}

type CampaignTarget struct {
	Key      string                `json:"key" validate:"required"`
	Operator domain.TargetOperator `json:"operator" validate:"required,oneof=EQUALS IN"`
	Value    string                `json:"value"`
}

type Campaign struct {
	ID              uuid.UUID           `json:"id"`
	Name            string              `json:"name" validate:"required"`
	StartDate       time.Time           `json:"start_date" validate:"required"`
	EndDate         *time.Time          `json:"end_date,omitempty"`
	Status          string              `json:"status" validate:"required,oneof=active inactive"`
	CashbackType    domain.CashbackType `json:"cashback_type" validate:"required,oneof=PERCENTAGE AMOUNT"`
	CashbackValue   decimal.Decimal     `json:"cashback_value"`
	Currency        string              `json:"currency" validate:"required,len=3"`
	MaximumCashback *decimal.Decimal    `json:"maximum_cashback,omitempty"`
	Targets         []CampaignTarget    `json:"targets" validate:"dive"`
	UsageTotal      decimal.Decimal     `json:"usage_total"`
}

// LiveAt reports whether the campaign is active and inside its validity window.
func (c Campaign) LiveAt(t time.Time) bool {
	return liveAt(c.Status, c.StartDate, c.EndDate, t)
}

func liveAt(status string, start time.Time, end *time.Time, t time.Time) bool {
	if status != domain.StatusActive {
		return false
	}
	if t.Before(start) {
		return false
	}
	return end == nil || !t.After(*end)
}

// RuleSet is a raw read of every active rule, taken at a single point in time.
type RuleSet struct {
	LimitRules      []LimitRule
	CommissionRules []CommissionRule
	Campaigns       []Campaign
}
