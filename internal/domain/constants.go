package domain

// ScopeTag identifies the level a limit rule is defined at.
type ScopeTag string

const (
	ScopeSystem     ScopeTag = "system"
	ScopeGroup      ScopeTag = "group"
	ScopeIndividual ScopeTag = "individual"
)

// Precedence orders scopes; a higher value overrides a lower one.
func (t ScopeTag) Precedence() int {
	switch t {
	case ScopeIndividual:
		return 2
	case ScopeGroup:
		return 1
	default:
		return 0
	}
}

func (t ScopeTag) Valid() bool {
	return t == ScopeSystem || t == ScopeGroup || t == ScopeIndividual
}

type KYCTier string

const (
	KYCVerified   KYCTier = "verified"
	KYCUnverified KYCTier = "unverified"
)

type Period string

const (
	PeriodOneTime Period = "one_time"
	PeriodDaily   Period = "daily"
	PeriodWeekly  Period = "weekly"
	PeriodMonthly Period = "monthly"
)

// Periods lists every limit period in the order they are reported.
var Periods = []Period{PeriodOneTime, PeriodDaily, PeriodWeekly, PeriodMonthly}

// Commission rule types
const (
	CommissionAccountUsage  = "account_usage"
	CommissionMoneyTransfer = "money_transfer"
	CommissionTopup         = "topup"
	CommissionPrepaidCard   = "prepaid_card"
)

type CalculationType string

const (
	CalculationFixed      CalculationType = "fixed"
	CalculationPercentage CalculationType = "percentage"
	CalculationMixed      CalculationType = "mixed"
)

const (
	StatusActive   = "active"
	StatusInactive = "inactive"
)

type CashbackType string

const (
	CashbackPercentage CashbackType = "PERCENTAGE"
	CashbackAmount     CashbackType = "AMOUNT"
)

type TargetOperator string

const (
	OperatorEquals TargetOperator = "EQUALS"
	OperatorIn     TargetOperator = "IN"
)

// Usage store backends
const (
	UsageBackendPostgres = "postgres"
	UsageBackendRedis    = "redis"
	UsageBackendMemory   = "memory"
)
