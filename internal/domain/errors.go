package domain

import "errors"

var (
	ErrScopeLookup                 = errors.New("customer scope lookup failed")
	ErrLimitNotConfigured          = errors.New("limit not configured")
	ErrNoCommissionRule            = errors.New("no commission rule")
	ErrAmountOutOfBounds           = errors.New("amount out of bounds")
	ErrTransactionCountOutOfBounds = errors.New("transaction count out of bounds")
	ErrCashbackGrantContention     = errors.New("cashback grant contention")

	ErrScopeUnavailable    = errors.New("customer scope directory unavailable")
	ErrAmountOverflow      = errors.New("amount exceeds storable range")
	ErrInvalidTransaction  = errors.New("invalid transaction context")
	ErrSnapshotUnavailable = errors.New("policy snapshot not loaded")
)

var errorCodes = []struct {
	err  error
	code string
}{
	{ErrScopeLookup, "scope_lookup_error"},
	{ErrLimitNotConfigured, "limit_not_configured"},
	{ErrNoCommissionRule, "no_commission_rule"},
	{ErrAmountOutOfBounds, "amount_out_of_bounds"},
	{ErrTransactionCountOutOfBounds, "transaction_count_out_of_bounds"},
	{ErrCashbackGrantContention, "cashback_grant_contention"},
	{ErrScopeUnavailable, "scope_unavailable"},
	{ErrAmountOverflow, "amount_overflow"},
	{ErrInvalidTransaction, "invalid_transaction"},
	{ErrSnapshotUnavailable, "snapshot_unavailable"},
}

// ErrorCode maps an error onto its stable wire code.
func ErrorCode(err error) string {
	if err == nil {
		return ""
	}
	for _, ec := range errorCodes {
		if errors.Is(err, ec.err) {
			return ec.code
		}
	}
	return "internal_error"
}
