package domain

import (
	"fmt"
	"math"
	"strings"

	"github.com/shopspring/decimal"
)

// Money represents a monetary value in a specific currency.
// Persisted amounts are BIGINT micros (10^-6) to avoid floating point errors.
type Money struct {
	Amount   decimal.Decimal
	Currency string // ISO 4217
}

var microsPerUnit = decimal.NewFromInt(1_000_000)

// MaxStorableAmount is the largest value that fits a BIGINT micros column.
var MaxStorableAmount = FromMicros(math.MaxInt64)

var hundred = decimal.NewFromInt(100)

// minorUnits lists currencies whose minor unit differs from two decimal places.
var minorUnits = map[string]int32{
	"JPY": 0,
	"KRW": 0,
	"VND": 0,
	"CLP": 0,
	"ISK": 0,
	"BHD": 3,
	"KWD": 3,
	"OMR": 3,
	"JOD": 3,
	"TND": 3,
}

// NewMoney creates a new Money instance rounded to the currency's minor unit.
func NewMoney(amount decimal.Decimal, currency string) Money {
	currency = NormalizeCurrency(currency)
	return Money{
		Amount:   RoundToMinorUnit(amount, currency),
		Currency: currency,
	}
}

// NormalizeCurrency upper-cases and trims an ISO 4217 code.
func NormalizeCurrency(currency string) string {
	return strings.ToUpper(strings.TrimSpace(currency))
}

// MinorUnit returns the number of decimal places used by the currency.
func MinorUnit(currency string) int32 {
	if places, ok := minorUnits[NormalizeCurrency(currency)]; ok {
		return places
	}
	return 2
}

// RoundToMinorUnit rounds half-even (banker's rounding) to the currency precision.
func RoundToMinorUnit(amount decimal.Decimal, currency string) decimal.Decimal {
	return amount.RoundBank(MinorUnit(currency))
}

// PercentOf returns amount * rate / 100 without rounding.
func PercentOf(amount, rate decimal.Decimal) decimal.Decimal {
	return amount.Mul(rate).Div(hundred)
}

// FromMicros converts int64 micros to a shopspring/decimal.Decimal.
func FromMicros(micros int64) decimal.Decimal {
	return decimal.NewFromInt(micros).Div(microsPerUnit)
}

// ToMicros converts a decimal.Decimal to int64 micros, truncating below 10^-6.
// Values outside the int64 range return ErrAmountOverflow.
func ToMicros(d decimal.Decimal) (int64, error) {
	if d.Abs().GreaterThan(MaxStorableAmount) {
		return 0, fmt.Errorf("%w: %s", ErrAmountOverflow, d)
	}
	return d.Mul(microsPerUnit).IntPart(), nil
}

// FromMicrosPtr converts nullable micros columns.
func FromMicrosPtr(micros *int64) *decimal.Decimal {
	if micros == nil {
		return nil
	}
	d := FromMicros(*micros)
	return &d
}

// ToMicrosPtr converts nullable decimals for storage.
func ToMicrosPtr(d *decimal.Decimal) (*int64, error) {
	if d == nil {
		return nil, nil
	}
	m, err := ToMicros(*d)
	if err != nil {
		return nil, err
	}
	return &m, nil
}

// String returns the string representation of the money.
func (m Money) String() string {
	return fmt.Sprintf("%s %s", m.Amount.StringFixed(MinorUnit(m.Currency)), m.Currency)
}
