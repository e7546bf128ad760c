// Package money centralizes monetary rounding, epsilon comparison and
// currency-code validation. Amounts are shopspring decimals carried at up to
// six fractional digits internally; display rounds to the currency's scale.
package money

import (
	"strings"

	govmoney "github.com/govalues/money"
	"github.com/shopspring/decimal"
)

// RoundingMode selects the tie-breaking rule for display and allocation
// rounding.
type RoundingMode string

const (
	// RoundHalfEven is banker's rounding, the default.
	RoundHalfEven RoundingMode = "half_even"
	RoundHalfUp   RoundingMode = "half_up"
)

// Valid reports whether m is a recognized mode.
func (m RoundingMode) Valid() bool { return m == RoundHalfEven || m == RoundHalfUp }

// Round rounds d to the given number of fractional digits under the mode.
func Round(d decimal.Decimal, places int32, mode RoundingMode) decimal.Decimal {
	if mode == RoundHalfUp {
		return d.Round(places)
	}
	return d.RoundBank(places)
}

// WithinEpsilon reports whether a and b differ by at most eps.
func WithinEpsilon(a, b, eps decimal.Decimal) bool {
	return a.Sub(b).Abs().LessThanOrEqual(eps)
}

// NormalizeCurrency uppercases and trims a currency code.
func NormalizeCurrency(code string) string { return strings.ToUpper(strings.TrimSpace(code)) }

// ValidCurrency reports whether code is a known ISO 4217 currency.
func ValidCurrency(code string) bool {
	_, err := govmoney.ParseCurr(NormalizeCurrency(code))
	return err == nil
}

// DisplayScale returns the currency's minor-unit scale (2 for USD, 0 for
// JPY), defaulting to 2 for unknown codes.
func DisplayScale(code string) int32 {
	c, err := govmoney.ParseCurr(NormalizeCurrency(code))
	if err != nil {
		return 2
	}
	return int32(c.Scale())
}

// Display rounds an internal amount to the currency's scale for presentation.
func Display(d decimal.Decimal, currency string, mode RoundingMode) decimal.Decimal {
	return Round(d, DisplayScale(currency), mode)
}
