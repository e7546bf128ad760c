package money

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRoundModes(t *testing.T) {
	cases := []struct {
		in       string
		halfEven string
		halfUp   string
	}{
		{"2.345", "2.34", "2.35"},
		{"2.355", "2.36", "2.36"},
		{"2.365", "2.36", "2.37"},
		{"-2.345", "-2.34", "-2.35"},
		{"2.344", "2.34", "2.34"},
	}
	for _, tc := range cases {
		d := decimal.RequireFromString(tc.in)
		assert.Equal(t, tc.halfEven, Round(d, 2, RoundHalfEven).String(), "half_even %s", tc.in)
		assert.Equal(t, tc.halfUp, Round(d, 2, RoundHalfUp).String(), "half_up %s", tc.in)
	}
}

func TestWithinEpsilon(t *testing.T) {
	eps := decimal.New(1, -2)
	a := decimal.RequireFromString("100.00")
	// A difference of exactly epsilon is still within tolerance.
	assert.True(t, WithinEpsilon(a, decimal.RequireFromString("100.01"), eps))
	assert.False(t, WithinEpsilon(a, decimal.RequireFromString("100.02"), eps))
}

func TestCurrencyHelpers(t *testing.T) {
	require.Equal(t, "USD", NormalizeCurrency(" usd "))

	assert.True(t, ValidCurrency("usd"))
	assert.True(t, ValidCurrency("EUR"))
	assert.True(t, ValidCurrency("JPY"))
	assert.False(t, ValidCurrency("XXXX"))
	assert.False(t, ValidCurrency(""))

	assert.Equal(t, int32(2), DisplayScale("USD"))
	assert.Equal(t, int32(0), DisplayScale("JPY"))
}
