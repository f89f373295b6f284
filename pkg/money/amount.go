package money

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

const (
	// MoneyScale is the number of fractional digits carried by stored and displayed amounts
	MoneyScale int32 = 2

	// RateScale is the number of fractional digits carried by exchange rates
	RateScale int32 = 4

	// PercentScale is the number of fractional digits carried by return rates
	PercentScale int32 = 2
)

var hundred = decimal.NewFromInt(100)

// Round rounds an amount half-up (away from zero) to MoneyScale digits.
// E.g., 0.745 → 0.75, -0.745 → -0.75
func Round(d decimal.Decimal) decimal.Decimal {
	return d.Round(MoneyScale)
}

// RoundRate rounds an exchange rate to RateScale digits
func RoundRate(d decimal.Decimal) decimal.Decimal {
	return d.Round(RateScale)
}

// Parse parses a human-readable amount string ("100", "12.50") into a decimal.
// Amounts with more than MoneyScale fractional digits are rejected rather than
// silently rounded.
func Parse(s string) (decimal.Decimal, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return decimal.Zero, fmt.Errorf("amount is required")
	}

	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, fmt.Errorf("invalid amount format: %q", s)
	}

	if d.Exponent() < -MoneyScale && !d.Equal(Round(d)) {
		return decimal.Zero, fmt.Errorf("amount %q has more than %d decimal places", s, MoneyScale)
	}

	return d, nil
}

// MustParse is like Parse but panics on error. Use only for constants and tests.
func MustParse(s string) decimal.Decimal {
	d, err := Parse(s)
	if err != nil {
		panic(err)
	}
	return d
}

// Percent returns amount × pct / 100 without rounding
func Percent(amount, pct decimal.Decimal) decimal.Decimal {
	return amount.Mul(pct).Div(hundred)
}

// ChangePercent returns (current - previous) / previous × 100 rounded to PercentScale.
// A zero previous value yields zero.
func ChangePercent(previous, current decimal.Decimal) decimal.Decimal {
	if previous.IsZero() {
		return decimal.Zero
	}
	return current.Sub(previous).Div(previous).Mul(hundred).Round(PercentScale)
}

// Format renders an amount with exactly MoneyScale fractional digits
func Format(d decimal.Decimal) string {
	return d.StringFixed(MoneyScale)
}

// IsPositive reports whether d > 0
func IsPositive(d decimal.Decimal) bool {
	return d.Sign() > 0
}
