package currency

import (
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/kislikjeka/pesaprime/pkg/money"
)

// ToDisplay converts a canonical (USD) amount into the given currency,
// rounded half-up to 2 decimal places.
func ToDisplay(canonical decimal.Decimal, c Currency) (decimal.Decimal, error) {
	if c.ExchangeRate.Sign() <= 0 {
		return decimal.Zero, fmt.Errorf("%w: %s rate %s", ErrInvalidRate, c.Code, c.ExchangeRate)
	}
	return money.Round(canonical.Mul(money.RoundRate(c.ExchangeRate))), nil
}

// ToCanonical converts an amount expressed in the given currency into USD,
// rounded half-up to 2 decimal places.
func ToCanonical(display decimal.Decimal, c Currency) (decimal.Decimal, error) {
	if c.ExchangeRate.Sign() <= 0 {
		return decimal.Zero, fmt.Errorf("%w: %s rate %s", ErrInvalidRate, c.Code, c.ExchangeRate)
	}
	return money.Round(display.Div(money.RoundRate(c.ExchangeRate))), nil
}
