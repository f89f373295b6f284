package currency_test

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kislikjeka/pesaprime/internal/platform/currency"
	apperrors "github.com/kislikjeka/pesaprime/internal/shared/errors"
)

func kes() currency.Currency {
	return currency.Currency{Code: "KES", ExchangeRate: decimal.RequireFromString("150.0000"), IsActive: true}
}

func TestToDisplay(t *testing.T) {
	got, err := currency.ToDisplay(decimal.RequireFromString("10.01"), kes())
	require.NoError(t, err)
	assert.Equal(t, "1501.50", got.StringFixed(2))

	eur := currency.Currency{Code: "EUR", ExchangeRate: decimal.RequireFromString("0.92")}
	got, err = currency.ToDisplay(decimal.RequireFromString("10.00"), eur)
	require.NoError(t, err)
	assert.Equal(t, "9.20", got.StringFixed(2))
}

func TestToCanonical_RoundsHalfUp(t *testing.T) {
	// 100 / 150 = 0.6666… → 0.67
	got, err := currency.ToCanonical(decimal.NewFromInt(100), kes())
	require.NoError(t, err)
	assert.Equal(t, "0.67", got.StringFixed(2))
}

func TestConversion_ZeroRateIsConfigurationError(t *testing.T) {
	broken := currency.Currency{Code: "XYZ", ExchangeRate: decimal.Zero}

	_, err := currency.ToDisplay(decimal.NewFromInt(1), broken)
	assert.ErrorIs(t, err, currency.ErrInvalidRate)
	assert.True(t, apperrors.HasCode(err, apperrors.ErrCodeConfiguration))

	_, err = currency.ToCanonical(decimal.NewFromInt(1), broken)
	assert.ErrorIs(t, err, currency.ErrInvalidRate)
}

func TestRoundTrip_WithinOneCent(t *testing.T) {
	rates := []string{"1.0000", "1.2345", "150.0000", "3.7000"}
	amounts := []string{"0.01", "0.99", "1.00", "10.01", "123.45", "99999.99"}

	tolerance := decimal.RequireFromString("0.01")
	for _, r := range rates {
		c := currency.Currency{Code: "TST", ExchangeRate: decimal.RequireFromString(r)}
		for _, a := range amounts {
			amount := decimal.RequireFromString(a)
			display, err := currency.ToDisplay(amount, c)
			require.NoError(t, err)
			back, err := currency.ToCanonical(display, c)
			require.NoError(t, err)
			assert.True(t, back.Sub(amount).Abs().LessThanOrEqual(tolerance),
				"rate=%s amount=%s back=%s", r, a, back)
		}
	}
}

func TestUSDIsIdentity(t *testing.T) {
	amount := decimal.RequireFromString("42.42")
	got, err := currency.ToDisplay(amount, currency.USD)
	require.NoError(t, err)
	assert.True(t, got.Equal(amount))
}
