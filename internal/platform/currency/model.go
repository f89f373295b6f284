package currency

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// CodeUSD is the canonical accounting currency. Every stored amount is in USD.
const CodeUSD = "USD"

// Currency is a display currency and its rate against the canonical currency
type Currency struct {
	Code         string
	Name         string
	Symbol       string
	ExchangeRate decimal.Decimal // units of this currency per 1 USD, 4 dp
	IsActive     bool
	UpdatedAt    time.Time
}

// USD is the identity currency used when no currency record resolves
var USD = Currency{
	Code:         CodeUSD,
	Name:         "US Dollar",
	Symbol:       "$",
	ExchangeRate: decimal.NewFromInt(1),
	IsActive:     true,
}

// Validate checks the record is usable for conversion
func (c *Currency) Validate() error {
	if len(c.Code) != 3 {
		return ErrInvalidCode
	}
	if c.ExchangeRate.Sign() <= 0 {
		return ErrInvalidRate
	}
	return nil
}

// NormalizeCode upper-cases and trims a currency code
func NormalizeCode(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}

// Defaults returns the seeded reference currencies
func Defaults() []Currency {
	return []Currency{
		USD,
		{Code: "KES", Name: "Kenyan Shilling", Symbol: "KSh", ExchangeRate: decimal.RequireFromString("150.0000"), IsActive: true},
		{Code: "EUR", Name: "Euro", Symbol: "€", ExchangeRate: decimal.RequireFromString("0.9200"), IsActive: true},
		{Code: "GBP", Name: "British Pound", Symbol: "£", ExchangeRate: decimal.RequireFromString("0.7900"), IsActive: true},
	}
}
