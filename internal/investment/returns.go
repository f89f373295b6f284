package investment

import (
	"math/rand/v2"

	"github.com/shopspring/decimal"
)

// ReturnModel supplies the multiplier applied to a position's expected
// profit at settlement.
type ReturnModel interface {
	Factor(p *Position) decimal.Decimal
}

// FixedReturnModel always returns Value. Used in tests and deterministic environments.
type FixedReturnModel struct {
	Value decimal.Decimal
}

// NeutralReturns settles every position at exactly its expected profit
var NeutralReturns = FixedReturnModel{Value: decimal.NewFromInt(1)}

// Factor implements ReturnModel
func (m FixedReturnModel) Factor(*Position) decimal.Decimal {
	return m.Value
}

// RandomReturnModel draws a factor uniformly from [Min, Max]
type RandomReturnModel struct {
	Min decimal.Decimal
	Max decimal.Decimal
}

// DefaultReturnModel varies returns by ±20% around the expected profit
func DefaultReturnModel() RandomReturnModel {
	return RandomReturnModel{
		Min: decimal.RequireFromString("0.80"),
		Max: decimal.RequireFromString("1.20"),
	}
}

// Factor implements ReturnModel
func (m RandomReturnModel) Factor(*Position) decimal.Decimal {
	spread := m.Max.Sub(m.Min)
	if spread.Sign() <= 0 {
		return m.Min
	}
	return m.Min.Add(spread.Mul(decimal.NewFromFloat(rand.Float64()))).Round(4)
}
