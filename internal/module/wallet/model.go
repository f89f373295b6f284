package wallet

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/kislikjeka/pesaprime/internal/investment"
	"github.com/kislikjeka/pesaprime/internal/ledger"
	"github.com/kislikjeka/pesaprime/internal/platform/currency"
)

// Overview is an account's balances converted to its display currency
type Overview struct {
	AccountID    uuid.UUID
	Currency     currency.Currency
	Available    decimal.Decimal
	Locked       decimal.Decimal
	Bonus        decimal.Decimal
	BonusClaimed decimal.Decimal
	Total        decimal.Decimal
	Canonical    *ledger.Account
}

// EntryView is a ledger entry with its amount in the display currency
type EntryView struct {
	Entry    *ledger.Entry
	Amount   decimal.Decimal // display amount, sign preserved
	Sign     string          // "+" for credits, "-" for debits
	Currency string
}

// PositionView is a position with display amounts and timing
type PositionView struct {
	Position       *investment.Position
	Invested       decimal.Decimal
	ExpectedProfit decimal.Decimal
	ProfitLoss     decimal.Decimal
	Currency       string
	TimeRemaining  time.Duration
	Progress       float64
}

// BonusView is a bonus grant with its amount in the display currency
type BonusView struct {
	Bonus    *ledger.Bonus
	Amount   decimal.Decimal
	Currency string
}

// DepositInput is a deposit expressed in a display currency
type DepositInput struct {
	AccountID   uuid.UUID
	Amount      decimal.Decimal
	Currency    string // empty means the account's display currency
	Method      ledger.Method
	Description string
}

// WithdrawInput is a withdrawal expressed in a display currency
type WithdrawInput struct {
	AccountID   uuid.UUID
	Amount      decimal.Decimal
	Currency    string
	Method      ledger.Method
	Destination string
}

// InvestInput opens a position with an amount in a display currency
type InvestInput struct {
	AccountID     uuid.UUID
	AssetID       uuid.UUID
	Amount        decimal.Decimal
	Currency      string
	DurationHours int
}

// HistoryQuery filters an account's entry history
type HistoryQuery struct {
	Kind   *ledger.EntryKind
	Limit  int
	Offset int
}
