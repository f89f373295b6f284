package ledger

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// EntryKind is the business meaning of a ledger entry
type EntryKind string

const (
	EntryKindDeposit    EntryKind = "deposit"
	EntryKindWithdrawal EntryKind = "withdrawal"
	EntryKindInvestment EntryKind = "investment"
	EntryKindProfit     EntryKind = "profit"
	EntryKindBonus      EntryKind = "bonus"
	EntryKindAdjustment EntryKind = "adjustment"
)

// IsValid checks if the entry kind is valid
func (k EntryKind) IsValid() bool {
	switch k {
	case EntryKindDeposit, EntryKindWithdrawal, EntryKindInvestment,
		EntryKindProfit, EntryKindBonus, EntryKindAdjustment:
		return true
	}
	return false
}

// Method is the payment rail an entry moved through
type Method string

const (
	MethodMobileMoney Method = "mobile-money"
	MethodCard        Method = "card"
	MethodBank        Method = "bank"
	MethodInternal    Method = "internal"
)

// IsValid checks if the method is valid
func (m Method) IsValid() bool {
	switch m {
	case MethodMobileMoney, MethodCard, MethodBank, MethodInternal:
		return true
	}
	return false
}

// IsExternal reports whether the method moves money in or out of the platform
func (m Method) IsExternal() bool {
	return m == MethodMobileMoney || m == MethodCard || m == MethodBank
}

// EntryStatus represents the status of a ledger entry
type EntryStatus string

const (
	EntryStatusPending   EntryStatus = "pending"
	EntryStatusApproved  EntryStatus = "approved"
	EntryStatusRejected  EntryStatus = "rejected"
	EntryStatusCompleted EntryStatus = "completed"
)

// IsValid checks if the entry status is valid
func (s EntryStatus) IsValid() bool {
	switch s {
	case EntryStatusPending, EntryStatusApproved, EntryStatusRejected, EntryStatusCompleted:
		return true
	}
	return false
}

// CanTransitionTo reports whether next is a legal successor status.
// pending → approved | completed | rejected, approved → completed | rejected.
func (s EntryStatus) CanTransitionTo(next EntryStatus) bool {
	switch s {
	case EntryStatusPending:
		return next == EntryStatusApproved || next == EntryStatusCompleted || next == EntryStatusRejected
	case EntryStatusApproved:
		return next == EntryStatusCompleted || next == EntryStatusRejected
	}
	return false
}

// IsFinal reports whether no further transition is possible
func (s EntryStatus) IsFinal() bool {
	return s == EntryStatusCompleted || s == EntryStatusRejected
}

// Account holds one user's balances in the canonical currency
type Account struct {
	ID              uuid.UUID
	Available       decimal.Decimal
	Locked          decimal.Decimal
	Bonus           decimal.Decimal
	BonusClaimed    decimal.Decimal // cumulative claimed bonus
	DisplayCurrency string
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// NewAccount creates an account with zero balances
func NewAccount(id uuid.UUID, displayCurrency string, now time.Time) *Account {
	return &Account{
		ID:              id,
		Available:       decimal.Zero,
		Locked:          decimal.Zero,
		Bonus:           decimal.Zero,
		BonusClaimed:    decimal.Zero,
		DisplayCurrency: displayCurrency,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
}

// Total returns available + locked + bonus
func (a *Account) Total() decimal.Decimal {
	return a.Available.Add(a.Locked).Add(a.Bonus)
}

// Validate checks that no balance is negative
func (a *Account) Validate() error {
	if a.Available.Sign() < 0 || a.Locked.Sign() < 0 || a.Bonus.Sign() < 0 || a.BonusClaimed.Sign() < 0 {
		return ErrNegativeBalance
	}
	return nil
}

// Clone returns a copy of the account
func (a *Account) Clone() *Account {
	c := *a
	return &c
}

// Entry is an immutable ledger line. Only Status changes after creation.
type Entry struct {
	ID          uuid.UUID
	AccountID   uuid.UUID
	Kind        EntryKind
	Method      Method
	Amount      decimal.Decimal // signed canonical amount, sign = direction
	Status      EntryStatus
	Reference   string // unique, TX + ULID
	Description string
	Destination string // payout target for withdrawals
	PositionID  *uuid.UUID
	BonusID     *uuid.UUID
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// Effect returns the entry's contribution to available + locked + bonus.
// Rejected entries contribute nothing and investment entries only move
// funds between available and locked.
func (e *Entry) Effect() decimal.Decimal {
	if e.Status == EntryStatusRejected || e.Kind == EntryKindInvestment {
		return decimal.Zero
	}
	return e.Amount
}

// IsCredit reports whether the entry adds funds
func (e *Entry) IsCredit() bool {
	return e.Amount.Sign() >= 0
}

// Validate validates the entry fields
func (e *Entry) Validate() error {
	if e.AccountID == uuid.Nil {
		return ErrAccountRequired
	}
	if !e.Kind.IsValid() {
		return ErrInvalidEntryKind
	}
	if !e.Method.IsValid() {
		return ErrInvalidMethod
	}
	if !e.Status.IsValid() {
		return ErrInvalidEntryStatus
	}
	if e.Amount.IsZero() && e.Kind != EntryKindProfit {
		return ErrInvalidAmount
	}
	return nil
}

// Clone returns a copy of the entry
func (e *Entry) Clone() *Entry {
	c := *e
	if e.PositionID != nil {
		id := *e.PositionID
		c.PositionID = &id
	}
	if e.BonusID != nil {
		id := *e.BonusID
		c.BonusID = &id
	}
	return &c
}

// BonusKind classifies a bonus grant
type BonusKind string

const (
	BonusKindWelcome   BonusKind = "welcome"
	BonusKindDeposit   BonusKind = "deposit"
	BonusKindReferral  BonusKind = "referral"
	BonusKindPromotion BonusKind = "promotion"
)

// IsValid checks if the bonus kind is valid
func (k BonusKind) IsValid() bool {
	switch k {
	case BonusKindWelcome, BonusKindDeposit, BonusKindReferral, BonusKindPromotion:
		return true
	}
	return false
}

// WelcomeBonusKey is the grant key of the one-per-account welcome bonus
const WelcomeBonusKey = "welcome"

// Bonus is a grant that can be claimed exactly once
type Bonus struct {
	ID          uuid.UUID
	AccountID   uuid.UUID
	Key         string // unique per account
	Title       string
	Description string
	Kind        BonusKind
	Amount      decimal.Decimal
	Claimed     bool
	ClaimedAt   *time.Time
	ExpiresAt   *time.Time
	CreatedAt   time.Time
}

// IsExpired reports whether the grant can no longer be claimed at now
func (b *Bonus) IsExpired(now time.Time) bool {
	return b.ExpiresAt != nil && !now.Before(*b.ExpiresAt)
}

// Clone returns a copy of the bonus
func (b *Bonus) Clone() *Bonus {
	c := *b
	if b.ClaimedAt != nil {
		t := *b.ClaimedAt
		c.ClaimedAt = &t
	}
	if b.ExpiresAt != nil {
		t := *b.ExpiresAt
		c.ExpiresAt = &t
	}
	return &c
}

// EntryTotals are the balance sums derived from an account's entries
type EntryTotals struct {
	Effect decimal.Decimal // Σ Effect() over all entries
	Bonus  decimal.Decimal // Σ non-rejected bonus entries
}

// Reconciliation compares stored balances against the entry log
type Reconciliation struct {
	AccountID   uuid.UUID
	StoredTotal decimal.Decimal
	EntryTotal  decimal.Decimal
	StoredBonus decimal.Decimal
	EntryBonus  decimal.Decimal
	Balanced    bool
	CheckedAt   time.Time
}
