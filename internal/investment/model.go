package investment

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/kislikjeka/pesaprime/pkg/money"
)

// Status represents the lifecycle state of a position
type Status string

const (
	StatusActive    Status = "active"
	StatusCompleted Status = "completed"
	StatusCancelled Status = "cancelled"
)

// IsValid checks if the status is valid
func (s Status) IsValid() bool {
	return s == StatusActive || s == StatusCompleted || s == StatusCancelled
}

// Position is funds locked in an asset for a fixed duration
type Position struct {
	ID                 uuid.UUID
	AccountID          uuid.UUID
	AssetID            uuid.UUID
	AssetSymbol        string
	InvestedAmount     decimal.Decimal
	DurationHours      int
	StartTime          time.Time
	EndTime            time.Time
	ExpectedReturnRate decimal.Decimal // percent, snapshot taken at open
	ActualProfitLoss   decimal.Decimal
	Status             Status
	CompletedAt        *time.Time
	CancelledAt        *time.Time
	CreatedAt          time.Time
	UpdatedAt          time.Time
}

// IsMature reports whether the position is active and its end time has passed
func IsMature(p *Position, now time.Time) bool {
	return p.Status == StatusActive && !now.Before(p.EndTime)
}

// IsMature is the method form of IsMature
func (p *Position) IsMature(now time.Time) bool {
	return IsMature(p, now)
}

// ExpectedProfit returns invested × rate / 100 rounded to cents
func (p *Position) ExpectedProfit() decimal.Decimal {
	return money.Round(money.Percent(p.InvestedAmount, p.ExpectedReturnRate))
}

// ProfitLoss derives the settled amount from the expected profit and a
// return factor. A loss never exceeds the invested amount.
func (p *Position) ProfitLoss(factor decimal.Decimal) decimal.Decimal {
	expected := money.Percent(p.InvestedAmount, p.ExpectedReturnRate)
	actual := money.Round(expected.Mul(factor))
	if floor := p.InvestedAmount.Neg(); actual.LessThan(floor) {
		return floor
	}
	return actual
}

// TimeRemaining returns the time left until maturity, zero once matured or closed
func (p *Position) TimeRemaining(now time.Time) time.Duration {
	if p.Status != StatusActive || !now.Before(p.EndTime) {
		return 0
	}
	return p.EndTime.Sub(now)
}

// Progress returns elapsed/total duration in [0, 1]
func (p *Position) Progress(now time.Time) float64 {
	if p.Status != StatusActive {
		return 1
	}
	total := p.EndTime.Sub(p.StartTime)
	if total <= 0 || !now.Before(p.EndTime) {
		return 1
	}
	elapsed := now.Sub(p.StartTime)
	if elapsed <= 0 {
		return 0
	}
	return float64(elapsed) / float64(total)
}

// Clone returns a copy of the position
func (p *Position) Clone() *Position {
	c := *p
	if p.CompletedAt != nil {
		t := *p.CompletedAt
		c.CompletedAt = &t
	}
	if p.CancelledAt != nil {
		t := *p.CancelledAt
		c.CancelledAt = &t
	}
	return &c
}

// SettleResult describes the outcome of a settle call
type SettleResult struct {
	Position   *Position
	ProfitLoss decimal.Decimal
	Settled    bool // false when another caller had already settled it
}

// LockedReconciliation compares locked funds with open principal
type LockedReconciliation struct {
	AccountID       uuid.UUID
	StoredLocked    decimal.Decimal
	ActivePrincipal decimal.Decimal
	Balanced        bool
}
