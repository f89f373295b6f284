package ledger

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Transactor manages a database transaction carried in the context
type Transactor interface {
	BeginTx(ctx context.Context) (context.Context, error)
	CommitTx(ctx context.Context) error
	RollbackTx(ctx context.Context) error
}

// Repository defines the interface for ledger persistence operations
type Repository interface {
	Transactor

	// Account operations

	// EnsureAccount returns the account, creating it with zero balances if absent
	EnsureAccount(ctx context.Context, id uuid.UUID, displayCurrency string) (*Account, error)
	// LockAccount is EnsureAccount plus a row lock held until the transaction ends.
	// Waiting longer than the configured lock timeout yields a concurrency error.
	LockAccount(ctx context.Context, id uuid.UUID, displayCurrency string) (*Account, error)
	UpdateAccount(ctx context.Context, account *Account) error

	// Entry operations (entries are immutable apart from status)
	CreateEntry(ctx context.Context, entry *Entry) error
	GetEntry(ctx context.Context, id uuid.UUID) (*Entry, error)
	GetEntryForUpdate(ctx context.Context, id uuid.UUID) (*Entry, error)
	UpdateEntryStatus(ctx context.Context, entry *Entry) error
	ListEntries(ctx context.Context, filters EntryFilters) ([]*Entry, error)
	SumEntries(ctx context.Context, accountID uuid.UUID) (*EntryTotals, error)

	// Bonus operations
	CreateBonus(ctx context.Context, bonus *Bonus) error
	GetBonus(ctx context.Context, id uuid.UUID) (*Bonus, error)
	GetBonusForUpdate(ctx context.Context, id uuid.UUID) (*Bonus, error)
	GetBonusByKey(ctx context.Context, accountID uuid.UUID, key string) (*Bonus, error)
	UpdateBonus(ctx context.Context, bonus *Bonus) error
	ListBonuses(ctx context.Context, filters BonusFilters) ([]*Bonus, error)
}

// EntryFilters defines filters for listing entries
type EntryFilters struct {
	AccountID  *uuid.UUID
	Kind       *EntryKind
	Status     *EntryStatus
	PositionID *uuid.UUID
	From       *time.Time
	To         *time.Time
	Limit      int
	Offset     int
}

// BonusFilters defines filters for listing bonus grants
type BonusFilters struct {
	AccountID     uuid.UUID
	OnlyUnclaimed bool
}

// EventType names a ledger event
type EventType string

const (
	EventEntryPosted        EventType = "ledger.entry_posted"
	EventEntryStatusChanged EventType = "ledger.entry_status_changed"
)

// Event is published after the transaction that produced it commits
type Event struct {
	Type       EventType
	Entry      Entry
	Reason     string
	OccurredAt time.Time
}

// EventPublisher fans ledger events out to other services
type EventPublisher interface {
	Publish(ctx context.Context, event Event) error
}

// Metrics receives ledger instrumentation
type Metrics interface {
	ObserveOperation(op, outcome string, duration time.Duration)
	RecordRetry(op string)
	RecordEntry(kind EntryKind, amount decimal.Decimal)
}

type noopPublisher struct{}

func (noopPublisher) Publish(context.Context, Event) error { return nil }

type noopMetrics struct{}

func (noopMetrics) ObserveOperation(string, string, time.Duration) {}
func (noopMetrics) RecordRetry(string)                             {}
func (noopMetrics) RecordEntry(EntryKind, decimal.Decimal)         {}
