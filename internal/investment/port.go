package investment

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/kislikjeka/pesaprime/internal/ledger"
	"github.com/kislikjeka/pesaprime/internal/platform/asset"
)

// Repository defines the interface for position persistence operations
type Repository interface {
	Create(ctx context.Context, p *Position) error
	GetByID(ctx context.Context, id uuid.UUID) (*Position, error)

	// GetForUpdate loads the position with a row lock held until the transaction ends
	GetForUpdate(ctx context.Context, id uuid.UUID) (*Position, error)

	// Complete moves the position from active to completed. It reports false
	// without writing when the stored row is no longer active.
	Complete(ctx context.Context, p *Position) (bool, error)

	// Cancel moves the position from active to cancelled, same contract as Complete
	Cancel(ctx context.Context, p *Position) (bool, error)

	List(ctx context.Context, filters Filters) ([]*Position, error)

	// ListMatured returns up to limit active positions with end_time <= now, oldest first
	ListMatured(ctx context.Context, now time.Time, limit int) ([]*Position, error)

	// SumActivePrincipal returns Σ invested_amount over the account's active positions
	SumActivePrincipal(ctx context.Context, accountID uuid.UUID) (decimal.Decimal, error)
}

// Filters defines filters for listing positions
type Filters struct {
	AccountID *uuid.UUID
	AssetID   *uuid.UUID
	Status    *Status
	Limit     int
	Offset    int
}

// Ledger is the subset of the ledger service positions mutate balances through
type Ledger interface {
	InTx(ctx context.Context, op string, fn func(ctx context.Context) error) error
	LockAccount(ctx context.Context, accountID uuid.UUID) (*ledger.Account, error)
	Post(ctx context.Context, account *ledger.Account, entry *ledger.Entry) error
	GetAccount(ctx context.Context, accountID uuid.UUID) (*ledger.Account, error)
}

// AssetCatalog provides the rate table snapshot used when opening a position
type AssetCatalog interface {
	GetAsset(ctx context.Context, id uuid.UUID) (*asset.Asset, error)
}
