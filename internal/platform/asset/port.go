package asset

import (
	"context"

	"github.com/google/uuid"
)

// Repository defines the interface for asset persistence operations
type Repository interface {
	// GetByID retrieves an asset by its UUID
	GetByID(ctx context.Context, id uuid.UUID) (*Asset, error)

	// GetBySymbol retrieves an asset by its unique symbol
	GetBySymbol(ctx context.Context, symbol string) (*Asset, error)

	// ListActive retrieves active assets ordered by display order
	ListActive(ctx context.Context) ([]Asset, error)

	// Create creates a new asset, ErrDuplicateAsset on symbol clash
	Create(ctx context.Context, asset *Asset) error

	// Update persists prices, limits and the rate table
	Update(ctx context.Context, asset *Asset) error
}

// Cache defines a read-through cache for asset reference data
type Cache interface {
	Get(ctx context.Context, id uuid.UUID) (*Asset, bool, error)
	Set(ctx context.Context, asset *Asset) error
	Invalidate(ctx context.Context, id uuid.UUID) error
}
