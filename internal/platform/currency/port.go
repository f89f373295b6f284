package currency

import "context"

// Repository defines read access to the currency reference table
type Repository interface {
	// GetByCode returns ErrCurrencyNotFound when no row matches
	GetByCode(ctx context.Context, code string) (*Currency, error)

	// ListActive returns active currencies ordered by code
	ListActive(ctx context.Context) ([]Currency, error)
}

// Cache is an optional read-through cache in front of the repository
type Cache interface {
	Get(ctx context.Context, code string) (*Currency, bool, error)
	Set(ctx context.Context, c *Currency) error
}
