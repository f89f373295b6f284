package asset

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/kislikjeka/pesaprime/pkg/logger"
)

// Catalog provides read access to investable assets and the administrative
// writes that keep them current. Price acquisition stays outside.
type Catalog struct {
	repo      Repository
	cache     Cache
	freshness time.Duration
	now       func() time.Time
	logger    *logger.Logger
}

// CatalogConfig holds optional settings for the catalog
type CatalogConfig struct {
	Freshness time.Duration
	Clock     func() time.Time
	Logger    *logger.Logger
}

// NewCatalog creates a new asset catalog. cache and config may be nil.
func NewCatalog(repo Repository, cache Cache, config *CatalogConfig) *Catalog {
	c := &Catalog{
		repo:      repo,
		cache:     cache,
		freshness: DefaultFreshness,
		now:       time.Now,
	}

	var log *logger.Logger
	if config != nil {
		if config.Freshness > 0 {
			c.freshness = config.Freshness
		}
		if config.Clock != nil {
			c.now = config.Clock
		}
		log = config.Logger
	}
	c.logger = logger.OrNop(log).WithField("component", "asset_catalog")

	return c
}

// GetAsset retrieves an asset by its UUID
func (c *Catalog) GetAsset(ctx context.Context, id uuid.UUID) (*Asset, error) {
	if c.cache != nil {
		if a, ok, err := c.cache.Get(ctx, id); err == nil && ok {
			return a, nil
		}
	}

	a, err := c.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}

	if c.cache != nil {
		if err := c.cache.Set(ctx, a); err != nil {
			c.logger.Warn("failed to cache asset", "asset_id", id, "error", err)
		}
	}

	return a, nil
}

// GetBySymbol retrieves an asset by symbol
func (c *Catalog) GetBySymbol(ctx context.Context, symbol string) (*Asset, error) {
	return c.repo.GetBySymbol(ctx, strings.ToUpper(strings.TrimSpace(symbol)))
}

// ListActive lists the assets open for investment
func (c *Catalog) ListActive(ctx context.Context) ([]Asset, error) {
	return c.repo.ListActive(ctx)
}

// Create validates and stores a new asset, filling defaults
func (c *Catalog) Create(ctx context.Context, a *Asset) error {
	now := c.now()
	a.ApplyDefaults()
	if a.CreatedAt.IsZero() {
		a.CreatedAt = now
	}
	a.UpdatedAt = now
	if a.LastUpdated.IsZero() && a.CurrentPrice.Sign() > 0 {
		a.LastUpdated = now
	}

	if err := a.Validate(); err != nil {
		return err
	}

	if err := c.repo.Create(ctx, a); err != nil {
		return fmt.Errorf("failed to create asset %s: %w", a.Symbol, err)
	}

	c.logger.Info("asset created", "asset_id", a.ID, "symbol", a.Symbol)
	return nil
}

// UpdateReturnRates replaces the rate table. Open positions keep the rate
// they snapshotted at creation.
func (c *Catalog) UpdateReturnRates(ctx context.Context, id uuid.UUID, rates map[int]decimal.Decimal, durations []int) (*Asset, error) {
	if len(durations) == 0 {
		durations = make([]int, 0, len(rates))
		for h := range rates {
			durations = append(durations, h)
		}
	}

	if err := ValidateRates(rates, durations); err != nil {
		return nil, err
	}

	a, err := c.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}

	a.ReturnRates = rates
	a.AllowedDurations = durations
	a.ApplyDefaults()
	a.UpdatedAt = c.now()

	if err := c.save(ctx, a); err != nil {
		return nil, err
	}

	c.logger.Info("asset return rates updated", "asset_id", id, "durations", a.AllowedDurations)
	return a, nil
}

// UpdatePrice records a new price for the asset
func (c *Catalog) UpdatePrice(ctx context.Context, id uuid.UUID, price decimal.Decimal) (*Asset, error) {
	a, err := c.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}

	if err := a.ApplyPrice(price, c.now()); err != nil {
		return nil, err
	}

	if err := c.save(ctx, a); err != nil {
		return nil, err
	}

	return a, nil
}

// SetActive opens or closes an asset for new positions
func (c *Catalog) SetActive(ctx context.Context, id uuid.UUID, active bool) (*Asset, error) {
	a, err := c.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}

	a.IsActive = active
	a.UpdatedAt = c.now()

	if err := c.save(ctx, a); err != nil {
		return nil, err
	}
	return a, nil
}

// NeedsUpdate reports whether the asset price is outside the freshness window
func (c *Catalog) NeedsUpdate(a *Asset) bool {
	return a.NeedsUpdate(c.now(), c.freshness)
}

// Stale lists active assets whose price needs refreshing
func (c *Catalog) Stale(ctx context.Context) ([]Asset, error) {
	assets, err := c.repo.ListActive(ctx)
	if err != nil {
		return nil, err
	}

	var stale []Asset
	for i := range assets {
		if c.NeedsUpdate(&assets[i]) {
			stale = append(stale, assets[i])
		}
	}
	return stale, nil
}

func (c *Catalog) save(ctx context.Context, a *Asset) error {
	if err := a.Validate(); err != nil {
		return err
	}

	if err := c.repo.Update(ctx, a); err != nil {
		return fmt.Errorf("failed to update asset %s: %w", a.Symbol, err)
	}

	if c.cache != nil {
		if err := c.cache.Invalidate(ctx, a.ID); err != nil {
			c.logger.Warn("failed to invalidate asset cache", "asset_id", a.ID, "error", err)
		}
	}

	return nil
}
