package currency

import (
	"context"
	"errors"
	"fmt"

	"github.com/kislikjeka/pesaprime/pkg/logger"
)

// Resolver looks up currency reference data. It is passed explicitly to the
// components that convert amounts; there is no package-level currency state.
type Resolver struct {
	repo   Repository
	cache  Cache
	logger *logger.Logger
}

// NewResolver creates a resolver. cache may be nil.
func NewResolver(repo Repository, cache Cache, log *logger.Logger) *Resolver {
	return &Resolver{
		repo:   repo,
		cache:  cache,
		logger: logger.OrNop(log).WithField("component", "currency_resolver"),
	}
}

// Resolve returns the currency for code. An empty, unknown or inactive code
// falls back to USD. A record that resolves with a non-positive rate is a
// configuration error and is returned as such.
func (r *Resolver) Resolve(ctx context.Context, code string) (Currency, error) {
	code = NormalizeCode(code)
	if code == "" || code == CodeUSD {
		return USD, nil
	}

	c, err := r.load(ctx, code)
	if errors.Is(err, ErrCurrencyNotFound) {
		r.logger.Debug("currency not found, using USD", "code", code)
		return USD, nil
	}
	if err != nil {
		return Currency{}, err
	}
	if !c.IsActive {
		r.logger.Debug("currency inactive, using USD", "code", code)
		return USD, nil
	}
	if c.ExchangeRate.Sign() <= 0 {
		r.logger.Error("currency has invalid exchange rate", "code", code, "rate", c.ExchangeRate.String())
		return Currency{}, fmt.Errorf("%w: %s", ErrInvalidRate, code)
	}

	return *c, nil
}

// Lookup is the strict variant used when a caller selects a currency.
// Unknown or inactive codes are validation errors.
func (r *Resolver) Lookup(ctx context.Context, code string) (Currency, error) {
	code = NormalizeCode(code)
	if len(code) != 3 {
		return Currency{}, ErrInvalidCode
	}
	if code == CodeUSD {
		return USD, nil
	}

	c, err := r.load(ctx, code)
	if errors.Is(err, ErrCurrencyNotFound) {
		return Currency{}, fmt.Errorf("%w: %s", ErrUnknownCurrency, code)
	}
	if err != nil {
		return Currency{}, err
	}
	if !c.IsActive {
		return Currency{}, fmt.Errorf("%w: %s", ErrUnknownCurrency, code)
	}
	if c.ExchangeRate.Sign() <= 0 {
		r.logger.Error("currency has invalid exchange rate", "code", code, "rate", c.ExchangeRate.String())
		return Currency{}, fmt.Errorf("%w: %s", ErrInvalidRate, code)
	}

	return *c, nil
}

// Active lists the currencies a user may select
func (r *Resolver) Active(ctx context.Context) ([]Currency, error) {
	list, err := r.repo.ListActive(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list currencies: %w", err)
	}
	return list, nil
}

func (r *Resolver) load(ctx context.Context, code string) (*Currency, error) {
	if r.cache != nil {
		if c, ok, err := r.cache.Get(ctx, code); err == nil && ok {
			return c, nil
		}
	}

	c, err := r.repo.GetByCode(ctx, code)
	if err != nil {
		return nil, err
	}

	if r.cache != nil {
		if err := r.cache.Set(ctx, c); err != nil {
			r.logger.Warn("failed to cache currency", "code", code, "error", err)
		}
	}

	return c, nil
}
