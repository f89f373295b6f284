package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/kislikjeka/pesaprime/internal/platform/currency"
)

// CurrencyRepository implements currency.Repository using PostgreSQL
type CurrencyRepository struct {
	pool *pgxpool.Pool
}

var _ currency.Repository = (*CurrencyRepository)(nil)

// NewCurrencyRepository creates a new PostgreSQL currency repository
func NewCurrencyRepository(pool *pgxpool.Pool) *CurrencyRepository {
	return &CurrencyRepository{pool: pool}
}

func scanCurrency(row pgx.Row) (*currency.Currency, error) {
	var c currency.Currency
	if err := row.Scan(&c.Code, &c.Name, &c.Symbol, &c.ExchangeRate, &c.IsActive, &c.UpdatedAt); err != nil {
		return nil, err
	}
	return &c, nil
}

// GetByCode retrieves a currency by its ISO code
func (r *CurrencyRepository) GetByCode(ctx context.Context, code string) (*currency.Currency, error) {
	c, err := scanCurrency(getQueryer(ctx, r.pool).QueryRow(ctx, `
		SELECT code, name, symbol, exchange_rate::text, is_active, updated_at
		FROM currencies WHERE code = $1
	`, code))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, currency.ErrCurrencyNotFound
		}
		return nil, fmt.Errorf("failed to get currency: %w", mapError(err))
	}
	return c, nil
}

// ListActive lists active currencies ordered by code
func (r *CurrencyRepository) ListActive(ctx context.Context) ([]currency.Currency, error) {
	rows, err := getQueryer(ctx, r.pool).Query(ctx, `
		SELECT code, name, symbol, exchange_rate::text, is_active, updated_at
		FROM currencies WHERE is_active ORDER BY code
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to list currencies: %w", mapError(err))
	}
	defer rows.Close()

	var list []currency.Currency
	for rows.Next() {
		c, err := scanCurrency(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan currency: %w", err)
		}
		list = append(list, *c)
	}
	return list, rows.Err()
}
