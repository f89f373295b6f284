package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/kislikjeka/pesaprime/internal/platform/asset"
)

// AssetRepository implements asset.Repository using PostgreSQL
type AssetRepository struct {
	pool *pgxpool.Pool
}

var _ asset.Repository = (*AssetRepository)(nil)

// NewAssetRepository creates a new PostgreSQL asset repository
func NewAssetRepository(pool *pgxpool.Pool) *AssetRepository {
	return &AssetRepository{pool: pool}
}

const assetColumns = `id, symbol, name, description, category, risk_level,
	current_price::text, previous_price::text, change_percentage::text,
	min_investment::text, max_investment::text, return_rates, allowed_durations,
	is_active, display_order, last_updated, created_at, updated_at`

// return_rates is stored as {"1": "0.5", "24": "12.0"}
func encodeRates(rates map[int]decimal.Decimal) ([]byte, error) {
	m := make(map[string]string, len(rates))
	for h, r := range rates {
		m[strconv.Itoa(h)] = r.String()
	}
	return json.Marshal(m)
}

func decodeRates(raw []byte) (map[int]decimal.Decimal, error) {
	var m map[string]string
	if err := json.Unmarshal(raw, &m); err != nil {
		return nil, err
	}
	rates := make(map[int]decimal.Decimal, len(m))
	for k, v := range m {
		h, err := strconv.Atoi(k)
		if err != nil {
			return nil, fmt.Errorf("invalid duration key %q: %w", k, err)
		}
		r, err := decimal.NewFromString(v)
		if err != nil {
			return nil, fmt.Errorf("invalid rate for %dh: %w", h, err)
		}
		rates[h] = r
	}
	return rates, nil
}

func scanAsset(row pgx.Row) (*asset.Asset, error) {
	var (
		a           asset.Asset
		rates       []byte
		durations   []int32
		lastUpdated *time.Time
	)
	err := row.Scan(
		&a.ID,
		&a.Symbol,
		&a.Name,
		&a.Description,
		&a.Category,
		&a.RiskLevel,
		&a.CurrentPrice,
		&a.PreviousPrice,
		&a.ChangePercentage,
		&a.MinInvestment,
		&a.MaxInvestment,
		&rates,
		&durations,
		&a.IsActive,
		&a.DisplayOrder,
		&lastUpdated,
		&a.CreatedAt,
		&a.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	if a.ReturnRates, err = decodeRates(rates); err != nil {
		return nil, fmt.Errorf("failed to decode return rates of %s: %w", a.Symbol, err)
	}
	a.AllowedDurations = make([]int, len(durations))
	for i, h := range durations {
		a.AllowedDurations[i] = int(h)
	}
	if lastUpdated != nil {
		a.LastUpdated = *lastUpdated
	}
	return &a, nil
}

func durationsParam(hours []int) []int32 {
	out := make([]int32, len(hours))
	for i, h := range hours {
		out[i] = int32(h)
	}
	return out
}

func nullableTime(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	return &t
}

func (r *AssetRepository) get(ctx context.Context, query string, arg any) (*asset.Asset, error) {
	a, err := scanAsset(getQueryer(ctx, r.pool).QueryRow(ctx, query, arg))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, asset.ErrAssetNotFound
		}
		return nil, fmt.Errorf("failed to get asset: %w", mapError(err))
	}
	return a, nil
}

// GetByID retrieves an asset by its UUID
func (r *AssetRepository) GetByID(ctx context.Context, id uuid.UUID) (*asset.Asset, error) {
	return r.get(ctx, `SELECT `+assetColumns+` FROM assets WHERE id = $1`, id)
}

// GetBySymbol retrieves an asset by its symbol
func (r *AssetRepository) GetBySymbol(ctx context.Context, symbol string) (*asset.Asset, error) {
	return r.get(ctx, `SELECT `+assetColumns+` FROM assets WHERE symbol = $1`, symbol)
}

// ListActive retrieves active assets by display order, then symbol
func (r *AssetRepository) ListActive(ctx context.Context) ([]asset.Asset, error) {
	rows, err := getQueryer(ctx, r.pool).Query(ctx,
		`SELECT `+assetColumns+` FROM assets WHERE is_active ORDER BY display_order, symbol`)
	if err != nil {
		return nil, fmt.Errorf("failed to list assets: %w", mapError(err))
	}
	defer rows.Close()

	var assets []asset.Asset
	for rows.Next() {
		a, err := scanAsset(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan asset: %w", err)
		}
		assets = append(assets, *a)
	}
	return assets, rows.Err()
}

// Create inserts a new asset
func (r *AssetRepository) Create(ctx context.Context, a *asset.Asset) error {
	rates, err := encodeRates(a.ReturnRates)
	if err != nil {
		return fmt.Errorf("failed to encode return rates: %w", err)
	}

	_, err = getQueryer(ctx, r.pool).Exec(ctx, `
		INSERT INTO assets (id, symbol, name, description, category, risk_level,
			current_price, previous_price, change_percentage, min_investment, max_investment,
			return_rates, allowed_durations, is_active, display_order, last_updated,
			created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18)
	`,
		a.ID,
		a.Symbol,
		a.Name,
		a.Description,
		string(a.Category),
		string(a.RiskLevel),
		a.CurrentPrice,
		a.PreviousPrice,
		a.ChangePercentage,
		a.MinInvestment,
		a.MaxInvestment,
		rates,
		durationsParam(a.AllowedDurations),
		a.IsActive,
		a.DisplayOrder,
		nullableTime(a.LastUpdated),
		a.CreatedAt,
		a.UpdatedAt,
	)
	if err != nil {
		if pgCode(err) == codeUniqueViolation {
			return fmt.Errorf("%w: %s", asset.ErrDuplicateAsset, a.Symbol)
		}
		return fmt.Errorf("failed to insert asset: %w", mapError(err))
	}
	return nil
}

// Update persists prices, limits and the rate table
func (r *AssetRepository) Update(ctx context.Context, a *asset.Asset) error {
	rates, err := encodeRates(a.ReturnRates)
	if err != nil {
		return fmt.Errorf("failed to encode return rates: %w", err)
	}

	tag, err := getQueryer(ctx, r.pool).Exec(ctx, `
		UPDATE assets
		SET name = $2, description = $3, risk_level = $4,
		    current_price = $5, previous_price = $6, change_percentage = $7,
		    min_investment = $8, max_investment = $9, return_rates = $10,
		    allowed_durations = $11, is_active = $12, display_order = $13,
		    last_updated = $14, updated_at = $15
		WHERE id = $1
	`,
		a.ID,
		a.Name,
		a.Description,
		string(a.RiskLevel),
		a.CurrentPrice,
		a.PreviousPrice,
		a.ChangePercentage,
		a.MinInvestment,
		a.MaxInvestment,
		rates,
		durationsParam(a.AllowedDurations),
		a.IsActive,
		a.DisplayOrder,
		nullableTime(a.LastUpdated),
		a.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to update asset: %w", mapError(err))
	}
	if tag.RowsAffected() == 0 {
		return asset.ErrAssetNotFound
	}
	return nil
}
