package postgres

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/kislikjeka/pesaprime/internal/investment"
	"github.com/kislikjeka/pesaprime/internal/ledger"
)

// PositionRepository implements investment.Repository using PostgreSQL.
// It shares the transaction of the ledger repository through the context.
type PositionRepository struct {
	pool *pgxpool.Pool
}

var _ investment.Repository = (*PositionRepository)(nil)

// NewPositionRepository creates a new PostgreSQL position repository
func NewPositionRepository(pool *pgxpool.Pool) *PositionRepository {
	return &PositionRepository{pool: pool}
}

const positionColumns = `id, account_id, asset_id, asset_symbol, invested_amount::text,
	duration_hours, start_time, end_time, expected_return_rate::text,
	actual_profit_loss::text, status, completed_at, cancelled_at, created_at, updated_at`

func scanPosition(row pgx.Row) (*investment.Position, error) {
	var p investment.Position
	err := row.Scan(
		&p.ID,
		&p.AccountID,
		&p.AssetID,
		&p.AssetSymbol,
		&p.InvestedAmount,
		&p.DurationHours,
		&p.StartTime,
		&p.EndTime,
		&p.ExpectedReturnRate,
		&p.ActualProfitLoss,
		&p.Status,
		&p.CompletedAt,
		&p.CancelledAt,
		&p.CreatedAt,
		&p.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &p, nil
}

// Create inserts a new position
func (r *PositionRepository) Create(ctx context.Context, p *investment.Position) error {
	tx, err := requireTx(ctx, ledger.ErrNoTransaction)
	if err != nil {
		return err
	}

	_, err = tx.Exec(ctx, `
		INSERT INTO positions (id, account_id, asset_id, asset_symbol, invested_amount,
			duration_hours, start_time, end_time, expected_return_rate, actual_profit_loss,
			status, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
	`,
		p.ID,
		p.AccountID,
		p.AssetID,
		p.AssetSymbol,
		p.InvestedAmount,
		p.DurationHours,
		p.StartTime,
		p.EndTime,
		p.ExpectedReturnRate,
		p.ActualProfitLoss,
		string(p.Status),
		p.CreatedAt,
		p.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert position: %w", mapError(err))
	}
	return nil
}

func (r *PositionRepository) get(ctx context.Context, q queryer, query string, id uuid.UUID) (*investment.Position, error) {
	p, err := scanPosition(q.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, investment.ErrPositionNotFound
		}
		return nil, fmt.Errorf("failed to get position: %w", mapError(err))
	}
	return p, nil
}

// GetByID retrieves a position by ID
func (r *PositionRepository) GetByID(ctx context.Context, id uuid.UUID) (*investment.Position, error) {
	return r.get(ctx, getQueryer(ctx, r.pool), `SELECT `+positionColumns+` FROM positions WHERE id = $1`, id)
}

// GetForUpdate reads and locks a position row
func (r *PositionRepository) GetForUpdate(ctx context.Context, id uuid.UUID) (*investment.Position, error) {
	tx, err := requireTx(ctx, ledger.ErrNoTransaction)
	if err != nil {
		return nil, err
	}
	return r.get(ctx, tx, `SELECT `+positionColumns+` FROM positions WHERE id = $1 FOR UPDATE`, id)
}

// Complete moves an active position to completed
func (r *PositionRepository) Complete(ctx context.Context, p *investment.Position) (bool, error) {
	return r.transition(ctx, `
		UPDATE positions
		SET status = $2, actual_profit_loss = $3, completed_at = $4, updated_at = $5
		WHERE id = $1 AND status = 'active'
	`, p.ID, string(p.Status), p.ActualProfitLoss, p.CompletedAt, p.UpdatedAt)
}

// Cancel moves an active position to cancelled
func (r *PositionRepository) Cancel(ctx context.Context, p *investment.Position) (bool, error) {
	return r.transition(ctx, `
		UPDATE positions
		SET status = $2, cancelled_at = $3, updated_at = $4
		WHERE id = $1 AND status = 'active'
	`, p.ID, string(p.Status), p.CancelledAt, p.UpdatedAt)
}

func (r *PositionRepository) transition(ctx context.Context, query string, args ...any) (bool, error) {
	tx, err := requireTx(ctx, ledger.ErrNoTransaction)
	if err != nil {
		return false, err
	}

	tag, err := tx.Exec(ctx, query, args...)
	if err != nil {
		return false, fmt.Errorf("failed to update position: %w", mapError(err))
	}
	return tag.RowsAffected() == 1, nil
}

// List lists positions with filters, newest first
func (r *PositionRepository) List(ctx context.Context, filters investment.Filters) ([]*investment.Position, error) {
	var (
		conditions []string
		args       []any
	)
	add := func(cond string, v any) {
		args = append(args, v)
		conditions = append(conditions, fmt.Sprintf(cond, len(args)))
	}

	if filters.AccountID != nil {
		add("account_id = $%d", *filters.AccountID)
	}
	if filters.AssetID != nil {
		add("asset_id = $%d", *filters.AssetID)
	}
	if filters.Status != nil {
		add("status = $%d", string(*filters.Status))
	}

	query := `SELECT ` + positionColumns + ` FROM positions`
	if len(conditions) > 0 {
		query += " WHERE " + strings.Join(conditions, " AND ")
	}
	query += " ORDER BY created_at DESC, id DESC"
	query += pageClause(filters.Limit, filters.Offset)

	return r.list(ctx, query, args...)
}

// ListMatured returns active positions with end_time <= now, oldest first
func (r *PositionRepository) ListMatured(ctx context.Context, now time.Time, limit int) ([]*investment.Position, error) {
	query := `SELECT ` + positionColumns + ` FROM positions
		WHERE status = 'active' AND end_time <= $1
		ORDER BY end_time ASC` + pageClause(limit, 0)
	return r.list(ctx, query, now)
}

func (r *PositionRepository) list(ctx context.Context, query string, args ...any) ([]*investment.Position, error) {
	rows, err := getQueryer(ctx, r.pool).Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list positions: %w", mapError(err))
	}
	defer rows.Close()

	var positions []*investment.Position
	for rows.Next() {
		p, err := scanPosition(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan position: %w", err)
		}
		positions = append(positions, p)
	}
	return positions, rows.Err()
}

// SumActivePrincipal sums the invested amount of the account's active positions
func (r *PositionRepository) SumActivePrincipal(ctx context.Context, accountID uuid.UUID) (decimal.Decimal, error) {
	var sum decimal.Decimal
	err := getQueryer(ctx, r.pool).QueryRow(ctx, `
		SELECT COALESCE(SUM(invested_amount), 0)::text
		FROM positions
		WHERE account_id = $1 AND status = 'active'
	`, accountID).Scan(&sum)
	if err != nil {
		return decimal.Zero, fmt.Errorf("failed to sum active principal: %w", mapError(err))
	}
	return sum, nil
}
