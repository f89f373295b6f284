package postgres

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/kislikjeka/pesaprime/internal/ledger"
)

// LedgerRepository implements ledger.Repository using PostgreSQL
type LedgerRepository struct {
	*Transactor
	pool *pgxpool.Pool
}

var _ ledger.Repository = (*LedgerRepository)(nil)

// NewLedgerRepository creates a new PostgreSQL ledger repository
func NewLedgerRepository(pool *pgxpool.Pool, tx *Transactor) *LedgerRepository {
	return &LedgerRepository{Transactor: tx, pool: pool}
}

// Account operations

const accountColumns = `id, available::text, locked::text, bonus::text, bonus_claimed::text,
	display_currency, created_at, updated_at`

func scanAccount(row pgx.Row) (*ledger.Account, error) {
	var a ledger.Account
	err := row.Scan(
		&a.ID,
		&a.Available,
		&a.Locked,
		&a.Bonus,
		&a.BonusClaimed,
		&a.DisplayCurrency,
		&a.CreatedAt,
		&a.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &a, nil
}

func (r *LedgerRepository) insertAccount(ctx context.Context, q queryer, id uuid.UUID, displayCurrency string) error {
	_, err := q.Exec(ctx, `
		INSERT INTO accounts (id, display_currency, created_at, updated_at)
		VALUES ($1, $2, NOW(), NOW())
		ON CONFLICT (id) DO NOTHING
	`, id, displayCurrency)
	if err != nil {
		return fmt.Errorf("failed to insert account: %w", mapError(err))
	}
	return nil
}

// EnsureAccount returns the account, creating it with zero balances if absent
func (r *LedgerRepository) EnsureAccount(ctx context.Context, id uuid.UUID, displayCurrency string) (*ledger.Account, error) {
	q := getQueryer(ctx, r.pool)
	if err := r.insertAccount(ctx, q, id, displayCurrency); err != nil {
		return nil, err
	}

	a, err := scanAccount(q.QueryRow(ctx, `SELECT `+accountColumns+` FROM accounts WHERE id = $1`, id))
	if err != nil {
		return nil, fmt.Errorf("failed to get account: %w", mapError(err))
	}
	return a, nil
}

// LockAccount creates the account if needed and locks its row until the transaction ends
func (r *LedgerRepository) LockAccount(ctx context.Context, id uuid.UUID, displayCurrency string) (*ledger.Account, error) {
	tx, err := requireTx(ctx, ledger.ErrNoTransaction)
	if err != nil {
		return nil, err
	}
	if err := r.insertAccount(ctx, tx, id, displayCurrency); err != nil {
		return nil, err
	}

	a, err := scanAccount(tx.QueryRow(ctx, `SELECT `+accountColumns+` FROM accounts WHERE id = $1 FOR UPDATE`, id))
	if err != nil {
		return nil, fmt.Errorf("failed to lock account: %w", mapError(err))
	}
	return a, nil
}

// UpdateAccount writes the account balances
func (r *LedgerRepository) UpdateAccount(ctx context.Context, account *ledger.Account) error {
	if err := account.Validate(); err != nil {
		return err
	}

	tag, err := getQueryer(ctx, r.pool).Exec(ctx, `
		UPDATE accounts
		SET available = $2, locked = $3, bonus = $4, bonus_claimed = $5,
		    display_currency = $6, updated_at = $7
		WHERE id = $1
	`,
		account.ID,
		account.Available,
		account.Locked,
		account.Bonus,
		account.BonusClaimed,
		account.DisplayCurrency,
		account.UpdatedAt,
	)
	if err != nil {
		if pgCode(err) == codeCheckViolation {
			return ledger.ErrNegativeBalance
		}
		return fmt.Errorf("failed to update account: %w", mapError(err))
	}
	if tag.RowsAffected() == 0 {
		return ledger.ErrAccountNotFound
	}
	return nil
}

// Entry operations

const entryColumns = `id, account_id, kind, method, amount::text, status, reference,
	description, destination, position_id, bonus_id, created_at, updated_at`

func scanEntry(row pgx.Row) (*ledger.Entry, error) {
	var e ledger.Entry
	err := row.Scan(
		&e.ID,
		&e.AccountID,
		&e.Kind,
		&e.Method,
		&e.Amount,
		&e.Status,
		&e.Reference,
		&e.Description,
		&e.Destination,
		&e.PositionID,
		&e.BonusID,
		&e.CreatedAt,
		&e.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &e, nil
}

// CreateEntry inserts a new ledger entry
func (r *LedgerRepository) CreateEntry(ctx context.Context, entry *ledger.Entry) error {
	_, err := getQueryer(ctx, r.pool).Exec(ctx, `
		INSERT INTO ledger_entries (id, account_id, kind, method, amount, status, reference,
			description, destination, position_id, bonus_id, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
	`,
		entry.ID,
		entry.AccountID,
		string(entry.Kind),
		string(entry.Method),
		entry.Amount,
		string(entry.Status),
		entry.Reference,
		entry.Description,
		entry.Destination,
		entry.PositionID,
		entry.BonusID,
		entry.CreatedAt,
		entry.UpdatedAt,
	)
	if err != nil {
		if pgCode(err) == codeUniqueViolation {
			return fmt.Errorf("%w: %s entry %s", ledger.ErrDuplicateEntry, entry.Kind, entry.Reference)
		}
		return fmt.Errorf("failed to insert entry: %w", mapError(err))
	}
	return nil
}

// GetEntry retrieves an entry by ID
func (r *LedgerRepository) GetEntry(ctx context.Context, id uuid.UUID) (*ledger.Entry, error) {
	e, err := scanEntry(getQueryer(ctx, r.pool).QueryRow(ctx,
		`SELECT `+entryColumns+` FROM ledger_entries WHERE id = $1`, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ledger.ErrEntryNotFound
		}
		return nil, fmt.Errorf("failed to get entry: %w", mapError(err))
	}
	return e, nil
}

// GetEntryForUpdate reads and locks an entry row
func (r *LedgerRepository) GetEntryForUpdate(ctx context.Context, id uuid.UUID) (*ledger.Entry, error) {
	tx, err := requireTx(ctx, ledger.ErrNoTransaction)
	if err != nil {
		return nil, err
	}

	e, err := scanEntry(tx.QueryRow(ctx,
		`SELECT `+entryColumns+` FROM ledger_entries WHERE id = $1 FOR UPDATE`, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ledger.ErrEntryNotFound
		}
		return nil, fmt.Errorf("failed to lock entry: %w", mapError(err))
	}
	return e, nil
}

// UpdateEntryStatus writes the entry's status
func (r *LedgerRepository) UpdateEntryStatus(ctx context.Context, entry *ledger.Entry) error {
	tag, err := getQueryer(ctx, r.pool).Exec(ctx,
		`UPDATE ledger_entries SET status = $2, updated_at = $3 WHERE id = $1`,
		entry.ID, string(entry.Status), entry.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to update entry status: %w", mapError(err))
	}
	if tag.RowsAffected() == 0 {
		return ledger.ErrEntryNotFound
	}
	return nil
}

// ListEntries lists entries with filters, newest first
func (r *LedgerRepository) ListEntries(ctx context.Context, filters ledger.EntryFilters) ([]*ledger.Entry, error) {
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
	if filters.Kind != nil {
		add("kind = $%d", string(*filters.Kind))
	}
	if filters.Status != nil {
		add("status = $%d", string(*filters.Status))
	}
	if filters.PositionID != nil {
		add("position_id = $%d", *filters.PositionID)
	}
	if filters.From != nil {
		add("created_at >= $%d", *filters.From)
	}
	if filters.To != nil {
		add("created_at <= $%d", *filters.To)
	}

	query := `SELECT ` + entryColumns + ` FROM ledger_entries`
	if len(conditions) > 0 {
		query += " WHERE " + strings.Join(conditions, " AND ")
	}
	query += " ORDER BY created_at DESC, reference DESC"
	query += pageClause(filters.Limit, filters.Offset)

	rows, err := getQueryer(ctx, r.pool).Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list entries: %w", mapError(err))
	}
	defer rows.Close()

	var entries []*ledger.Entry
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan entry: %w", err)
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// SumEntries derives balance totals from the account's entries
func (r *LedgerRepository) SumEntries(ctx context.Context, accountID uuid.UUID) (*ledger.EntryTotals, error) {
	var totals ledger.EntryTotals
	err := getQueryer(ctx, r.pool).QueryRow(ctx, `
		SELECT
			COALESCE(SUM(CASE WHEN status = 'rejected' OR kind = 'investment' THEN 0 ELSE amount END), 0)::text,
			COALESCE(SUM(CASE WHEN kind = 'bonus' AND status <> 'rejected' THEN amount ELSE 0 END), 0)::text
		FROM ledger_entries
		WHERE account_id = $1
	`, accountID).Scan(&totals.Effect, &totals.Bonus)
	if err != nil {
		return nil, fmt.Errorf("failed to sum entries: %w", mapError(err))
	}
	return &totals, nil
}

// Bonus operations

const bonusColumns = `id, account_id, key, title, description, kind, amount::text,
	claimed, claimed_at, expires_at, created_at`

func scanBonus(row pgx.Row) (*ledger.Bonus, error) {
	var b ledger.Bonus
	err := row.Scan(
		&b.ID,
		&b.AccountID,
		&b.Key,
		&b.Title,
		&b.Description,
		&b.Kind,
		&b.Amount,
		&b.Claimed,
		&b.ClaimedAt,
		&b.ExpiresAt,
		&b.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &b, nil
}

// CreateBonus inserts a bonus grant
func (r *LedgerRepository) CreateBonus(ctx context.Context, bonus *ledger.Bonus) error {
	_, err := getQueryer(ctx, r.pool).Exec(ctx, `
		INSERT INTO bonuses (id, account_id, key, title, description, kind, amount,
			claimed, claimed_at, expires_at, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
	`,
		bonus.ID,
		bonus.AccountID,
		bonus.Key,
		bonus.Title,
		bonus.Description,
		string(bonus.Kind),
		bonus.Amount,
		bonus.Claimed,
		bonus.ClaimedAt,
		bonus.ExpiresAt,
		bonus.CreatedAt,
	)
	if err != nil {
		if pgCode(err) == codeUniqueViolation {
			return fmt.Errorf("%w: bonus key %s", ledger.ErrDuplicateEntry, bonus.Key)
		}
		return fmt.Errorf("failed to insert bonus: %w", mapError(err))
	}
	return nil
}

func (r *LedgerRepository) getBonus(ctx context.Context, q queryer, query string, args ...any) (*ledger.Bonus, error) {
	b, err := scanBonus(q.QueryRow(ctx, query, args...))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ledger.ErrBonusNotFound
		}
		return nil, fmt.Errorf("failed to get bonus: %w", mapError(err))
	}
	return b, nil
}

// GetBonus retrieves a bonus grant by ID
func (r *LedgerRepository) GetBonus(ctx context.Context, id uuid.UUID) (*ledger.Bonus, error) {
	return r.getBonus(ctx, getQueryer(ctx, r.pool),
		`SELECT `+bonusColumns+` FROM bonuses WHERE id = $1`, id)
}

// GetBonusForUpdate reads and locks a bonus grant
func (r *LedgerRepository) GetBonusForUpdate(ctx context.Context, id uuid.UUID) (*ledger.Bonus, error) {
	tx, err := requireTx(ctx, ledger.ErrNoTransaction)
	if err != nil {
		return nil, err
	}
	return r.getBonus(ctx, tx, `SELECT `+bonusColumns+` FROM bonuses WHERE id = $1 FOR UPDATE`, id)
}

// GetBonusByKey retrieves the account's grant with the given idempotency key
func (r *LedgerRepository) GetBonusByKey(ctx context.Context, accountID uuid.UUID, key string) (*ledger.Bonus, error) {
	return r.getBonus(ctx, getQueryer(ctx, r.pool),
		`SELECT `+bonusColumns+` FROM bonuses WHERE account_id = $1 AND key = $2`, accountID, key)
}

// UpdateBonus writes the claim state of a grant
func (r *LedgerRepository) UpdateBonus(ctx context.Context, bonus *ledger.Bonus) error {
	tag, err := getQueryer(ctx, r.pool).Exec(ctx,
		`UPDATE bonuses SET claimed = $2, claimed_at = $3 WHERE id = $1`,
		bonus.ID, bonus.Claimed, bonus.ClaimedAt)
	if err != nil {
		return fmt.Errorf("failed to update bonus: %w", mapError(err))
	}
	if tag.RowsAffected() == 0 {
		return ledger.ErrBonusNotFound
	}
	return nil
}

// ListBonuses lists an account's grants, newest first
func (r *LedgerRepository) ListBonuses(ctx context.Context, filters ledger.BonusFilters) ([]*ledger.Bonus, error) {
	query := `SELECT ` + bonusColumns + ` FROM bonuses WHERE account_id = $1`
	if filters.OnlyUnclaimed {
		query += " AND NOT claimed"
	}
	query += " ORDER BY created_at DESC"

	rows, err := getQueryer(ctx, r.pool).Query(ctx, query, filters.AccountID)
	if err != nil {
		return nil, fmt.Errorf("failed to list bonuses: %w", mapError(err))
	}
	defer rows.Close()

	var bonuses []*ledger.Bonus
	for rows.Next() {
		b, err := scanBonus(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan bonus: %w", err)
		}
		bonuses = append(bonuses, b)
	}
	return bonuses, rows.Err()
}

func pageClause(limit, offset int) string {
	var s string
	if limit > 0 {
		s += fmt.Sprintf(" LIMIT %d", limit)
	}
	if offset > 0 {
		s += fmt.Sprintf(" OFFSET %d", offset)
	}
	return s
}
