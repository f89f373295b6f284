package memory

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/kislikjeka/pesaprime/internal/ledger"
)

// LedgerRepository implements ledger.Repository on the store
type LedgerRepository struct {
	s *Store
}

var _ ledger.Repository = (*LedgerRepository)(nil)

// BeginTx starts a transaction
func (r *LedgerRepository) BeginTx(ctx context.Context) (context.Context, error) {
	return r.s.BeginTx(ctx)
}

// CommitTx commits the transaction in ctx
func (r *LedgerRepository) CommitTx(ctx context.Context) error { return r.s.CommitTx(ctx) }

// RollbackTx rolls back the transaction in ctx
func (r *LedgerRepository) RollbackTx(ctx context.Context) error { return r.s.RollbackTx(ctx) }

// EnsureAccount returns the account, creating it if absent
func (r *LedgerRepository) EnsureAccount(ctx context.Context, id uuid.UUID, displayCurrency string) (*ledger.Account, error) {
	if tx := txFrom(ctx); tx != nil && !tx.done {
		if a, ok := tx.accounts[id]; ok {
			return a.Clone(), nil
		}
	}

	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	a, ok := r.s.accounts[id]
	if !ok {
		a = ledger.NewAccount(id, displayCurrency, time.Now().UTC())
		r.s.accounts[id] = a
	}
	return a.Clone(), nil
}

// LockAccount locks the account row for the rest of the transaction
func (r *LedgerRepository) LockAccount(ctx context.Context, id uuid.UUID, displayCurrency string) (*ledger.Account, error) {
	tx, err := activeTx(ctx)
	if err != nil {
		return nil, err
	}

	if err := r.s.lock(ctx, tx, "account:"+id.String()); err != nil {
		return nil, err
	}

	return r.EnsureAccount(ctx, id, displayCurrency)
}

// UpdateAccount stages the account balances
func (r *LedgerRepository) UpdateAccount(ctx context.Context, account *ledger.Account) error {
	tx, err := activeTx(ctx)
	if err != nil {
		return err
	}
	if err := account.Validate(); err != nil {
		return err
	}
	if _, held := tx.held["account:"+account.ID.String()]; !held {
		return fmt.Errorf("account %s updated without lock", account.ID)
	}
	tx.accounts[account.ID] = account.Clone()
	return nil
}

// CreateEntry stages a new entry, enforcing reference, profit and bonus uniqueness
func (r *LedgerRepository) CreateEntry(ctx context.Context, entry *ledger.Entry) error {
	tx, err := activeTx(ctx)
	if err != nil {
		return err
	}

	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	check := func(e *ledger.Entry) error {
		if e.Reference == entry.Reference {
			return fmt.Errorf("%w: reference %s", ledger.ErrDuplicateEntry, entry.Reference)
		}
		if entry.Kind == ledger.EntryKindProfit && e.Kind == ledger.EntryKindProfit &&
			e.PositionID != nil && entry.PositionID != nil && *e.PositionID == *entry.PositionID {
			return fmt.Errorf("%w: profit for position %s", ledger.ErrDuplicateEntry, *entry.PositionID)
		}
		if entry.Kind == ledger.EntryKindBonus && e.Kind == ledger.EntryKindBonus &&
			e.BonusID != nil && entry.BonusID != nil && *e.BonusID == *entry.BonusID {
			return fmt.Errorf("%w: bonus %s", ledger.ErrDuplicateEntry, *entry.BonusID)
		}
		return nil
	}
	for _, e := range r.s.entries {
		if err := check(e); err != nil {
			return err
		}
	}
	for _, e := range tx.entries {
		if err := check(e); err != nil {
			return err
		}
	}

	tx.entries[entry.ID] = entry.Clone()
	tx.newEntries = append(tx.newEntries, entry.ID)
	return nil
}

// GetEntry retrieves an entry by ID
func (r *LedgerRepository) GetEntry(ctx context.Context, id uuid.UUID) (*ledger.Entry, error) {
	if tx := txFrom(ctx); tx != nil && !tx.done {
		if e, ok := tx.entries[id]; ok {
			return e.Clone(), nil
		}
	}

	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	e, ok := r.s.entries[id]
	if !ok {
		return nil, ledger.ErrEntryNotFound
	}
	return e.Clone(), nil
}

// GetEntryForUpdate reads the entry inside a transaction. Entry rows are
// only mutated under their account's lock, which the caller already holds.
func (r *LedgerRepository) GetEntryForUpdate(ctx context.Context, id uuid.UUID) (*ledger.Entry, error) {
	if _, err := activeTx(ctx); err != nil {
		return nil, err
	}
	return r.GetEntry(ctx, id)
}

// UpdateEntryStatus stages a status change
func (r *LedgerRepository) UpdateEntryStatus(ctx context.Context, entry *ledger.Entry) error {
	tx, err := activeTx(ctx)
	if err != nil {
		return err
	}
	tx.entries[entry.ID] = entry.Clone()
	return nil
}

// ListEntries lists committed entries with filters, newest first
func (r *LedgerRepository) ListEntries(_ context.Context, filters ledger.EntryFilters) ([]*ledger.Entry, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	var out []*ledger.Entry
	for i := len(r.s.entryOrder) - 1; i >= 0; i-- {
		e := r.s.entries[r.s.entryOrder[i]]
		if filters.AccountID != nil && e.AccountID != *filters.AccountID {
			continue
		}
		if filters.Kind != nil && e.Kind != *filters.Kind {
			continue
		}
		if filters.Status != nil && e.Status != *filters.Status {
			continue
		}
		if filters.PositionID != nil && (e.PositionID == nil || *e.PositionID != *filters.PositionID) {
			continue
		}
		if filters.From != nil && e.CreatedAt.Before(*filters.From) {
			continue
		}
		if filters.To != nil && e.CreatedAt.After(*filters.To) {
			continue
		}
		out = append(out, e.Clone())
	}

	sort.SliceStable(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return paginate(out, filters.Offset, filters.Limit), nil
}

// SumEntries derives balance totals from the committed entries
func (r *LedgerRepository) SumEntries(_ context.Context, accountID uuid.UUID) (*ledger.EntryTotals, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	totals := &ledger.EntryTotals{Effect: decimal.Zero, Bonus: decimal.Zero}
	for _, e := range r.s.entries {
		if e.AccountID != accountID {
			continue
		}
		totals.Effect = totals.Effect.Add(e.Effect())
		if e.Kind == ledger.EntryKindBonus && e.Status != ledger.EntryStatusRejected {
			totals.Bonus = totals.Bonus.Add(e.Amount)
		}
	}
	return totals, nil
}

// CreateBonus stages a new grant, enforcing key uniqueness per account
func (r *LedgerRepository) CreateBonus(ctx context.Context, bonus *ledger.Bonus) error {
	tx, err := activeTx(ctx)
	if err != nil {
		return err
	}
	if _, err := r.GetBonusByKey(ctx, bonus.AccountID, bonus.Key); err == nil {
		return fmt.Errorf("%w: bonus key %s", ledger.ErrDuplicateEntry, bonus.Key)
	}
	tx.bonuses[bonus.ID] = bonus.Clone()
	return nil
}

// GetBonus retrieves a grant by ID
func (r *LedgerRepository) GetBonus(ctx context.Context, id uuid.UUID) (*ledger.Bonus, error) {
	if tx := txFrom(ctx); tx != nil && !tx.done {
		if b, ok := tx.bonuses[id]; ok {
			return b.Clone(), nil
		}
	}

	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	b, ok := r.s.bonuses[id]
	if !ok {
		return nil, ledger.ErrBonusNotFound
	}
	return b.Clone(), nil
}

// GetBonusForUpdate locks the grant row for the rest of the transaction
func (r *LedgerRepository) GetBonusForUpdate(ctx context.Context, id uuid.UUID) (*ledger.Bonus, error) {
	tx, err := activeTx(ctx)
	if err != nil {
		return nil, err
	}
	if err := r.s.lock(ctx, tx, "bonus:"+id.String()); err != nil {
		return nil, err
	}
	return r.GetBonus(ctx, id)
}

// GetBonusByKey retrieves a grant by its per-account key
func (r *LedgerRepository) GetBonusByKey(ctx context.Context, accountID uuid.UUID, key string) (*ledger.Bonus, error) {
	if tx := txFrom(ctx); tx != nil && !tx.done {
		for _, b := range tx.bonuses {
			if b.AccountID == accountID && b.Key == key {
				return b.Clone(), nil
			}
		}
	}

	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	for _, b := range r.s.bonuses {
		if b.AccountID == accountID && b.Key == key {
			return b.Clone(), nil
		}
	}
	return nil, ledger.ErrBonusNotFound
}

// UpdateBonus stages the claimed flag
func (r *LedgerRepository) UpdateBonus(ctx context.Context, bonus *ledger.Bonus) error {
	tx, err := activeTx(ctx)
	if err != nil {
		return err
	}
	tx.bonuses[bonus.ID] = bonus.Clone()
	return nil
}

// ListBonuses lists an account's grants, newest first
func (r *LedgerRepository) ListBonuses(_ context.Context, filters ledger.BonusFilters) ([]*ledger.Bonus, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	var out []*ledger.Bonus
	for _, b := range r.s.bonuses {
		if b.AccountID != filters.AccountID {
			continue
		}
		if filters.OnlyUnclaimed && b.Claimed {
			continue
		}
		out = append(out, b.Clone())
	}

	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func paginate[T any](items []T, offset, limit int) []T {
	if offset > 0 {
		if offset >= len(items) {
			return nil
		}
		items = items[offset:]
	}
	if limit > 0 && limit < len(items) {
		items = items[:limit]
	}
	return items
}
