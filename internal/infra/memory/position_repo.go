package memory

import (
	"context"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/kislikjeka/pesaprime/internal/investment"
)

// PositionRepository implements investment.Repository on the store
type PositionRepository struct {
	s *Store
}

var _ investment.Repository = (*PositionRepository)(nil)

// Create stages a new position
func (r *PositionRepository) Create(ctx context.Context, p *investment.Position) error {
	tx, err := activeTx(ctx)
	if err != nil {
		return err
	}
	tx.positions[p.ID] = p.Clone()
	return nil
}

// GetByID retrieves a position, seeing the caller's own uncommitted writes
func (r *PositionRepository) GetByID(ctx context.Context, id uuid.UUID) (*investment.Position, error) {
	if tx := txFrom(ctx); tx != nil && !tx.done {
		if p, ok := tx.positions[id]; ok {
			return p.Clone(), nil
		}
	}

	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	p, ok := r.s.positions[id]
	if !ok {
		return nil, investment.ErrPositionNotFound
	}
	return p.Clone(), nil
}

// GetForUpdate locks the position row for the rest of the transaction
func (r *PositionRepository) GetForUpdate(ctx context.Context, id uuid.UUID) (*investment.Position, error) {
	tx, err := activeTx(ctx)
	if err != nil {
		return nil, err
	}
	if err := r.s.lock(ctx, tx, "position:"+id.String()); err != nil {
		return nil, err
	}
	return r.GetByID(ctx, id)
}

// Complete moves an active position to completed
func (r *PositionRepository) Complete(ctx context.Context, p *investment.Position) (bool, error) {
	return r.transition(ctx, p)
}

// Cancel moves an active position to cancelled
func (r *PositionRepository) Cancel(ctx context.Context, p *investment.Position) (bool, error) {
	return r.transition(ctx, p)
}

func (r *PositionRepository) transition(ctx context.Context, p *investment.Position) (bool, error) {
	tx, err := activeTx(ctx)
	if err != nil {
		return false, err
	}

	current, err := r.GetByID(ctx, p.ID)
	if err != nil {
		return false, err
	}
	if current.Status != investment.StatusActive {
		return false, nil
	}

	tx.positions[p.ID] = p.Clone()
	return true, nil
}

// List lists committed positions with filters, newest first
func (r *PositionRepository) List(_ context.Context, filters investment.Filters) ([]*investment.Position, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	var out []*investment.Position
	for _, p := range r.s.positions {
		if filters.AccountID != nil && p.AccountID != *filters.AccountID {
			continue
		}
		if filters.AssetID != nil && p.AssetID != *filters.AssetID {
			continue
		}
		if filters.Status != nil && p.Status != *filters.Status {
			continue
		}
		out = append(out, p.Clone())
	}

	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID.String() > out[j].ID.String()
		}
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	return paginate(out, filters.Offset, filters.Limit), nil
}

// ListMatured returns active positions with EndTime <= now, oldest first
func (r *PositionRepository) ListMatured(_ context.Context, now time.Time, limit int) ([]*investment.Position, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	var out []*investment.Position
	for _, p := range r.s.positions {
		if p.Status == investment.StatusActive && !p.EndTime.After(now) {
			out = append(out, p.Clone())
		}
	}

	sort.Slice(out, func(i, j int) bool { return out[i].EndTime.Before(out[j].EndTime) })
	return paginate(out, 0, limit), nil
}

// SumActivePrincipal sums the invested amount of the account's active positions
func (r *PositionRepository) SumActivePrincipal(_ context.Context, accountID uuid.UUID) (decimal.Decimal, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	sum := decimal.Zero
	for _, p := range r.s.positions {
		if p.AccountID == accountID && p.Status == investment.StatusActive {
			sum = sum.Add(p.InvestedAmount)
		}
	}
	return sum, nil
}
