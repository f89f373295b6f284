package memory

import (
	"context"
	"sort"

	"github.com/kislikjeka/pesaprime/internal/platform/currency"
)

// CurrencyRepository implements currency.Repository on the store
type CurrencyRepository struct {
	s *Store
}

var _ currency.Repository = (*CurrencyRepository)(nil)

// GetByCode retrieves a currency by code
func (r *CurrencyRepository) GetByCode(_ context.Context, code string) (*currency.Currency, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	c, ok := r.s.currencies[code]
	if !ok {
		return nil, currency.ErrCurrencyNotFound
	}
	return &c, nil
}

// ListActive lists active currencies ordered by code
func (r *CurrencyRepository) ListActive(_ context.Context) ([]currency.Currency, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	var out []currency.Currency
	for _, c := range r.s.currencies {
		if c.IsActive {
			out = append(out, c)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Code < out[j].Code })
	return out, nil
}

// Put inserts or replaces a currency record
func (r *CurrencyRepository) Put(c currency.Currency) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	r.s.currencies[c.Code] = c
}
