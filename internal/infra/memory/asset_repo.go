package memory

import (
	"context"
	"sort"

	"github.com/google/uuid"

	"github.com/kislikjeka/pesaprime/internal/platform/asset"
)

// AssetRepository implements asset.Repository on the store
type AssetRepository struct {
	s *Store
}

var _ asset.Repository = (*AssetRepository)(nil)

// GetByID retrieves an asset by its UUID
func (r *AssetRepository) GetByID(_ context.Context, id uuid.UUID) (*asset.Asset, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	a, ok := r.s.assets[id]
	if !ok {
		return nil, asset.ErrAssetNotFound
	}
	return a.Clone(), nil
}

// GetBySymbol retrieves an asset by symbol
func (r *AssetRepository) GetBySymbol(_ context.Context, symbol string) (*asset.Asset, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	for _, a := range r.s.assets {
		if a.Symbol == symbol {
			return a.Clone(), nil
		}
	}
	return nil, asset.ErrAssetNotFound
}

// ListActive lists active assets by display order, then symbol
func (r *AssetRepository) ListActive(_ context.Context) ([]asset.Asset, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	var out []asset.Asset
	for _, a := range r.s.assets {
		if a.IsActive {
			out = append(out, *a.Clone())
		}
	}

	sort.Slice(out, func(i, j int) bool {
		if out[i].DisplayOrder != out[j].DisplayOrder {
			return out[i].DisplayOrder < out[j].DisplayOrder
		}
		return out[i].Symbol < out[j].Symbol
	})
	return out, nil
}

// Create stores a new asset
func (r *AssetRepository) Create(_ context.Context, a *asset.Asset) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	for _, existing := range r.s.assets {
		if existing.Symbol == a.Symbol || existing.ID == a.ID {
			return asset.ErrDuplicateAsset
		}
	}
	r.s.assets[a.ID] = a.Clone()
	return nil
}

// Update replaces a stored asset
func (r *AssetRepository) Update(_ context.Context, a *asset.Asset) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	if _, ok := r.s.assets[a.ID]; !ok {
		return asset.ErrAssetNotFound
	}
	r.s.assets[a.ID] = a.Clone()
	return nil
}
