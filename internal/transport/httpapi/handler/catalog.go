package handler

import (
	"context"
	"net/http"

	"github.com/google/uuid"

	"github.com/kislikjeka/pesaprime/internal/platform/asset"
	"github.com/kislikjeka/pesaprime/internal/platform/currency"
	"github.com/kislikjeka/pesaprime/pkg/logger"
)

// AssetCatalog defines the asset reads exposed to users
type AssetCatalog interface {
	GetAsset(ctx context.Context, id uuid.UUID) (*asset.Asset, error)
	ListActive(ctx context.Context) ([]asset.Asset, error)
}

// CurrencyLister lists selectable display currencies
type CurrencyLister interface {
	Active(ctx context.Context) ([]currency.Currency, error)
}

// CatalogHandler serves reference data
type CatalogHandler struct {
	assets     AssetCatalog
	currencies CurrencyLister
	logger     *logger.Logger
}

// NewCatalogHandler creates a new catalog handler
func NewCatalogHandler(assets AssetCatalog, currencies CurrencyLister, log *logger.Logger) *CatalogHandler {
	return &CatalogHandler{
		assets:     assets,
		currencies: currencies,
		logger:     logger.OrNop(log).WithField("component", "catalog_handler"),
	}
}

// ListAssets handles GET /assets
func (h *CatalogHandler) ListAssets(w http.ResponseWriter, r *http.Request) {
	assets, err := h.assets.ListActive(r.Context())
	if err != nil {
		respondWithAppError(w, r, h.logger, err)
		return
	}

	out := make([]AssetResponse, 0, len(assets))
	for i := range assets {
		out = append(out, toAssetResponse(&assets[i]))
	}
	respondWithJSON(w, http.StatusOK, map[string]any{"assets": out})
}

// GetAsset handles GET /assets/{assetID}
func (h *CatalogHandler) GetAsset(w http.ResponseWriter, r *http.Request) {
	id, err := uuidParam(r, "assetID")
	if err != nil {
		respondWithAppError(w, r, h.logger, err)
		return
	}

	a, err := h.assets.GetAsset(r.Context(), id)
	if err != nil {
		respondWithAppError(w, r, h.logger, err)
		return
	}
	respondWithJSON(w, http.StatusOK, toAssetResponse(a))
}

// ListCurrencies handles GET /currencies
func (h *CatalogHandler) ListCurrencies(w http.ResponseWriter, r *http.Request) {
	list, err := h.currencies.Active(r.Context())
	if err != nil {
		respondWithAppError(w, r, h.logger, err)
		return
	}

	out := make([]CurrencyDTO, 0, len(list))
	for _, c := range list {
		out = append(out, toCurrencyDTO(c))
	}
	respondWithJSON(w, http.StatusOK, map[string]any{"currencies": out})
}
