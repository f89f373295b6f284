package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/kislikjeka/pesaprime/internal/investment"
	"github.com/kislikjeka/pesaprime/internal/ledger"
	"github.com/kislikjeka/pesaprime/internal/module/wallet"
	"github.com/kislikjeka/pesaprime/internal/platform/asset"
	"github.com/kislikjeka/pesaprime/internal/platform/currency"
	"github.com/kislikjeka/pesaprime/pkg/logger"
)

// LedgerAdmin is the back-office side of the ledger
type LedgerAdmin interface {
	ApproveWithdrawal(ctx context.Context, entryID uuid.UUID) (*ledger.Entry, error)
	CompleteWithdrawal(ctx context.Context, entryID uuid.UUID) (*ledger.Entry, error)
	RejectWithdrawal(ctx context.Context, entryID uuid.UUID, reason string) (*ledger.Entry, error)
	Adjust(ctx context.Context, req ledger.AdjustRequest) (*ledger.Entry, error)
	GrantBonus(ctx context.Context, req ledger.GrantBonusRequest) (*ledger.Bonus, error)
	Reconcile(ctx context.Context, accountID uuid.UUID) (*ledger.Reconciliation, error)
}

// PositionAdmin is the back-office side of positions
type PositionAdmin interface {
	Cancel(ctx context.Context, positionID uuid.UUID, reason string) (*investment.Position, error)
	ReconcileLocked(ctx context.Context, accountID uuid.UUID) (*investment.LockedReconciliation, error)
}

// CatalogAdmin manages assets
type CatalogAdmin interface {
	Create(ctx context.Context, a *asset.Asset) error
	UpdatePrice(ctx context.Context, id uuid.UUID, price decimal.Decimal) (*asset.Asset, error)
	UpdateReturnRates(ctx context.Context, id uuid.UUID, rates map[int]decimal.Decimal, durations []int) (*asset.Asset, error)
}

// SweepRunner triggers a settlement sweep on demand
type SweepRunner interface {
	RunSweep(ctx context.Context, batchSize int) (int, error)
}

// AdminHandler handles back-office HTTP requests
type AdminHandler struct {
	ledger    LedgerAdmin
	positions PositionAdmin
	catalog   CatalogAdmin
	sweeper   SweepRunner
	logger    *logger.Logger
}

// NewAdminHandler creates a new admin handler
func NewAdminHandler(l LedgerAdmin, p PositionAdmin, c CatalogAdmin, s SweepRunner, log *logger.Logger) *AdminHandler {
	return &AdminHandler{
		ledger:    l,
		positions: p,
		catalog:   c,
		sweeper:   s,
		logger:    logger.OrNop(log).WithField("component", "admin_handler"),
	}
}

// ReasonRequest carries a mandatory reason
type ReasonRequest struct {
	Reason string `json:"reason" validate:"required,max=500"`
}

// AdjustRequest represents a signed balance correction in USD
type AdjustRequest struct {
	Amount decimal.Decimal `json:"amount"`
	Reason string          `json:"reason" validate:"required,max=500"`
}

// GrantBonusRequest represents a new bonus grant in USD
type GrantBonusRequest struct {
	Key         string          `json:"key,omitempty" validate:"max=100"`
	Title       string          `json:"title" validate:"required,max=100"`
	Description string          `json:"description,omitempty"`
	Kind        string          `json:"kind" validate:"required,oneof=welcome deposit referral promotion"`
	Amount      decimal.Decimal `json:"amount"`
	ExpiresAt   *time.Time      `json:"expires_at,omitempty"`
}

// CreateAssetRequest represents a new asset
type CreateAssetRequest struct {
	Symbol           string                  `json:"symbol" validate:"required,max=20"`
	Name             string                  `json:"name" validate:"required,max=100"`
	Description      string                  `json:"description,omitempty"`
	Category         string                  `json:"category" validate:"required,oneof=crypto forex futures stock"`
	RiskLevel        string                  `json:"risk_level,omitempty" validate:"omitempty,oneof=low medium high very_high"`
	CurrentPrice     decimal.Decimal         `json:"current_price"`
	MinInvestment    decimal.Decimal         `json:"min_investment"`
	MaxInvestment    decimal.Decimal         `json:"max_investment"`
	ReturnRates      map[int]decimal.Decimal `json:"return_rates,omitempty"`
	AllowedDurations []int                   `json:"allowed_durations,omitempty" validate:"dive,gt=0"`
	DisplayOrder     int                     `json:"display_order"`
}

// UpdatePriceRequest represents a price update
type UpdatePriceRequest struct {
	Price decimal.Decimal `json:"price"`
}

// UpdateRatesRequest replaces an asset's rate table
type UpdateRatesRequest struct {
	ReturnRates      map[int]decimal.Decimal `json:"return_rates" validate:"required,min=1"`
	AllowedDurations []int                   `json:"allowed_durations,omitempty" validate:"dive,gt=0"`
}

// SweepRequest optionally bounds a sweep
type SweepRequest struct {
	BatchSize int `json:"batch_size,omitempty" validate:"gte=0,lte=1000"`
}

// ReconcileResponse reports both reconciliation checks for an account
type ReconcileResponse struct {
	AccountID       string          `json:"account_id"`
	Balanced        bool            `json:"balanced"`
	StoredTotal     decimal.Decimal `json:"stored_total"`
	EntryTotal      decimal.Decimal `json:"entry_total"`
	StoredBonus     decimal.Decimal `json:"stored_bonus"`
	EntryBonus      decimal.Decimal `json:"entry_bonus"`
	StoredLocked    decimal.Decimal `json:"stored_locked"`
	ActivePrincipal decimal.Decimal `json:"active_principal"`
	CheckedAt       string          `json:"checked_at"`
}

// ApproveWithdrawal handles POST /admin/withdrawals/{entryID}/approve
func (h *AdminHandler) ApproveWithdrawal(w http.ResponseWriter, r *http.Request) {
	h.withdrawalTransition(w, r, func(ctx context.Context, id uuid.UUID) (*ledger.Entry, error) {
		return h.ledger.ApproveWithdrawal(ctx, id)
	})
}

// CompleteWithdrawal handles POST /admin/withdrawals/{entryID}/complete
func (h *AdminHandler) CompleteWithdrawal(w http.ResponseWriter, r *http.Request) {
	h.withdrawalTransition(w, r, func(ctx context.Context, id uuid.UUID) (*ledger.Entry, error) {
		return h.ledger.CompleteWithdrawal(ctx, id)
	})
}

// RejectWithdrawal handles POST /admin/withdrawals/{entryID}/reject
func (h *AdminHandler) RejectWithdrawal(w http.ResponseWriter, r *http.Request) {
	var req ReasonRequest
	if err := decodeJSON(r, &req); err != nil {
		respondWithAppError(w, r, h.logger, err)
		return
	}
	h.withdrawalTransition(w, r, func(ctx context.Context, id uuid.UUID) (*ledger.Entry, error) {
		return h.ledger.RejectWithdrawal(ctx, id, req.Reason)
	})
}

func (h *AdminHandler) withdrawalTransition(w http.ResponseWriter, r *http.Request, fn func(context.Context, uuid.UUID) (*ledger.Entry, error)) {
	entryID, err := uuidParam(r, "entryID")
	if err != nil {
		respondWithAppError(w, r, h.logger, err)
		return
	}

	e, err := fn(r.Context(), entryID)
	if err != nil {
		respondWithAppError(w, r, h.logger, err)
		return
	}
	respondWithJSON(w, http.StatusOK, toLedgerEntryResponse(e))
}

// Adjust handles POST /admin/accounts/{accountID}/adjustments
func (h *AdminHandler) Adjust(w http.ResponseWriter, r *http.Request) {
	accountID, err := uuidParam(r, "accountID")
	if err != nil {
		respondWithAppError(w, r, h.logger, err)
		return
	}

	var req AdjustRequest
	if err := decodeJSON(r, &req); err != nil {
		respondWithAppError(w, r, h.logger, err)
		return
	}

	e, err := h.ledger.Adjust(r.Context(), ledger.AdjustRequest{
		AccountID: accountID,
		Amount:    req.Amount,
		Reason:    req.Reason,
	})
	if err != nil {
		respondWithAppError(w, r, h.logger, err)
		return
	}
	respondWithJSON(w, http.StatusCreated, toLedgerEntryResponse(e))
}

// GrantBonus handles POST /admin/accounts/{accountID}/bonuses
func (h *AdminHandler) GrantBonus(w http.ResponseWriter, r *http.Request) {
	accountID, err := uuidParam(r, "accountID")
	if err != nil {
		respondWithAppError(w, r, h.logger, err)
		return
	}

	var req GrantBonusRequest
	if err := decodeJSON(r, &req); err != nil {
		respondWithAppError(w, r, h.logger, err)
		return
	}

	b, err := h.ledger.GrantBonus(r.Context(), ledger.GrantBonusRequest{
		AccountID:   accountID,
		Key:         req.Key,
		Title:       req.Title,
		Description: req.Description,
		Kind:        ledger.BonusKind(req.Kind),
		Amount:      req.Amount,
		ExpiresAt:   req.ExpiresAt,
	})
	if err != nil {
		respondWithAppError(w, r, h.logger, err)
		return
	}
	respondWithJSON(w, http.StatusCreated, toBonusResponse(&wallet.BonusView{
		Bonus:    b,
		Amount:   b.Amount,
		Currency: currency.CodeUSD,
	}))
}

// CancelPosition handles POST /admin/positions/{positionID}/cancel
func (h *AdminHandler) CancelPosition(w http.ResponseWriter, r *http.Request) {
	positionID, err := uuidParam(r, "positionID")
	if err != nil {
		respondWithAppError(w, r, h.logger, err)
		return
	}

	var req ReasonRequest
	if err := decodeJSON(r, &req); err != nil {
		respondWithAppError(w, r, h.logger, err)
		return
	}

	p, err := h.positions.Cancel(r.Context(), positionID, req.Reason)
	if err != nil {
		respondWithAppError(w, r, h.logger, err)
		return
	}
	respondWithJSON(w, http.StatusOK, toPositionResponse(&wallet.PositionView{
		Position:       p,
		Invested:       p.InvestedAmount,
		ExpectedProfit: p.ExpectedProfit(),
		ProfitLoss:     p.ActualProfitLoss,
		Currency:       currency.CodeUSD,
	}))
}

// CreateAsset handles POST /admin/assets
func (h *AdminHandler) CreateAsset(w http.ResponseWriter, r *http.Request) {
	var req CreateAssetRequest
	if err := decodeJSON(r, &req); err != nil {
		respondWithAppError(w, r, h.logger, err)
		return
	}

	a := &asset.Asset{
		Symbol:           req.Symbol,
		Name:             req.Name,
		Description:      req.Description,
		Category:         asset.Category(req.Category),
		RiskLevel:        asset.RiskLevel(req.RiskLevel),
		CurrentPrice:     req.CurrentPrice,
		MinInvestment:    req.MinInvestment,
		MaxInvestment:    req.MaxInvestment,
		ReturnRates:      req.ReturnRates,
		AllowedDurations: req.AllowedDurations,
		IsActive:         true,
		DisplayOrder:     req.DisplayOrder,
	}
	if err := h.catalog.Create(r.Context(), a); err != nil {
		respondWithAppError(w, r, h.logger, err)
		return
	}
	respondWithJSON(w, http.StatusCreated, toAssetResponse(a))
}

// UpdatePrice handles PUT /admin/assets/{assetID}/price
func (h *AdminHandler) UpdatePrice(w http.ResponseWriter, r *http.Request) {
	id, err := uuidParam(r, "assetID")
	if err != nil {
		respondWithAppError(w, r, h.logger, err)
		return
	}

	var req UpdatePriceRequest
	if err := decodeJSON(r, &req); err != nil {
		respondWithAppError(w, r, h.logger, err)
		return
	}

	a, err := h.catalog.UpdatePrice(r.Context(), id, req.Price)
	if err != nil {
		respondWithAppError(w, r, h.logger, err)
		return
	}
	respondWithJSON(w, http.StatusOK, toAssetResponse(a))
}

// UpdateRates handles PUT /admin/assets/{assetID}/rates
func (h *AdminHandler) UpdateRates(w http.ResponseWriter, r *http.Request) {
	id, err := uuidParam(r, "assetID")
	if err != nil {
		respondWithAppError(w, r, h.logger, err)
		return
	}

	var req UpdateRatesRequest
	if err := decodeJSON(r, &req); err != nil {
		respondWithAppError(w, r, h.logger, err)
		return
	}

	a, err := h.catalog.UpdateReturnRates(r.Context(), id, req.ReturnRates, req.AllowedDurations)
	if err != nil {
		respondWithAppError(w, r, h.logger, err)
		return
	}
	respondWithJSON(w, http.StatusOK, toAssetResponse(a))
}

// RunSweep handles POST /admin/settlement/sweep
func (h *AdminHandler) RunSweep(w http.ResponseWriter, r *http.Request) {
	var req SweepRequest
	if r.ContentLength != 0 {
		if err := decodeJSON(r, &req); err != nil {
			respondWithAppError(w, r, h.logger, err)
			return
		}
	}

	settled, err := h.sweeper.RunSweep(r.Context(), req.BatchSize)
	if err != nil {
		respondWithAppError(w, r, h.logger, err)
		return
	}
	respondWithJSON(w, http.StatusOK, map[string]int{"settled": settled})
}

// Reconcile handles GET /admin/accounts/{accountID}/reconcile
func (h *AdminHandler) Reconcile(w http.ResponseWriter, r *http.Request) {
	accountID, err := uuidParam(r, "accountID")
	if err != nil {
		respondWithAppError(w, r, h.logger, err)
		return
	}

	rec, err := h.ledger.Reconcile(r.Context(), accountID)
	if err != nil {
		respondWithAppError(w, r, h.logger, err)
		return
	}
	locked, err := h.positions.ReconcileLocked(r.Context(), accountID)
	if err != nil {
		respondWithAppError(w, r, h.logger, err)
		return
	}

	respondWithJSON(w, http.StatusOK, ReconcileResponse{
		AccountID:       accountID.String(),
		Balanced:        rec.Balanced && locked.Balanced,
		StoredTotal:     rec.StoredTotal,
		EntryTotal:      rec.EntryTotal,
		StoredBonus:     rec.StoredBonus,
		EntryBonus:      rec.EntryBonus,
		StoredLocked:    locked.StoredLocked,
		ActivePrincipal: locked.ActivePrincipal,
		CheckedAt:       formatTime(rec.CheckedAt),
	})
}
