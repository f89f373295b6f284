package handler

import (
	"context"
	"net/http"
	"strconv"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/kislikjeka/pesaprime/internal/investment"
	"github.com/kislikjeka/pesaprime/internal/ledger"
	"github.com/kislikjeka/pesaprime/internal/module/wallet"
	apperrors "github.com/kislikjeka/pesaprime/internal/shared/errors"
	"github.com/kislikjeka/pesaprime/pkg/logger"
)

// AccountService is the user-facing wallet surface
type AccountService interface {
	Overview(ctx context.Context, accountID uuid.UUID) (*wallet.Overview, error)
	SwitchCurrency(ctx context.Context, accountID uuid.UUID, code string) (*wallet.Overview, error)
	History(ctx context.Context, accountID uuid.UUID, q wallet.HistoryQuery) ([]*wallet.EntryView, error)
	Deposit(ctx context.Context, in wallet.DepositInput) (*wallet.EntryView, error)
	Withdraw(ctx context.Context, in wallet.WithdrawInput) (*wallet.EntryView, error)
	Bonuses(ctx context.Context, accountID uuid.UUID, onlyUnclaimed bool) ([]*wallet.BonusView, error)
	ClaimWelcomeBonus(ctx context.Context, accountID uuid.UUID) (*wallet.EntryView, error)
	ClaimBonus(ctx context.Context, accountID, bonusID uuid.UUID) (*wallet.EntryView, error)
	Positions(ctx context.Context, accountID uuid.UUID, status *investment.Status) ([]*wallet.PositionView, error)
	Invest(ctx context.Context, in wallet.InvestInput) (*wallet.PositionView, error)
	Position(ctx context.Context, accountID, positionID uuid.UUID) (*wallet.PositionView, error)
}

// AccountHandler handles account-scoped HTTP requests
type AccountHandler struct {
	service AccountService
	logger  *logger.Logger
}

// NewAccountHandler creates a new account handler
func NewAccountHandler(service AccountService, log *logger.Logger) *AccountHandler {
	return &AccountHandler{
		service: service,
		logger:  logger.OrNop(log).WithField("component", "account_handler"),
	}
}

// SwitchCurrencyRequest represents a display currency change
type SwitchCurrencyRequest struct {
	Currency string `json:"currency" validate:"required,len=3,alpha"`
}

// DepositRequest represents a deposit in a display currency
type DepositRequest struct {
	Amount      decimal.Decimal `json:"amount"`
	Currency    string          `json:"currency,omitempty" validate:"omitempty,len=3,alpha"`
	Method      string          `json:"method" validate:"required,oneof=mobile-money card bank"`
	Description string          `json:"description,omitempty" validate:"max=255"`
}

// WithdrawRequest represents a withdrawal in a display currency
type WithdrawRequest struct {
	Amount      decimal.Decimal `json:"amount"`
	Currency    string          `json:"currency,omitempty" validate:"omitempty,len=3,alpha"`
	Method      string          `json:"method" validate:"required,oneof=mobile-money card bank"`
	Destination string          `json:"destination" validate:"required,max=255"`
}

// InvestRequest represents a position opening
type InvestRequest struct {
	AssetID       uuid.UUID       `json:"asset_id" validate:"required"`
	Amount        decimal.Decimal `json:"amount"`
	Currency      string          `json:"currency,omitempty" validate:"omitempty,len=3,alpha"`
	DurationHours int             `json:"duration_hours" validate:"required,gt=0"`
}

// GetOverview handles GET /accounts/{accountID}
func (h *AccountHandler) GetOverview(w http.ResponseWriter, r *http.Request) {
	accountID, err := uuidParam(r, "accountID")
	if err != nil {
		respondWithAppError(w, r, h.logger, err)
		return
	}

	o, err := h.service.Overview(r.Context(), accountID)
	if err != nil {
		respondWithAppError(w, r, h.logger, err)
		return
	}
	respondWithJSON(w, http.StatusOK, toOverviewResponse(o))
}

// SwitchCurrency handles PUT /accounts/{accountID}/currency
func (h *AccountHandler) SwitchCurrency(w http.ResponseWriter, r *http.Request) {
	accountID, err := uuidParam(r, "accountID")
	if err != nil {
		respondWithAppError(w, r, h.logger, err)
		return
	}

	var req SwitchCurrencyRequest
	if err := decodeJSON(r, &req); err != nil {
		respondWithAppError(w, r, h.logger, err)
		return
	}

	o, err := h.service.SwitchCurrency(r.Context(), accountID, req.Currency)
	if err != nil {
		respondWithAppError(w, r, h.logger, err)
		return
	}
	respondWithJSON(w, http.StatusOK, toOverviewResponse(o))
}

// GetHistory handles GET /accounts/{accountID}/entries?kind=&limit=&offset=
func (h *AccountHandler) GetHistory(w http.ResponseWriter, r *http.Request) {
	accountID, err := uuidParam(r, "accountID")
	if err != nil {
		respondWithAppError(w, r, h.logger, err)
		return
	}

	var q wallet.HistoryQuery
	if k := r.URL.Query().Get("kind"); k != "" {
		kind := ledger.EntryKind(k)
		if !kind.IsValid() {
			respondWithAppError(w, r, h.logger, ledger.ErrInvalidEntryKind)
			return
		}
		q.Kind = &kind
	}
	if q.Limit, q.Offset, err = pageParams(r); err != nil {
		respondWithAppError(w, r, h.logger, err)
		return
	}

	views, err := h.service.History(r.Context(), accountID, q)
	if err != nil {
		respondWithAppError(w, r, h.logger, err)
		return
	}
	respondWithJSON(w, http.StatusOK, map[string]any{"entries": toEntryResponses(views)})
}

// Deposit handles POST /accounts/{accountID}/deposits
func (h *AccountHandler) Deposit(w http.ResponseWriter, r *http.Request) {
	accountID, err := uuidParam(r, "accountID")
	if err != nil {
		respondWithAppError(w, r, h.logger, err)
		return
	}

	var req DepositRequest
	if err := decodeJSON(r, &req); err != nil {
		respondWithAppError(w, r, h.logger, err)
		return
	}

	v, err := h.service.Deposit(r.Context(), wallet.DepositInput{
		AccountID:   accountID,
		Amount:      req.Amount,
		Currency:    req.Currency,
		Method:      ledger.Method(req.Method),
		Description: req.Description,
	})
	if err != nil {
		respondWithAppError(w, r, h.logger, err)
		return
	}
	respondWithJSON(w, http.StatusCreated, toEntryResponse(v))
}

// Withdraw handles POST /accounts/{accountID}/withdrawals
func (h *AccountHandler) Withdraw(w http.ResponseWriter, r *http.Request) {
	accountID, err := uuidParam(r, "accountID")
	if err != nil {
		respondWithAppError(w, r, h.logger, err)
		return
	}

	var req WithdrawRequest
	if err := decodeJSON(r, &req); err != nil {
		respondWithAppError(w, r, h.logger, err)
		return
	}

	v, err := h.service.Withdraw(r.Context(), wallet.WithdrawInput{
		AccountID:   accountID,
		Amount:      req.Amount,
		Currency:    req.Currency,
		Method:      ledger.Method(req.Method),
		Destination: req.Destination,
	})
	if err != nil {
		respondWithAppError(w, r, h.logger, err)
		return
	}
	respondWithJSON(w, http.StatusCreated, toEntryResponse(v))
}

// GetBonuses handles GET /accounts/{accountID}/bonuses?unclaimed=true
func (h *AccountHandler) GetBonuses(w http.ResponseWriter, r *http.Request) {
	accountID, err := uuidParam(r, "accountID")
	if err != nil {
		respondWithAppError(w, r, h.logger, err)
		return
	}
	onlyUnclaimed, _ := strconv.ParseBool(r.URL.Query().Get("unclaimed"))

	views, err := h.service.Bonuses(r.Context(), accountID, onlyUnclaimed)
	if err != nil {
		respondWithAppError(w, r, h.logger, err)
		return
	}

	out := make([]BonusResponse, 0, len(views))
	for _, v := range views {
		out = append(out, toBonusResponse(v))
	}
	respondWithJSON(w, http.StatusOK, map[string]any{"bonuses": out})
}

// ClaimWelcomeBonus handles POST /accounts/{accountID}/bonuses/welcome
func (h *AccountHandler) ClaimWelcomeBonus(w http.ResponseWriter, r *http.Request) {
	accountID, err := uuidParam(r, "accountID")
	if err != nil {
		respondWithAppError(w, r, h.logger, err)
		return
	}

	v, err := h.service.ClaimWelcomeBonus(r.Context(), accountID)
	if err != nil {
		respondWithAppError(w, r, h.logger, err)
		return
	}
	respondWithJSON(w, http.StatusCreated, toEntryResponse(v))
}

// ClaimBonus handles POST /accounts/{accountID}/bonuses/{bonusID}/claim
func (h *AccountHandler) ClaimBonus(w http.ResponseWriter, r *http.Request) {
	accountID, err := uuidParam(r, "accountID")
	if err != nil {
		respondWithAppError(w, r, h.logger, err)
		return
	}
	bonusID, err := uuidParam(r, "bonusID")
	if err != nil {
		respondWithAppError(w, r, h.logger, err)
		return
	}

	v, err := h.service.ClaimBonus(r.Context(), accountID, bonusID)
	if err != nil {
		respondWithAppError(w, r, h.logger, err)
		return
	}
	respondWithJSON(w, http.StatusCreated, toEntryResponse(v))
}

// GetPositions handles GET /accounts/{accountID}/positions?status=
func (h *AccountHandler) GetPositions(w http.ResponseWriter, r *http.Request) {
	accountID, err := uuidParam(r, "accountID")
	if err != nil {
		respondWithAppError(w, r, h.logger, err)
		return
	}

	var status *investment.Status
	if s := r.URL.Query().Get("status"); s != "" {
		st := investment.Status(s)
		if !st.IsValid() {
			respondWithAppError(w, r, h.logger, apperrors.Validation("invalid status"))
			return
		}
		status = &st
	}

	views, err := h.service.Positions(r.Context(), accountID, status)
	if err != nil {
		respondWithAppError(w, r, h.logger, err)
		return
	}

	out := make([]PositionResponse, 0, len(views))
	for _, v := range views {
		out = append(out, toPositionResponse(v))
	}
	respondWithJSON(w, http.StatusOK, map[string]any{"positions": out})
}

// Invest handles POST /accounts/{accountID}/positions
func (h *AccountHandler) Invest(w http.ResponseWriter, r *http.Request) {
	accountID, err := uuidParam(r, "accountID")
	if err != nil {
		respondWithAppError(w, r, h.logger, err)
		return
	}

	var req InvestRequest
	if err := decodeJSON(r, &req); err != nil {
		respondWithAppError(w, r, h.logger, err)
		return
	}

	v, err := h.service.Invest(r.Context(), wallet.InvestInput{
		AccountID:     accountID,
		AssetID:       req.AssetID,
		Amount:        req.Amount,
		Currency:      req.Currency,
		DurationHours: req.DurationHours,
	})
	if err != nil {
		respondWithAppError(w, r, h.logger, err)
		return
	}
	respondWithJSON(w, http.StatusCreated, toPositionResponse(v))
}

// GetPosition handles GET /accounts/{accountID}/positions/{positionID}
func (h *AccountHandler) GetPosition(w http.ResponseWriter, r *http.Request) {
	accountID, err := uuidParam(r, "accountID")
	if err != nil {
		respondWithAppError(w, r, h.logger, err)
		return
	}
	positionID, err := uuidParam(r, "positionID")
	if err != nil {
		respondWithAppError(w, r, h.logger, err)
		return
	}

	v, err := h.service.Position(r.Context(), accountID, positionID)
	if err != nil {
		respondWithAppError(w, r, h.logger, err)
		return
	}
	respondWithJSON(w, http.StatusOK, toPositionResponse(v))
}

func pageParams(r *http.Request) (limit, offset int, err error) {
	q := r.URL.Query()
	if v := q.Get("limit"); v != "" {
		if limit, err = strconv.Atoi(v); err != nil || limit < 0 || limit > 500 {
			return 0, 0, apperrors.Validation("limit must be between 0 and 500")
		}
	}
	if v := q.Get("offset"); v != "" {
		if offset, err = strconv.Atoi(v); err != nil || offset < 0 {
			return 0, 0, apperrors.Validation("offset must not be negative")
		}
	}
	return limit, offset, nil
}
