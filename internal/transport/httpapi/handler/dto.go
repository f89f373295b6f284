package handler

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/kislikjeka/pesaprime/internal/ledger"
	"github.com/kislikjeka/pesaprime/internal/module/wallet"
	"github.com/kislikjeka/pesaprime/internal/platform/asset"
	"github.com/kislikjeka/pesaprime/internal/platform/currency"
)

// Amounts are JSON strings. Display amounts use the account's display
// currency, canonical amounts are USD.

// OverviewResponse represents an account's balances
type OverviewResponse struct {
	AccountID       string          `json:"account_id"`
	Currency        CurrencyDTO     `json:"currency"`
	Available       decimal.Decimal `json:"available"`
	Locked          decimal.Decimal `json:"locked"`
	Bonus           decimal.Decimal `json:"bonus"`
	BonusClaimed    decimal.Decimal `json:"bonus_claimed"`
	Total           decimal.Decimal `json:"total"`
	CanonicalTotal  decimal.Decimal `json:"canonical_total"`
	CanonicalLocked decimal.Decimal `json:"canonical_locked"`
}

// CurrencyDTO represents a currency
type CurrencyDTO struct {
	Code         string          `json:"code"`
	Name         string          `json:"name"`
	Symbol       string          `json:"symbol"`
	ExchangeRate decimal.Decimal `json:"exchange_rate"`
}

// EntryResponse represents a ledger entry
type EntryResponse struct {
	ID              string          `json:"id"`
	Reference       string          `json:"reference"`
	Kind            string          `json:"kind"`
	Method          string          `json:"method"`
	Status          string          `json:"status"`
	Amount          decimal.Decimal `json:"amount"`
	Sign            string          `json:"sign"`
	Currency        string          `json:"currency"`
	CanonicalAmount decimal.Decimal `json:"canonical_amount"`
	Description     string          `json:"description,omitempty"`
	Destination     string          `json:"destination,omitempty"`
	PositionID      *string         `json:"position_id,omitempty"`
	CreatedAt       string          `json:"created_at"`
	UpdatedAt       string          `json:"updated_at"`
}

// PositionResponse represents an investment position
type PositionResponse struct {
	ID                   string          `json:"id"`
	AssetID              string          `json:"asset_id"`
	AssetSymbol          string          `json:"asset_symbol"`
	Status               string          `json:"status"`
	DurationHours        int             `json:"duration_hours"`
	ExpectedReturnRate   decimal.Decimal `json:"expected_return_rate"`
	Invested             decimal.Decimal `json:"invested"`
	ExpectedProfit       decimal.Decimal `json:"expected_profit"`
	ProfitLoss           decimal.Decimal `json:"profit_loss"`
	Currency             string          `json:"currency"`
	StartTime            string          `json:"start_time"`
	EndTime              string          `json:"end_time"`
	TimeRemainingSeconds int64           `json:"time_remaining_seconds"`
	Progress             float64         `json:"progress"`
	CompletedAt          *string         `json:"completed_at,omitempty"`
	CancelledAt          *string         `json:"cancelled_at,omitempty"`
}

// BonusResponse represents a bonus grant
type BonusResponse struct {
	ID          string          `json:"id"`
	Key         string          `json:"key"`
	Title       string          `json:"title"`
	Description string          `json:"description,omitempty"`
	Kind        string          `json:"kind"`
	Amount      decimal.Decimal `json:"amount"`
	Currency    string          `json:"currency"`
	Claimed     bool            `json:"claimed"`
	ClaimedAt   *string         `json:"claimed_at,omitempty"`
	ExpiresAt   *string         `json:"expires_at,omitempty"`
}

// AssetResponse represents an asset in the API response
type AssetResponse struct {
	ID               string                  `json:"id"`
	Symbol           string                  `json:"symbol"`
	Name             string                  `json:"name"`
	Description      string                  `json:"description,omitempty"`
	Category         string                  `json:"category"`
	RiskLevel        string                  `json:"risk_level"`
	CurrentPrice     decimal.Decimal         `json:"current_price"`
	PreviousPrice    decimal.Decimal         `json:"previous_price"`
	ChangePercentage decimal.Decimal         `json:"change_percentage"`
	MinInvestment    decimal.Decimal         `json:"min_investment"`
	MaxInvestment    decimal.Decimal         `json:"max_investment"`
	ReturnRates      map[int]decimal.Decimal `json:"return_rates"`
	AllowedDurations []int                   `json:"allowed_durations"`
	IsActive         bool                    `json:"is_active"`
	LastUpdated      *string                 `json:"last_updated,omitempty"`
}

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339)
}

func formatTimePtr(t *time.Time) *string {
	if t == nil || t.IsZero() {
		return nil
	}
	s := formatTime(*t)
	return &s
}

func toCurrencyDTO(c currency.Currency) CurrencyDTO {
	return CurrencyDTO{Code: c.Code, Name: c.Name, Symbol: c.Symbol, ExchangeRate: c.ExchangeRate}
}

func toOverviewResponse(o *wallet.Overview) OverviewResponse {
	resp := OverviewResponse{
		AccountID:    o.AccountID.String(),
		Currency:     toCurrencyDTO(o.Currency),
		Available:    o.Available,
		Locked:       o.Locked,
		Bonus:        o.Bonus,
		BonusClaimed: o.BonusClaimed,
		Total:        o.Total,
	}
	if o.Canonical != nil {
		resp.CanonicalTotal = o.Canonical.Total()
		resp.CanonicalLocked = o.Canonical.Locked
	}
	return resp
}

func toEntryResponse(v *wallet.EntryView) EntryResponse {
	e := v.Entry
	resp := EntryResponse{
		ID:              e.ID.String(),
		Reference:       e.Reference,
		Kind:            string(e.Kind),
		Method:          string(e.Method),
		Status:          string(e.Status),
		Amount:          v.Amount,
		Sign:            v.Sign,
		Currency:        v.Currency,
		CanonicalAmount: e.Amount,
		Description:     e.Description,
		Destination:     e.Destination,
		CreatedAt:       formatTime(e.CreatedAt),
		UpdatedAt:       formatTime(e.UpdatedAt),
	}
	if e.PositionID != nil {
		s := e.PositionID.String()
		resp.PositionID = &s
	}
	return resp
}

func toEntryResponses(views []*wallet.EntryView) []EntryResponse {
	out := make([]EntryResponse, 0, len(views))
	for _, v := range views {
		out = append(out, toEntryResponse(v))
	}
	return out
}

// toLedgerEntryResponse renders an entry in canonical USD
func toLedgerEntryResponse(e *ledger.Entry) EntryResponse {
	sign := "+"
	if !e.IsCredit() {
		sign = "-"
	}
	return toEntryResponse(&wallet.EntryView{
		Entry:    e,
		Amount:   e.Amount,
		Sign:     sign,
		Currency: currency.CodeUSD,
	})
}

func toPositionResponse(v *wallet.PositionView) PositionResponse {
	p := v.Position
	return PositionResponse{
		ID:                   p.ID.String(),
		AssetID:              p.AssetID.String(),
		AssetSymbol:          p.AssetSymbol,
		Status:               string(p.Status),
		DurationHours:        p.DurationHours,
		ExpectedReturnRate:   p.ExpectedReturnRate,
		Invested:             v.Invested,
		ExpectedProfit:       v.ExpectedProfit,
		ProfitLoss:           v.ProfitLoss,
		Currency:             v.Currency,
		StartTime:            formatTime(p.StartTime),
		EndTime:              formatTime(p.EndTime),
		TimeRemainingSeconds: int64(v.TimeRemaining.Seconds()),
		Progress:             v.Progress,
		CompletedAt:          formatTimePtr(p.CompletedAt),
		CancelledAt:          formatTimePtr(p.CancelledAt),
	}
}

func toBonusResponse(v *wallet.BonusView) BonusResponse {
	b := v.Bonus
	return BonusResponse{
		ID:          b.ID.String(),
		Key:         b.Key,
		Title:       b.Title,
		Description: b.Description,
		Kind:        string(b.Kind),
		Amount:      v.Amount,
		Currency:    v.Currency,
		Claimed:     b.Claimed,
		ClaimedAt:   formatTimePtr(b.ClaimedAt),
		ExpiresAt:   formatTimePtr(b.ExpiresAt),
	}
}

func toAssetResponse(a *asset.Asset) AssetResponse {
	return AssetResponse{
		ID:               a.ID.String(),
		Symbol:           a.Symbol,
		Name:             a.Name,
		Description:      a.Description,
		Category:         string(a.Category),
		RiskLevel:        string(a.RiskLevel),
		CurrentPrice:     a.CurrentPrice,
		PreviousPrice:    a.PreviousPrice,
		ChangePercentage: a.ChangePercentage,
		MinInvestment:    a.MinInvestment,
		MaxInvestment:    a.MaxInvestment,
		ReturnRates:      a.ReturnRates,
		AllowedDurations: a.AllowedDurations,
		IsActive:         a.IsActive,
		LastUpdated:      formatTimePtr(&a.LastUpdated),
	}
}
