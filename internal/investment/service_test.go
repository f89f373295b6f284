package investment_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kislikjeka/pesaprime/internal/investment"
	"github.com/kislikjeka/pesaprime/internal/ledger"
	"github.com/kislikjeka/pesaprime/internal/platform/asset"
	apperrors "github.com/kislikjeka/pesaprime/internal/shared/errors"
	"github.com/kislikjeka/pesaprime/testutil/fixture"
)

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func open(t *testing.T, env *fixture.Env, accountID uuid.UUID, amount string, hours int) *investment.Position {
	t.Helper()
	p, err := env.Investments.OpenPosition(context.Background(), investment.OpenRequest{
		AccountID:     accountID,
		AssetID:       env.Asset.ID,
		Amount:        dec(amount),
		DurationHours: hours,
	})
	require.NoError(t, err)
	return p
}

// =============================================================================
// Open
// =============================================================================

func TestOpenPosition_MovesAvailableToLocked(t *testing.T) {
	env := fixture.New(t, fixture.Options{})
	accountID := env.Fund(t, "100.00")

	p := open(t, env, accountID, "50.00", 3)

	assert.Equal(t, investment.StatusActive, p.Status)
	assert.Equal(t, "BTC", p.AssetSymbol)
	assert.True(t, p.ExpectedReturnRate.Equal(dec("1.5")))
	assert.Equal(t, fixture.Start, p.StartTime)
	assert.Equal(t, fixture.Start.Add(3*time.Hour), p.EndTime)
	assert.Equal(t, "0.75", p.ExpectedProfit().StringFixed(2))

	account := env.Account(t, accountID)
	assert.True(t, account.Available.Equal(dec("50")))
	assert.True(t, account.Locked.Equal(dec("50")))

	kind := ledger.EntryKindInvestment
	entries, err := env.Ledger.ListEntries(context.Background(), ledger.EntryFilters{AccountID: &accountID, Kind: &kind})
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.True(t, entries[0].Amount.Equal(dec("-50")))
	require.NotNil(t, entries[0].PositionID)
	assert.Equal(t, p.ID, *entries[0].PositionID)

	env.RequireConsistent(t, accountID)
}

func TestOpenPosition_RejectedWithoutStateChange(t *testing.T) {
	env := fixture.New(t, fixture.Options{})
	accountID := env.Fund(t, "100.00")

	inactive := asset.NewAsset("OLD", "Delisted", asset.CategoryStock)
	inactive.IsActive = false
	require.NoError(t, env.Catalog.Create(context.Background(), inactive))

	tests := []struct {
		name     string
		assetID  uuid.UUID
		amount   string
		hours    int
		wantErr  error
		wantCode string
	}{
		{"below minimum", env.Asset.ID, "5.00", 3, asset.ErrBelowMinimum, apperrors.ErrCodeValidation},
		{"above maximum", env.Asset.ID, "100000.01", 3, asset.ErrAboveMaximum, apperrors.ErrCodeValidation},
		{"duration not offered", env.Asset.ID, "20", 2, asset.ErrDurationNotAllowed, apperrors.ErrCodeValidation},
		{"unknown asset", uuid.New(), "20", 3, investment.ErrUnknownAsset, apperrors.ErrCodeValidation},
		{"inactive asset", inactive.ID, "20", 3, asset.ErrAssetInactive, apperrors.ErrCodeValidation},
		{"sub-cent amount", env.Asset.ID, "20.001", 3, investment.ErrInvalidAmount, apperrors.ErrCodeValidation},
		{"insufficient funds", env.Asset.ID, "150", 3, ledger.ErrInsufficientFunds, apperrors.ErrCodeInsufficientFunds},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := env.Investments.OpenPosition(context.Background(), investment.OpenRequest{
				AccountID:     accountID,
				AssetID:       tt.assetID,
				Amount:        dec(tt.amount),
				DurationHours: tt.hours,
			})
			assert.ErrorIs(t, err, tt.wantErr)
			assert.Equal(t, tt.wantCode, apperrors.CodeOf(err))

			account := env.Account(t, accountID)
			assert.True(t, account.Available.Equal(dec("100")))
			assert.True(t, account.Locked.IsZero())
		})
	}

	positions, err := env.Investments.ListPositions(context.Background(), investment.Filters{AccountID: &accountID})
	require.NoError(t, err)
	assert.Empty(t, positions)
}

func TestOpenPosition_OversizedDurationNeverMaturesEarly(t *testing.T) {
	ctx := context.Background()
	env := fixture.New(t, fixture.Options{})
	accountID := env.Fund(t, "100.00")

	// stored directly, as a row written before the duration cap existed would be
	legacy := asset.NewAsset("LEGACY", "Legacy", asset.CategoryStock)
	legacy.AllowedDurations = []int{3000000}
	legacy.ReturnRates = map[int]decimal.Decimal{3000000: dec("50")}
	require.NoError(t, env.Store.Assets().Create(ctx, legacy))

	_, err := env.Investments.OpenPosition(ctx, investment.OpenRequest{
		AccountID:     accountID,
		AssetID:       legacy.ID,
		Amount:        dec("50.00"),
		DurationHours: 3000000,
	})
	assert.ErrorIs(t, err, asset.ErrDurationNotAllowed)

	account := env.Account(t, accountID)
	assert.Equal(t, "100.00", account.Available.StringFixed(2))
	assert.True(t, account.Locked.IsZero())
	env.RequireConsistent(t, accountID)
}

func TestOpenPosition_ConcurrentOpensNeverOverdraw(t *testing.T) {
	env := fixture.New(t, fixture.Options{})
	accountID := env.Fund(t, "100.00")

	var (
		wg           sync.WaitGroup
		mu           sync.Mutex
		succeeded    int
		insufficient int
	)
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := env.Investments.OpenPosition(context.Background(), investment.OpenRequest{
				AccountID:     accountID,
				AssetID:       env.Asset.ID,
				Amount:        dec("60"),
				DurationHours: 3,
			})
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				succeeded++
			case errors.Is(err, ledger.ErrInsufficientFunds):
				insufficient++
			default:
				t.Errorf("unexpected error: %v", err)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, succeeded)
	assert.Equal(t, 1, insufficient)

	account := env.Account(t, accountID)
	assert.True(t, account.Available.Equal(dec("40")))
	assert.True(t, account.Locked.Equal(dec("60")))
	env.RequireConsistent(t, accountID)
}

func TestOpenPosition_RateSnapshotSurvivesRateChange(t *testing.T) {
	env := fixture.New(t, fixture.Options{})
	accountID := env.Fund(t, "100.00")
	ctx := context.Background()

	p := open(t, env, accountID, "50.00", 3)

	rates := asset.DefaultReturnRates()
	rates[3] = dec("9.0")
	_, err := env.Catalog.UpdateReturnRates(ctx, env.Asset.ID, rates, nil)
	require.NoError(t, err)

	env.Clock.Advance(3 * time.Hour)
	res, err := env.Investments.Settle(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, "0.75", res.ProfitLoss.StringFixed(2))
}

// =============================================================================
// Settle
// =============================================================================

func TestSettle_ReturnsPrincipalPlusProfit(t *testing.T) {
	env := fixture.New(t, fixture.Options{})
	accountID := env.Fund(t, "100.00")
	p := open(t, env, accountID, "50.00", 3)

	env.Clock.Advance(3 * time.Hour)

	res, err := env.Investments.Settle(context.Background(), p.ID)
	require.NoError(t, err)
	assert.True(t, res.Settled)
	assert.Equal(t, "0.75", res.ProfitLoss.StringFixed(2))
	assert.Equal(t, investment.StatusCompleted, res.Position.Status)
	require.NotNil(t, res.Position.CompletedAt)

	account := env.Account(t, accountID)
	assert.Equal(t, "100.75", account.Available.StringFixed(2))
	assert.True(t, account.Locked.IsZero())
	env.RequireConsistent(t, accountID)
}

func TestSettle_IsIdempotent(t *testing.T) {
	env := fixture.New(t, fixture.Options{})
	accountID := env.Fund(t, "100.00")
	p := open(t, env, accountID, "50.00", 3)
	env.Clock.Advance(4 * time.Hour)
	ctx := context.Background()

	first, err := env.Investments.Settle(ctx, p.ID)
	require.NoError(t, err)
	second, err := env.Investments.Settle(ctx, p.ID)
	require.NoError(t, err)

	assert.True(t, first.Settled)
	assert.False(t, second.Settled)
	assert.True(t, first.ProfitLoss.Equal(second.ProfitLoss))

	kind := ledger.EntryKindProfit
	entries, err := env.Ledger.ListEntries(ctx, ledger.EntryFilters{AccountID: &accountID, Kind: &kind})
	require.NoError(t, err)
	assert.Len(t, entries, 1)
	assert.Equal(t, "100.75", env.Account(t, accountID).Available.StringFixed(2))
}

func TestSettle_NotMature(t *testing.T) {
	env := fixture.New(t, fixture.Options{})
	accountID := env.Fund(t, "100.00")
	p := open(t, env, accountID, "50.00", 3)

	env.Clock.Advance(2*time.Hour + 59*time.Minute)

	_, err := env.Investments.Settle(context.Background(), p.ID)
	assert.ErrorIs(t, err, investment.ErrNotMature)
	assert.True(t, env.Account(t, accountID).Locked.Equal(dec("50")))
}

func TestSettle_LossNeverExceedsPrincipal(t *testing.T) {
	env := fixture.New(t, fixture.Options{Returns: investment.FixedReturnModel{Value: dec("-1000")}})
	accountID := env.Fund(t, "50.00")
	p := open(t, env, accountID, "50.00", 24)

	env.Clock.Advance(24 * time.Hour)

	res, err := env.Investments.Settle(context.Background(), p.ID)
	require.NoError(t, err)
	assert.True(t, res.ProfitLoss.Equal(dec("-50")))

	account := env.Account(t, accountID)
	assert.True(t, account.Available.IsZero())
	assert.True(t, account.Locked.IsZero())
	env.RequireConsistent(t, accountID)
}

func TestSettle_UnknownPosition(t *testing.T) {
	env := fixture.New(t, fixture.Options{})

	_, err := env.Investments.Settle(context.Background(), uuid.New())
	assert.ErrorIs(t, err, investment.ErrPositionNotFound)
}

// =============================================================================
// Cancel
// =============================================================================

func TestCancel_ReturnsPrincipal(t *testing.T) {
	env := fixture.New(t, fixture.Options{})
	accountID := env.Fund(t, "100.00")
	p := open(t, env, accountID, "50.00", 3)
	ctx := context.Background()

	_, err := env.Investments.Cancel(ctx, p.ID, "")
	assert.ErrorIs(t, err, investment.ErrReasonRequired)

	cancelled, err := env.Investments.Cancel(ctx, p.ID, "asset delisted")
	require.NoError(t, err)
	assert.Equal(t, investment.StatusCancelled, cancelled.Status)

	account := env.Account(t, accountID)
	assert.True(t, account.Available.Equal(dec("100")))
	assert.True(t, account.Locked.IsZero())
	env.RequireConsistent(t, accountID)

	_, err = env.Investments.Cancel(ctx, p.ID, "again")
	assert.ErrorIs(t, err, investment.ErrPositionNotActive)

	env.Clock.Advance(5 * time.Hour)
	_, err = env.Investments.Settle(ctx, p.ID)
	assert.ErrorIs(t, err, investment.ErrPositionCancelled)
	assert.True(t, env.Account(t, accountID).Available.Equal(dec("100")))
}

func TestListMatured_OldestFirst(t *testing.T) {
	env := fixture.New(t, fixture.Options{})
	accountID := env.Fund(t, "1000.00")

	long := open(t, env, accountID, "10", 6)
	short := open(t, env, accountID, "10", 1)
	open(t, env, accountID, "10", 24)

	env.Clock.Advance(6 * time.Hour)

	matured, err := env.Investments.ListMatured(context.Background(), 10)
	require.NoError(t, err)
	require.Len(t, matured, 2)
	assert.Equal(t, short.ID, matured[0].ID)
	assert.Equal(t, long.ID, matured[1].ID)
}
