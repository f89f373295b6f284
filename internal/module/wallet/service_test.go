package wallet_test

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kislikjeka/pesaprime/internal/investment"
	"github.com/kislikjeka/pesaprime/internal/ledger"
	"github.com/kislikjeka/pesaprime/internal/module/wallet"
	"github.com/kislikjeka/pesaprime/internal/platform/currency"
	apperrors "github.com/kislikjeka/pesaprime/internal/shared/errors"
	"github.com/kislikjeka/pesaprime/pkg/logger"
	"github.com/kislikjeka/pesaprime/testutil/fixture"
)

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func newWallet(t *testing.T, opts fixture.Options) (*wallet.Service, *fixture.Env) {
	t.Helper()
	env := fixture.New(t, opts)
	svc := wallet.NewService(env.Ledger, env.Investments, env.Engine, env.Currencies, logger.NewNop())
	return svc, env
}

func TestDeposit_ConvertsFromDisplayCurrency(t *testing.T) {
	ctx := context.Background()
	svc, env := newWallet(t, fixture.Options{})
	accountID := uuid.New()

	_, err := svc.SwitchCurrency(ctx, accountID, "KES")
	require.NoError(t, err)

	view, err := svc.Deposit(ctx, wallet.DepositInput{AccountID: accountID, Amount: dec("15000")})
	require.NoError(t, err)
	assert.Equal(t, "KES", view.Currency)
	assert.Equal(t, "+", view.Sign)
	assert.Equal(t, "15000.00", view.Amount.StringFixed(2))
	assert.Equal(t, "100.00", view.Entry.Amount.StringFixed(2))

	account := env.Account(t, accountID)
	assert.Equal(t, "100.00", account.Available.StringFixed(2))
}

func TestDeposit_ExplicitCurrencyIsStrict(t *testing.T) {
	ctx := context.Background()
	svc, _ := newWallet(t, fixture.Options{})

	_, err := svc.Deposit(ctx, wallet.DepositInput{AccountID: uuid.New(), Amount: dec("10"), Currency: "XYZ"})
	assert.ErrorIs(t, err, currency.ErrUnknownCurrency)

	_, err = svc.Deposit(ctx, wallet.DepositInput{AccountID: uuid.New(), Amount: dec("0.01"), Currency: "KES"})
	assert.ErrorIs(t, err, ledger.ErrInvalidAmount)
}

func TestOverview_InDisplayCurrency(t *testing.T) {
	ctx := context.Background()
	svc, env := newWallet(t, fixture.Options{})
	accountID := env.Fund(t, "100.00")

	usd, err := svc.Overview(ctx, accountID)
	require.NoError(t, err)
	assert.Equal(t, currency.CodeUSD, usd.Currency.Code)
	assert.Equal(t, "100.00", usd.Available.StringFixed(2))

	eur, err := svc.SwitchCurrency(ctx, accountID, "eur")
	require.NoError(t, err)
	assert.Equal(t, "EUR", eur.Currency.Code)
	assert.Equal(t, "92.00", eur.Available.StringFixed(2))
	assert.Equal(t, "92.00", eur.Total.StringFixed(2))
	assert.Equal(t, "100.00", eur.Canonical.Available.StringFixed(2))
}

func TestSwitchCurrency_UnknownCodeRejected(t *testing.T) {
	ctx := context.Background()
	svc, env := newWallet(t, fixture.Options{})
	accountID := env.Fund(t, "10.00")

	_, err := svc.SwitchCurrency(ctx, accountID, "JPY")
	assert.ErrorIs(t, err, currency.ErrUnknownCurrency)
	assert.True(t, apperrors.HasCode(err, apperrors.ErrCodeValidation))
	assert.Equal(t, "USD", env.Account(t, accountID).DisplayCurrency)
}

func TestWithdraw_SignAndBalance(t *testing.T) {
	ctx := context.Background()
	svc, env := newWallet(t, fixture.Options{})
	accountID := env.Fund(t, "100.00")

	view, err := svc.Withdraw(ctx, wallet.WithdrawInput{
		AccountID:   accountID,
		Amount:      dec("25"),
		Destination: "+254711111111",
	})
	require.NoError(t, err)
	assert.Equal(t, "-", view.Sign)
	assert.Equal(t, "-25.00", view.Amount.StringFixed(2))
	assert.Equal(t, "75.00", env.Account(t, accountID).Available.StringFixed(2))
}

func TestInvest_AndLazySettlementOnRead(t *testing.T) {
	ctx := context.Background()
	svc, env := newWallet(t, fixture.Options{})
	accountID := env.Fund(t, "100.00")

	view, err := svc.Invest(ctx, wallet.InvestInput{
		AccountID:     accountID,
		AssetID:       env.Asset.ID,
		Amount:        dec("50"),
		DurationHours: 3,
	})
	require.NoError(t, err)
	assert.Equal(t, "0.75", view.ExpectedProfit.StringFixed(2))
	assert.Equal(t, 3*time.Hour, view.TimeRemaining)

	env.Clock.Advance(3 * time.Hour)

	positions, err := svc.Positions(ctx, accountID, nil)
	require.NoError(t, err)
	require.Len(t, positions, 1)
	assert.Equal(t, investment.StatusCompleted, positions[0].Position.Status)
	assert.Equal(t, "0.75", positions[0].ProfitLoss.StringFixed(2))
	assert.Equal(t, 1.0, positions[0].Progress)

	active := investment.StatusActive
	open, err := svc.Positions(ctx, accountID, &active)
	require.NoError(t, err)
	assert.Empty(t, open)

	overview, err := svc.Overview(ctx, accountID)
	require.NoError(t, err)
	assert.Equal(t, "100.75", overview.Available.StringFixed(2))
	env.RequireConsistent(t, accountID)
}

func TestPosition_OtherAccountIsNotFound(t *testing.T) {
	ctx := context.Background()
	svc, env := newWallet(t, fixture.Options{})
	owner := env.Fund(t, "100.00")

	view, err := svc.Invest(ctx, wallet.InvestInput{AccountID: owner, AssetID: env.Asset.ID, Amount: dec("20"), DurationHours: 1})
	require.NoError(t, err)

	_, err = svc.Position(ctx, uuid.New(), view.Position.ID)
	assert.ErrorIs(t, err, investment.ErrPositionNotFound)

	got, err := svc.Position(ctx, owner, view.Position.ID)
	require.NoError(t, err)
	assert.Equal(t, investment.StatusActive, got.Position.Status)
}

func TestWelcomeBonus_ClaimedOnce(t *testing.T) {
	ctx := context.Background()
	svc, env := newWallet(t, fixture.Options{WelcomeBonus: dec("500.00")})
	accountID := uuid.New()

	view, err := svc.ClaimWelcomeBonus(ctx, accountID)
	require.NoError(t, err)
	assert.Equal(t, "500.00", view.Amount.StringFixed(2))

	_, err = svc.ClaimWelcomeBonus(ctx, accountID)
	assert.ErrorIs(t, err, ledger.ErrBonusAlreadyClaimed)

	bonuses, err := svc.Bonuses(ctx, accountID, false)
	require.NoError(t, err)
	require.Len(t, bonuses, 1)
	assert.True(t, bonuses[0].Bonus.Claimed)

	account := env.Account(t, accountID)
	assert.Equal(t, "500.00", account.Bonus.StringFixed(2))
	assert.True(t, account.Available.IsZero())
}

func TestHistory_DisplayAmountsNewestFirst(t *testing.T) {
	ctx := context.Background()
	svc, env := newWallet(t, fixture.Options{})
	accountID := env.Fund(t, "100.00")

	_, err := svc.SwitchCurrency(ctx, accountID, "KES")
	require.NoError(t, err)
	env.Clock.Advance(time.Minute)
	_, err = svc.Withdraw(ctx, wallet.WithdrawInput{AccountID: accountID, Amount: dec("1500"), Destination: "x"})
	require.NoError(t, err)

	history, err := svc.History(ctx, accountID, wallet.HistoryQuery{})
	require.NoError(t, err)
	require.Len(t, history, 2)

	assert.Equal(t, ledger.EntryKindWithdrawal, history[0].Entry.Kind)
	assert.Equal(t, "-", history[0].Sign)
	assert.Equal(t, "-1500.00", history[0].Amount.StringFixed(2))
	assert.Equal(t, "KES", history[0].Currency)

	assert.Equal(t, ledger.EntryKindDeposit, history[1].Entry.Kind)
	assert.Equal(t, "+", history[1].Sign)
	assert.Equal(t, "15000.00", history[1].Amount.StringFixed(2))

	kind := ledger.EntryKindDeposit
	deposits, err := svc.History(ctx, accountID, wallet.HistoryQuery{Kind: &kind})
	require.NoError(t, err)
	assert.Len(t, deposits, 1)
}
