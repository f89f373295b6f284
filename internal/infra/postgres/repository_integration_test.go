//go:build integration

package postgres_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kislikjeka/pesaprime/internal/infra/postgres"
	"github.com/kislikjeka/pesaprime/internal/investment"
	"github.com/kislikjeka/pesaprime/internal/ledger"
	"github.com/kislikjeka/pesaprime/internal/platform/asset"
	"github.com/kislikjeka/pesaprime/internal/platform/currency"
	apperrors "github.com/kislikjeka/pesaprime/internal/shared/errors"
	"github.com/kislikjeka/pesaprime/testutil/testdb"
)

var testDB *testdb.TestDB

func TestMain(m *testing.M) {
	ctx := context.Background()

	var err error
	testDB, err = testdb.NewTestDB(ctx)
	if err != nil {
		panic("failed to create test database: " + err.Error())
	}

	code := m.Run()

	testDB.Close(ctx)
	if code != 0 {
		panic("tests failed")
	}
}

type env struct {
	ledgerRepo  *postgres.LedgerRepository
	ledger      *ledger.Service
	catalog     *asset.Catalog
	investments *investment.Service
	asset       *asset.Asset
	now         time.Time
}

func setupTest(t *testing.T) (*env, context.Context) {
	t.Helper()
	ctx := context.Background()
	require.NoError(t, testDB.Reset(ctx))

	e := &env{now: time.Now().UTC().Truncate(time.Microsecond)}
	clock := func() time.Time { return e.now }

	tx := postgres.NewTransactor(testDB.Pool, 500*time.Millisecond)
	e.ledgerRepo = postgres.NewLedgerRepository(testDB.Pool, tx)
	e.ledger = ledger.NewService(e.ledgerRepo, &ledger.Config{Clock: clock, MaxAttempts: 5})
	e.catalog = asset.NewCatalog(postgres.NewAssetRepository(testDB.Pool), nil, &asset.CatalogConfig{Clock: clock})
	e.investments = investment.NewService(postgres.NewPositionRepository(testDB.Pool), e.ledger, e.catalog,
		&investment.Config{Returns: investment.NeutralReturns, Clock: clock})

	e.asset = asset.NewAsset("BTC", "Bitcoin", asset.CategoryCrypto)
	e.asset.CurrentPrice = decimal.NewFromInt(65000)
	require.NoError(t, e.catalog.Create(ctx, e.asset))

	return e, ctx
}

func (e *env) fund(t *testing.T, ctx context.Context, amount string) uuid.UUID {
	t.Helper()
	id := uuid.New()
	_, err := e.ledger.Deposit(ctx, ledger.DepositRequest{
		AccountID: id,
		Amount:    decimal.RequireFromString(amount),
		Method:    ledger.MethodCard,
	})
	require.NoError(t, err)
	return id
}

// =============================================================================
// Ledger Tests
// =============================================================================

func TestLedgerRepository_DepositPersistsBalanceAndEntry(t *testing.T) {
	e, ctx := setupTest(t)
	id := e.fund(t, ctx, "250.50")

	account, err := e.ledger.GetAccount(ctx, id)
	require.NoError(t, err)
	assert.True(t, account.Available.Equal(decimal.RequireFromString("250.50")))

	entries, err := e.ledger.ListEntries(ctx, ledger.EntryFilters{AccountID: &id})
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, ledger.EntryKindDeposit, entries[0].Kind)
	assert.Equal(t, ledger.EntryStatusCompleted, entries[0].Status)

	rec, err := e.ledger.Reconcile(ctx, id)
	require.NoError(t, err)
	assert.True(t, rec.Balanced)
}

func TestLedgerRepository_LockAccountRequiresTransaction(t *testing.T) {
	e, ctx := setupTest(t)

	_, err := e.ledgerRepo.LockAccount(ctx, uuid.New(), "USD")
	assert.ErrorIs(t, err, ledger.ErrNoTransaction)
}

func TestLedgerRepository_LockTimeoutIsRetryable(t *testing.T) {
	e, ctx := setupTest(t)
	id := e.fund(t, ctx, "10")

	holder, err := e.ledgerRepo.BeginTx(ctx)
	require.NoError(t, err)
	defer e.ledgerRepo.RollbackTx(holder)
	_, err = e.ledgerRepo.LockAccount(holder, id, "USD")
	require.NoError(t, err)

	waiter, err := e.ledgerRepo.BeginTx(ctx)
	require.NoError(t, err)
	defer e.ledgerRepo.RollbackTx(waiter)

	_, err = e.ledgerRepo.LockAccount(waiter, id, "USD")
	require.Error(t, err)
	assert.True(t, apperrors.IsRetryable(err))
}

func TestLedgerRepository_ConcurrentDeposits(t *testing.T) {
	e, ctx := setupTest(t)
	id := e.fund(t, ctx, "1")

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := e.ledger.Deposit(ctx, ledger.DepositRequest{
				AccountID: id,
				Amount:    decimal.RequireFromString("1.25"),
				Method:    ledger.MethodMobileMoney,
			})
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	account, err := e.ledger.GetAccount(ctx, id)
	require.NoError(t, err)
	assert.True(t, account.Available.Equal(decimal.RequireFromString("13.50")), account.Available.String())
}

func TestLedgerRepository_BonusClaimedOnce(t *testing.T) {
	e, ctx := setupTest(t)
	id := e.fund(t, ctx, "1")

	bonus, err := e.ledger.GrantBonus(ctx, ledger.GrantBonusRequest{
		AccountID: id,
		Key:       "promo-march",
		Title:     "March promotion",
		Kind:      ledger.BonusKindPromotion,
		Amount:    decimal.NewFromInt(20),
	})
	require.NoError(t, err)

	_, err = e.ledger.ClaimBonus(ctx, id, bonus.ID)
	require.NoError(t, err)
	_, err = e.ledger.ClaimBonus(ctx, id, bonus.ID)
	assert.ErrorIs(t, err, ledger.ErrBonusAlreadyClaimed)

	account, err := e.ledger.GetAccount(ctx, id)
	require.NoError(t, err)
	assert.True(t, account.Bonus.Equal(decimal.NewFromInt(20)))
}

// =============================================================================
// Position Tests
// =============================================================================

func TestPositionRepository_ConcurrentOpensNeverOverdraw(t *testing.T) {
	e, ctx := setupTest(t)
	id := e.fund(t, ctx, "100")

	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		succeeded int
	)
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := e.investments.OpenPosition(ctx, investment.OpenRequest{
				AccountID:     id,
				AssetID:       e.asset.ID,
				Amount:        decimal.NewFromInt(60),
				DurationHours: 1,
			})
			if err == nil {
				mu.Lock()
				succeeded++
				mu.Unlock()
				return
			}
			assert.ErrorIs(t, err, ledger.ErrInsufficientFunds)
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, succeeded)
	account, err := e.ledger.GetAccount(ctx, id)
	require.NoError(t, err)
	assert.True(t, account.Available.Equal(decimal.NewFromInt(40)))
	assert.True(t, account.Locked.Equal(decimal.NewFromInt(60)))

	locked, err := e.investments.ReconcileLocked(ctx, id)
	require.NoError(t, err)
	assert.True(t, locked.Balanced)
}

func TestPositionRepository_SettleOnce(t *testing.T) {
	e, ctx := setupTest(t)
	id := e.fund(t, ctx, "100")

	p, err := e.investments.OpenPosition(ctx, investment.OpenRequest{
		AccountID:     id,
		AssetID:       e.asset.ID,
		Amount:        decimal.NewFromInt(50),
		DurationHours: 1,
	})
	require.NoError(t, err)
	assert.True(t, p.ExpectedReturnRate.Equal(decimal.RequireFromString("0.5")))

	_, err = e.investments.Settle(ctx, p.ID)
	assert.ErrorIs(t, err, investment.ErrNotMature)

	e.now = e.now.Add(time.Hour)
	matured, err := e.investments.ListMatured(ctx, 10)
	require.NoError(t, err)
	require.Len(t, matured, 1)

	first, err := e.investments.Settle(ctx, p.ID)
	require.NoError(t, err)
	assert.True(t, first.Settled)
	assert.True(t, first.ProfitLoss.Equal(decimal.RequireFromString("0.25")))

	second, err := e.investments.Settle(ctx, p.ID)
	require.NoError(t, err)
	assert.False(t, second.Settled)

	account, err := e.ledger.GetAccount(ctx, id)
	require.NoError(t, err)
	assert.True(t, account.Available.Equal(decimal.RequireFromString("100.25")), account.Available.String())
	assert.True(t, account.Locked.IsZero())

	profitKind := ledger.EntryKindProfit
	profits, err := e.ledger.ListEntries(ctx, ledger.EntryFilters{AccountID: &id, Kind: &profitKind})
	require.NoError(t, err)
	assert.Len(t, profits, 1)
}

func TestPositionRepository_DuplicateProfitEntryRejected(t *testing.T) {
	e, ctx := setupTest(t)
	id := e.fund(t, ctx, "100")

	p, err := e.investments.OpenPosition(ctx, investment.OpenRequest{
		AccountID:     id,
		AssetID:       e.asset.ID,
		Amount:        decimal.NewFromInt(20),
		DurationHours: 1,
	})
	require.NoError(t, err)

	insert := func(reference string) error {
		txCtx, err := e.ledgerRepo.BeginTx(ctx)
		require.NoError(t, err)
		defer e.ledgerRepo.RollbackTx(txCtx)

		entry := &ledger.Entry{
			ID:         uuid.New(),
			AccountID:  id,
			Kind:       ledger.EntryKindProfit,
			Method:     ledger.MethodInternal,
			Amount:     decimal.NewFromInt(1),
			Status:     ledger.EntryStatusCompleted,
			Reference:  reference,
			PositionID: &p.ID,
			CreatedAt:  e.now,
			UpdatedAt:  e.now,
		}
		if err := e.ledgerRepo.CreateEntry(txCtx, entry); err != nil {
			return err
		}
		return e.ledgerRepo.CommitTx(txCtx)
	}

	require.NoError(t, insert(ledger.NewReference()))
	assert.ErrorIs(t, insert(ledger.NewReference()), ledger.ErrDuplicateEntry)
}

// =============================================================================
// Reference Data Tests
// =============================================================================

func TestAssetRepository_RoundTripsRateTable(t *testing.T) {
	e, ctx := setupTest(t)
	repo := postgres.NewAssetRepository(testDB.Pool)

	stored, err := repo.GetBySymbol(ctx, "BTC")
	require.NoError(t, err)
	assert.Equal(t, e.asset.AllowedDurations, stored.AllowedDurations)
	require.Len(t, stored.ReturnRates, len(e.asset.ReturnRates))
	for h, rate := range e.asset.ReturnRates {
		assert.True(t, stored.ReturnRates[h].Equal(rate), "rate for %dh", h)
	}

	dup := asset.NewAsset("BTC", "Bitcoin again", asset.CategoryCrypto)
	assert.ErrorIs(t, repo.Create(ctx, dup), asset.ErrDuplicateAsset)
}

func TestCurrencyRepository_SeededCurrencies(t *testing.T) {
	_, ctx := setupTest(t)
	repo := postgres.NewCurrencyRepository(testDB.Pool)

	kes, err := repo.GetByCode(ctx, "KES")
	require.NoError(t, err)
	assert.True(t, kes.ExchangeRate.Equal(decimal.NewFromInt(150)))

	_, err = repo.GetByCode(ctx, "XYZ")
	assert.ErrorIs(t, err, currency.ErrCurrencyNotFound)

	active, err := repo.ListActive(ctx)
	require.NoError(t, err)
	assert.Len(t, active, 4)
}
