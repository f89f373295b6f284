// Package fixture wires the ledger, catalog, investment and settlement
// services on an in-memory store for tests.
package fixture

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/kislikjeka/pesaprime/internal/infra/memory"
	"github.com/kislikjeka/pesaprime/internal/investment"
	"github.com/kislikjeka/pesaprime/internal/ledger"
	"github.com/kislikjeka/pesaprime/internal/platform/asset"
	"github.com/kislikjeka/pesaprime/internal/platform/currency"
	"github.com/kislikjeka/pesaprime/internal/settlement"
	"github.com/kislikjeka/pesaprime/pkg/logger"
	"github.com/kislikjeka/pesaprime/testutil/clock"
)

// Start is the fixed instant every fixture clock begins at
var Start = time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

// Env is a fully wired set of services sharing one store and clock
type Env struct {
	Store       *memory.Store
	Clock       *clock.Manual
	Ledger      *ledger.Service
	Catalog     *asset.Catalog
	Investments *investment.Service
	Engine      *settlement.Engine
	Currencies  *currency.Resolver
	Asset       *asset.Asset // active BTC asset with the default rate table
}

// Options tweak the environment
type Options struct {
	Returns      investment.ReturnModel
	WelcomeBonus decimal.Decimal
	LockTimeout  time.Duration
}

// New builds an environment. Returns default to NeutralReturns.
func New(t *testing.T, opts Options) *Env {
	t.Helper()

	if opts.Returns == nil {
		opts.Returns = investment.NeutralReturns
	}
	if opts.LockTimeout == 0 {
		opts.LockTimeout = time.Second
	}

	log := logger.NewNop()
	store := memory.New(opts.LockTimeout)
	clk := clock.NewManual(Start)

	ledgerSvc := ledger.NewService(store.Ledger(), &ledger.Config{
		WelcomeBonus: opts.WelcomeBonus,
		Clock:        clk.Now,
		Logger:       log,
	})
	catalog := asset.NewCatalog(store.Assets(), nil, &asset.CatalogConfig{Clock: clk.Now, Logger: log})
	investments := investment.NewService(store.Positions(), ledgerSvc, catalog, &investment.Config{
		Returns: opts.Returns,
		Clock:   clk.Now,
		Logger:  log,
	})

	btc := asset.NewAsset("BTC", "Bitcoin", asset.CategoryCrypto)
	btc.CurrentPrice = decimal.NewFromInt(65000)
	require.NoError(t, catalog.Create(context.Background(), btc))

	return &Env{
		Store:       store,
		Clock:       clk,
		Ledger:      ledgerSvc,
		Catalog:     catalog,
		Investments: investments,
		Engine:      settlement.NewEngine(investments, nil, log),
		Currencies:  currency.NewResolver(store.Currencies(), nil, log),
		Asset:       btc,
	}
}

// Fund creates an account holding amount in available funds
func (e *Env) Fund(t *testing.T, amount string) uuid.UUID {
	t.Helper()
	accountID := uuid.New()
	_, err := e.Ledger.Deposit(context.Background(), ledger.DepositRequest{
		AccountID: accountID,
		Amount:    decimal.RequireFromString(amount),
	})
	require.NoError(t, err)
	return accountID
}

// Account returns the stored account
func (e *Env) Account(t *testing.T, accountID uuid.UUID) *ledger.Account {
	t.Helper()
	a, err := e.Ledger.GetAccount(context.Background(), accountID)
	require.NoError(t, err)
	return a
}

// RequireConsistent checks conservation and that locked funds equal open principal
func (e *Env) RequireConsistent(t *testing.T, accountID uuid.UUID) {
	t.Helper()
	ctx := context.Background()

	r, err := e.Ledger.Reconcile(ctx, accountID)
	require.NoError(t, err)
	require.True(t, r.Balanced, "stored total %s, entry total %s", r.StoredTotal, r.EntryTotal)

	lr, err := e.Investments.ReconcileLocked(ctx, accountID)
	require.NoError(t, err)
	require.True(t, lr.Balanced, "locked %s, active principal %s", lr.StoredLocked, lr.ActivePrincipal)
}
