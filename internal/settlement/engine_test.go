package settlement_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/kislikjeka/pesaprime/internal/investment"
	"github.com/kislikjeka/pesaprime/internal/settlement"
	"github.com/kislikjeka/pesaprime/pkg/logger"
	"github.com/kislikjeka/pesaprime/testutil/fixture"
)

func openPosition(t *testing.T, env *fixture.Env, accountID uuid.UUID, amount string, hours int) *investment.Position {
	t.Helper()
	p, err := env.Investments.OpenPosition(context.Background(), investment.OpenRequest{
		AccountID:     accountID,
		AssetID:       env.Asset.ID,
		Amount:        decimal.RequireFromString(amount),
		DurationHours: hours,
	})
	require.NoError(t, err)
	return p
}

// MockPositions is a mock implementation of settlement.Positions
type MockPositions struct {
	mock.Mock
	now time.Time
}

func (m *MockPositions) GetPosition(ctx context.Context, id uuid.UUID) (*investment.Position, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*investment.Position), args.Error(1)
}

func (m *MockPositions) Settle(ctx context.Context, id uuid.UUID) (*investment.SettleResult, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*investment.SettleResult), args.Error(1)
}

func (m *MockPositions) ListMatured(ctx context.Context, limit int) ([]*investment.Position, error) {
	args := m.Called(ctx, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*investment.Position), args.Error(1)
}

func (m *MockPositions) Now() time.Time { return m.now }

// =============================================================================
// SettleIfMature
// =============================================================================

func TestSettleIfMature_NotYetMature(t *testing.T) {
	env := fixture.New(t, fixture.Options{})
	accountID := env.Fund(t, "100.00")
	p := openPosition(t, env, accountID, "50.00", 3)

	res, err := env.Engine.SettleIfMature(context.Background(), p.ID)
	require.NoError(t, err)
	assert.False(t, res.Settled)
	assert.False(t, res.Matured)
	assert.Equal(t, investment.StatusActive, res.Position.Status)
}

func TestSettleIfMature_ConcurrentCallersSettleOnce(t *testing.T) {
	env := fixture.New(t, fixture.Options{})
	accountID := env.Fund(t, "100.00")
	p := openPosition(t, env, accountID, "50.00", 3)
	env.Clock.Advance(3 * time.Hour)

	const callers = 8
	results := make([]*settlement.Result, callers)
	var wg sync.WaitGroup
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			res, err := env.Engine.SettleIfMature(context.Background(), p.ID)
			assert.NoError(t, err)
			results[i] = res
		}(i)
	}
	wg.Wait()

	settled := 0
	for _, res := range results {
		require.NotNil(t, res)
		assert.True(t, res.Matured)
		assert.Equal(t, "0.75", res.ProfitLoss.StringFixed(2))
		if res.Settled {
			settled++
		}
	}
	assert.Equal(t, 1, settled)

	account := env.Account(t, accountID)
	assert.Equal(t, "100.75", account.Available.StringFixed(2))
	env.RequireConsistent(t, accountID)
}

func TestSettleIfMature_CancelledPositionIsLeftAlone(t *testing.T) {
	env := fixture.New(t, fixture.Options{})
	accountID := env.Fund(t, "100.00")
	p := openPosition(t, env, accountID, "50.00", 1)

	_, err := env.Investments.Cancel(context.Background(), p.ID, "operator request")
	require.NoError(t, err)
	env.Clock.Advance(2 * time.Hour)

	res, err := env.Engine.SettleIfMature(context.Background(), p.ID)
	require.NoError(t, err)
	assert.False(t, res.Settled)
	assert.False(t, res.Matured)
	assert.Equal(t, investment.StatusCancelled, res.Position.Status)
}

// =============================================================================
// Sweep
// =============================================================================

func TestRunSweep_SettlesOnlyMatured(t *testing.T) {
	env := fixture.New(t, fixture.Options{})
	accountID := env.Fund(t, "1000.00")

	openPosition(t, env, accountID, "100", 1)
	openPosition(t, env, accountID, "100", 3)
	pending := openPosition(t, env, accountID, "100", 24)

	env.Clock.Advance(3 * time.Hour)

	settled, err := env.Engine.RunSweep(context.Background(), 10)
	require.NoError(t, err)
	assert.Equal(t, 2, settled)

	again, err := env.Engine.RunSweep(context.Background(), 10)
	require.NoError(t, err)
	assert.Zero(t, again)

	stillActive, err := env.Investments.GetPosition(context.Background(), pending.ID)
	require.NoError(t, err)
	assert.Equal(t, investment.StatusActive, stillActive.Status)

	// 1000 - 300 + 200 principal back + 0.50 + 1.50 profit
	account := env.Account(t, accountID)
	assert.Equal(t, "902.00", account.Available.StringFixed(2))
	assert.Equal(t, "100.00", account.Locked.StringFixed(2))
	env.RequireConsistent(t, accountID)
}

func TestRunSweep_ContinuesPastFailures(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	positions := &MockPositions{now: now}

	matured := func() *investment.Position {
		return &investment.Position{
			ID:      uuid.New(),
			Status:  investment.StatusActive,
			EndTime: now.Add(-time.Minute),
		}
	}
	broken, healthy := matured(), matured()

	positions.On("ListMatured", mock.Anything, 5).Return([]*investment.Position{broken, healthy}, nil)
	positions.On("GetPosition", mock.Anything, broken.ID).Return(broken, nil)
	positions.On("GetPosition", mock.Anything, healthy.ID).Return(healthy, nil)
	positions.On("Settle", mock.Anything, broken.ID).Return(nil, errors.New("row vanished"))
	positions.On("Settle", mock.Anything, healthy.ID).Return(&investment.SettleResult{
		Position:   healthy,
		ProfitLoss: decimal.RequireFromString("1.00"),
		Settled:    true,
	}, nil)

	engine := settlement.NewEngine(positions, nil, logger.NewNop())

	settled, err := engine.RunSweep(ctx, 5)
	require.NoError(t, err)
	assert.Equal(t, 1, settled)
	positions.AssertExpectations(t)
}

func TestRunSweep_ParksRepeatedFailuresSoNewerPositionsSettle(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	positions := &MockPositions{now: now}

	stuck := &investment.Position{ID: uuid.New(), Status: investment.StatusActive, EndTime: now.Add(-time.Hour)}
	newer := &investment.Position{ID: uuid.New(), Status: investment.StatusActive, EndTime: now.Add(-time.Minute)}

	positions.On("ListMatured", mock.Anything, 1).Return([]*investment.Position{stuck}, nil).Times(settlement.MaxSweepFailures)
	positions.On("ListMatured", mock.Anything, 2).Return([]*investment.Position{stuck, newer}, nil).Once()
	positions.On("GetPosition", mock.Anything, stuck.ID).Return(stuck, nil)
	positions.On("GetPosition", mock.Anything, newer.ID).Return(newer, nil)
	positions.On("Settle", mock.Anything, stuck.ID).Return(nil, investment.ErrLockedShortfall)
	positions.On("Settle", mock.Anything, newer.ID).Return(&investment.SettleResult{
		Position:   newer,
		ProfitLoss: decimal.RequireFromString("0.50"),
		Settled:    true,
	}, nil)

	engine := settlement.NewEngine(positions, nil, logger.NewNop())

	for i := 0; i < settlement.MaxSweepFailures; i++ {
		settled, err := engine.RunSweep(ctx, 1)
		require.NoError(t, err)
		assert.Zero(t, settled)
	}
	assert.Equal(t, []uuid.UUID{stuck.ID}, engine.Parked())

	settled, err := engine.RunSweep(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, 1, settled)

	positions.AssertNumberOfCalls(t, "Settle", settlement.MaxSweepFailures+1)
	positions.AssertExpectations(t)
}

func TestSettleIfMature_UnparksOnSuccessfulRead(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	positions := &MockPositions{now: now}

	p := &investment.Position{ID: uuid.New(), Status: investment.StatusActive, EndTime: now.Add(-time.Hour)}
	positions.On("ListMatured", mock.Anything, 1).Return([]*investment.Position{p}, nil)
	positions.On("GetPosition", mock.Anything, p.ID).Return(p, nil)
	positions.On("Settle", mock.Anything, p.ID).Return(nil, errors.New("transient")).Times(settlement.MaxSweepFailures)
	positions.On("Settle", mock.Anything, p.ID).Return(&investment.SettleResult{Position: p, Settled: true}, nil).Once()

	engine := settlement.NewEngine(positions, nil, logger.NewNop())
	for i := 0; i < settlement.MaxSweepFailures; i++ {
		_, err := engine.RunSweep(ctx, 1)
		require.NoError(t, err)
	}
	require.Len(t, engine.Parked(), 1)

	res, err := engine.SettleIfMature(ctx, p.ID)
	require.NoError(t, err)
	assert.True(t, res.Settled)
	assert.Empty(t, engine.Parked())
}

func TestRunSweep_StopsOnCancelledContext(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	positions := &MockPositions{now: now}
	positions.On("ListMatured", mock.Anything, settlement.DefaultBatchSize).Return([]*investment.Position{
		{ID: uuid.New(), Status: investment.StatusActive, EndTime: now.Add(-time.Hour)},
	}, nil)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	engine := settlement.NewEngine(positions, nil, logger.NewNop())
	settled, err := engine.RunSweep(ctx, 0)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Zero(t, settled)
	positions.AssertNotCalled(t, "Settle", mock.Anything, mock.Anything)
}

func TestSweeper_RunOnceDrainsFullBatches(t *testing.T) {
	env := fixture.New(t, fixture.Options{})
	accountID := env.Fund(t, "1000.00")
	for i := 0; i < 5; i++ {
		openPosition(t, env, accountID, "20", 1)
	}
	env.Clock.Advance(time.Hour)

	sweeper := settlement.NewSweeper(env.Engine, &settlement.SweeperConfig{
		Interval:  time.Hour,
		BatchSize: 2,
		Logger:    logger.NewNop(),
	})

	assert.Equal(t, 5, sweeper.RunOnce(context.Background()))

	account := env.Account(t, accountID)
	assert.True(t, account.Locked.IsZero())
	assert.Equal(t, "1000.50", account.Available.StringFixed(2))
	env.RequireConsistent(t, accountID)
}

func TestSweeper_RunStopsWithContext(t *testing.T) {
	env := fixture.New(t, fixture.Options{})
	sweeper := settlement.NewSweeper(env.Engine, &settlement.SweeperConfig{Interval: 10 * time.Millisecond})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		sweeper.Run(ctx)
		close(done)
	}()

	time.Sleep(30 * time.Millisecond)
	cancel()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("sweeper did not stop")
	}
}
