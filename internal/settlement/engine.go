package settlement

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/kislikjeka/pesaprime/internal/investment"
	"github.com/kislikjeka/pesaprime/pkg/logger"
	"github.com/kislikjeka/pesaprime/pkg/money"
)

// DefaultBatchSize is the number of positions a sweep settles when the caller gives none
const DefaultBatchSize = 100

// MaxSweepFailures is how many consecutive sweep failures park a position.
// Parked positions are skipped by the sweep and still settle on read.
const MaxSweepFailures = 3

// Positions is the part of the investment service the engine drives
type Positions interface {
	GetPosition(ctx context.Context, id uuid.UUID) (*investment.Position, error)
	Settle(ctx context.Context, id uuid.UUID) (*investment.SettleResult, error)
	ListMatured(ctx context.Context, limit int) ([]*investment.Position, error)
	Now() time.Time
}

// Metrics receives settlement instrumentation
type Metrics interface {
	RecordSettlement(outcome string, profitLoss decimal.Decimal)
	RecordSweep(settled, failed int, duration time.Duration)
}

type noopMetrics struct{}

func (noopMetrics) RecordSettlement(string, decimal.Decimal) {}
func (noopMetrics) RecordSweep(int, int, time.Duration)      {}

// Result is the outcome of SettleIfMature
type Result struct {
	Settled    bool // this call applied the settlement
	Matured    bool // the position is settled, by this or an earlier call
	ProfitLoss decimal.Decimal
	Position   *investment.Position
}

// Engine is the single path through which positions leave the active state
// on maturity. Lazy checks on read and the periodic sweep both go through it.
type Engine struct {
	positions Positions
	metrics   Metrics
	logger    *logger.Logger

	mu       sync.Mutex
	failures map[uuid.UUID]int // consecutive sweep failures per position
}

// NewEngine creates a settlement engine. metrics may be nil.
func NewEngine(positions Positions, metrics Metrics, log *logger.Logger) *Engine {
	if metrics == nil {
		metrics = noopMetrics{}
	}
	return &Engine{
		positions: positions,
		metrics:   metrics,
		logger:    logger.OrNop(log).WithField("component", "settlement_engine"),
		failures:  make(map[uuid.UUID]int),
	}
}

// SettleIfMature settles the position when it is active and past its end
// time. Concurrent callers for the same position observe exactly one
// Settled=true; the others get the stored profit/loss.
func (e *Engine) SettleIfMature(ctx context.Context, positionID uuid.UUID) (*Result, error) {
	p, err := e.positions.GetPosition(ctx, positionID)
	if err != nil {
		return nil, err
	}

	switch p.Status {
	case investment.StatusCompleted:
		return &Result{Matured: true, ProfitLoss: p.ActualProfitLoss, Position: p}, nil
	case investment.StatusCancelled:
		return &Result{Position: p}, nil
	}

	if !investment.IsMature(p, e.positions.Now()) {
		return &Result{Position: p}, nil
	}

	res, err := e.positions.Settle(ctx, positionID)
	if err != nil {
		if errors.Is(err, investment.ErrPositionCancelled) || errors.Is(err, investment.ErrNotMature) {
			return &Result{Position: p}, nil
		}
		e.metrics.RecordSettlement("failed", decimal.Zero)
		return nil, err
	}
	e.clearFailures(positionID)

	if res.Settled {
		e.metrics.RecordSettlement("settled", res.ProfitLoss)
	} else {
		e.metrics.RecordSettlement("already_settled", res.ProfitLoss)
	}

	return &Result{
		Settled:    res.Settled,
		Matured:    true,
		ProfitLoss: res.ProfitLoss,
		Position:   res.Position,
	}, nil
}

// RunSweep settles up to batchSize matured positions, oldest first, and
// returns how many this call settled. A failure on one position is logged
// and does not stop the batch. Each settlement commits on its own, so an
// interrupted sweep leaves no partial state. Positions parked after
// MaxSweepFailures consecutive failures are skipped so they cannot keep
// newer positions out of the batch.
func (e *Engine) RunSweep(ctx context.Context, batchSize int) (int, error) {
	if batchSize <= 0 {
		batchSize = DefaultBatchSize
	}

	start := time.Now()
	limit := batchSize + e.parkedCount()
	matured, err := e.positions.ListMatured(ctx, limit)
	if err != nil {
		return 0, fmt.Errorf("failed to list matured positions: %w", err)
	}
	if len(matured) < limit {
		e.forgetAbsent(matured)
	}

	var attempted, settled, failed, skipped int
	for _, p := range matured {
		if attempted == batchSize {
			break
		}
		if err := ctx.Err(); err != nil {
			e.metrics.RecordSweep(settled, failed, time.Since(start))
			return settled, err
		}
		if e.isParked(p.ID) {
			skipped++
			continue
		}
		attempted++

		res, err := e.SettleIfMature(ctx, p.ID)
		if err != nil {
			failed++
			e.recordFailure(p, err)
			continue
		}
		if res.Settled {
			settled++
			e.logger.Debug("position settled", "position_id", p.ID, "profit_loss", money.Format(res.ProfitLoss))
		}
	}

	e.metrics.RecordSweep(settled, failed, time.Since(start))
	if attempted > 0 || skipped > 0 {
		e.logger.Info("settlement sweep completed",
			"matured", attempted,
			"settled", settled,
			"failed", failed,
			"parked", skipped,
		)
	}

	return settled, nil
}

// Parked lists the positions the sweep currently skips
func (e *Engine) Parked() []uuid.UUID {
	e.mu.Lock()
	defer e.mu.Unlock()

	var out []uuid.UUID
	for id, n := range e.failures {
		if n >= MaxSweepFailures {
			out = append(out, id)
		}
	}
	return out
}

func (e *Engine) recordFailure(p *investment.Position, err error) {
	e.mu.Lock()
	e.failures[p.ID]++
	n := e.failures[p.ID]
	e.mu.Unlock()

	log := e.logger.WithError(err)
	if n >= MaxSweepFailures {
		log.Error("position parked after repeated settlement failures",
			"position_id", p.ID, "account_id", p.AccountID, "failures", n)
		return
	}
	log.Warn("failed to settle position", "position_id", p.ID, "account_id", p.AccountID, "failures", n)
}

func (e *Engine) clearFailures(id uuid.UUID) {
	e.mu.Lock()
	delete(e.failures, id)
	e.mu.Unlock()
}

func (e *Engine) isParked(id uuid.UUID) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.failures[id] >= MaxSweepFailures
}

func (e *Engine) parkedCount() int {
	e.mu.Lock()
	defer e.mu.Unlock()

	n := 0
	for _, count := range e.failures {
		if count >= MaxSweepFailures {
			n++
		}
	}
	return n
}

// forgetAbsent drops failure counts for positions no longer awaiting
// settlement. Only valid when matured is the complete list.
func (e *Engine) forgetAbsent(matured []*investment.Position) {
	present := make(map[uuid.UUID]struct{}, len(matured))
	for _, p := range matured {
		present[p.ID] = struct{}{}
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	for id := range e.failures {
		if _, ok := present[id]; !ok {
			delete(e.failures, id)
		}
	}
}
