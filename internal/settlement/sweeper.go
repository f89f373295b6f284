package settlement

import (
	"context"
	"time"

	"github.com/kislikjeka/pesaprime/pkg/logger"
)

const (
	// DefaultSweepInterval is the default interval between sweeps
	DefaultSweepInterval = time.Minute

	// maxBatchesPerCycle caps how many full batches one cycle drains
	maxBatchesPerCycle = 50
)

// Sweeper periodically drives the engine's sweep until the context is cancelled
type Sweeper struct {
	engine    *Engine
	interval  time.Duration
	batchSize int
	logger    *logger.Logger
}

// SweeperConfig holds configuration for the sweeper
type SweeperConfig struct {
	Interval  time.Duration
	BatchSize int
	Logger    *logger.Logger
}

// NewSweeper creates a new sweeper
func NewSweeper(engine *Engine, config *SweeperConfig) *Sweeper {
	interval := DefaultSweepInterval
	batchSize := DefaultBatchSize
	var log *logger.Logger

	if config != nil {
		if config.Interval > 0 {
			interval = config.Interval
		}
		if config.BatchSize > 0 {
			batchSize = config.BatchSize
		}
		log = config.Logger
	}

	return &Sweeper{
		engine:    engine,
		interval:  interval,
		batchSize: batchSize,
		logger:    logger.OrNop(log).WithField("component", "settlement_sweeper"),
	}
}

// Run starts the sweeper and runs until the context is cancelled
func (s *Sweeper) Run(ctx context.Context) {
	s.logger.Info("settlement sweeper started", "interval", s.interval, "batch_size", s.batchSize)

	// Run immediately on start
	s.RunOnce(ctx)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("settlement sweeper stopped")
			return
		case <-ticker.C:
			s.RunOnce(ctx)
		}
	}
}

// RunOnce runs one sweep cycle. A full batch means more positions may be
// waiting, so the cycle keeps sweeping until a batch comes back short.
func (s *Sweeper) RunOnce(ctx context.Context) int {
	total := 0
	for i := 0; i < maxBatchesPerCycle; i++ {
		settled, err := s.engine.RunSweep(ctx, s.batchSize)
		total += settled
		if err != nil {
			if ctx.Err() == nil {
				s.logger.WithError(err).Error("settlement sweep failed")
			}
			return total
		}
		if settled < s.batchSize {
			return total
		}
	}
	return total
}
