package ledger

import (
	"context"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"

	apperrors "github.com/kislikjeka/pesaprime/internal/shared/errors"
	"github.com/kislikjeka/pesaprime/pkg/logger"
)

// DefaultMaxAttempts bounds how often a contended transaction is tried
const DefaultMaxAttempts = 3

type pendingEventsKey struct{}

// pendingEvents collects events raised inside one transaction attempt
type pendingEvents struct {
	events []Event
}

// Committer runs a unit of work inside one database transaction, retrying
// it with backoff when it fails on lock contention. Events raised through
// raise are published only after a successful commit.
type Committer struct {
	tx          Transactor
	maxAttempts int
	events      EventPublisher
	metrics     Metrics
	logger      *logger.Logger
}

// NewCommitter creates a committer. events and metrics may be nil.
func NewCommitter(tx Transactor, maxAttempts int, events EventPublisher, metrics Metrics, log *logger.Logger) *Committer {
	if maxAttempts < 1 {
		maxAttempts = DefaultMaxAttempts
	}
	if events == nil {
		events = noopPublisher{}
	}
	if metrics == nil {
		metrics = noopMetrics{}
	}
	return &Committer{
		tx:          tx,
		maxAttempts: maxAttempts,
		events:      events,
		metrics:     metrics,
		logger:      logger.OrNop(log).WithField("component", "ledger_committer"),
	}
}

// InTx runs fn in a transaction. fn receives the transactional context and
// must use it for every repository call. fn may run more than once.
func (c *Committer) InTx(ctx context.Context, op string, fn func(ctx context.Context) error) error {
	start := time.Now()
	var committed []Event
	attempt := 0

	operation := func() error {
		attempt++
		pending := &pendingEvents{}
		err := c.runOnce(context.WithValue(ctx, pendingEventsKey{}, pending), fn)
		if err == nil {
			committed = pending.events
			return nil
		}
		if apperrors.IsRetryable(err) && attempt < c.maxAttempts {
			c.metrics.RecordRetry(op)
			c.logger.WithContext(ctx).Debug("retrying contended transaction", "operation", op, "attempt", attempt, "error", err)
			return err
		}
		return backoff.Permanent(err)
	}

	err := backoff.Retry(operation, backoff.WithContext(c.newBackOff(), ctx))

	outcome := "ok"
	if err != nil {
		outcome = apperrors.CodeOf(err)
	}
	c.metrics.ObserveOperation(op, outcome, time.Since(start))

	if err != nil {
		if apperrors.HasCode(err, apperrors.ErrCodeConfiguration) || outcome == apperrors.ErrCodeInternal {
			c.logger.WithContext(ctx).WithError(err).Error("ledger operation failed", "operation", op)
		}
		return err
	}

	for _, ev := range committed {
		c.metrics.RecordEntry(ev.Entry.Kind, ev.Entry.Amount)
		if err := c.events.Publish(ctx, ev); err != nil {
			c.logger.WithContext(ctx).WithError(err).Warn("failed to publish ledger event",
				"event", ev.Type, "reference", ev.Entry.Reference)
		}
	}

	return nil
}

func (c *Committer) runOnce(ctx context.Context, fn func(ctx context.Context) error) error {
	txCtx, err := c.tx.BeginTx(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}

	// Ensure rollback on error
	committed := false
	defer func() {
		if !committed {
			_ = c.tx.RollbackTx(txCtx)
		}
	}()

	if err := fn(txCtx); err != nil {
		return err
	}

	if err := c.tx.CommitTx(txCtx); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}

	committed = true
	return nil
}

func (c *Committer) newBackOff() backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 20 * time.Millisecond
	b.MaxInterval = 250 * time.Millisecond
	b.MaxElapsedTime = 0
	b.Reset()
	return b
}

// raise queues an event for publication once the surrounding transaction commits
func raise(ctx context.Context, ev Event) {
	if pending, ok := ctx.Value(pendingEventsKey{}).(*pendingEvents); ok {
		pending.events = append(pending.events, ev)
	}
}
