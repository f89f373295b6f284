package postgres

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	apperrors "github.com/kislikjeka/pesaprime/internal/shared/errors"
)

// DefaultLockTimeout bounds how long a statement waits for a row lock
const DefaultLockTimeout = 2 * time.Second

// PostgreSQL error codes the adapters translate
const (
	codeUniqueViolation      = "23505"
	codeCheckViolation       = "23514"
	codeSerializationFailure = "40001"
	codeDeadlockDetected     = "40P01"
	codeLockNotAvailable     = "55P03"
)

type ctxKey string

// txContextKey is shared by every repository in the package, so ledger and
// position writes made with the same context land in the same transaction.
const txContextKey ctxKey = "pesaprime_tx"

type queryer interface {
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Transactor begins, commits and rolls back transactions carried in the context
type Transactor struct {
	pool        *pgxpool.Pool
	lockTimeout time.Duration
}

// NewTransactor creates a transactor. Each transaction waits at most
// lockTimeout for any single lock.
func NewTransactor(pool *pgxpool.Pool, lockTimeout time.Duration) *Transactor {
	if lockTimeout <= 0 {
		lockTimeout = DefaultLockTimeout
	}
	return &Transactor{pool: pool, lockTimeout: lockTimeout}
}

// BeginTx starts a new database transaction and stores it in the context
func (t *Transactor) BeginTx(ctx context.Context) (context.Context, error) {
	if tx := txFromContext(ctx); tx != nil {
		return ctx, fmt.Errorf("transaction already in progress")
	}

	tx, err := t.pool.Begin(ctx)
	if err != nil {
		return ctx, fmt.Errorf("failed to begin transaction: %w", mapError(err))
	}

	timeout := strconv.FormatInt(t.lockTimeout.Milliseconds(), 10) + "ms"
	if _, err := tx.Exec(ctx, "SELECT set_config('lock_timeout', $1, true)", timeout); err != nil {
		_ = tx.Rollback(ctx)
		return ctx, fmt.Errorf("failed to set lock timeout: %w", mapError(err))
	}

	return context.WithValue(ctx, txContextKey, tx), nil
}

// CommitTx commits the database transaction from the context
func (t *Transactor) CommitTx(ctx context.Context) error {
	tx := txFromContext(ctx)
	if tx == nil {
		return fmt.Errorf("no transaction in context")
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", mapError(err))
	}

	return nil
}

// RollbackTx rolls back the database transaction from the context
func (t *Transactor) RollbackTx(ctx context.Context) error {
	tx := txFromContext(ctx)
	if tx == nil {
		return fmt.Errorf("no transaction in context")
	}

	if err := tx.Rollback(ctx); err != nil {
		// Ignore already rolled back or committed errors
		if errors.Is(err, pgx.ErrTxClosed) {
			return nil
		}
		return fmt.Errorf("failed to rollback transaction: %w", err)
	}

	return nil
}

func txFromContext(ctx context.Context) pgx.Tx {
	if tx, ok := ctx.Value(txContextKey).(pgx.Tx); ok {
		return tx
	}
	return nil
}

// getQueryer returns the transaction if one exists in context, otherwise the pool
func getQueryer(ctx context.Context, pool *pgxpool.Pool) queryer {
	if tx := txFromContext(ctx); tx != nil {
		return tx
	}
	return pool
}

// requireTx returns the context transaction for statements that take row locks
func requireTx(ctx context.Context, noTx error) (pgx.Tx, error) {
	tx := txFromContext(ctx)
	if tx == nil {
		return nil, noTx
	}
	return tx, nil
}

// mapError translates lock and serialization failures into retryable
// concurrency errors. Other errors pass through unchanged.
func mapError(err error) error {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return err
	}
	switch pgErr.Code {
	case codeLockNotAvailable, codeSerializationFailure, codeDeadlockDetected:
		return apperrors.Concurrency(pgErr.Message, err)
	}
	return err
}

// pgCode returns the SQLSTATE of err, or ""
func pgCode(err error) string {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code
	}
	return ""
}
