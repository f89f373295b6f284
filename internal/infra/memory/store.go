// Package memory is an in-process implementation of the storage ports. It
// honours the same transaction, row-lock and uniqueness contracts as the
// PostgreSQL adapters and backs unit tests and the memory storage driver.
package memory

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/kislikjeka/pesaprime/internal/investment"
	"github.com/kislikjeka/pesaprime/internal/ledger"
	"github.com/kislikjeka/pesaprime/internal/platform/asset"
	"github.com/kislikjeka/pesaprime/internal/platform/currency"
	apperrors "github.com/kislikjeka/pesaprime/internal/shared/errors"
)

// DefaultLockTimeout bounds how long a transaction waits for a row lock
const DefaultLockTimeout = 2 * time.Second

type ctxKey string

const txContextKey ctxKey = "memory_tx"

// Store holds all committed state behind one RWMutex. Row locks are
// per-key channels of capacity one, dropped once no transaction holds or
// waits for them.
type Store struct {
	mu         sync.RWMutex
	accounts   map[uuid.UUID]*ledger.Account
	entries    map[uuid.UUID]*ledger.Entry
	entryOrder []uuid.UUID
	bonuses    map[uuid.UUID]*ledger.Bonus
	positions  map[uuid.UUID]*investment.Position
	assets     map[uuid.UUID]*asset.Asset
	currencies map[string]currency.Currency

	locksMu     sync.Mutex
	locks       map[string]*rowLock
	lockTimeout time.Duration
}

// New creates an empty store seeded with the default currencies
func New(lockTimeout time.Duration) *Store {
	if lockTimeout <= 0 {
		lockTimeout = DefaultLockTimeout
	}
	s := &Store{
		accounts:    make(map[uuid.UUID]*ledger.Account),
		entries:     make(map[uuid.UUID]*ledger.Entry),
		bonuses:     make(map[uuid.UUID]*ledger.Bonus),
		positions:   make(map[uuid.UUID]*investment.Position),
		assets:      make(map[uuid.UUID]*asset.Asset),
		currencies:  make(map[string]currency.Currency),
		locks:       make(map[string]*rowLock),
		lockTimeout: lockTimeout,
	}
	for _, c := range currency.Defaults() {
		s.currencies[c.Code] = c
	}
	return s
}

// Ledger returns the ledger repository view of the store
func (s *Store) Ledger() *LedgerRepository { return &LedgerRepository{s: s} }

// Positions returns the position repository view of the store
func (s *Store) Positions() *PositionRepository { return &PositionRepository{s: s} }

// Assets returns the asset repository view of the store
func (s *Store) Assets() *AssetRepository { return &AssetRepository{s: s} }

// Currencies returns the currency repository view of the store
func (s *Store) Currencies() *CurrencyRepository { return &CurrencyRepository{s: s} }

// rowLock is a binary semaphore plus the number of holders and waiters
type rowLock struct {
	ch   chan struct{}
	refs int
}

// txState buffers the writes of one transaction until commit
type txState struct {
	accounts   map[uuid.UUID]*ledger.Account
	entries    map[uuid.UUID]*ledger.Entry
	newEntries []uuid.UUID
	bonuses    map[uuid.UUID]*ledger.Bonus
	positions  map[uuid.UUID]*investment.Position
	held       map[string]*rowLock
	done       bool
}

func newTxState() *txState {
	return &txState{
		accounts:  make(map[uuid.UUID]*ledger.Account),
		entries:   make(map[uuid.UUID]*ledger.Entry),
		bonuses:   make(map[uuid.UUID]*ledger.Bonus),
		positions: make(map[uuid.UUID]*investment.Position),
		held:      make(map[string]*rowLock),
	}
}

// BeginTx starts a new transaction and stores it in the context
func (s *Store) BeginTx(ctx context.Context) (context.Context, error) {
	if tx := txFrom(ctx); tx != nil && !tx.done {
		return ctx, fmt.Errorf("transaction already in progress")
	}
	return context.WithValue(ctx, txContextKey, newTxState()), nil
}

// CommitTx applies the buffered writes and releases the row locks
func (s *Store) CommitTx(ctx context.Context) error {
	tx := txFrom(ctx)
	if tx == nil || tx.done {
		return fmt.Errorf("no transaction in context")
	}

	s.mu.Lock()
	for id, a := range tx.accounts {
		s.accounts[id] = a
	}
	for id, e := range tx.entries {
		s.entries[id] = e
	}
	s.entryOrder = append(s.entryOrder, tx.newEntries...)
	for id, b := range tx.bonuses {
		s.bonuses[id] = b
	}
	for id, p := range tx.positions {
		s.positions[id] = p
	}
	s.mu.Unlock()

	s.finish(tx)
	return nil
}

// RollbackTx discards the buffered writes and releases the row locks
func (s *Store) RollbackTx(ctx context.Context) error {
	tx := txFrom(ctx)
	if tx == nil {
		return fmt.Errorf("no transaction in context")
	}
	if tx.done {
		return nil
	}
	s.finish(tx)
	return nil
}

func (s *Store) finish(tx *txState) {
	tx.done = true
	for key, l := range tx.held {
		<-l.ch
		delete(tx.held, key)
		s.release(key, l)
	}
}

// lock acquires the row lock for key inside tx, waiting at most lockTimeout
func (s *Store) lock(ctx context.Context, tx *txState, key string) error {
	if _, ok := tx.held[key]; ok {
		return nil
	}

	s.locksMu.Lock()
	l, ok := s.locks[key]
	if !ok {
		l = &rowLock{ch: make(chan struct{}, 1)}
		s.locks[key] = l
	}
	l.refs++
	s.locksMu.Unlock()

	timer := time.NewTimer(s.lockTimeout)
	defer timer.Stop()

	select {
	case l.ch <- struct{}{}:
		tx.held[key] = l
		return nil
	case <-timer.C:
		s.release(key, l)
		return apperrors.Concurrency(fmt.Sprintf("lock wait timeout on %s", key), nil)
	case <-ctx.Done():
		s.release(key, l)
		return apperrors.Concurrency(fmt.Sprintf("lock wait cancelled on %s", key), ctx.Err())
	}
}

// release drops one reference and forgets the lock when it is unused
func (s *Store) release(key string, l *rowLock) {
	s.locksMu.Lock()
	defer s.locksMu.Unlock()
	l.refs--
	if l.refs == 0 && s.locks[key] == l {
		delete(s.locks, key)
	}
}

func txFrom(ctx context.Context) *txState {
	if tx, ok := ctx.Value(txContextKey).(*txState); ok {
		return tx
	}
	return nil
}

func activeTx(ctx context.Context) (*txState, error) {
	tx := txFrom(ctx)
	if tx == nil || tx.done {
		return nil, ledger.ErrNoTransaction
	}
	return tx, nil
}
