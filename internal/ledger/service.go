package ledger

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/kislikjeka/pesaprime/pkg/logger"
	"github.com/kislikjeka/pesaprime/pkg/money"
)

// Service applies balance mutations to accounts. Every mutation locks the
// account row, updates balances and writes exactly one ledger entry in the
// same transaction.
type Service struct {
	repo            Repository
	committer       *Committer
	defaultCurrency string
	welcomeBonus    decimal.Decimal
	now             func() time.Time
	logger          *logger.Logger
}

// Config holds optional settings for the ledger service
type Config struct {
	MaxAttempts     int
	DefaultCurrency string
	WelcomeBonus    decimal.Decimal
	Events          EventPublisher
	Metrics         Metrics
	Clock           func() time.Time
	Logger          *logger.Logger
}

// NewService creates a new ledger service
func NewService(repo Repository, config *Config) *Service {
	if config == nil {
		config = &Config{}
	}

	s := &Service{
		repo:            repo,
		defaultCurrency: "USD",
		welcomeBonus:    config.WelcomeBonus,
		now:             time.Now,
		logger:          logger.OrNop(config.Logger).WithField("component", "ledger"),
	}
	if config.DefaultCurrency != "" {
		s.defaultCurrency = strings.ToUpper(config.DefaultCurrency)
	}
	if config.Clock != nil {
		s.now = config.Clock
	}
	s.committer = NewCommitter(repo, config.MaxAttempts, config.Events, config.Metrics, config.Logger)

	return s
}

// DepositRequest credits external funds to an account
type DepositRequest struct {
	AccountID   uuid.UUID
	Amount      decimal.Decimal
	Method      Method
	Description string
}

// WithdrawalRequest reserves funds for a payout
type WithdrawalRequest struct {
	AccountID   uuid.UUID
	Amount      decimal.Decimal
	Method      Method
	Destination string
}

// AdjustRequest is an administrative signed correction to available funds
type AdjustRequest struct {
	AccountID uuid.UUID
	Amount    decimal.Decimal
	Reason    string
}

// InTx runs fn inside one retried transaction. Other packages use it with
// LockAccount and Post to combine their own writes with a balance mutation.
func (s *Service) InTx(ctx context.Context, op string, fn func(ctx context.Context) error) error {
	return s.committer.InTx(ctx, op, fn)
}

// LockAccount locks the account inside the transaction carried by ctx,
// creating it on first use.
func (s *Service) LockAccount(ctx context.Context, accountID uuid.UUID) (*Account, error) {
	if accountID == uuid.Nil {
		return nil, ErrAccountRequired
	}
	return s.repo.LockAccount(ctx, accountID, s.defaultCurrency)
}

// Post persists the mutated account together with its entry. The account
// must have been obtained from LockAccount in the same transaction.
func (s *Service) Post(ctx context.Context, account *Account, entry *Entry) error {
	if err := account.Validate(); err != nil {
		return fmt.Errorf("%w: account %s", err, account.ID)
	}

	now := s.now()
	entry.AccountID = account.ID
	if entry.ID == uuid.Nil {
		entry.ID = uuid.New()
	}
	if entry.Reference == "" {
		entry.Reference = NewReference()
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = now
	}
	entry.UpdatedAt = now

	if err := entry.Validate(); err != nil {
		return err
	}

	account.UpdatedAt = now
	if err := s.repo.UpdateAccount(ctx, account); err != nil {
		return fmt.Errorf("failed to update account: %w", err)
	}

	if err := s.repo.CreateEntry(ctx, entry); err != nil {
		return fmt.Errorf("failed to create %s entry: %w", entry.Kind, err)
	}

	raise(ctx, Event{Type: EventEntryPosted, Entry: *entry.Clone(), OccurredAt: now})
	return nil
}

// Deposit credits available funds and records a completed deposit
func (s *Service) Deposit(ctx context.Context, req DepositRequest) (*Entry, error) {
	if err := checkAmount(req.Amount); err != nil {
		return nil, err
	}
	method, err := externalMethod(req.Method)
	if err != nil {
		return nil, err
	}

	description := req.Description
	if description == "" {
		description = fmt.Sprintf("Deposit via %s", method)
	}

	var entry *Entry
	err = s.InTx(ctx, "deposit", func(ctx context.Context) error {
		account, err := s.LockAccount(ctx, req.AccountID)
		if err != nil {
			return err
		}

		account.Available = account.Available.Add(req.Amount)

		entry = &Entry{
			Kind:        EntryKindDeposit,
			Method:      method,
			Amount:      req.Amount,
			Status:      EntryStatusCompleted,
			Description: description,
		}
		return s.Post(ctx, account, entry)
	})
	if err != nil {
		return nil, err
	}

	s.logger.WithContext(ctx).Info("deposit recorded", "account_id", req.AccountID, "amount", money.Format(req.Amount), "reference", entry.Reference)
	return entry, nil
}

// RequestWithdrawal reserves funds immediately and records a pending
// withdrawal for the approval workflow.
func (s *Service) RequestWithdrawal(ctx context.Context, req WithdrawalRequest) (*Entry, error) {
	if err := checkAmount(req.Amount); err != nil {
		return nil, err
	}
	method, err := externalMethod(req.Method)
	if err != nil {
		return nil, err
	}
	destination := strings.TrimSpace(req.Destination)
	if destination == "" {
		return nil, ErrDestinationMissing
	}

	var entry *Entry
	err = s.InTx(ctx, "withdrawal_request", func(ctx context.Context) error {
		account, err := s.LockAccount(ctx, req.AccountID)
		if err != nil {
			return err
		}

		if account.Available.LessThan(req.Amount) {
			return fmt.Errorf("%w: requested %s, available %s", ErrInsufficientFunds,
				money.Format(req.Amount), money.Format(account.Available))
		}
		account.Available = account.Available.Sub(req.Amount)

		entry = &Entry{
			Kind:        EntryKindWithdrawal,
			Method:      method,
			Amount:      req.Amount.Neg(),
			Status:      EntryStatusPending,
			Description: fmt.Sprintf("Withdrawal via %s", method),
			Destination: destination,
		}
		return s.Post(ctx, account, entry)
	})
	if err != nil {
		return nil, err
	}

	s.logger.WithContext(ctx).Info("withdrawal requested", "account_id", req.AccountID, "amount", money.Format(req.Amount), "reference", entry.Reference)
	return entry, nil
}

// ApproveWithdrawal moves a pending withdrawal to approved
func (s *Service) ApproveWithdrawal(ctx context.Context, entryID uuid.UUID) (*Entry, error) {
	return s.transitionWithdrawal(ctx, entryID, EntryStatusApproved, "")
}

// CompleteWithdrawal marks a pending or approved withdrawal as paid out
func (s *Service) CompleteWithdrawal(ctx context.Context, entryID uuid.UUID) (*Entry, error) {
	return s.transitionWithdrawal(ctx, entryID, EntryStatusCompleted, "")
}

// RejectWithdrawal rejects a pending or approved withdrawal and returns the
// reserved funds to available in the same transaction.
func (s *Service) RejectWithdrawal(ctx context.Context, entryID uuid.UUID, reason string) (*Entry, error) {
	return s.transitionWithdrawal(ctx, entryID, EntryStatusRejected, reason)
}

func (s *Service) transitionWithdrawal(ctx context.Context, entryID uuid.UUID, next EntryStatus, reason string) (*Entry, error) {
	var entry *Entry
	err := s.InTx(ctx, "withdrawal_"+string(next), func(ctx context.Context) error {
		peek, err := s.repo.GetEntry(ctx, entryID)
		if err != nil {
			return err
		}
		if peek.Kind != EntryKindWithdrawal {
			return fmt.Errorf("%w: %s is a %s entry", ErrNotWithdrawal, entryID, peek.Kind)
		}

		// Account first, then the entry row
		account, err := s.LockAccount(ctx, peek.AccountID)
		if err != nil {
			return err
		}
		entry, err = s.repo.GetEntryForUpdate(ctx, entryID)
		if err != nil {
			return err
		}

		if !entry.Status.CanTransitionTo(next) {
			return fmt.Errorf("%w: %s → %s", ErrInvalidTransition, entry.Status, next)
		}

		now := s.now()
		entry.Status = next
		entry.UpdatedAt = now
		if err := s.repo.UpdateEntryStatus(ctx, entry); err != nil {
			return fmt.Errorf("failed to update entry status: %w", err)
		}

		if next == EntryStatusRejected {
			account.Available = account.Available.Add(entry.Amount.Abs())
			account.UpdatedAt = now
			if err := s.repo.UpdateAccount(ctx, account); err != nil {
				return fmt.Errorf("failed to refund withdrawal: %w", err)
			}
		}

		raise(ctx, Event{Type: EventEntryStatusChanged, Entry: *entry.Clone(), Reason: reason, OccurredAt: now})
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logger.WithContext(ctx).Info("withdrawal status changed", "entry_id", entryID, "status", next, "reason", reason)
	return entry, nil
}

// Adjust applies an administrative signed correction to available funds
func (s *Service) Adjust(ctx context.Context, req AdjustRequest) (*Entry, error) {
	if req.Amount.IsZero() || !money.Round(req.Amount).Equal(req.Amount) {
		return nil, ErrInvalidAmount
	}
	reason := strings.TrimSpace(req.Reason)
	if reason == "" {
		return nil, ErrReasonRequired
	}

	var entry *Entry
	err := s.InTx(ctx, "adjustment", func(ctx context.Context) error {
		account, err := s.LockAccount(ctx, req.AccountID)
		if err != nil {
			return err
		}

		next := account.Available.Add(req.Amount)
		if next.Sign() < 0 {
			return fmt.Errorf("%w: adjustment %s, available %s", ErrInsufficientFunds,
				money.Format(req.Amount), money.Format(account.Available))
		}
		account.Available = next

		entry = &Entry{
			Kind:        EntryKindAdjustment,
			Method:      MethodInternal,
			Amount:      req.Amount,
			Status:      EntryStatusCompleted,
			Description: reason,
		}
		return s.Post(ctx, account, entry)
	})
	if err != nil {
		return nil, err
	}

	s.logger.WithContext(ctx).Warn("balance adjusted", "account_id", req.AccountID, "amount", money.Format(req.Amount), "reason", reason)
	return entry, nil
}

// SetDisplayCurrency stores the account's preferred display currency.
// The code must already be validated against the currency reference.
func (s *Service) SetDisplayCurrency(ctx context.Context, accountID uuid.UUID, code string) (*Account, error) {
	code = strings.ToUpper(strings.TrimSpace(code))
	if len(code) != 3 {
		return nil, fmt.Errorf("%w: %q", ErrInvalidCurrency, code)
	}

	var account *Account
	err := s.InTx(ctx, "display_currency", func(ctx context.Context) error {
		var err error
		account, err = s.LockAccount(ctx, accountID)
		if err != nil {
			return err
		}
		account.DisplayCurrency = code
		account.UpdatedAt = s.now()
		return s.repo.UpdateAccount(ctx, account)
	})
	if err != nil {
		return nil, err
	}
	return account, nil
}

// GetAccount returns the account, creating it with zero balances on first access
func (s *Service) GetAccount(ctx context.Context, accountID uuid.UUID) (*Account, error) {
	if accountID == uuid.Nil {
		return nil, ErrAccountRequired
	}
	return s.repo.EnsureAccount(ctx, accountID, s.defaultCurrency)
}

// GetEntry retrieves an entry by ID
func (s *Service) GetEntry(ctx context.Context, id uuid.UUID) (*Entry, error) {
	return s.repo.GetEntry(ctx, id)
}

// ListEntries lists entries with filters, newest first
func (s *Service) ListEntries(ctx context.Context, filters EntryFilters) ([]*Entry, error) {
	return s.repo.ListEntries(ctx, filters)
}

// Reconcile recomputes the balance totals from the entry log and compares
// them against the stored account. Both reads happen under the account lock
// so a concurrent commit cannot fall between them.
func (s *Service) Reconcile(ctx context.Context, accountID uuid.UUID) (*Reconciliation, error) {
	var (
		account *Account
		totals  *EntryTotals
	)
	err := s.InTx(ctx, "reconcile", func(ctx context.Context) error {
		var err error
		if account, err = s.LockAccount(ctx, accountID); err != nil {
			return err
		}
		if totals, err = s.repo.SumEntries(ctx, accountID); err != nil {
			return fmt.Errorf("failed to sum entries: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	r := &Reconciliation{
		AccountID:   accountID,
		StoredTotal: account.Total(),
		EntryTotal:  totals.Effect,
		StoredBonus: account.Bonus,
		EntryBonus:  totals.Bonus,
		CheckedAt:   s.now(),
	}
	r.Balanced = r.StoredTotal.Equal(r.EntryTotal) && r.StoredBonus.Equal(r.EntryBonus)

	if !r.Balanced {
		s.logger.WithContext(ctx).Error("ledger drift detected",
			"account_id", accountID,
			"stored_total", r.StoredTotal.String(),
			"entry_total", r.EntryTotal.String(),
			"stored_bonus", r.StoredBonus.String(),
			"entry_bonus", r.EntryBonus.String(),
		)
	}

	return r, nil
}

// checkAmount requires a positive amount with at most 2 decimal places
func checkAmount(amount decimal.Decimal) error {
	if amount.Sign() <= 0 || !money.Round(amount).Equal(amount) {
		return fmt.Errorf("%w: %s", ErrInvalidAmount, amount.String())
	}
	return nil
}

func externalMethod(m Method) (Method, error) {
	if m == "" {
		return MethodMobileMoney, nil
	}
	if !m.IsExternal() {
		return "", fmt.Errorf("%w: %q", ErrInvalidMethod, m)
	}
	return m, nil
}
