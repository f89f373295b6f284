package investment

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/kislikjeka/pesaprime/internal/ledger"
	"github.com/kislikjeka/pesaprime/internal/platform/asset"
	"github.com/kislikjeka/pesaprime/pkg/logger"
	"github.com/kislikjeka/pesaprime/pkg/money"
)

// Service owns the position lifecycle: open, settle and administrative cancel.
// Each operation locks the owning account before the position row.
type Service struct {
	repo    Repository
	ledger  Ledger
	assets  AssetCatalog
	returns ReturnModel
	now     func() time.Time
	logger  *logger.Logger
}

// Config holds optional settings for the investment service
type Config struct {
	Returns ReturnModel
	Clock   func() time.Time
	Logger  *logger.Logger
}

// NewService creates a new investment service
func NewService(repo Repository, ledgerSvc Ledger, assets AssetCatalog, config *Config) *Service {
	if config == nil {
		config = &Config{}
	}

	s := &Service{
		repo:    repo,
		ledger:  ledgerSvc,
		assets:  assets,
		returns: config.Returns,
		now:     time.Now,
		logger:  logger.OrNop(config.Logger).WithField("component", "investment"),
	}
	if s.returns == nil {
		s.returns = DefaultReturnModel()
	}
	if config.Clock != nil {
		s.now = config.Clock
	}

	return s
}

// OpenRequest opens a position in an asset
type OpenRequest struct {
	AccountID     uuid.UUID
	AssetID       uuid.UUID
	Amount        decimal.Decimal
	DurationHours int
}

// OpenPosition moves Amount from available to locked and starts a position.
// Input is validated before any lock is taken.
func (s *Service) OpenPosition(ctx context.Context, req OpenRequest) (*Position, error) {
	if req.Amount.Sign() <= 0 || !money.Round(req.Amount).Equal(req.Amount) {
		return nil, fmt.Errorf("%w: %s", ErrInvalidAmount, req.Amount.String())
	}

	a, err := s.assets.GetAsset(ctx, req.AssetID)
	if err != nil {
		if errors.Is(err, asset.ErrAssetNotFound) {
			return nil, fmt.Errorf("%w: %s", ErrUnknownAsset, req.AssetID)
		}
		return nil, fmt.Errorf("failed to load asset: %w", err)
	}
	if !a.IsActive {
		return nil, fmt.Errorf("%w: %s", asset.ErrAssetInactive, a.Symbol)
	}
	if err := a.CheckAmount(req.Amount); err != nil {
		return nil, err
	}
	rate, err := a.ReturnRate(req.DurationHours)
	if err != nil {
		if errors.Is(err, asset.ErrMissingReturnRate) {
			s.logger.WithContext(ctx).WithError(err).Error("asset rate table incomplete", "asset_id", a.ID)
		}
		return nil, err
	}

	var position *Position
	err = s.ledger.InTx(ctx, "position_open", func(ctx context.Context) error {
		account, err := s.ledger.LockAccount(ctx, req.AccountID)
		if err != nil {
			return err
		}

		if account.Available.LessThan(req.Amount) {
			return fmt.Errorf("%w: requested %s, available %s", ledger.ErrInsufficientFunds,
				money.Format(req.Amount), money.Format(account.Available))
		}
		account.Available = account.Available.Sub(req.Amount)
		account.Locked = account.Locked.Add(req.Amount)

		now := s.now()
		position = &Position{
			ID:                 uuid.New(),
			AccountID:          req.AccountID,
			AssetID:            a.ID,
			AssetSymbol:        a.Symbol,
			InvestedAmount:     req.Amount,
			DurationHours:      req.DurationHours,
			StartTime:          now,
			EndTime:            now.Add(time.Duration(req.DurationHours) * time.Hour),
			ExpectedReturnRate: rate,
			ActualProfitLoss:   decimal.Zero,
			Status:             StatusActive,
			CreatedAt:          now,
			UpdatedAt:          now,
		}
		if err := s.repo.Create(ctx, position); err != nil {
			return fmt.Errorf("failed to create position: %w", err)
		}

		positionID := position.ID
		return s.ledger.Post(ctx, account, &ledger.Entry{
			Kind:        ledger.EntryKindInvestment,
			Method:      ledger.MethodInternal,
			Amount:      req.Amount.Neg(),
			Status:      ledger.EntryStatusCompleted,
			Description: fmt.Sprintf("Investment in %s (%dh)", a.Symbol, req.DurationHours),
			PositionID:  &positionID,
		})
	})
	if err != nil {
		return nil, err
	}

	s.logger.WithContext(ctx).Info("position opened",
		"position_id", position.ID,
		"account_id", req.AccountID,
		"asset", a.Symbol,
		"amount", money.Format(req.Amount),
		"duration_hours", req.DurationHours,
	)
	return position, nil
}

// Settle completes a matured active position exactly once. Settling an
// already completed position returns its stored result with Settled=false.
func (s *Service) Settle(ctx context.Context, positionID uuid.UUID) (*SettleResult, error) {
	var result *SettleResult
	err := s.ledger.InTx(ctx, "position_settle", func(ctx context.Context) error {
		result = nil

		peek, err := s.repo.GetByID(ctx, positionID)
		if err != nil {
			return err
		}

		account, err := s.ledger.LockAccount(ctx, peek.AccountID)
		if err != nil {
			return err
		}
		p, err := s.repo.GetForUpdate(ctx, positionID)
		if err != nil {
			return err
		}

		switch p.Status {
		case StatusCompleted:
			result = &SettleResult{Position: p, ProfitLoss: p.ActualProfitLoss}
			return nil
		case StatusCancelled:
			return fmt.Errorf("%w: %s", ErrPositionCancelled, p.ID)
		}

		now := s.now()
		if !p.IsMature(now) {
			return fmt.Errorf("%w: ends %s", ErrNotMature, p.EndTime.Format(time.RFC3339))
		}
		if account.Locked.LessThan(p.InvestedAmount) {
			return fmt.Errorf("%w: locked %s, principal %s", ErrLockedShortfall,
				money.Format(account.Locked), money.Format(p.InvestedAmount))
		}

		actual := p.ProfitLoss(s.returns.Factor(p))

		p.Status = StatusCompleted
		p.ActualProfitLoss = actual
		p.CompletedAt = &now
		p.UpdatedAt = now

		ok, err := s.repo.Complete(ctx, p)
		if err != nil {
			return fmt.Errorf("failed to complete position: %w", err)
		}
		if !ok {
			stored, err := s.repo.GetByID(ctx, positionID)
			if err != nil {
				return err
			}
			result = &SettleResult{Position: stored, ProfitLoss: stored.ActualProfitLoss}
			return nil
		}

		account.Locked = account.Locked.Sub(p.InvestedAmount)
		account.Available = account.Available.Add(p.InvestedAmount).Add(actual)

		positionRef := p.ID
		if err := s.ledger.Post(ctx, account, &ledger.Entry{
			Kind:        ledger.EntryKindProfit,
			Method:      ledger.MethodInternal,
			Amount:      actual,
			Status:      ledger.EntryStatusCompleted,
			Description: fmt.Sprintf("Return on %s (%dh)", p.AssetSymbol, p.DurationHours),
			PositionID:  &positionRef,
		}); err != nil {
			return err
		}

		result = &SettleResult{Position: p, ProfitLoss: actual, Settled: true}
		return nil
	})
	if err != nil {
		return nil, err
	}

	if result.Settled {
		s.logger.WithContext(ctx).Info("position settled",
			"position_id", positionID,
			"account_id", result.Position.AccountID,
			"profit_loss", money.Format(result.ProfitLoss),
		)
	}
	return result, nil
}

// Cancel reverses an active position administratively: the principal is
// returned to available and the position never settles.
func (s *Service) Cancel(ctx context.Context, positionID uuid.UUID, reason string) (*Position, error) {
	reason = strings.TrimSpace(reason)
	if reason == "" {
		return nil, ErrReasonRequired
	}

	var position *Position
	err := s.ledger.InTx(ctx, "position_cancel", func(ctx context.Context) error {
		peek, err := s.repo.GetByID(ctx, positionID)
		if err != nil {
			return err
		}

		account, err := s.ledger.LockAccount(ctx, peek.AccountID)
		if err != nil {
			return err
		}
		p, err := s.repo.GetForUpdate(ctx, positionID)
		if err != nil {
			return err
		}
		if p.Status != StatusActive {
			return fmt.Errorf("%w: status %s", ErrPositionNotActive, p.Status)
		}
		if account.Locked.LessThan(p.InvestedAmount) {
			return fmt.Errorf("%w: locked %s, principal %s", ErrLockedShortfall,
				money.Format(account.Locked), money.Format(p.InvestedAmount))
		}

		now := s.now()
		p.Status = StatusCancelled
		p.CancelledAt = &now
		p.UpdatedAt = now

		ok, err := s.repo.Cancel(ctx, p)
		if err != nil {
			return fmt.Errorf("failed to cancel position: %w", err)
		}
		if !ok {
			return ErrPositionNotActive
		}

		account.Locked = account.Locked.Sub(p.InvestedAmount)
		account.Available = account.Available.Add(p.InvestedAmount)

		positionRef := p.ID
		position = p
		return s.ledger.Post(ctx, account, &ledger.Entry{
			Kind:        ledger.EntryKindInvestment,
			Method:      ledger.MethodInternal,
			Amount:      p.InvestedAmount,
			Status:      ledger.EntryStatusCompleted,
			Description: fmt.Sprintf("Cancelled %s position: %s", p.AssetSymbol, reason),
			PositionID:  &positionRef,
		})
	})
	if err != nil {
		return nil, err
	}

	s.logger.WithContext(ctx).Warn("position cancelled", "position_id", positionID, "reason", reason)
	return position, nil
}

// GetPosition retrieves a position by ID
func (s *Service) GetPosition(ctx context.Context, id uuid.UUID) (*Position, error) {
	return s.repo.GetByID(ctx, id)
}

// ListPositions lists positions with filters, newest first
func (s *Service) ListPositions(ctx context.Context, filters Filters) ([]*Position, error) {
	return s.repo.List(ctx, filters)
}

// ListMatured returns up to limit active positions that have reached their end time
func (s *Service) ListMatured(ctx context.Context, limit int) ([]*Position, error) {
	return s.repo.ListMatured(ctx, s.now(), limit)
}

// Now returns the service clock's current time
func (s *Service) Now() time.Time {
	return s.now()
}

// ReconcileLocked checks that the account's locked balance equals the
// principal of its active positions, reading both under the account lock.
func (s *Service) ReconcileLocked(ctx context.Context, accountID uuid.UUID) (*LockedReconciliation, error) {
	var (
		account   *ledger.Account
		principal decimal.Decimal
	)
	err := s.ledger.InTx(ctx, "reconcile_locked", func(ctx context.Context) error {
		var err error
		if account, err = s.ledger.LockAccount(ctx, accountID); err != nil {
			return err
		}
		if principal, err = s.repo.SumActivePrincipal(ctx, accountID); err != nil {
			return fmt.Errorf("failed to sum active principal: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	r := &LockedReconciliation{
		AccountID:       accountID,
		StoredLocked:    account.Locked,
		ActivePrincipal: principal,
		Balanced:        account.Locked.Equal(principal),
	}
	if !r.Balanced {
		s.logger.WithContext(ctx).Error("locked balance drift detected",
			"account_id", accountID,
			"locked", account.Locked.String(),
			"active_principal", principal.String(),
		)
	}
	return r, nil
}
