package ledger

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/kislikjeka/pesaprime/pkg/money"
)

// GrantBonusRequest offers a claimable bonus to an account
type GrantBonusRequest struct {
	AccountID   uuid.UUID
	Key         string // idempotency key, unique per account; generated when empty
	Title       string
	Description string
	Kind        BonusKind
	Amount      decimal.Decimal
	ExpiresAt   *time.Time
}

// GrantBonus creates an unclaimed grant. Granting an existing key returns
// the existing grant unchanged.
func (s *Service) GrantBonus(ctx context.Context, req GrantBonusRequest) (*Bonus, error) {
	title := strings.TrimSpace(req.Title)
	if title == "" || !req.Kind.IsValid() || checkAmount(req.Amount) != nil {
		return nil, ErrBonusInvalid
	}

	key := strings.TrimSpace(req.Key)
	if key == "" {
		key = uuid.NewString()
	}

	var bonus *Bonus
	err := s.InTx(ctx, "bonus_grant", func(ctx context.Context) error {
		if _, err := s.LockAccount(ctx, req.AccountID); err != nil {
			return err
		}

		existing, err := s.repo.GetBonusByKey(ctx, req.AccountID, key)
		if err == nil {
			bonus = existing
			return nil
		}
		if !errors.Is(err, ErrBonusNotFound) {
			return err
		}

		bonus = &Bonus{
			ID:          uuid.New(),
			AccountID:   req.AccountID,
			Key:         key,
			Title:       title,
			Description: req.Description,
			Kind:        req.Kind,
			Amount:      req.Amount,
			ExpiresAt:   req.ExpiresAt,
			CreatedAt:   s.now(),
		}
		return s.repo.CreateBonus(ctx, bonus)
	})
	if err != nil {
		return nil, err
	}

	return bonus, nil
}

// ClaimBonus credits a grant to the account's bonus balance exactly once.
// A second claim of the same grant fails with ErrBonusAlreadyClaimed and
// credits nothing.
func (s *Service) ClaimBonus(ctx context.Context, accountID, bonusID uuid.UUID) (*Entry, error) {
	var entry *Entry
	err := s.InTx(ctx, "bonus_claim", func(ctx context.Context) error {
		account, err := s.LockAccount(ctx, accountID)
		if err != nil {
			return err
		}

		bonus, err := s.repo.GetBonusForUpdate(ctx, bonusID)
		if err != nil {
			return err
		}
		if bonus.AccountID != accountID {
			return ErrBonusNotFound
		}
		if bonus.Claimed {
			return fmt.Errorf("%w: %s", ErrBonusAlreadyClaimed, bonus.Title)
		}

		now := s.now()
		if bonus.IsExpired(now) {
			return fmt.Errorf("%w: %s", ErrBonusExpired, bonus.Title)
		}

		bonus.Claimed = true
		bonus.ClaimedAt = &now
		if err := s.repo.UpdateBonus(ctx, bonus); err != nil {
			return fmt.Errorf("failed to mark bonus claimed: %w", err)
		}

		account.Bonus = account.Bonus.Add(bonus.Amount)
		account.BonusClaimed = account.BonusClaimed.Add(bonus.Amount)

		bonusRef := bonus.ID
		entry = &Entry{
			Kind:        EntryKindBonus,
			Method:      MethodInternal,
			Amount:      bonus.Amount,
			Status:      EntryStatusCompleted,
			Description: bonus.Title,
			BonusID:     &bonusRef,
		}
		return s.Post(ctx, account, entry)
	})
	if err != nil {
		return nil, err
	}

	s.logger.WithContext(ctx).Info("bonus claimed", "account_id", accountID, "bonus_id", bonusID, "amount", money.Format(entry.Amount))
	return entry, nil
}

// ClaimWelcomeBonus grants the account's welcome bonus if needed and claims it
func (s *Service) ClaimWelcomeBonus(ctx context.Context, accountID uuid.UUID) (*Entry, error) {
	if s.welcomeBonus.Sign() <= 0 {
		return nil, ErrWelcomeBonusOff
	}

	bonus, err := s.GrantBonus(ctx, GrantBonusRequest{
		AccountID:   accountID,
		Key:         WelcomeBonusKey,
		Title:       "Welcome Bonus",
		Description: "One-time bonus for new accounts",
		Kind:        BonusKindWelcome,
		Amount:      s.welcomeBonus,
	})
	if err != nil {
		return nil, err
	}

	return s.ClaimBonus(ctx, accountID, bonus.ID)
}

// ListBonuses lists an account's grants, newest first
func (s *Service) ListBonuses(ctx context.Context, accountID uuid.UUID, onlyUnclaimed bool) ([]*Bonus, error) {
	return s.repo.ListBonuses(ctx, BonusFilters{AccountID: accountID, OnlyUnclaimed: onlyUnclaimed})
}
