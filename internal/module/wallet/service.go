package wallet

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/kislikjeka/pesaprime/internal/investment"
	"github.com/kislikjeka/pesaprime/internal/ledger"
	"github.com/kislikjeka/pesaprime/internal/platform/currency"
	"github.com/kislikjeka/pesaprime/internal/settlement"
	"github.com/kislikjeka/pesaprime/pkg/logger"
)

// DefaultHistoryLimit caps history pages when the caller gives no limit
const DefaultHistoryLimit = 50

// Service is the boundary between display-currency requests and the
// canonical ledger. It converts inbound amounts to USD before any
// mutation and converts outbound amounts back for display.
type Service struct {
	ledger     *ledger.Service
	positions  *investment.Service
	engine     *settlement.Engine
	currencies *currency.Resolver
	logger     *logger.Logger
}

// NewService creates the wallet facade
func NewService(
	ledgerSvc *ledger.Service,
	positions *investment.Service,
	engine *settlement.Engine,
	currencies *currency.Resolver,
	log *logger.Logger,
) *Service {
	return &Service{
		ledger:     ledgerSvc,
		positions:  positions,
		engine:     engine,
		currencies: currencies,
		logger:     logger.OrNop(log).WithField("component", "wallet"),
	}
}

// Overview returns the account's balances in its display currency
func (s *Service) Overview(ctx context.Context, accountID uuid.UUID) (*Overview, error) {
	account, err := s.ledger.GetAccount(ctx, accountID)
	if err != nil {
		return nil, err
	}
	return s.overview(ctx, account)
}

func (s *Service) overview(ctx context.Context, account *ledger.Account) (*Overview, error) {
	cur, err := s.currencies.Resolve(ctx, account.DisplayCurrency)
	if err != nil {
		return nil, err
	}

	o := &Overview{AccountID: account.ID, Currency: cur, Canonical: account}
	for _, f := range []struct {
		dst *decimal.Decimal
		src decimal.Decimal
	}{
		{&o.Available, account.Available},
		{&o.Locked, account.Locked},
		{&o.Bonus, account.Bonus},
		{&o.BonusClaimed, account.BonusClaimed},
		{&o.Total, account.Total()},
	} {
		if *f.dst, err = currency.ToDisplay(f.src, cur); err != nil {
			return nil, err
		}
	}
	return o, nil
}

// Deposit converts the amount to USD and credits it
func (s *Service) Deposit(ctx context.Context, in DepositInput) (*EntryView, error) {
	cur, amount, err := s.toCanonical(ctx, in.AccountID, in.Currency, in.Amount)
	if err != nil {
		return nil, err
	}

	entry, err := s.ledger.Deposit(ctx, ledger.DepositRequest{
		AccountID:   in.AccountID,
		Amount:      amount,
		Method:      in.Method,
		Description: in.Description,
	})
	if err != nil {
		return nil, err
	}
	return s.entryView(entry, cur)
}

// Withdraw converts the amount to USD and reserves it for payout
func (s *Service) Withdraw(ctx context.Context, in WithdrawInput) (*EntryView, error) {
	cur, amount, err := s.toCanonical(ctx, in.AccountID, in.Currency, in.Amount)
	if err != nil {
		return nil, err
	}

	entry, err := s.ledger.RequestWithdrawal(ctx, ledger.WithdrawalRequest{
		AccountID:   in.AccountID,
		Amount:      amount,
		Method:      in.Method,
		Destination: in.Destination,
	})
	if err != nil {
		return nil, err
	}
	return s.entryView(entry, cur)
}

// Invest converts the amount to USD and opens a position
func (s *Service) Invest(ctx context.Context, in InvestInput) (*PositionView, error) {
	cur, amount, err := s.toCanonical(ctx, in.AccountID, in.Currency, in.Amount)
	if err != nil {
		return nil, err
	}

	p, err := s.positions.OpenPosition(ctx, investment.OpenRequest{
		AccountID:     in.AccountID,
		AssetID:       in.AssetID,
		Amount:        amount,
		DurationHours: in.DurationHours,
	})
	if err != nil {
		return nil, err
	}
	return s.positionView(p, cur)
}

// ClaimBonus claims a grant and returns the entry in display currency
func (s *Service) ClaimBonus(ctx context.Context, accountID, bonusID uuid.UUID) (*EntryView, error) {
	entry, err := s.ledger.ClaimBonus(ctx, accountID, bonusID)
	if err != nil {
		return nil, err
	}
	cur, err := s.displayCurrency(ctx, accountID)
	if err != nil {
		return nil, err
	}
	return s.entryView(entry, cur)
}

// ClaimWelcomeBonus claims the account's one-time welcome bonus
func (s *Service) ClaimWelcomeBonus(ctx context.Context, accountID uuid.UUID) (*EntryView, error) {
	entry, err := s.ledger.ClaimWelcomeBonus(ctx, accountID)
	if err != nil {
		return nil, err
	}
	cur, err := s.displayCurrency(ctx, accountID)
	if err != nil {
		return nil, err
	}
	return s.entryView(entry, cur)
}

// Bonuses lists the account's grants in display currency
func (s *Service) Bonuses(ctx context.Context, accountID uuid.UUID, onlyUnclaimed bool) ([]*BonusView, error) {
	cur, err := s.displayCurrency(ctx, accountID)
	if err != nil {
		return nil, err
	}

	bonuses, err := s.ledger.ListBonuses(ctx, accountID, onlyUnclaimed)
	if err != nil {
		return nil, err
	}

	views := make([]*BonusView, 0, len(bonuses))
	for _, b := range bonuses {
		amount, err := currency.ToDisplay(b.Amount, cur)
		if err != nil {
			return nil, err
		}
		views = append(views, &BonusView{Bonus: b, Amount: amount, Currency: cur.Code})
	}
	return views, nil
}

// SwitchCurrency changes the account's display currency. Unknown or
// inactive codes are rejected rather than falling back to USD.
func (s *Service) SwitchCurrency(ctx context.Context, accountID uuid.UUID, code string) (*Overview, error) {
	cur, err := s.currencies.Lookup(ctx, code)
	if err != nil {
		return nil, err
	}

	account, err := s.ledger.SetDisplayCurrency(ctx, accountID, cur.Code)
	if err != nil {
		return nil, err
	}
	return s.overview(ctx, account)
}

// Positions lists the account's positions, settling any that have matured
// before they are returned.
func (s *Service) Positions(ctx context.Context, accountID uuid.UUID, status *investment.Status) ([]*PositionView, error) {
	cur, err := s.displayCurrency(ctx, accountID)
	if err != nil {
		return nil, err
	}

	positions, err := s.positions.ListPositions(ctx, investment.Filters{AccountID: &accountID})
	if err != nil {
		return nil, err
	}

	now := s.positions.Now()
	views := make([]*PositionView, 0, len(positions))
	for _, p := range positions {
		if investment.IsMature(p, now) {
			res, err := s.engine.SettleIfMature(ctx, p.ID)
			if err != nil {
				s.logger.WithContext(ctx).WithError(err).Warn("lazy settlement failed", "position_id", p.ID)
			} else if res.Position != nil {
				p = res.Position
			}
		}
		if status != nil && p.Status != *status {
			continue
		}

		v, err := s.positionView(p, cur)
		if err != nil {
			return nil, err
		}
		views = append(views, v)
	}
	return views, nil
}

// Position returns one position of the account, settling it if it has matured
func (s *Service) Position(ctx context.Context, accountID, positionID uuid.UUID) (*PositionView, error) {
	p, err := s.positions.GetPosition(ctx, positionID)
	if err != nil {
		return nil, err
	}
	if p.AccountID != accountID {
		return nil, investment.ErrPositionNotFound
	}

	res, err := s.engine.SettleIfMature(ctx, positionID)
	if err != nil {
		return nil, err
	}

	cur, err := s.displayCurrency(ctx, accountID)
	if err != nil {
		return nil, err
	}
	return s.positionView(res.Position, cur)
}

// History lists the account's entries, newest first, in display currency
func (s *Service) History(ctx context.Context, accountID uuid.UUID, q HistoryQuery) ([]*EntryView, error) {
	cur, err := s.displayCurrency(ctx, accountID)
	if err != nil {
		return nil, err
	}

	limit := q.Limit
	if limit <= 0 {
		limit = DefaultHistoryLimit
	}

	entries, err := s.ledger.ListEntries(ctx, ledger.EntryFilters{
		AccountID: &accountID,
		Kind:      q.Kind,
		Limit:     limit,
		Offset:    q.Offset,
	})
	if err != nil {
		return nil, err
	}

	views := make([]*EntryView, 0, len(entries))
	for _, e := range entries {
		v, err := s.entryView(e, cur)
		if err != nil {
			return nil, err
		}
		views = append(views, v)
	}
	return views, nil
}

// toCanonical picks the request currency (strictly, when given) or the
// account's display currency, and converts amount into USD.
func (s *Service) toCanonical(ctx context.Context, accountID uuid.UUID, code string, amount decimal.Decimal) (currency.Currency, decimal.Decimal, error) {
	var cur currency.Currency
	var err error
	if code != "" {
		cur, err = s.currencies.Lookup(ctx, code)
	} else {
		cur, err = s.displayCurrency(ctx, accountID)
	}
	if err != nil {
		return currency.Currency{}, decimal.Zero, err
	}

	if amount.Sign() <= 0 {
		return currency.Currency{}, decimal.Zero, fmt.Errorf("%w: %s", ledger.ErrInvalidAmount, amount.String())
	}

	canonical, err := currency.ToCanonical(amount, cur)
	if err != nil {
		return currency.Currency{}, decimal.Zero, err
	}
	if canonical.Sign() <= 0 {
		return currency.Currency{}, decimal.Zero, fmt.Errorf("%w: %s %s is below 0.01 USD", ledger.ErrInvalidAmount, amount.String(), cur.Code)
	}
	return cur, canonical, nil
}

func (s *Service) displayCurrency(ctx context.Context, accountID uuid.UUID) (currency.Currency, error) {
	account, err := s.ledger.GetAccount(ctx, accountID)
	if err != nil {
		return currency.Currency{}, err
	}
	return s.currencies.Resolve(ctx, account.DisplayCurrency)
}

func (s *Service) entryView(e *ledger.Entry, cur currency.Currency) (*EntryView, error) {
	amount, err := currency.ToDisplay(e.Amount, cur)
	if err != nil {
		return nil, err
	}
	sign := "+"
	if !e.IsCredit() {
		sign = "-"
	}
	return &EntryView{Entry: e, Amount: amount, Sign: sign, Currency: cur.Code}, nil
}

func (s *Service) positionView(p *investment.Position, cur currency.Currency) (*PositionView, error) {
	invested, err := currency.ToDisplay(p.InvestedAmount, cur)
	if err != nil {
		return nil, err
	}
	expected, err := currency.ToDisplay(p.ExpectedProfit(), cur)
	if err != nil {
		return nil, err
	}
	actual, err := currency.ToDisplay(p.ActualProfitLoss, cur)
	if err != nil {
		return nil, err
	}

	now := s.positions.Now()
	return &PositionView{
		Position:       p,
		Invested:       invested,
		ExpectedProfit: expected,
		ProfitLoss:     actual,
		Currency:       cur.Code,
		TimeRemaining:  p.TimeRemaining(now),
		Progress:       p.Progress(now),
	}, nil
}
