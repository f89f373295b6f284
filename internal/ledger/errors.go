package ledger

import apperrors "github.com/kislikjeka/pesaprime/internal/shared/errors"

// Input errors
var (
	ErrInvalidAmount      = apperrors.Validation("amount must be positive with at most 2 decimal places")
	ErrInvalidMethod      = apperrors.Validation("invalid payment method")
	ErrInvalidEntryKind   = apperrors.Validation("invalid entry kind")
	ErrInvalidEntryStatus = apperrors.Validation("invalid entry status")
	ErrAccountRequired    = apperrors.Validation("account id is required")
	ErrReasonRequired     = apperrors.Validation("reason is required")
	ErrDestinationMissing = apperrors.Validation("withdrawal destination is required")
	ErrNotWithdrawal      = apperrors.Validation("entry is not a withdrawal")
	ErrInvalidCurrency    = apperrors.Validation("invalid currency code")
)

// Funds errors
var (
	ErrInsufficientFunds = apperrors.InsufficientFunds("insufficient available balance")
)

// ErrNegativeBalance guards the store: a mutation that would persist a
// negative balance is refused.
var ErrNegativeBalance = apperrors.InsufficientFunds("balance cannot be negative")

// Lookup errors
var (
	ErrAccountNotFound = apperrors.NotFound("account")
	ErrEntryNotFound   = apperrors.NotFound("ledger entry")
	ErrBonusNotFound   = apperrors.NotFound("bonus")
)

// State errors
var (
	ErrInvalidTransition   = apperrors.Conflict("invalid entry status transition")
	ErrDuplicateEntry      = apperrors.Conflict("entry already recorded")
	ErrBonusAlreadyClaimed = apperrors.Conflict("bonus already claimed")
	ErrBonusExpired        = apperrors.Validation("bonus has expired")
	ErrBonusInvalid        = apperrors.Validation("bonus requires a title, a valid kind and a positive amount")
	ErrWelcomeBonusOff     = apperrors.Validation("welcome bonus is not offered")
)

// ErrNoTransaction is returned by in-transaction primitives called without one
var ErrNoTransaction = apperrors.Internal("no transaction in context", nil)
