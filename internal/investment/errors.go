package investment

import apperrors "github.com/kislikjeka/pesaprime/internal/shared/errors"

// Input errors
var (
	ErrInvalidAmount  = apperrors.Validation("amount must be positive with at most 2 decimal places")
	ErrUnknownAsset   = apperrors.Validation("unknown asset")
	ErrReasonRequired = apperrors.Validation("reason is required")
)

// Lifecycle errors
var (
	ErrPositionNotFound  = apperrors.NotFound("position")
	ErrPositionCancelled = apperrors.Conflict("position was cancelled and cannot settle")
	ErrPositionNotActive = apperrors.Conflict("position is not active")
	ErrNotMature         = apperrors.Conflict("position has not matured")
)

// ErrLockedShortfall means the account's locked balance cannot cover a
// position's principal, which only happens if balances were corrupted.
var ErrLockedShortfall = apperrors.Internal("locked balance does not cover position principal", nil)
