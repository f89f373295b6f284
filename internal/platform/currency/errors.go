package currency

import apperrors "github.com/kislikjeka/pesaprime/internal/shared/errors"

var (
	ErrCurrencyNotFound = apperrors.NotFound("currency")
	ErrInvalidCode      = apperrors.Validation("currency code must be 3 letters")
	ErrUnknownCurrency  = apperrors.Validation("unknown or inactive currency")

	// ErrInvalidRate is raised for a resolved currency whose exchange rate is
	// zero or negative. It is never replaced by the USD fallback.
	ErrInvalidRate = apperrors.Configuration("exchange rate must be positive")
)
