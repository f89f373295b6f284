package asset

import apperrors "github.com/kislikjeka/pesaprime/internal/shared/errors"

// Asset errors
var (
	ErrAssetNotFound    = apperrors.NotFound("asset")
	ErrDuplicateAsset   = apperrors.Conflict("asset already exists")
	ErrInvalidSymbol    = apperrors.Validation("invalid symbol")
	ErrInvalidName      = apperrors.Validation("invalid name")
	ErrInvalidCategory  = apperrors.Validation("invalid asset category")
	ErrInvalidRiskLevel = apperrors.Validation("invalid risk level")
	ErrAssetInactive    = apperrors.Validation("asset is not available for investment")
)

// Investment limit errors
var (
	ErrInvalidLimits      = apperrors.Validation("investment limits must satisfy 0 < min <= max")
	ErrBelowMinimum       = apperrors.Validation("amount is below the minimum investment")
	ErrAboveMaximum       = apperrors.Validation("amount is above the maximum investment")
	ErrDurationNotAllowed = apperrors.Validation("duration is not allowed for this asset")
	ErrInvalidReturnRate  = apperrors.Validation("return rate must be greater than -100")
	ErrNoDurations        = apperrors.Validation("at least one duration must be allowed")
	ErrIncompleteRates    = apperrors.Validation("every allowed duration needs a return rate")
)

// ErrMissingReturnRate means an allowed duration has no rate in the table.
// Validation prevents this on write, so hitting it at read time is broken
// reference data.
var ErrMissingReturnRate = apperrors.Configuration("missing return rate for allowed duration")

// Price errors
var (
	ErrNegativePrice = apperrors.Validation("price cannot be negative")
)
