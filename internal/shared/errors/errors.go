package errors

import (
	"errors"
	"fmt"
)

// AppError represents an application error with additional context
type AppError struct {
	Code    string // Error code for client
	Message string // Human-readable message
	Err     error  // Underlying error
}

// Error implements the error interface
func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap returns the underlying error
func (e *AppError) Unwrap() error {
	return e.Err
}

// Error codes. Each code is one class of the engine's error taxonomy.
const (
	// ErrCodeValidation: malformed caller input. Reported, never retried.
	ErrCodeValidation = "VALIDATION_ERROR"
	// ErrCodeInsufficientFunds: business-rule rejection. Reported, never retried.
	ErrCodeInsufficientFunds = "INSUFFICIENT_FUNDS"
	// ErrCodeConflict: the effect was already applied by someone else.
	ErrCodeConflict = "CONFLICT"
	// ErrCodeConcurrency: lock or contention timeout. Transient, safe to retry.
	ErrCodeConcurrency = "CONCURRENCY_ERROR"
	// ErrCodeConfiguration: broken reference data. Fatal for the request.
	ErrCodeConfiguration = "CONFIGURATION_ERROR"
	ErrCodeNotFound      = "NOT_FOUND"
	ErrCodeInternal      = "INTERNAL_ERROR"
)

// New creates a new AppError
func New(code, message string) *AppError {
	return &AppError{
		Code:    code,
		Message: message,
	}
}

// Wrap wraps an error with additional context
func Wrap(err error, code, message string) *AppError {
	return &AppError{
		Code:    code,
		Message: message,
		Err:     err,
	}
}

// Validation creates a validation error
func Validation(message string) *AppError {
	return New(ErrCodeValidation, message)
}

// InsufficientFunds creates an insufficient funds error
func InsufficientFunds(message string) *AppError {
	return New(ErrCodeInsufficientFunds, message)
}

// Conflict creates a conflict error
func Conflict(message string) *AppError {
	return New(ErrCodeConflict, message)
}

// Concurrency creates a transient contention error
func Concurrency(message string, err error) *AppError {
	return Wrap(err, ErrCodeConcurrency, message)
}

// Configuration creates a configuration error
func Configuration(message string) *AppError {
	return New(ErrCodeConfiguration, message)
}

// NotFound creates a not found error
func NotFound(resource string) *AppError {
	return New(ErrCodeNotFound, fmt.Sprintf("%s not found", resource))
}

// Internal creates an internal error
func Internal(message string, err error) *AppError {
	return Wrap(err, ErrCodeInternal, message)
}

// IsAppError checks if an error is an AppError
func IsAppError(err error) bool {
	var appErr *AppError
	return errors.As(err, &appErr)
}

// GetAppError extracts the outermost AppError from an error chain
func GetAppError(err error) *AppError {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr
	}
	return nil
}

// CodeOf returns the code of the first AppError in the chain, or ErrCodeInternal.
func CodeOf(err error) string {
	if appErr := GetAppError(err); appErr != nil {
		return appErr.Code
	}
	return ErrCodeInternal
}

// HasCode reports whether err carries an AppError with the given code.
func HasCode(err error, code string) bool {
	return err != nil && CodeOf(err) == code
}

// IsRetryable reports whether the operation that produced err may be retried.
func IsRetryable(err error) bool {
	return HasCode(err, ErrCodeConcurrency)
}
