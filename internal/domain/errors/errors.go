package errors

import (
	"errors"
	"fmt"
)

var (
	// Order errors
	ErrOrderNotFound          = errors.New("order not found")
	ErrInvalidStateTransition = errors.New("invalid state transition")
	ErrOrderAlreadyPaid       = errors.New("order already paid")
	ErrUnsupportedCurrency    = errors.New("unsupported currency")

	// Trade errors
	ErrTradeReferenceMissing = errors.New("merchant trade reference missing")
	ErrTransactionClosed     = errors.New("provider closed the transaction; refund must be handled by other means")
	ErrTransactionMissing    = errors.New("transaction not found")
	ErrInvalidRefundAmount   = errors.New("refund amount must be more than 0 and at most the order total")

	// Notification errors
	ErrInvalidSignature = errors.New("invalid notification signature")
	ErrMismatchedAppID  = errors.New("mismatched app id")
	ErrMismatchedAmount = errors.New("mismatched total amount")

	// Webhook log errors
	ErrWebhookLogNotFound = errors.New("webhook log entry not found")
	ErrMaxRetriesExceeded = errors.New("max retries exceeded")

	// Provider errors
	ErrProviderUnavailable = errors.New("payment provider unavailable")
	ErrProviderRejected    = errors.New("request rejected by provider")
	ErrProviderTimeout     = errors.New("provider request timeout")

	// Lock errors
	ErrLockAcquisitionFailed = errors.New("failed to acquire lock")
	ErrLockNotHeld           = errors.New("lock not held")

	// Auth errors
	ErrUnauthorized = errors.New("unauthorized")
	ErrForbidden    = errors.New("forbidden")

	// Validation errors
	ErrValidationFailed = errors.New("validation failed")
	ErrInvalidInput     = errors.New("invalid input")
)

// DomainError wraps errors with additional context
type DomainError struct {
	Code    string
	Message string
	Err     error
}

func (e *DomainError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *DomainError) Unwrap() error {
	return e.Err
}

// NewDomainError creates a new domain error
func NewDomainError(code, message string, err error) *DomainError {
	return &DomainError{
		Code:    code,
		Message: message,
		Err:     err,
	}
}

// ValidationError represents a validation error
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation failed for field %s: %s", e.Field, e.Message)
}

// NewValidationError creates a new validation error
func NewValidationError(field, message string) *ValidationError {
	return &ValidationError{
		Field:   field,
		Message: message,
	}
}
