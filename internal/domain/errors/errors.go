package errors

import (
	"errors"
	"fmt"
)

var (
	// Order errors
	ErrOrderNotFound     = errors.New("order not found")
	ErrInvalidStatus     = errors.New("invalid order status")
	ErrInvalidWorkStatus = errors.New("invalid work status")
	ErrStatusUnchanged   = errors.New("status unchanged")

	// Delivery errors
	ErrNotConfigured     = errors.New("delivery not configured")
	ErrInvalidRecipient  = errors.New("invalid recipient")
	ErrCircuitOpen       = errors.New("circuit breaker is open")
	ErrPermanentDelivery = errors.New("permanent delivery error")
	ErrRetriesExhausted  = errors.New("delivery retries exhausted")

	// Webhook errors
	ErrInvalidPayload     = errors.New("invalid webhook payload")
	ErrBridgeNotRunning   = errors.New("webhook bridge not running")
	ErrQueueFull          = errors.New("webhook queue full")
	ErrUnauthorizedSource = errors.New("webhook secret mismatch")

	// Lock errors
	ErrLockAcquisitionFailed = errors.New("failed to acquire lock")
	ErrLockNotHeld           = errors.New("lock not held")

	// Breaker errors
	ErrBreakerNotFound = errors.New("circuit breaker not found")

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
