// Package errors defines the error kinds returned by the dispenser core and
// their mapping onto HTTP responses.
package errors

import (
	stderrors "errors"
	"fmt"
	"net/http"
)

// ErrorCode identifies the kind of failure returned to the caller
type ErrorCode string

const (
	// Recoverable, user-visible conditions
	ErrCodeNoEligibleItems ErrorCode = "NO_ELIGIBLE_ITEMS"
	ErrCodeQuotaExceeded   ErrorCode = "QUOTA_EXCEEDED"
	ErrCodeItemNotFound    ErrorCode = "ITEM_NOT_FOUND"
	ErrCodeUnauthorized    ErrorCode = "UNAUTHORIZED"
	ErrCodeInvalidInput    ErrorCode = "INVALID_INPUT"

	// Persistence adapter failures
	ErrCodeStorageUnavailable ErrorCode = "STORAGE_UNAVAILABLE"

	ErrCodeInternal ErrorCode = "INTERNAL"
)

// EngineError represents a structured error with code and context
type EngineError struct {
	Code    ErrorCode
	Message string
	Details map[string]interface{}
	Cause   error
}

// Error implements the error interface
func (e *EngineError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Cause)
	}
	return e.Message
}

// Unwrap returns the underlying error
func (e *EngineError) Unwrap() error {
	return e.Cause
}

// Is matches any EngineError carrying the same code, so callers can write
// errors.Is(err, errors.QuotaExceeded(...)) style checks against the sentinels below.
func (e *EngineError) Is(target error) bool {
	var t *EngineError
	if !stderrors.As(target, &t) {
		return false
	}
	return t.Code == e.Code
}

// HTTPStatus maps the error code to an HTTP status code
func (e *EngineError) HTTPStatus() int {
	switch e.Code {
	case ErrCodeInvalidInput:
		return http.StatusBadRequest
	case ErrCodeUnauthorized:
		return http.StatusForbidden
	case ErrCodeItemNotFound:
		return http.StatusNotFound
	case ErrCodeNoEligibleItems:
		return http.StatusConflict
	case ErrCodeQuotaExceeded:
		return http.StatusTooManyRequests
	case ErrCodeStorageUnavailable:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// NewEngineError creates a new EngineError
func NewEngineError(code ErrorCode, message string, cause error) *EngineError {
	return &EngineError{
		Code:    code,
		Message: message,
		Details: make(map[string]interface{}),
		Cause:   cause,
	}
}

// WithDetail adds a detail to the error
func (e *EngineError) WithDetail(key string, value interface{}) *EngineError {
	e.Details[key] = value
	return e
}

// Sentinels for errors.Is comparisons.
var (
	ErrNoEligibleItems    = &EngineError{Code: ErrCodeNoEligibleItems, Message: "no eligible items"}
	ErrQuotaExceeded      = &EngineError{Code: ErrCodeQuotaExceeded, Message: "quota exceeded"}
	ErrItemNotFound       = &EngineError{Code: ErrCodeItemNotFound, Message: "item not found"}
	ErrUnauthorized       = &EngineError{Code: ErrCodeUnauthorized, Message: "unauthorized"}
	ErrInvalidInput       = &EngineError{Code: ErrCodeInvalidInput, Message: "invalid input"}
	ErrStorageUnavailable = &EngineError{Code: ErrCodeStorageUnavailable, Message: "storage unavailable"}
)

// Convenience constructors for common errors

func NoEligibleItems() *EngineError {
	return NewEngineError(ErrCodeNoEligibleItems, "no items available right now", nil)
}

func QuotaExceeded(tenantID, requesterID string, consumed, allowance int) *EngineError {
	return NewEngineError(ErrCodeQuotaExceeded,
		fmt.Sprintf("quota exceeded: %d of %d used", consumed, allowance), nil).
		WithDetail("tenant_id", tenantID).
		WithDetail("requester_id", requesterID).
		WithDetail("consumed", consumed).
		WithDetail("allowance", allowance)
}

func ItemNotFound(itemID string) *EngineError {
	return NewEngineError(ErrCodeItemNotFound, fmt.Sprintf("item not found: %s", itemID), nil).
		WithDetail("item_id", itemID)
}

func Unauthorized(tenantID, requesterID, operation string) *EngineError {
	return NewEngineError(ErrCodeUnauthorized,
		fmt.Sprintf("requester %s may not %s", requesterID, operation), nil).
		WithDetail("tenant_id", tenantID).
		WithDetail("requester_id", requesterID).
		WithDetail("operation", operation)
}

func InvalidInput(message string) *EngineError {
	return NewEngineError(ErrCodeInvalidInput, message, nil)
}

func StorageUnavailable(operation string, cause error) *EngineError {
	return NewEngineError(ErrCodeStorageUnavailable, fmt.Sprintf("storage unavailable during %s", operation), cause).
		WithDetail("operation", operation)
}

func Internal(message string, cause error) *EngineError {
	return NewEngineError(ErrCodeInternal, message, cause)
}

// CodeOf returns the ErrorCode carried by err, or ErrCodeInternal when err is
// not an EngineError.
func CodeOf(err error) ErrorCode {
	if err == nil {
		return ""
	}
	var e *EngineError
	if stderrors.As(err, &e) {
		return e.Code
	}
	return ErrCodeInternal
}

// IsCode reports whether err carries the given code
func IsCode(err error, code ErrorCode) bool {
	return err != nil && CodeOf(err) == code
}
