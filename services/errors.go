package services

import (
	"errors"
	"fmt"
)

// ErrorType represents the type/category of error
type ErrorType string

const (
	ErrorTypeNotFound     ErrorType = "not_found"
	ErrorTypeValidation   ErrorType = "validation"
	ErrorTypeUnauthorized ErrorType = "unauthorized"
	ErrorTypeForbidden    ErrorType = "forbidden"
	ErrorTypeConflict     ErrorType = "conflict"
	ErrorTypeUnavailable  ErrorType = "unavailable"
	ErrorTypeInternal     ErrorType = "internal"
)

// DomainError represents a structured error with additional context.
// Code carries the machine-readable signal exposed to clients; only
// TOKEN_EXPIRED triggers the client-side recovery flow.
type DomainError struct {
	Type    ErrorType
	Code    string
	Message string
	Err     error
	Details map[string]interface{}
}

// Error implements the error interface
func (e *DomainError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s (%v)", e.Type, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Type, e.Message)
}

// Unwrap implements errors.Unwrap
func (e *DomainError) Unwrap() error {
	return e.Err
}

// Is implements errors.Is. Two domain errors match when both type and code agree.
func (e *DomainError) Is(target error) bool {
	t, ok := target.(*DomainError)
	if !ok {
		return false
	}
	return e.Type == t.Type && e.Code == t.Code
}

// WithDetail adds a detail to the error
func (e *DomainError) WithDetail(key string, value interface{}) *DomainError {
	if e.Details == nil {
		e.Details = make(map[string]interface{})
	}
	e.Details[key] = value
	return e
}

// NewDomainError creates a new domain error
func NewDomainError(errType ErrorType, code, message string, err error) *DomainError {
	return &DomainError{
		Type:    errType,
		Code:    code,
		Message: message,
		Err:     err,
		Details: make(map[string]interface{}),
	}
}

// Domain error variables

var (
	// Validation errors
	ErrValidationFailed = NewDomainError(ErrorTypeValidation, "VALIDATION_FAILED", "validation failed", nil)

	// Conflict errors (signup duplicates)
	ErrDuplicateUsername = NewDomainError(ErrorTypeConflict, "DUPLICATE_USERNAME", "username already exists", nil)
	ErrDuplicateShopName = NewDomainError(ErrorTypeConflict, "DUPLICATE_SHOP_NAME", "shop name is already taken", nil)

	// Authentication errors. ErrTokenExpired is the only recoverable 401:
	// its code is the signal for the client-side silent refresh.
	ErrInvalidCredentials  = NewDomainError(ErrorTypeUnauthorized, "INVALID_CREDENTIALS", "incorrect username or password", nil)
	ErrUserNotFound        = NewDomainError(ErrorTypeNotFound, "USER_NOT_FOUND", "user not found", nil)
	ErrMissingToken        = NewDomainError(ErrorTypeUnauthorized, "MISSING_TOKEN", "access denied, no token provided", nil)
	ErrTokenExpired        = NewDomainError(ErrorTypeUnauthorized, "TOKEN_EXPIRED", "token expired", nil)
	ErrInvalidToken        = NewDomainError(ErrorTypeUnauthorized, "INVALID_TOKEN", "invalid token", nil)
	ErrInvalidRefreshToken = NewDomainError(ErrorTypeUnauthorized, "INVALID_REFRESH_TOKEN", "invalid refresh token", nil)

	// Tenant access errors
	ErrShopNotFound     = NewDomainError(ErrorTypeNotFound, "SHOP_NOT_FOUND", "shop not found", nil)
	ErrShopAccessDenied = NewDomainError(ErrorTypeForbidden, "SHOP_ACCESS_DENIED", "access denied to this shop", nil)

	// Infrastructure errors
	ErrServiceUnavailable = NewDomainError(ErrorTypeUnavailable, "SERVICE_UNAVAILABLE", "service temporarily unavailable", nil)
	ErrInternal           = NewDomainError(ErrorTypeInternal, "INTERNAL", "internal server error", nil)
)

// Error type checking helper functions

// IsNotFoundError checks if an error is a not found error
func IsNotFoundError(err error) bool {
	var domainErr *DomainError
	if errors.As(err, &domainErr) {
		return domainErr.Type == ErrorTypeNotFound
	}
	return false
}

// IsValidationError checks if an error is a validation error
func IsValidationError(err error) bool {
	var domainErr *DomainError
	if errors.As(err, &domainErr) {
		return domainErr.Type == ErrorTypeValidation
	}
	return false
}

// IsUnauthorizedError checks if an error is an unauthorized error
func IsUnauthorizedError(err error) bool {
	var domainErr *DomainError
	if errors.As(err, &domainErr) {
		return domainErr.Type == ErrorTypeUnauthorized
	}
	return false
}

// IsForbiddenError checks if an error is a forbidden error
func IsForbiddenError(err error) bool {
	var domainErr *DomainError
	if errors.As(err, &domainErr) {
		return domainErr.Type == ErrorTypeForbidden
	}
	return false
}

// IsConflictError checks if an error is a conflict error
func IsConflictError(err error) bool {
	var domainErr *DomainError
	if errors.As(err, &domainErr) {
		return domainErr.Type == ErrorTypeConflict
	}
	return false
}

// IsUnavailableError checks if an error is a retryable service-unavailable error
func IsUnavailableError(err error) bool {
	var domainErr *DomainError
	if errors.As(err, &domainErr) {
		return domainErr.Type == ErrorTypeUnavailable
	}
	return false
}

// IsInternalError checks if an error is an internal error
func IsInternalError(err error) bool {
	var domainErr *DomainError
	if errors.As(err, &domainErr) {
		return domainErr.Type == ErrorTypeInternal
	}
	return false
}

// GetErrorType returns the ErrorType of a domain error, or empty string if not a domain error
func GetErrorType(err error) ErrorType {
	var domainErr *DomainError
	if errors.As(err, &domainErr) {
		return domainErr.Type
	}
	return ""
}

// GetErrorCode returns the machine-readable code of a domain error, or empty string
func GetErrorCode(err error) string {
	var domainErr *DomainError
	if errors.As(err, &domainErr) {
		return domainErr.Code
	}
	return ""
}

// GetErrorDetails returns the details map of a domain error, or nil if not a domain error
func GetErrorDetails(err error) map[string]interface{} {
	var domainErr *DomainError
	if errors.As(err, &domainErr) {
		return domainErr.Details
	}
	return nil
}

// WrapInternal wraps an error as an internal error
func WrapInternal(message string, err error) error {
	return NewDomainError(ErrorTypeInternal, "INTERNAL", message, err)
}

// WrapUnavailable wraps an error as a retryable unavailable error
func WrapUnavailable(message string, err error) error {
	return NewDomainError(ErrorTypeUnavailable, "SERVICE_UNAVAILABLE", message, err)
}

// ValidationFailed builds a validation error carrying field-level detail
func ValidationFailed(fields map[string]string) error {
	e := NewDomainError(ErrorTypeValidation, "VALIDATION_FAILED", "validation failed", nil)
	for k, v := range fields {
		e.WithDetail(k, v)
	}
	return e
}
