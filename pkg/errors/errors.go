package errors

import (
	"errors"
	"fmt"
	"net/http"
)

// ErrorCode represents application-specific error codes
type ErrorCode string

const (
	// Caller is not a party to the resource (appointment, call). Fatal, no retry.
	ErrCodeAuthorization ErrorCode = "AUTHORIZATION_ERROR"

	// Provider returned an incomplete descriptor. Fatal, user cannot self-resolve.
	ErrCodeConfiguration ErrorCode = "CONFIGURATION_ERROR"

	// Transport failure talking to a provider. Retryable by re-invoking the operation.
	ErrCodeNetwork ErrorCode = "NETWORK_ERROR"

	// Caller input malformed. Correctable by the caller.
	ErrCodeValidation ErrorCode = "VALIDATION_ERROR"

	// Remote provider rejected the operation. Surfaced verbatim.
	ErrCodeProvider ErrorCode = "PROVIDER_ERROR"

	// Local record write failed after a remote side effect succeeded.
	// Surfaced distinctly so callers reconcile (re-lookup) instead of blindly
	// retrying and duplicating the remote side effect.
	ErrCodePersistence ErrorCode = "PERSISTENCE_ERROR"

	// Not found errors
	ErrCodeNotFound ErrorCode = "NOT_FOUND"

	// Authentication errors
	ErrCodeUnauthorized ErrorCode = "UNAUTHORIZED"
	ErrCodeInvalidToken ErrorCode = "INVALID_TOKEN"

	// Internal errors
	ErrCodeInternal ErrorCode = "INTERNAL_ERROR"
)

// AppError represents a structured application error with code, message, and HTTP status
type AppError struct {
	Code       ErrorCode `json:"code"`
	Message    string    `json:"message"`
	StatusCode int       `json:"-"`
	Details    any       `json:"details,omitempty"`
	Err        error     `json:"-"`
}

// Error implements the error interface, returning a formatted error message
func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s (caused by: %v)", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap returns the underlying error
func (e *AppError) Unwrap() error {
	return e.Err
}

// New creates a new AppError with the given code and message
// The status code defaults to 500 Internal Server Error
func New(code ErrorCode, message string) *AppError {
	return &AppError{
		Code:       code,
		Message:    message,
		StatusCode: http.StatusInternalServerError,
	}
}

// NewWithStatus creates a new AppError with a specific HTTP status code
func NewWithStatus(code ErrorCode, message string, statusCode int) *AppError {
	return &AppError{
		Code:       code,
		Message:    message,
		StatusCode: statusCode,
	}
}

// Wrap wraps an existing error with an AppError, preserving the original error
func Wrap(code ErrorCode, message string, err error) *AppError {
	return &AppError{
		Code:       code,
		Message:    message,
		StatusCode: http.StatusInternalServerError,
		Err:        err,
	}
}

// WrapWithStatus wraps an existing error with an AppError and specific status code
func WrapWithStatus(code ErrorCode, message string, statusCode int, err error) *AppError {
	return &AppError{
		Code:       code,
		Message:    message,
		StatusCode: statusCode,
		Err:        err,
	}
}

// WithDetails adds additional details to an AppError for debugging
func (e *AppError) WithDetails(details any) *AppError {
	e.Details = details
	return e
}

// AuthorizationError indicates the caller is not a party to the resource
func AuthorizationError(message string) *AppError {
	return NewWithStatus(ErrCodeAuthorization, message, http.StatusForbidden)
}

// ConfigurationError indicates a provider-side misconfiguration (e.g. a
// session descriptor missing required endpoint fields)
func ConfigurationError(message string) *AppError {
	return NewWithStatus(ErrCodeConfiguration, message, http.StatusBadGateway)
}

// NetworkError wraps a transport failure calling a provider
func NetworkError(message string, err error) *AppError {
	return WrapWithStatus(ErrCodeNetwork, message, http.StatusServiceUnavailable, err)
}

// ValidationError indicates malformed caller input
func ValidationError(message string) *AppError {
	return NewWithStatus(ErrCodeValidation, message, http.StatusBadRequest)
}

// ProviderError wraps a rejection from the remote provider
func ProviderError(message string, err error) *AppError {
	return WrapWithStatus(ErrCodeProvider, message, http.StatusBadGateway, err)
}

// PersistenceError wraps a local write failure that happened after a remote
// side effect already succeeded
func PersistenceError(message string, err error) *AppError {
	return WrapWithStatus(ErrCodePersistence, message, http.StatusInternalServerError, err)
}

// NotFoundError indicates a missing resource
func NotFoundError(resource string) *AppError {
	return NewWithStatus(ErrCodeNotFound, fmt.Sprintf("%s not found", resource), http.StatusNotFound)
}

// UnauthorizedError indicates a missing or invalid identity
func UnauthorizedError(message string) *AppError {
	return NewWithStatus(ErrCodeUnauthorized, message, http.StatusUnauthorized)
}

// InvalidTokenError indicates a token that failed validation
func InvalidTokenError(message string) *AppError {
	return NewWithStatus(ErrCodeInvalidToken, message, http.StatusUnauthorized)
}

// InternalError indicates an unexpected internal failure
func InternalError(message string) *AppError {
	return NewWithStatus(ErrCodeInternal, message, http.StatusInternalServerError)
}

// IsAppError checks if an error is an AppError type
func IsAppError(err error) bool {
	var appErr *AppError
	return errors.As(err, &appErr)
}

// CodeOf returns the error code of err, or ErrCodeInternal for plain errors
func CodeOf(err error) ErrorCode {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Code
	}
	return ErrCodeInternal
}

// IsCode reports whether err carries the given error code anywhere in its chain
func IsCode(err error, code ErrorCode) bool {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Code == code
	}
	return false
}

// GetAppError extracts AppError from an error, wrapping non-AppErrors as InternalError
func GetAppError(err error) *AppError {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr
	}
	return InternalError(err.Error())
}
