package errors

import (
	stderrors "errors"
	"fmt"
	"net/http"
)

// ErrorCode represents application error codes
type ErrorCode string

const (
	ErrCodeInvalidInput         ErrorCode = "INVALID_INPUT"
	ErrCodeNotFound             ErrorCode = "NOT_FOUND"
	ErrCodeRateLimit            ErrorCode = "RATE_LIMIT_EXCEEDED"
	ErrCodeInternal             ErrorCode = "INTERNAL_ERROR"
	ErrCodeAdvertisement        ErrorCode = "ADVERTISEMENT_FAILED"
	ErrCodeCloudConnect         ErrorCode = "CLOUD_CONNECT_FAILED"
	ErrCodeCloudTransport       ErrorCode = "CLOUD_TRANSPORT"
	ErrCodeConnectionTimeout    ErrorCode = "CONNECTION_TIMEOUT"
	ErrCodeSessionNotConfigured ErrorCode = "SESSION_NOT_CONFIGURED"
	ErrCodeServe                ErrorCode = "SERVE_FAILED"
)

// AppError represents an application error with code and context
type AppError struct {
	Code       ErrorCode
	Message    string
	HTTPStatus int
	Cause      error
	Context    map[string]interface{}
}

// Error implements error interface
func (e *AppError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s (caused by: %v)", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap returns the underlying error
func (e *AppError) Unwrap() error {
	return e.Cause
}

// Is matches another AppError by code, so errors.Is(err, &AppError{Code: c}) works.
func (e *AppError) Is(target error) bool {
	t, ok := target.(*AppError)
	if !ok {
		return false
	}
	return t.Code == e.Code
}

// WithContext adds context to the error
func (e *AppError) WithContext(key string, value interface{}) *AppError {
	if e.Context == nil {
		e.Context = make(map[string]interface{})
	}
	e.Context[key] = value
	return e
}

// NewAppError creates a new application error
func NewAppError(code ErrorCode, message string, httpStatus int) *AppError {
	return &AppError{
		Code:       code,
		Message:    message,
		HTTPStatus: httpStatus,
		Context:    make(map[string]interface{}),
	}
}

// WrapError wraps an existing error with application error
func WrapError(err error, code ErrorCode, message string, httpStatus int) *AppError {
	return &AppError{
		Code:       code,
		Message:    message,
		HTTPStatus: httpStatus,
		Cause:      err,
		Context:    make(map[string]interface{}),
	}
}

// Common error constructors
func NewInvalidInputError(message string) *AppError {
	return NewAppError(ErrCodeInvalidInput, message, http.StatusBadRequest)
}

func NewNotFoundError(resource string) *AppError {
	return NewAppError(ErrCodeNotFound, fmt.Sprintf("%s not found", resource), http.StatusNotFound)
}

func NewRateLimitError() *AppError {
	return NewAppError(ErrCodeRateLimit, "rate limit exceeded", http.StatusTooManyRequests)
}

func NewInternalError(message string) *AppError {
	return NewAppError(ErrCodeInternal, message, http.StatusInternalServerError)
}

// NewAdvertisementError reports a failed service record registration.
func NewAdvertisementError(record string, cause error) *AppError {
	return WrapError(cause, ErrCodeAdvertisement, "failed to register service record", http.StatusInternalServerError).
		WithContext("record", record)
}

func NewCloudConnectError(message string, cause error) *AppError {
	return WrapError(cause, ErrCodeCloudConnect, message, http.StatusBadGateway)
}

func NewCloudTransportError(cause error) *AppError {
	return WrapError(cause, ErrCodeCloudTransport, "cloud transport failure", http.StatusBadGateway)
}

// NewConnectionTimeoutError reports a connection step that exceeded its fixed bound.
func NewConnectionTimeoutError(step string) *AppError {
	return NewAppError(ErrCodeConnectionTimeout, fmt.Sprintf("%s timed out", step), http.StatusGatewayTimeout).
		WithContext("step", step)
}

func NewSessionNotConfiguredError() *AppError {
	return NewAppError(ErrCodeSessionNotConfigured, "session data channel was never opened", http.StatusInternalServerError)
}

func NewServeError(cause error) *AppError {
	return WrapError(cause, ErrCodeServe, "error while serving connection", http.StatusInternalServerError)
}

// IsAppError checks if error is an AppError
func IsAppError(err error) bool {
	var appErr *AppError
	return stderrors.As(err, &appErr)
}

// GetAppError extracts the outermost AppError from the error chain
func GetAppError(err error) *AppError {
	var appErr *AppError
	if stderrors.As(err, &appErr) {
		return appErr
	}
	return nil
}

// HasCode reports whether any AppError in the chain carries code.
func HasCode(err error, code ErrorCode) bool {
	return stderrors.Is(err, &AppError{Code: code})
}
