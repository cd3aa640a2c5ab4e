package errors

import (
	"errors"
	"fmt"
	"net/http"
)

// ErrorCode is the code carried in outbound error frames and HTTP error bodies.
type ErrorCode string

const (
	ErrCodeUnauthorized        ErrorCode = "UNAUTHORIZED"
	ErrCodeInvalidJSON         ErrorCode = "INVALID_JSON"
	ErrCodeInvalidFormat       ErrorCode = "INVALID_FORMAT"
	ErrCodeUnsupportedProtocol ErrorCode = "UNSUPPORTED_PROTOCOL"
	ErrCodeRoomFull            ErrorCode = "ROOM_FULL"
	ErrCodeRateLimit           ErrorCode = "RATE_LIMIT"
	ErrCodeNotFound            ErrorCode = "NOT_FOUND"
	ErrCodeInternal            ErrorCode = "INTERNAL_ERROR"
	ErrCodeServiceUnavailable  ErrorCode = "SERVICE_UNAVAILABLE"
)

// Kind groups error codes by how the relay reacts to them.
type Kind string

const (
	KindAuthFailure          Kind = "auth_failure"
	KindValidationFailure    Kind = "validation_failure"
	KindCapacityFailure      Kind = "capacity_failure"
	KindRateLimitFailure     Kind = "rate_limit_failure"
	KindConfigurationFailure Kind = "configuration_failure"
	KindInternal             Kind = "internal"
)

// AppError represents an application error with code and context
type AppError struct {
	Code       ErrorCode
	Kind       Kind
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

// WithContext adds context to the error
func (e *AppError) WithContext(key string, value interface{}) *AppError {
	if e.Context == nil {
		e.Context = make(map[string]interface{})
	}
	e.Context[key] = value
	return e
}

// Fatal reports whether the connection that caused the error must be closed.
func (e *AppError) Fatal() bool {
	return e.Kind == KindAuthFailure || e.Kind == KindConfigurationFailure
}

// NewAppError creates a new application error
func NewAppError(code ErrorCode, kind Kind, message string, httpStatus int) *AppError {
	return &AppError{
		Code:       code,
		Kind:       kind,
		Message:    message,
		HTTPStatus: httpStatus,
	}
}

// WrapError wraps an existing error with application error
func WrapError(err error, code ErrorCode, kind Kind, message string, httpStatus int) *AppError {
	return &AppError{
		Code:       code,
		Kind:       kind,
		Message:    message,
		HTTPStatus: httpStatus,
		Cause:      err,
	}
}

func NewUnauthorizedError(cause error) *AppError {
	return WrapError(cause, ErrCodeUnauthorized, KindAuthFailure, "unauthorized", http.StatusUnauthorized)
}

func NewInvalidJSONError(cause error) *AppError {
	return WrapError(cause, ErrCodeInvalidJSON, KindValidationFailure, "payload is not valid JSON", http.StatusBadRequest)
}

func NewInvalidFormatError(cause error) *AppError {
	return WrapError(cause, ErrCodeInvalidFormat, KindValidationFailure, "message does not match schema", http.StatusBadRequest)
}

func NewUnsupportedProtocolError(got, want int) *AppError {
	return NewAppError(ErrCodeUnsupportedProtocol, KindValidationFailure,
		fmt.Sprintf("protocol version %d not supported (server speaks %d)", got, want), http.StatusBadRequest)
}

func NewRoomFullError(cause error) *AppError {
	return WrapError(cause, ErrCodeRoomFull, KindCapacityFailure, "room is full", http.StatusConflict)
}

func NewRateLimitError() *AppError {
	return NewAppError(ErrCodeRateLimit, KindRateLimitFailure, "rate limit exceeded", http.StatusTooManyRequests)
}

func NewNotFoundError(resource string) *AppError {
	return NewAppError(ErrCodeNotFound, KindValidationFailure, fmt.Sprintf("%s not found", resource), http.StatusNotFound)
}

func NewConfigurationError(cause error) *AppError {
	return WrapError(cause, ErrCodeInternal, KindConfigurationFailure, "invalid configuration", http.StatusInternalServerError)
}

func NewInternalError(message string) *AppError {
	return NewAppError(ErrCodeInternal, KindInternal, message, http.StatusInternalServerError)
}

func NewServiceUnavailableError(message string) *AppError {
	return NewAppError(ErrCodeServiceUnavailable, KindInternal, message, http.StatusServiceUnavailable)
}

// GetAppError extracts AppError from error chain
func GetAppError(err error) *AppError {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr
	}
	return nil
}

// CodeOf returns the wire code for err, INTERNAL_ERROR when err is not an AppError.
func CodeOf(err error) ErrorCode {
	if appErr := GetAppError(err); appErr != nil {
		return appErr.Code
	}
	return ErrCodeInternal
}
