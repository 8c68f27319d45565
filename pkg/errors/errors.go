package errors

import (
	stderrors "errors"
	"fmt"
	"net/http"
	"time"
)

// ErrorType represents the class of a failure talking to the collection API
type ErrorType string

const (
	ErrorTypeAuth              ErrorType = "auth"
	ErrorTypeNetwork           ErrorType = "network"
	ErrorTypeAPI               ErrorType = "api"
	ErrorTypeServerError       ErrorType = "server_error"
	ErrorTypeDecode            ErrorType = "decode"
	ErrorTypeRateLimitExceeded ErrorType = "rate_limit_exceeded"
)

// Error is a classified failure. Code holds the HTTP status when one exists.
type Error struct {
	Type       ErrorType
	Message    string
	Code       int
	RetryAfter time.Duration
	Err        error
}

func (e *Error) Error() string {
	msg := e.Message
	if e.Err != nil {
		if msg == "" {
			msg = e.Err.Error()
		} else {
			msg = msg + ": " + e.Err.Error()
		}
	}
	if e.Code != 0 {
		return fmt.Sprintf("%s error (code %d): %s", e.Type, e.Code, msg)
	}
	return fmt.Sprintf("%s error: %s", e.Type, msg)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Retryable reports whether the failure may succeed on a later attempt.
// Only network failures, 5xx responses and 429 qualify.
func (e *Error) Retryable() bool {
	switch e.Type {
	case ErrorTypeNetwork, ErrorTypeServerError:
		return true
	case ErrorTypeAPI:
		return e.Code == http.StatusTooManyRequests
	default:
		return false
	}
}

// NewAuthError reports missing, malformed or rejected credentials
func NewAuthError(code int, message string) *Error {
	return &Error{Type: ErrorTypeAuth, Code: code, Message: message}
}

// NewNetworkError wraps a transport level failure
func NewNetworkError(message string, err error) *Error {
	return &Error{Type: ErrorTypeNetwork, Message: message, Err: err}
}

// NewAPIError reports a non-auth 4xx response
func NewAPIError(code int, message string) *Error {
	return &Error{Type: ErrorTypeAPI, Code: code, Message: message}
}

// NewServerError reports a 5xx response
func NewServerError(code int, message string) *Error {
	return &Error{Type: ErrorTypeServerError, Code: code, Message: message}
}

// NewDecodeError reports a payload that does not match the expected schema
func NewDecodeError(message string, err error) *Error {
	return &Error{Type: ErrorTypeDecode, Message: message, Err: err}
}

// NewRateLimitExceeded reports an exhausted retry or admission budget.
// last is the failure that used up the budget, if any.
func NewRateLimitExceeded(message string, last error) *Error {
	return &Error{Type: ErrorTypeRateLimitExceeded, Message: message, Err: last}
}

// FromStatus maps an unsuccessful HTTP status to its error class
func FromStatus(code int, retryAfter time.Duration, message string) *Error {
	if message == "" {
		message = http.StatusText(code)
	}
	switch {
	case code == http.StatusUnauthorized || code == http.StatusForbidden:
		return NewAuthError(code, message)
	case code == http.StatusTooManyRequests:
		e := NewAPIError(code, message)
		e.RetryAfter = retryAfter
		return e
	case code >= 500:
		e := NewServerError(code, message)
		e.RetryAfter = retryAfter
		return e
	default:
		return NewAPIError(code, message)
	}
}

// As returns the classified error in err's chain, if any
func As(err error) (*Error, bool) {
	var e *Error
	if stderrors.As(err, &e) {
		return e, true
	}
	return nil, false
}

// Is reports whether err's chain contains a classified error of type t
func Is(err error, t ErrorType) bool {
	e, ok := As(err)
	return ok && e.Type == t
}

// IsRetryable reports whether err's chain holds a retryable classified error
func IsRetryable(err error) bool {
	e, ok := As(err)
	return ok && e.Retryable()
}
