package errors

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"
)

type Code int

const (
	Internal        Code = http.StatusInternalServerError
	NotFound        Code = http.StatusNotFound
	Forbidden       Code = http.StatusForbidden
	Unauthorized    Code = http.StatusUnauthorized
	Validation      Code = http.StatusBadRequest
	Conflict        Code = http.StatusConflict
	Precondition    Code = http.StatusPreconditionFailed
	Timeout         Code = http.StatusRequestTimeout
	TooManyRequests Code = http.StatusTooManyRequests
	RetryWith       Code = 449
	Unavailable     Code = http.StatusServiceUnavailable
)

// retriable classifies transient store failures that are worth reattempting
var retriable = map[Code]bool{
	Timeout:         true,
	TooManyRequests: true,
	RetryWith:       true,
	Internal:        true,
	Unavailable:     true,
}

// Error is a custom error carrying the remote status, the store-specific error
// code, and a retriable classification
type Error struct {
	Code       Code          `json:"code"`
	StoreCode  string        `json:"store_code,omitempty"`
	Messages   []string      `json:"messages"`
	Err        error         `json:"err,omitempty"`
	Attempt    int           `json:"attempt,omitempty"`
	RetryAfter time.Duration `json:"retry_after,omitempty"`
}

// Error returns the Error as a json string
func (e *Error) Error() string {
	if e.Code == 0 {
		e.Code = http.StatusOK
	}
	bits, _ := json.Marshal(e)
	return string(bits)
}

// RemoveError removes the wrapped error from the Error and leaves its messages and codes
func (e *Error) RemoveError() *Error {
	return &Error{
		Code:      e.Code,
		StoreCode: e.StoreCode,
		Messages:  e.Messages,
		Attempt:   e.Attempt,
		Err:       nil,
	}
}

// Unwrap satisfies the errors.Unwrap interface
func (e *Error) Unwrap() error {
	return e.Err
}

// Extract extracts the custom Error from the given error
func Extract(err error) *Error {
	e, ok := err.(*Error)
	if !ok {
		return &Error{
			Code:     0,
			Messages: nil,
			Err:      err,
		}
	}
	return e
}

// New returns a new Error with the given code and formatted message
func New(code Code, msg string, args ...any) error {
	return &Error{
		Code:     code,
		Messages: []string{fmt.Sprintf(msg, args...)},
	}
}

// Wrap wraps the given error and returns a new one. A nil error stays nil.
func Wrap(err error, code Code, msg string, args ...any) error {
	if err == nil {
		return nil
	}
	e, ok := err.(*Error)
	if ok {
		if msg != "" {
			e.Messages = append(e.Messages, fmt.Sprintf(msg, args...))
		}
		if e.Err == nil {
			e.Err = err
		}
		if code > 0 {
			e.Code = code
		}
		return e
	}
	e = &Error{
		Code: code,
		Err:  err,
	}
	if msg != "" {
		e.Messages = append(e.Messages, fmt.Sprintf(msg, args...))
	}
	return e
}

// WithStoreCode tags the error with the store-specific error code
func WithStoreCode(err error, storeCode string) error {
	if err == nil {
		return nil
	}
	e := Extract(err)
	e.StoreCode = storeCode
	return e
}

// WithRetryAfter tags the error with the retry hint reported by the store
func WithRetryAfter(err error, after time.Duration) error {
	if err == nil {
		return nil
	}
	e := Extract(err)
	e.RetryAfter = after
	return e
}

// WithAttempt tags the error with the attempt count at which it was abandoned
func WithAttempt(err error, attempt int) error {
	if err == nil {
		return nil
	}
	e := Extract(err)
	e.Attempt = attempt
	return e
}

// Attempts returns the attempt count carried by the error (zero if untagged)
func Attempts(err error) int {
	if err == nil {
		return 0
	}
	return Extract(err).Attempt
}

// IsRetriable reports whether the error is a transient failure worth reattempting
func IsRetriable(err error) bool {
	if err == nil {
		return false
	}
	return retriable[Extract(err).Code]
}
