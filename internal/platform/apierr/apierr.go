// Package apierr carries an HTTP status and public error code alongside a failure.
package apierr

import (
	"fmt"
	"net/http"
)

type Error struct {
	Status    int
	Code      string
	Retryable bool
	Err       error
}

func (e *Error) Error() string {
	switch {
	case e == nil:
		return ""
	case e.Err != nil:
		return e.Err.Error()
	case e.Code != "":
		return e.Code
	default:
		return fmt.Sprintf("%d %s", e.Status, http.StatusText(e.Status))
	}
}

func (e *Error) Unwrap() error { return e.Err }

func New(status int, code string, err error) *Error {
	return &Error{Status: status, Code: code, Err: err}
}

// NewRetryable marks the failure as safe to repeat; responses advertise Retry-After.
func NewRetryable(status int, code string, err error) *Error {
	e := New(status, code, err)
	e.Retryable = true
	return e
}
