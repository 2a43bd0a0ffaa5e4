package studio

import (
	"errors"
	"fmt"
	"strings"
)

// ErrorCode is the studio failure taxonomy exposed to callers.
type ErrorCode string

const (
	// admission
	CodeAlreadyGenerating ErrorCode = "ALREADY_GENERATING"

	// not ready
	CodeDraftNotReady         ErrorCode = "DRAFT_NOT_READY"
	CodeIllustrationsNotReady ErrorCode = "ILLUSTRATIONS_NOT_READY"

	// input
	CodeNoCandidates  ErrorCode = "NO_CANDIDATES"
	CodeNoAnswers     ErrorCode = "NO_ANSWERS"
	CodeInvalidInput  ErrorCode = "INVALID_INPUT"
	CodeRateLimited   ErrorCode = "RATE_LIMITED"
	CodeNotFound      ErrorCode = "NOT_FOUND"
	CodeInvalidAction ErrorCode = "INVALID_TRANSITION"

	// partial failure
	CodePopulateFailed ErrorCode = "POPULATE_FAILED"

	// integrity
	CodeMissingAttribution  ErrorCode = "MISSING_ATTRIBUTION"
	CodeFingerprintMismatch ErrorCode = "FINGERPRINT_MISMATCH"
	CodeVersionRegression   ErrorCode = "VERSION_REGRESSION"
	CodeInternal            ErrorCode = "INTERNAL"
)

// Category groups codes by how a caller should react.
type Category string

const (
	CategoryAdmission Category = "admission"
	CategoryNotReady  Category = "not_ready"
	CategoryInput     Category = "input"
	CategoryPartial   Category = "partial_failure"
	CategoryIntegrity Category = "integrity"
)

func (c ErrorCode) Category() Category {
	switch c {
	case CodeAlreadyGenerating:
		return CategoryAdmission
	case CodeDraftNotReady, CodeIllustrationsNotReady:
		return CategoryNotReady
	case CodeNoCandidates, CodeNoAnswers, CodeInvalidInput, CodeRateLimited, CodeNotFound, CodeInvalidAction:
		return CategoryInput
	case CodePopulateFailed:
		return CategoryPartial
	default:
		return CategoryIntegrity
	}
}

// Retryable reports whether the same call may succeed later without user action.
// ALREADY_GENERATING is not retryable: the caller should poll the running version instead.
func (c ErrorCode) Retryable() bool {
	switch c {
	case CodeDraftNotReady, CodeIllustrationsNotReady, CodePopulateFailed, CodeRateLimited:
		return true
	default:
		return false
	}
}

type Error struct {
	Code    ErrorCode
	Message string
	Cause   error
}

func (e *Error) Error() string {
	if e == nil {
		return "<nil>"
	}
	msg := strings.TrimSpace(e.Message)
	if msg == "" && e.Cause != nil {
		msg = e.Cause.Error()
	}
	if msg == "" {
		return string(e.Code)
	}
	return fmt.Sprintf("%s: %s", e.Code, msg)
}

func (e *Error) Unwrap() error { return e.Cause }

func (e *Error) Retryable() bool {
	if e == nil {
		return false
	}
	return e.Code.Retryable()
}

func NewError(code ErrorCode, message string, cause error) *Error {
	return &Error{Code: code, Message: strings.TrimSpace(message), Cause: cause}
}

func Errorf(code ErrorCode, format string, args ...any) *Error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...)}
}

// AsError extracts a *Error from err's chain.
func AsError(err error) (*Error, bool) {
	var se *Error
	if errors.As(err, &se) {
		return se, true
	}
	return nil, false
}

func IsCode(err error, code ErrorCode) bool {
	se, ok := AsError(err)
	return ok && se.Code == code
}

func CodeOf(err error) ErrorCode {
	se, ok := AsError(err)
	if !ok {
		return ""
	}
	return se.Code
}

// UserMessage is the text shown to end users for a failure.
func UserMessage(err error) string {
	se, ok := AsError(err)
	if !ok {
		return "Something went wrong. Please try again shortly."
	}
	switch se.Code {
	case CodeAlreadyGenerating:
		return "Generation is already in progress for this chapter."
	case CodeNoAnswers:
		return "Answer more questions first, then generate the draft."
	case CodeNoCandidates:
		return "No suitable images were found. Try different slot descriptions."
	case CodeInvalidInput, CodeNotFound, CodeInvalidAction:
		return se.Error()
	}
	if se.Retryable() {
		return "Not ready yet. Please try again shortly."
	}
	return "Something went wrong. Please try again shortly."
}
