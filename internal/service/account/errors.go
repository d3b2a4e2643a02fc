package account

import "errors"

// Code classifies an account operation failure. Every failure the service
// returns carries exactly one code; the transport layer maps codes to
// statuses without inspecting causes.
type Code string

const (
	CodeValidation  Code = "validation"
	CodeCredentials Code = "credentials"
	CodeDuplicate   Code = "duplicate"
	CodeDatabase    Code = "database"
)

// Error tags a failure with its taxonomy code. Expected failures
// (validation, credentials, duplicate) flow through this type rather than
// panics or bare sentinel strings; database wraps the underlying store fault
// as its cause.
type Error struct {
	code  Code
	cause error
}

// NewError builds a tagged error. cause may be nil.
func NewError(code Code, cause error) *Error {
	return &Error{code: code, cause: cause}
}

// Code returns the taxonomy code.
func (e *Error) Code() Code { return e.code }

// Message returns the short machine-checkable form without internal detail.
func (e *Error) Message() string { return string(e.code) + " error" }

func (e *Error) Error() string {
	if e.cause != nil {
		return e.Message() + ": " + e.cause.Error()
	}
	return e.Message()
}

// Unwrap exposes the cause for errors.Is/As chains.
func (e *Error) Unwrap() error { return e.cause }

// Is matches any *Error with the same code, so
// errors.Is(err, account.NewError(account.CodeDuplicate, nil)) holds for all
// duplicate failures regardless of cause.
func (e *Error) Is(target error) bool {
	var t *Error
	if !errors.As(target, &t) {
		return false
	}
	return t.code == e.code
}

// CodeOf extracts the taxonomy code from err, or ok=false when err is not a
// tagged account error.
func CodeOf(err error) (Code, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e.code, true
	}
	return "", false
}
