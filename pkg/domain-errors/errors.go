// Package domainerrors carries coded errors from services to transports.
//
// Stores return sentinel errors (see pkg/platform/sentinel); services translate
// them into a Code that transports map onto status codes. The code is the
// stable, client-visible part of an error; the message is human readable.
package domainerrors

import (
	"errors"
	"fmt"
)

// Code classifies a domain error.
type Code string

const (
	CodeBadRequest           Code = "bad_request"
	CodeValidation           Code = "validation_error"
	CodeNotFound             Code = "not_found"
	CodeConstraintViolation  Code = "constraint_violation"
	CodeDuplicateSubmission  Code = "duplicate_submission_id"
	CodeIncompleteSubmission Code = "incomplete_submission"
	CodeFileMove             Code = "file_move_error"
	CodeStoreUnavailable     Code = "store_unavailable"
	CodeStoreBusy            Code = "store_busy"
	CodeRateLimited          Code = "rate_limited"
	CodeTimeout              Code = "timeout"
	CodeInternal             Code = "internal_error"
)

// Error is a coded error with an optional cause.
type Error struct {
	Code    Code
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// New builds a coded error without a cause.
func New(code Code, message string) error {
	return &Error{Code: code, Message: message}
}

// Wrap attaches a code and message to err. A nil err yields a plain coded error.
func Wrap(err error, code Code, message string) error {
	return &Error{Code: code, Message: message, Err: err}
}

// As returns the outermost coded error in err's chain.
func As(err error) (*Error, bool) {
	var de *Error
	if errors.As(err, &de) {
		return de, true
	}
	return nil, false
}

// CodeOf returns the code of the outermost coded error, or CodeInternal.
func CodeOf(err error) Code {
	if de, ok := As(err); ok {
		return de.Code
	}
	return CodeInternal
}

// HasCode reports whether err carries code at its outermost coded layer.
func HasCode(err error, code Code) bool {
	de, ok := As(err)
	return ok && de.Code == code
}
