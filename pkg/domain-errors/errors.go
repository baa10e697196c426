// Package domainerrors defines the error taxonomy shared by services, stores and transports.
//
// Services return *Error values carrying a Code; the HTTP layer maps codes to status
// codes via HTTPStatus. Infrastructure facts (not found, conflict) travel as
// pkg/platform/sentinel errors until a service translates them.
package domainerrors

import (
	"errors"
	"net/http"
)

// Code classifies an error for callers and transports.
type Code string

const (
	CodeValidation         Code = "validation_error"
	CodeBadRequest         Code = "bad_request"
	CodeInvalidInput       Code = "invalid_input"
	CodeUnauthorized       Code = "unauthorized"
	CodeForbidden          Code = "forbidden"
	CodeNotFound           Code = "not_found"
	CodeConflict           Code = "conflict"
	CodeInvariantViolation Code = "invariant_violation"
	CodeTimeout            Code = "timeout"
	CodeUnavailable        Code = "datastore_unavailable"
	CodeInternal           Code = "internal_error"

	// Reference lifecycle rule violations. Surfaced verbatim, never retried automatically.
	CodeInvalidTransition      Code = "invalid_transition"
	CodeNotCurrentHolder       Code = "not_current_holder"
	CodeEmptyHolderSet         Code = "empty_holder_set"
	CodeReopenAlreadyPending   Code = "reopen_already_pending"
	CodeConcurrentModification Code = "concurrent_modification"
)

// Error is the domain error carried across layers.
type Error struct {
	Code    Code
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil && e.Message == "" {
		return e.Err.Error()
	}
	if e.Err != nil {
		return e.Message + ": " + e.Err.Error()
	}
	return e.Message
}

func (e *Error) Unwrap() error {
	return e.Err
}

// New creates a domain error with the given code and message.
func New(code Code, message string) error {
	return &Error{Code: code, Message: message}
}

// Wrap attaches a code and message to an underlying error.
func Wrap(err error, code Code, message string) error {
	if err == nil {
		return nil
	}
	return &Error{Code: code, Message: message, Err: err}
}

// As extracts the outermost *Error from an error chain.
func As(err error) (*Error, bool) {
	var de *Error
	if errors.As(err, &de) {
		return de, true
	}
	return nil, false
}

// CodeOf returns the code of the outermost domain error, or CodeInternal.
func CodeOf(err error) Code {
	if de, ok := As(err); ok {
		return de.Code
	}
	return CodeInternal
}

// HasCode reports whether any domain error in the chain carries code.
func HasCode(err error, code Code) bool {
	for err != nil {
		var de *Error
		if !errors.As(err, &de) {
			return false
		}
		if de.Code == code {
			return true
		}
		err = de.Err
	}
	return false
}

// Is is an alias of HasCode kept for call-site readability.
func Is(err error, code Code) bool {
	return HasCode(err, code)
}

// Retryable reports whether the caller may retry the operation after refetching state.
func Retryable(code Code) bool {
	switch code {
	case CodeConcurrentModification, CodeTimeout, CodeUnavailable:
		return true
	default:
		return false
	}
}

// HTTPStatus maps a code to the HTTP status used by the API boundary.
func HTTPStatus(code Code) int {
	switch code {
	case CodeValidation, CodeBadRequest, CodeInvalidInput, CodeEmptyHolderSet:
		return http.StatusBadRequest
	case CodeUnauthorized:
		return http.StatusUnauthorized
	case CodeForbidden, CodeNotCurrentHolder:
		return http.StatusForbidden
	case CodeNotFound:
		return http.StatusNotFound
	case CodeConflict, CodeInvalidTransition, CodeReopenAlreadyPending, CodeConcurrentModification:
		return http.StatusConflict
	case CodeTimeout, CodeUnavailable:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}
