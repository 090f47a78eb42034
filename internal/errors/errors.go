// Package errors provides coded domain errors for the shelf cache.
//
// Every failure the cache reports is local and recoverable; callers decide whether
// to retry. Use errors.Is against the sentinels to branch on the failure class:
//
//	view, err := svc.SaveOrder(ctx, shelfID)
//	if errors.Is(err, errors.ErrReorderCommit) {
//	    // arrangement is still pending, offer retry or cancel
//	}
//
// Or inspect the Code directly:
//
//	var domainErr *errors.Error
//	if errors.As(err, &domainErr) {
//	    switch domainErr.Code {
//	    case errors.CodeAlreadySaving:
//	        ...
//	    }
//	}
package errors

import (
	"errors"
	"fmt"
	"net/http"
)

// Code represents a machine-readable error code.
type Code string

// Error codes used throughout the cache.
const (
	CodeNotFound       Code = "NOT_FOUND"
	CodeValidation     Code = "VALIDATION"
	CodeForbidden      Code = "FORBIDDEN"
	CodeConflict       Code = "CONFLICT"
	CodeInternal       Code = "INTERNAL"
	CodeRateLimited    Code = "RATE_LIMITED"
	CodeTransientFetch Code = "TRANSIENT_FETCH" // network/backend failure fetching a shelf or page
	CodeReorderCommit  Code = "REORDER_COMMIT"  // backend refused or failed a reorder commit
	CodeAlreadySaving  Code = "ALREADY_SAVING"  // a reorder save is already in flight
	CodeNotEditing     Code = "NOT_EDITING"     // reorder operation outside an edit session
)

// HTTPStatus returns the appropriate HTTP status code for an error code.
func (c Code) HTTPStatus() int {
	switch c {
	case CodeNotFound:
		return http.StatusNotFound
	case CodeValidation:
		return http.StatusBadRequest
	case CodeForbidden:
		return http.StatusForbidden
	case CodeConflict, CodeAlreadySaving, CodeNotEditing:
		return http.StatusConflict
	case CodeTransientFetch, CodeReorderCommit:
		return http.StatusBadGateway
	case CodeRateLimited:
		return http.StatusTooManyRequests
	default:
		return http.StatusInternalServerError
	}
}

// Error is a domain error with a code, message, and optional details.
type Error struct {
	Code    Code   `json:"code"`
	Message string `json:"message"`
	Details any    `json:"details,omitempty"`
	cause   error
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.cause)
	}
	return e.Message
}

// Unwrap returns the underlying error.
func (e *Error) Unwrap() error {
	return e.cause
}

// Is reports whether target matches this error.
// Matches if target is an *Error with the same Code.
func (e *Error) Is(target error) bool {
	var t *Error
	if errors.As(target, &t) {
		return e.Code == t.Code
	}
	return false
}

// HTTPStatus returns the HTTP status code for this error.
func (e *Error) HTTPStatus() int {
	return e.Code.HTTPStatus()
}

// WithDetails returns a new error with additional details.
func (e *Error) WithDetails(details any) *Error {
	return &Error{
		Code:    e.Code,
		Message: e.Message,
		Details: details,
		cause:   e.cause,
	}
}

// WithCause wraps an underlying error.
func (e *Error) WithCause(err error) *Error {
	return &Error{
		Code:    e.Code,
		Message: e.Message,
		Details: e.Details,
		cause:   err,
	}
}

// Sentinel errors for use with errors.Is().
var (
	ErrNotFound       = &Error{Code: CodeNotFound, Message: "not found"}
	ErrValidation     = &Error{Code: CodeValidation, Message: "validation error"}
	ErrForbidden      = &Error{Code: CodeForbidden, Message: "forbidden"}
	ErrConflict       = &Error{Code: CodeConflict, Message: "conflict"}
	ErrInternal       = &Error{Code: CodeInternal, Message: "internal error"}
	ErrTransientFetch = &Error{Code: CodeTransientFetch, Message: "fetch failed"}
	ErrReorderCommit  = &Error{Code: CodeReorderCommit, Message: "reorder commit failed"}
	ErrAlreadySaving  = &Error{Code: CodeAlreadySaving, Message: "already saving"}
	ErrNotEditing     = &Error{Code: CodeNotEditing, Message: "no reorder in progress"}
)

// NotFound creates a not found error.
func NotFound(msg string) *Error {
	return &Error{Code: CodeNotFound, Message: msg}
}

// NotFoundf creates a not found error with formatted message.
func NotFoundf(format string, args ...any) *Error {
	return &Error{Code: CodeNotFound, Message: fmt.Sprintf(format, args...)}
}

// Validation creates a validation error.
func Validation(msg string) *Error {
	return &Error{Code: CodeValidation, Message: msg}
}

// Validationf creates a validation error with formatted message.
func Validationf(format string, args ...any) *Error {
	return &Error{Code: CodeValidation, Message: fmt.Sprintf(format, args...)}
}

// ValidationWithDetails creates a validation error with details.
func ValidationWithDetails(msg string, details any) *Error {
	return &Error{Code: CodeValidation, Message: msg, Details: details}
}

// Forbidden creates a forbidden error.
func Forbidden(msg string) *Error {
	return &Error{Code: CodeForbidden, Message: msg}
}

// Conflictf creates a conflict error with formatted message.
func Conflictf(format string, args ...any) *Error {
	return &Error{Code: CodeConflict, Message: fmt.Sprintf(format, args...)}
}

// TransientFetch wraps a backend failure while fetching a shelf or a page.
func TransientFetch(err error, format string, args ...any) *Error {
	return &Error{Code: CodeTransientFetch, Message: fmt.Sprintf(format, args...), cause: err}
}

// ReorderCommit wraps a failed reorder commit.
func ReorderCommit(err error, shelfID string) *Error {
	return &Error{Code: CodeReorderCommit, Message: "reorder commit failed for shelf " + shelfID, cause: err}
}

// AlreadySavingf reports a rejected overlapping save.
func AlreadySavingf(format string, args ...any) *Error {
	return &Error{Code: CodeAlreadySaving, Message: fmt.Sprintf(format, args...)}
}

// NotEditingf reports a reorder operation without an edit session.
func NotEditingf(format string, args ...any) *Error {
	return &Error{Code: CodeNotEditing, Message: fmt.Sprintf(format, args...)}
}

// Wrap wraps an error with a code and message.
func Wrap(err error, code Code, msg string) *Error {
	return &Error{Code: code, Message: msg, cause: err}
}

// AsError extracts the first *Error in err's chain.
func AsError(err error) (*Error, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e, true
	}
	return nil, false
}

// CodeOf returns the code of the first *Error in err's chain, or CodeInternal.
func CodeOf(err error) Code {
	if e, ok := AsError(err); ok {
		return e.Code
	}
	return CodeInternal
}
