// Package apperr defines the typed failures the scheduling and
// reservation engines return.  Every error carries a Kind (used to pick
// the HTTP status) and a stable Code that clients can branch on.
package apperr

import (
	"errors"
	"fmt"
	"net/http"
)

// Kind groups error codes that share transport semantics.
type Kind int

const (
	KindInternal Kind = iota
	KindNotFound
	KindValidation
	KindConflict
	KindCapacity
	KindInvalidState
	KindTimeWindow
	KindForbidden
)

func (k Kind) String() string {
	switch k {
	case KindNotFound:
		return "not_found"
	case KindValidation:
		return "validation"
	case KindConflict:
		return "conflict"
	case KindCapacity:
		return "capacity"
	case KindInvalidState:
		return "invalid_state"
	case KindTimeWindow:
		return "time_window"
	case KindForbidden:
		return "forbidden"
	case KindInternal:
		return "internal"
	}
	return "unknown"
}

// Stable codes exposed to clients.
const (
	CodeNotFound              = "NOT_FOUND"
	CodeValidation            = "VALIDATION_ERROR"
	CodeScheduleConflict      = "SCHEDULE_CONFLICT"
	CodeScreeningHasPurchases = "SCREENING_HAS_PURCHASES"
	CodeCapacityExceeded      = "CAPACITY_EXCEEDED"
	CodeAlreadyPaid           = "PURCHASE_ALREADY_PAID"
	CodeAlreadyCancelled      = "PURCHASE_ALREADY_CANCELLED"
	CodeScreeningStarted      = "SCREENING_ALREADY_STARTED"
	CodeNotPaid               = "PURCHASE_NOT_PAID"
	CodeForbidden             = "FORBIDDEN"
	CodeInternal              = "INTERNAL_ERROR"
)

// Error is the single concrete error type of the package.
type Error struct {
	Kind    Kind
	Code    string
	Message string
	Details map[string]any
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s (caused by: %v)", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error { return e.Err }

// Is matches another *Error by code, so callers can write
// errors.Is(err, apperr.New(apperr.KindCapacity, apperr.CodeCapacityExceeded, "")).
func (e *Error) Is(target error) bool {
	var t *Error
	if !errors.As(target, &t) {
		return false
	}
	return t.Code == e.Code
}

// HTTPStatus maps the kind to a response status.
func (e *Error) HTTPStatus() int {
	switch e.Kind {
	case KindNotFound:
		return http.StatusNotFound
	case KindValidation:
		return http.StatusUnprocessableEntity
	case KindConflict, KindCapacity, KindInvalidState, KindTimeWindow:
		return http.StatusConflict
	case KindForbidden:
		return http.StatusForbidden
	}
	return http.StatusInternalServerError
}

// WithDetails attaches structured context and returns e.
func (e *Error) WithDetails(details map[string]any) *Error {
	e.Details = details
	return e
}

func New(kind Kind, code, message string) *Error {
	return &Error{Kind: kind, Code: code, Message: message}
}

func NotFound(resource string, id uint64) *Error {
	return &Error{
		Kind:    KindNotFound,
		Code:    CodeNotFound,
		Message: fmt.Sprintf("%s not found", resource),
		Details: map[string]any{"resource": resource, "id": id},
	}
}

func Validation(message string, details map[string]any) *Error {
	return &Error{Kind: KindValidation, Code: CodeValidation, Message: message, Details: details}
}

func Conflict(code, message string) *Error {
	return &Error{Kind: KindConflict, Code: code, Message: message}
}

func Capacity(requested int, remaining uint32) *Error {
	return &Error{
		Kind:    KindCapacity,
		Code:    CodeCapacityExceeded,
		Message: "not enough seats left for this screening",
		Details: map[string]any{"requested": requested, "remaining": remaining},
	}
}

// InvalidState reports a transition attempted from a terminal status.
// The code names the current status so "already paid" and "already
// cancelled" stay distinguishable.
func InvalidState(current string) *Error {
	e := &Error{Kind: KindInvalidState, Details: map[string]any{"current_status": current}}
	switch current {
	case "PAID":
		e.Code = CodeAlreadyPaid
		e.Message = "purchase already paid"
	case "CANCELLED":
		e.Code = CodeAlreadyCancelled
		e.Message = "purchase already cancelled"
	default:
		e.Code = "PURCHASE_INVALID_STATE"
		e.Message = fmt.Sprintf("purchase is %s", current)
	}
	return e
}

func TimeWindow(message string) *Error {
	return &Error{Kind: KindTimeWindow, Code: CodeScreeningStarted, Message: message}
}

func Forbidden(message string) *Error {
	return &Error{Kind: KindForbidden, Code: CodeForbidden, Message: message}
}

// Internal wraps an unexpected failure.  The cause is kept for logging
// and never rendered to clients.
func Internal(message string, err error) *Error {
	return &Error{Kind: KindInternal, Code: CodeInternal, Message: message, Err: err}
}

// From returns err as an *Error, wrapping anything else as Internal.
func From(err error) *Error {
	if err == nil {
		return nil
	}
	var e *Error
	if errors.As(err, &e) {
		return e
	}
	return Internal("internal error", err)
}

// KindOf returns the kind of err, KindInternal for foreign errors.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindInternal
}

// CodeOf returns the code of err, or "" when err is nil.
func CodeOf(err error) string {
	if err == nil {
		return ""
	}
	return From(err).Code
}
