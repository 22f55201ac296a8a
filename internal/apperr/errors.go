package apperr

import (
	"errors"
	"fmt"
	"net/http"
)

// Kind categorizes a failure for callers and transports.
type Kind string

const (
	KindValidation      Kind = "validation"
	KindAuthorization   Kind = "authorization"
	KindConflict        Kind = "conflict"
	KindNotFound        Kind = "not_found"
	KindPaymentDeclined Kind = "payment_declined"
	KindInternal        Kind = "internal"
	// KindFatal means money moved but status did not commit. Needs manual reconciliation.
	KindFatal Kind = "fatal"
)

// Error is the error type returned by every service operation.
type Error struct {
	Kind    Kind
	Op      string
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		if e.Message != "" {
			return fmt.Sprintf("%s: %s: %v", e.Op, e.Message, e.Err)
		}
		return fmt.Sprintf("%s: %v", e.Op, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Op, e.Message)
}

func (e *Error) Unwrap() error { return e.Err }

// Is matches on Kind so errors.Is(err, apperr.Conflict) works.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Op == "" && t.Message == "" && t.Err == nil && t.Kind == e.Kind
}

// Sentinels for errors.Is checks.
var (
	Validation      = &Error{Kind: KindValidation}
	Authorization   = &Error{Kind: KindAuthorization}
	Conflict        = &Error{Kind: KindConflict}
	NotFound        = &Error{Kind: KindNotFound}
	PaymentDeclined = &Error{Kind: KindPaymentDeclined}
	Fatal           = &Error{Kind: KindFatal}
)

func New(kind Kind, op, message string) *Error {
	return &Error{Kind: kind, Op: op, Message: message}
}

func Wrap(kind Kind, op string, err error) *Error {
	return &Error{Kind: kind, Op: op, Err: err}
}

func Validationf(op, format string, args ...interface{}) *Error {
	return New(KindValidation, op, fmt.Sprintf(format, args...))
}

func Conflictf(op, format string, args ...interface{}) *Error {
	return New(KindConflict, op, fmt.Sprintf(format, args...))
}

func NotFoundf(op, format string, args ...interface{}) *Error {
	return New(KindNotFound, op, fmt.Sprintf(format, args...))
}

func Forbidden(op, message string) *Error {
	return New(KindAuthorization, op, message)
}

// KindOf returns the kind of the first *Error in the chain, or KindInternal.
func KindOf(err error) Kind {
	if err == nil {
		return ""
	}
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindInternal
}

// HTTPStatus maps an error to a response status and machine readable code.
func HTTPStatus(err error) (int, string) {
	switch KindOf(err) {
	case KindValidation:
		return http.StatusBadRequest, "INVALID_ARGUMENT"
	case KindAuthorization:
		return http.StatusForbidden, "FORBIDDEN"
	case KindConflict:
		return http.StatusConflict, "CONFLICT"
	case KindNotFound:
		return http.StatusNotFound, "NOT_FOUND"
	case KindPaymentDeclined:
		return http.StatusPaymentRequired, "PAYMENT_DECLINED"
	case KindFatal:
		return http.StatusInternalServerError, "manual_reconciliation_required"
	default:
		return http.StatusInternalServerError, "INTERNAL"
	}
}

// Message returns the user facing message for err.
func Message(err error) string {
	var e *Error
	if errors.As(err, &e) {
		if e.Kind == KindFatal {
			return "operation requires manual reconciliation; support has been notified"
		}
		if e.Message != "" {
			return e.Message
		}
	}
	if KindOf(err) == KindInternal {
		return "internal error"
	}
	return err.Error()
}
