package domain

import (
	"fmt"
	"net/http"
)

// ErrorKind classifies a payment error. One tagged type with a kind field
// replaces a class hierarchy; kinds map to HTTP statuses through one table.
type ErrorKind string

const (
	ErrKindValidation             ErrorKind = "validation"
	ErrKindPinRequired            ErrorKind = "pin_required"
	ErrKindPinInvalid             ErrorKind = "pin_invalid"
	ErrKindNotFound               ErrorKind = "not_found"
	ErrKindGatewayTimeout         ErrorKind = "gateway_timeout"
	ErrKindGatewayRejected        ErrorKind = "gateway_rejected"
	ErrKindReconciliationRequired ErrorKind = "reconciliation_required"
	ErrKindConcurrencyConflict    ErrorKind = "concurrency_conflict"
	ErrKindConflict               ErrorKind = "conflict"
	ErrKindInternal               ErrorKind = "internal"
)

// Error is the single error type crossing the payment service's boundaries.
type Error struct {
	Kind    ErrorKind
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error { return e.Err }

// Is lets errors.Is match on kind: errors.Is(err, &Error{Kind: ErrKindNotFound}).
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return e.Kind == t.Kind
}

// NewError builds an Error of the given kind.
func NewError(kind ErrorKind, message string, cause error) *Error {
	return &Error{Kind: kind, Message: message, Err: cause}
}

var httpStatusByKind = map[ErrorKind]int{
	ErrKindValidation:             http.StatusBadRequest,
	ErrKindPinRequired:            http.StatusUnauthorized,
	ErrKindPinInvalid:             http.StatusUnauthorized,
	ErrKindNotFound:               http.StatusNotFound,
	ErrKindGatewayTimeout:         http.StatusGatewayTimeout,
	ErrKindGatewayRejected:        http.StatusBadGateway,
	ErrKindReconciliationRequired: http.StatusConflict,
	ErrKindConcurrencyConflict:    http.StatusConflict,
	ErrKindConflict:               http.StatusConflict,
	ErrKindInternal:               http.StatusInternalServerError,
}

// HTTPStatus returns the HTTP status code for this error's kind.
func (e *Error) HTTPStatus() int {
	if code, ok := httpStatusByKind[e.Kind]; ok {
		return code
	}
	return http.StatusInternalServerError
}
