// Package apierrors defines the error taxonomy every layer of the core
// produces, and the HTTP status it maps to at the API boundary.
package apierrors

import (
	"fmt"
	"net/http"
)

type Kind string

const (
	KindInvalidArgument   Kind = "InvalidArgument"
	KindAccessDenied      Kind = "AccessDenied"
	KindNotFound          Kind = "NotFound"
	KindConflict          Kind = "Conflict"
	KindInsufficientFunds Kind = "InsufficientFunds"
	KindAgeRestriction    Kind = "AgeRestriction"
	KindAlreadyFinished   Kind = "AlreadyFinished"
	KindInternal          Kind = "Internal"
)

var httpStatus = map[Kind]int{
	KindInvalidArgument:   http.StatusBadRequest,
	KindAccessDenied:      http.StatusForbidden,
	KindNotFound:          http.StatusNotFound,
	KindConflict:          http.StatusConflict,
	KindInsufficientFunds: http.StatusUnprocessableEntity,
	KindAgeRestriction:    http.StatusUnprocessableEntity,
	KindAlreadyFinished:   http.StatusUnprocessableEntity,
	KindInternal:          http.StatusInternalServerError,
}

// Error is the structured error every service method returns. Fields is
// the set of context data named by spec §7 (needed_fund, available_fund,
// product_ids, ...); it is marshaled as-is into the API error payload.
type Error struct {
	Kind    Kind
	Message string
	Fields  map[string]interface{}
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) HTTPStatus() int {
	if status, ok := httpStatus[e.Kind]; ok {
		return status
	}
	return http.StatusInternalServerError
}

func New(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

func Newf(kind Kind, format string, args ...interface{}) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

func (e *Error) WithField(key string, value interface{}) *Error {
	if e.Fields == nil {
		e.Fields = make(map[string]interface{})
	}
	e.Fields[key] = value
	return e
}

func InvalidArgument(format string, args ...interface{}) *Error {
	return Newf(KindInvalidArgument, format, args...)
}

func AccessDenied(format string, args ...interface{}) *Error {
	return Newf(KindAccessDenied, format, args...)
}

func NotFound(format string, args ...interface{}) *Error {
	return Newf(KindNotFound, format, args...)
}

func Conflict(format string, args ...interface{}) *Error {
	return Newf(KindConflict, format, args...)
}

func InsufficientFunds(needed, available string) *Error {
	return New(KindInsufficientFunds, "customer balance below order sum").
		WithField("needed_fund", needed).
		WithField("available_fund", available)
}

func AgeRestriction(productIDs []int64) *Error {
	return New(KindAgeRestriction, "one or more products are restricted for this customer's tag").
		WithField("product_ids", productIDs)
}

func AlreadyFinished(orderID int64) *Error {
	return Newf(KindAlreadyFinished, "order %d is not pending", orderID).
		WithField("order_id", orderID)
}

func Internal(err error) *Error {
	if err == nil {
		return New(KindInternal, "unexpected internal error")
	}
	return New(KindInternal, err.Error())
}

// As extracts an *Error, recognising it the way errors.As would but without
// pulling in a wrapped-cause chain — every service method constructs these
// directly rather than wrapping foreign errors into this taxonomy.
func As(err error) (*Error, bool) {
	e, ok := err.(*Error)
	return e, ok
}
