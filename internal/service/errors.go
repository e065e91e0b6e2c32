package service

import (
	"errors"
	"fmt"
)

// Kind classifies a failure for callers; the API maps it to a status code.
type Kind string

const (
	KindValidation     Kind = "validation"
	KindNotFound       Kind = "not_found"
	KindConflict       Kind = "conflict"
	KindInfrastructure Kind = "infrastructure"
)

// Machine readable error codes
const (
	CodeInvalidInput         = "invalid_input"
	CodeEmptyOrder           = "empty_order"
	CodeInvalidQuantity      = "invalid_quantity"
	CodeInvalidPaymentMethod = "invalid_payment_method"
	CodeInvalidStatus        = "invalid_status"
	CodeProductNotFound      = "product_not_found"
	CodeOrderNotFound        = "order_not_found"
	CodeCustomerNotFound     = "customer_not_found"
	CodeInsufficientStock    = "insufficient_stock"
	CodeStockUnavailable     = "stock_unavailable"
	CodePriceChanged         = "price_changed"
	CodeDuplicatePhone       = "duplicate_phone"
	CodeInvalidTransition    = "invalid_transition"
	CodeRequestInProgress    = "request_in_progress"
	CodeIdempotencyKeyReused = "idempotency_key_reused"
	CodeOrderFailed          = "order_failed"
	CodeStoreFailure         = "store_failure"
)

// Error is a typed business or infrastructure failure
type Error struct {
	Kind      Kind
	Code      string
	Message   string
	ProductID int64
	Err       error
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e == nil {
		return ""
	}
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap exposes the underlying error, if any.
func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// KindOf reports the kind of err. Untyped errors count as infrastructure.
func KindOf(err error) Kind {
	if err == nil {
		return ""
	}
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindInfrastructure
}

// CodeOf reports the code of err, or CodeStoreFailure for untyped errors.
func CodeOf(err error) string {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return CodeStoreFailure
}

func validationError(code, format string, args ...interface{}) *Error {
	return &Error{Kind: KindValidation, Code: code, Message: fmt.Sprintf(format, args...)}
}

func notFoundError(code, format string, args ...interface{}) *Error {
	return &Error{Kind: KindNotFound, Code: code, Message: fmt.Sprintf(format, args...)}
}

func conflictError(code, format string, args ...interface{}) *Error {
	return &Error{Kind: KindConflict, Code: code, Message: fmt.Sprintf(format, args...)}
}

func infraError(code string, err error, format string, args ...interface{}) *Error {
	return &Error{Kind: KindInfrastructure, Code: code, Message: fmt.Sprintf(format, args...), Err: err}
}
