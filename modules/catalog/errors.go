package catalog

import (
	"errors"
	"fmt"

	"github.com/example/store-db/modules/database"
)

// Kind classifies a catalog error. Callers switch on it to decide whether to
// wait (Unavailable), retry (Operation) or change the request (Business).
type Kind string

const (
	KindUnavailable Kind = "unavailable"
	KindOperation   Kind = "operation_failed"
	KindBusiness    Kind = "business_rule"

	// KindRateLimited is only produced by transport middleware, never by Service.
	KindRateLimited Kind = "rate_limited"
)

// Stable error codes.
const (
	CodeUnavailable           = "database_unavailable"
	CodeOperationFailed       = "operation_failed"
	CodeConstraintViolation   = "constraint_violation"
	CodeConnectionLost        = "connection_lost"
	CodeProductNotFound       = "product_not_found"
	CodeInsufficientInventory = "insufficient_inventory"
	CodeInvalidQuantity       = "invalid_quantity"
	CodeInvalidCustomer       = "invalid_customer"
	CodeInvalidProduct        = "invalid_product"
	CodeInvalidPagination     = "invalid_pagination"
	CodeRateLimited           = "rate_limited"
)

// Error is the single error type returned by catalog operations.
type Error struct {
	Kind    Kind
	Op      string
	Code    string
	State   database.State
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Message != "" {
		return e.Message
	}
	if e.Err != nil {
		return e.Err.Error()
	}
	return e.Code
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is matches sentinel errors by kind and, when the sentinel has one, code.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Kind == e.Kind && (t.Code == "" || t.Code == e.Code)
}

// Sentinels for errors.Is.
var (
	ErrUnavailable           = &Error{Kind: KindUnavailable}
	ErrOperationFailed       = &Error{Kind: KindOperation}
	ErrBusinessRule          = &Error{Kind: KindBusiness}
	ErrProductNotFound       = &Error{Kind: KindBusiness, Code: CodeProductNotFound}
	ErrInsufficientInventory = &Error{Kind: KindBusiness, Code: CodeInsufficientInventory}
	ErrInvalidQuantity       = &Error{Kind: KindBusiness, Code: CodeInvalidQuantity}
	ErrInvalidCustomer       = &Error{Kind: KindBusiness, Code: CodeInvalidCustomer}
	ErrInvalidProduct        = &Error{Kind: KindBusiness, Code: CodeInvalidProduct}
	ErrInvalidPagination     = &Error{Kind: KindBusiness, Code: CodeInvalidPagination}
)

// KindOf returns the kind of err, or "" when err is nil or not a catalog error.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ""
}

// CodeOf returns the code of err, or "" when err is not a catalog error.
func CodeOf(err error) string {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return ""
}

func businessError(op, code, format string, args ...any) *Error {
	return &Error{Kind: KindBusiness, Op: op, Code: code, Message: fmt.Sprintf(format, args...)}
}

func productNotFound(op string, id uint) *Error {
	return businessError(op, CodeProductNotFound, "Product with id %d not found.", id)
}

func insufficientInventory(op string, name string, available, requested int) *Error {
	return businessError(op, CodeInsufficientInventory,
		"Not enough inventory for product '%s'. Available: %d, Requested: %d", name, available, requested)
}

// translate maps any error escaping a unit of work onto the taxonomy.
// Business errors pass through unchanged.
func translate(op string, err error) error {
	if err == nil {
		return nil
	}

	var catalogErr *Error
	if errors.As(err, &catalogErr) {
		return catalogErr
	}

	var unavailable *database.UnavailableError
	if errors.As(err, &unavailable) {
		return &Error{
			Kind:    KindUnavailable,
			Op:      op,
			Code:    CodeUnavailable,
			State:   unavailable.State,
			Message: unavailable.Error(),
			Err:     err,
		}
	}

	code := CodeOperationFailed
	if _, ok := database.ConstraintViolation(err); ok {
		code = CodeConstraintViolation
	} else if database.IsConnectionError(err) {
		code = CodeConnectionLost
	}
	return &Error{
		Kind:    KindOperation,
		Op:      op,
		Code:    code,
		Message: fmt.Sprintf("Database operation failed: %v", err),
		Err:     err,
	}
}
