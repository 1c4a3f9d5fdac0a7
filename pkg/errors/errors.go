package errors

import (
	stdErrors "errors"
	"fmt"
	"net/http"
)

type Code string

const (
	CodeValidation             Code = "VALIDATION_ERROR"
	CodeNotFound               Code = "NOT_FOUND"
	CodeConflict               Code = "CONFLICT"
	CodeInvalidTransition      Code = "INVALID_TRANSITION"
	CodeQuantityInvariant      Code = "QUANTITY_INVARIANT_VIOLATION"
	CodeInsufficientFunds      Code = "INSUFFICIENT_FUNDS"
	CodeCurrencyMismatch       Code = "CURRENCY_MISMATCH"
	CodeIdempotencyConflict    Code = "IDEMPOTENCY_CONFLICT"
	CodeIncompleteReceipt      Code = "INCOMPLETE_RECEIPT"
	CodePaymentPolicyViolation Code = "PAYMENT_POLICY_VIOLATION"
	CodeCancellationNotAllowed Code = "CANCELLATION_NOT_ALLOWED"
	CodePersistence            Code = "PERSISTENCE_ERROR"
	CodeTimeout                Code = "TIMEOUT"
	CodeInternal               Code = "INTERNAL_ERROR"
	CodeDependency             Code = "DEPENDENCY_ERROR"
)

type Metadata struct {
	HTTPStatus     int
	Retryable      bool
	PublicMessage  string
	DetailsAllowed bool
}

var metadataByCode = map[Code]Metadata{
	CodeValidation: {
		HTTPStatus:     http.StatusBadRequest,
		PublicMessage:  "validation failed",
		DetailsAllowed: true,
	},
	CodeNotFound: {
		HTTPStatus:    http.StatusNotFound,
		PublicMessage: "resource not found",
	},
	CodeConflict: {
		HTTPStatus:    http.StatusConflict,
		Retryable:     true,
		PublicMessage: "concurrent update detected",
	},
	CodeInvalidTransition: {
		HTTPStatus:     http.StatusConflict,
		PublicMessage:  "operation not allowed in the current order status",
		DetailsAllowed: true,
	},
	CodeQuantityInvariant: {
		HTTPStatus:     http.StatusUnprocessableEntity,
		PublicMessage:  "quantity out of range",
		DetailsAllowed: true,
	},
	CodeInsufficientFunds: {
		HTTPStatus:     http.StatusUnprocessableEntity,
		PublicMessage:  "insufficient funds",
		DetailsAllowed: true,
	},
	CodeCurrencyMismatch: {
		HTTPStatus:     http.StatusUnprocessableEntity,
		PublicMessage:  "currency mismatch",
		DetailsAllowed: true,
	},
	CodeIdempotencyConflict: {
		HTTPStatus:     http.StatusConflict,
		PublicMessage:  "idempotency key reused with different parameters",
		DetailsAllowed: true,
	},
	CodeIncompleteReceipt: {
		HTTPStatus:     http.StatusUnprocessableEntity,
		PublicMessage:  "goods not fully received",
		DetailsAllowed: true,
	},
	CodePaymentPolicyViolation: {
		HTTPStatus:     http.StatusUnprocessableEntity,
		PublicMessage:  "payment policy not satisfied",
		DetailsAllowed: true,
	},
	CodeCancellationNotAllowed: {
		HTTPStatus:     http.StatusConflict,
		PublicMessage:  "order can no longer be cancelled",
		DetailsAllowed: true,
	},
	CodePersistence: {
		HTTPStatus:    http.StatusServiceUnavailable,
		Retryable:     true,
		PublicMessage: "storage unavailable",
	},
	CodeTimeout: {
		HTTPStatus:    http.StatusGatewayTimeout,
		Retryable:     true,
		PublicMessage: "operation timed out; re-read state before retrying",
	},
	CodeInternal: {
		HTTPStatus:    http.StatusInternalServerError,
		Retryable:     true,
		PublicMessage: "internal server error",
	},
	CodeDependency: {
		HTTPStatus:     http.StatusServiceUnavailable,
		Retryable:      true,
		PublicMessage:  "dependency unavailable",
		DetailsAllowed: true,
	},
}

func MetadataFor(code Code) Metadata {
	if meta, ok := metadataByCode[code]; ok {
		return meta
	}
	return metadataByCode[CodeInternal]
}

// Violation describes which value broke a rule so callers can render it
// without re-reading state.
type Violation struct {
	EntityID   string `json:"entity_id,omitempty"`
	Field      string `json:"field,omitempty"`
	Current    any    `json:"current,omitempty"`
	Attempted  any    `json:"attempted,omitempty"`
	Constraint string `json:"constraint,omitempty"`
}

type Error struct {
	code    Code
	message string
	details any
	cause   error
}

func New(code Code, message string) *Error {
	return &Error{code: code, message: message}
}

func Wrap(code Code, err error, message string) *Error {
	if err == nil {
		return New(code, message)
	}
	return &Error{code: code, message: message, cause: err}
}

// Newf is New with a formatted message.
func Newf(code Code, format string, args ...any) *Error {
	return New(code, fmt.Sprintf(format, args...))
}

// NewViolation builds a typed error carrying a Violation detail.
func NewViolation(code Code, message string, v Violation) *Error {
	return New(code, message).WithDetails(v)
}

func (e *Error) Code() Code {
	if e == nil {
		return CodeInternal
	}
	return e.code
}

func (e *Error) Message() string {
	if e == nil {
		return ""
	}
	return e.message
}

func (e *Error) Details() any {
	if e == nil {
		return nil
	}
	return e.details
}

// Violation returns the Violation detail when one is attached.
func (e *Error) Violation() (Violation, bool) {
	if e == nil {
		return Violation{}, false
	}
	switch v := e.details.(type) {
	case Violation:
		return v, true
	case *Violation:
		if v != nil {
			return *v, true
		}
	}
	return Violation{}, false
}

func (e *Error) WithDetails(details any) *Error {
	if e == nil {
		return nil
	}
	e.details = details
	return e
}

func (e *Error) Error() string {
	if e == nil {
		return ""
	}
	if e.cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.code, e.message, e.cause)
	}
	return fmt.Sprintf("%s: %s", e.code, e.message)
}

func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.cause
}

func As(err error) *Error {
	if err == nil {
		return nil
	}
	var typed *Error
	if stdErrors.As(err, &typed) {
		return typed
	}
	return nil
}

// IsCode reports whether err carries the given code anywhere in its chain.
func IsCode(err error, code Code) bool {
	typed := As(err)
	return typed != nil && typed.Code() == code
}

// CodeOf returns the code of err, or CodeInternal for untyped errors.
func CodeOf(err error) Code {
	if typed := As(err); typed != nil {
		return typed.Code()
	}
	return CodeInternal
}
