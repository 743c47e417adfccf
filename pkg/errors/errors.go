package errors

import (
	stdErrors "errors"
	"fmt"
	"net/http"
)

type Code string

const (
	CodeValidation    Code = "VALIDATION_ERROR"
	CodeUnauthorized  Code = "UNAUTHORIZED"
	CodeForbidden     Code = "FORBIDDEN"
	CodeNotFound      Code = "NOT_FOUND"
	CodeConflict      Code = "CONFLICT"
	CodeStateConflict Code = "STATE_CONFLICT"
	CodeIdempotency   Code = "IDEMPOTENCY_KEY_REUSED"
	CodeRateLimit     Code = "RATE_LIMIT_EXCEEDED"
	CodeInternal      Code = "INTERNAL_ERROR"
	CodeDependency    Code = "DEPENDENCY_ERROR"

	// Settlement domain codes.
	CodeInvalidTransition        Code = "INVALID_TRANSITION"
	CodeInvalidPaymentTransition Code = "INVALID_PAYMENT_TRANSITION"
	CodeFinalizedOrder           Code = "FINALIZED_ORDER"
	CodeNotOwner                 Code = "NOT_OWNER"
	CodeNotPaid                  Code = "NOT_PAID"
	CodeAlreadyDelivered         Code = "ALREADY_DELIVERED"
	CodeAlreadyCancelled         Code = "ALREADY_CANCELLED"
	CodeWindowExpired            Code = "WINDOW_EXPIRED"
	CodeDuplicatePending         Code = "DUPLICATE_PENDING"
	CodeAlreadyApproved          Code = "ALREADY_APPROVED"
	CodeAlreadyRejected          Code = "ALREADY_REJECTED"
	CodeInvalidAmount            Code = "INVALID_AMOUNT"
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
	CodeUnauthorized: {
		HTTPStatus:    http.StatusUnauthorized,
		PublicMessage: "authentication required",
	},
	CodeForbidden: {
		HTTPStatus:    http.StatusForbidden,
		PublicMessage: "access denied",
	},
	CodeNotFound: {
		HTTPStatus:    http.StatusNotFound,
		PublicMessage: "resource not found",
	},
	CodeConflict: {
		HTTPStatus:     http.StatusConflict,
		PublicMessage:  "conflict detected",
		DetailsAllowed: true,
	},
	CodeStateConflict: {
		HTTPStatus:     http.StatusUnprocessableEntity,
		PublicMessage:  "state transition disallowed",
		DetailsAllowed: true,
	},
	CodeIdempotency: {
		HTTPStatus:     http.StatusConflict,
		PublicMessage:  "idempotency key reused",
		DetailsAllowed: true,
	},
	CodeRateLimit: {
		HTTPStatus:    http.StatusTooManyRequests,
		PublicMessage: "rate limit exceeded",
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
	CodeInvalidTransition: {
		HTTPStatus:     http.StatusUnprocessableEntity,
		PublicMessage:  "order status transition not allowed",
		DetailsAllowed: true,
	},
	CodeInvalidPaymentTransition: {
		HTTPStatus:     http.StatusUnprocessableEntity,
		PublicMessage:  "payment status transition not allowed",
		DetailsAllowed: true,
	},
	CodeFinalizedOrder: {
		HTTPStatus:     http.StatusUnprocessableEntity,
		PublicMessage:  "order is finalized",
		DetailsAllowed: true,
	},
	CodeNotOwner: {
		HTTPStatus:    http.StatusForbidden,
		PublicMessage: "order does not belong to caller",
	},
	CodeNotPaid: {
		HTTPStatus:    http.StatusUnprocessableEntity,
		PublicMessage: "order is not paid",
	},
	CodeAlreadyDelivered: {
		HTTPStatus:    http.StatusUnprocessableEntity,
		PublicMessage: "order already delivered",
	},
	CodeAlreadyCancelled: {
		HTTPStatus:    http.StatusUnprocessableEntity,
		PublicMessage: "order already cancelled",
	},
	CodeWindowExpired: {
		HTTPStatus:    http.StatusUnprocessableEntity,
		PublicMessage: "refund window expired",
	},
	CodeDuplicatePending: {
		HTTPStatus:    http.StatusConflict,
		PublicMessage: "a pending refund request already exists",
	},
	CodeAlreadyApproved: {
		HTTPStatus:    http.StatusConflict,
		PublicMessage: "refund request already approved",
	},
	CodeAlreadyRejected: {
		HTTPStatus:    http.StatusConflict,
		PublicMessage: "refund request already rejected",
	},
	CodeInvalidAmount: {
		HTTPStatus:     http.StatusBadRequest,
		PublicMessage:  "amount must be greater than zero",
		DetailsAllowed: true,
	},
}

func MetadataFor(code Code) Metadata {
	if meta, ok := metadataByCode[code]; ok {
		return meta
	}
	return metadataByCode[CodeInternal]
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

// IsCode reports whether the outermost typed error in err carries code.
func IsCode(err error, code Code) bool {
	typed := As(err)
	return typed != nil && typed.Code() == code
}
