package callable

import (
	"errors"
	"net/http"
)

// Kind is the machine-readable status tag carried in an error envelope.
type Kind string

// Error kinds of the callable protocol.
const (
	KindOK                 Kind = "OK"
	KindCancelled          Kind = "CANCELLED"
	KindUnknown            Kind = "UNKNOWN"
	KindInvalidArgument    Kind = "INVALID_ARGUMENT"
	KindDeadlineExceeded   Kind = "DEADLINE_EXCEEDED"
	KindNotFound           Kind = "NOT_FOUND"
	KindAlreadyExists      Kind = "ALREADY_EXISTS"
	KindPermissionDenied   Kind = "PERMISSION_DENIED"
	KindUnauthenticated    Kind = "UNAUTHENTICATED"
	KindResourceExhausted  Kind = "RESOURCE_EXHAUSTED"
	KindFailedPrecondition Kind = "FAILED_PRECONDITION"
	KindAborted            Kind = "ABORTED"
	KindOutOfRange         Kind = "OUT_OF_RANGE"
	KindUnimplemented      Kind = "UNIMPLEMENTED"
	KindInternal           Kind = "INTERNAL"
	KindUnavailable        Kind = "UNAVAILABLE"
	KindDataLoss           Kind = "DATA_LOSS"
)

// statusByKind maps an error kind to its HTTP status. Kinds missing from the
// table are served as 500.
var statusByKind = map[Kind]int{
	KindOK:                 http.StatusOK,
	KindCancelled:          499,
	KindUnknown:            http.StatusInternalServerError,
	KindInvalidArgument:    http.StatusBadRequest,
	KindDeadlineExceeded:   http.StatusGatewayTimeout,
	KindNotFound:           http.StatusNotFound,
	KindAlreadyExists:      http.StatusConflict,
	KindPermissionDenied:   http.StatusForbidden,
	KindUnauthenticated:    http.StatusUnauthorized,
	KindResourceExhausted:  http.StatusTooManyRequests,
	KindFailedPrecondition: http.StatusBadRequest,
	KindAborted:            http.StatusConflict,
	KindOutOfRange:         http.StatusBadRequest,
	KindUnimplemented:      http.StatusNotImplemented,
	KindInternal:           http.StatusInternalServerError,
	KindUnavailable:        http.StatusServiceUnavailable,
	KindDataLoss:           http.StatusInternalServerError,
}

// HTTPStatus returns the HTTP status code for an error kind.
func HTTPStatus(kind Kind) int {
	if code, ok := statusByKind[kind]; ok {
		return code
	}
	return http.StatusInternalServerError
}

// Error is a structured failure that maps onto the callable error envelope.
type Error struct {
	Kind    Kind        `json:"status"`
	Message string      `json:"message"`
	Details interface{} `json:"details,omitempty"`
}

func (e *Error) Error() string {
	return string(e.Kind) + ": " + e.Message
}

// HTTPStatus returns the HTTP status code for the error's kind.
func (e *Error) HTTPStatus() int {
	return HTTPStatus(e.Kind)
}

// WithDetails returns a copy of the error carrying details.
func (e *Error) WithDetails(details interface{}) *Error {
	out := *e
	out.Details = details
	return &out
}

// NewError creates a new Error.
func NewError(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

// InvalidArgument creates an INVALID_ARGUMENT error.
func InvalidArgument(message string) *Error {
	return NewError(KindInvalidArgument, message)
}

// Unauthenticated creates an UNAUTHENTICATED error.
func Unauthenticated(message string) *Error {
	return NewError(KindUnauthenticated, message)
}

// PermissionDenied creates a PERMISSION_DENIED error.
func PermissionDenied(message string) *Error {
	return NewError(KindPermissionDenied, message)
}

// FailedPrecondition creates a FAILED_PRECONDITION error.
func FailedPrecondition(message string) *Error {
	return NewError(KindFailedPrecondition, message)
}

// Internal creates an INTERNAL error.
func Internal(message string) *Error {
	return NewError(KindInternal, message)
}

// AsError extracts an *Error from err's chain.
func AsError(err error) (*Error, bool) {
	var ce *Error
	if errors.As(err, &ce) {
		return ce, true
	}
	return nil, false
}

// FromError classifies any error. Errors outside the taxonomy become INTERNAL
// with the error's own message.
func FromError(err error) *Error {
	if err == nil {
		return nil
	}
	if ce, ok := AsError(err); ok {
		return ce
	}
	return Internal(err.Error())
}
