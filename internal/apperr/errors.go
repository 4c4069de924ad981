package apperr

import (
	"errors"
	"net/http"
)

// Kind classifies a failure for transport mapping.
type Kind string

const (
	KindUnauthenticated Kind = "unauthenticated"
	KindForbidden       Kind = "forbidden"
	KindValidation      Kind = "validation"
	KindInternal        Kind = "internal"
)

// Codes refine a Kind where callers need to tell failures apart.
const (
	CodeDeviceNotRegistered   = "device_not_registered"
	CodeDeviceInactive        = "device_inactive"
	CodeInternalLookupFailure = "internal_lookup_failure"
	CodeDuplicate             = "duplicate"
	CodeNotFound              = "not_found"
)

var httpStatusMap = map[Kind]int{
	KindUnauthenticated: http.StatusUnauthorized,
	KindForbidden:       http.StatusForbidden,
	KindValidation:      http.StatusBadRequest,
	KindInternal:        http.StatusInternalServerError,
}

// Error is the user-facing failure returned by services. Message is shown to
// the caller verbatim; Err carries the underlying cause for logs only.
type Error struct {
	Kind    Kind
	Code    string
	Message string
	Fields  map[string]string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return e.Message + ": " + e.Err.Error()
	}
	return e.Message
}

func (e *Error) Unwrap() error {
	return e.Err
}

func (e *Error) HTTPStatus() int {
	if status, ok := httpStatusMap[e.Kind]; ok {
		return status
	}
	return http.StatusInternalServerError
}

func Unauthenticated(message string) *Error {
	return &Error{Kind: KindUnauthenticated, Message: message}
}

func Forbidden(message string) *Error {
	return &Error{Kind: KindForbidden, Code: "forbidden", Message: message}
}

func DeviceNotRegistered() *Error {
	return &Error{Kind: KindForbidden, Code: CodeDeviceNotRegistered, Message: "Invalid or unregistered device"}
}

func DeviceInactive() *Error {
	return &Error{Kind: KindForbidden, Code: CodeDeviceInactive, Message: "Worker device is inactive"}
}

// Validation builds a field-keyed validation failure. message is normally the
// first entry of fields in check order.
func Validation(message string, fields map[string]string) *Error {
	return &Error{Kind: KindValidation, Code: "validation", Message: message, Fields: fields}
}

// Duplicate reports a uniqueness conflict on field.
func Duplicate(field, message string, err error) *Error {
	return &Error{
		Kind:    KindValidation,
		Code:    CodeDuplicate,
		Message: message,
		Fields:  map[string]string{field: message},
		Err:     err,
	}
}

func InternalLookupFailure(message string, err error) *Error {
	return &Error{Kind: KindInternal, Code: CodeInternalLookupFailure, Message: message, Err: err}
}

func Internal(message string, err error) *Error {
	return &Error{Kind: KindInternal, Code: "internal", Message: message, Err: err}
}

func NotFound(message string) *Error {
	return &Error{Kind: KindValidation, Code: CodeNotFound, Message: message}
}

// As extracts an *Error from err's chain.
func As(err error) (*Error, bool) {
	var appErr *Error
	if errors.As(err, &appErr) {
		return appErr, true
	}
	return nil, false
}

// IsCode reports whether err carries the given code.
func IsCode(err error, code string) bool {
	appErr, ok := As(err)
	return ok && appErr.Code == code
}
