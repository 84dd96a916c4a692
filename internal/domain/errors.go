package domain

import (
	"fmt"

	"github.com/cockroachdb/errors"
)

// ErrSerializationFailure is returned when the store aborts a
// serializable transaction (pg code 40001). Safe to retry.
var ErrSerializationFailure = errors.New("serialization failure")

// Code identifies an error kind. Callers switch on the code, never on
// message substrings.
type Code string

const (
	CodeValidation           Code = "validation"
	CodeNotFound             Code = "not_found"
	CodeCapacityExceeded     Code = "capacity_exceeded"
	CodeInvalidRole          Code = "invalid_role"
	CodeRoleFull             Code = "role_full"
	CodeIllegalTransition    Code = "illegal_transition"
	CodeDuplicateOrderNumber Code = "duplicate_order_number"
	CodePersistence          Code = "persistence"
)

// Error is the typed error surfaced to callers. Remaining/Requested
// are only set for capacity errors so the UI can explain the
// shortfall ("N of M requested available").
type Error struct {
	Code      Code
	Message   string
	Remaining int
	Requested int
}

func (e *Error) Error() string {
	return e.Message
}

func NewValidation(format string, args ...interface{}) *Error {
	return &Error{Code: CodeValidation, Message: fmt.Sprintf(format, args...)}
}

func NewNotFound(what string) *Error {
	return &Error{Code: CodeNotFound, Message: what + " not found"}
}

func NewCapacityExceeded(remaining, requested int) *Error {
	return &Error{
		Code:      CodeCapacityExceeded,
		Message:   fmt.Sprintf("insufficient capacity: %d of %d requested available", remaining, requested),
		Remaining: remaining,
		Requested: requested,
	}
}

// NewInvalidRole covers both the no-roles-configured case and an
// unknown role id. Distinct from NewRoleFull: invalid is a permanent
// input error, full is a transient capacity condition.
func NewInvalidRole(message string) *Error {
	return &Error{Code: CodeInvalidRole, Message: message}
}

func NewRoleFull(roleID string, capacity int) *Error {
	return &Error{
		Code:      CodeRoleFull,
		Message:   fmt.Sprintf("role %q is fully booked (capacity %d)", roleID, capacity),
		Remaining: 0,
		Requested: 1,
	}
}

func NewIllegalTransition(from, to OrderStatus) *Error {
	return &Error{
		Code:    CodeIllegalTransition,
		Message: fmt.Sprintf("illegal order status transition %s -> %s", from, to),
	}
}

func NewDuplicateOrderNumber(orderNumber string) *Error {
	return &Error{
		Code:    CodeDuplicateOrderNumber,
		Message: fmt.Sprintf("order number %s already exists", orderNumber),
	}
}

func NewPersistence(cause error) *Error {
	return &Error{Code: CodePersistence, Message: "storage failure: " + cause.Error()}
}

// CodeOf extracts the domain code from err, unwrapping as needed.
// Returns CodePersistence for anything untyped.
func CodeOf(err error) Code {
	var de *Error
	if errors.As(err, &de) {
		return de.Code
	}
	return CodePersistence
}

// AsError unwraps err to a *Error if one is in the chain.
func AsError(err error) (*Error, bool) {
	var de *Error
	ok := errors.As(err, &de)
	return de, ok
}
