package authz

import (
	"fmt"
)

// Reason is the machine-readable cause of a denial.
type Reason string

const (
	ReasonForbidden   Reason = "FORBIDDEN"
	ReasonCrossTenant Reason = "CROSS_TENANT"
	ReasonSelfAction  Reason = "SELF_ACTION"
	ReasonLastManager Reason = "LAST_MANAGER"
	ReasonNoOp        Reason = "NO_OP"
)

// Error is returned for every denied decision.
type Error struct {
	Reason  Reason
	Message string
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s: %s", e.Reason, e.Message)
}

// Is matches any *Error with the same Reason, so callers can write
// errors.Is(err, authz.ErrLastManager).
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	return ok && t.Reason == e.Reason
}

// Sentinels for errors.Is.
var (
	ErrForbidden   = &Error{Reason: ReasonForbidden, Message: "action not permitted"}
	ErrCrossTenant = &Error{Reason: ReasonCrossTenant, Message: "target belongs to another tenant"}
	ErrSelfAction  = &Error{Reason: ReasonSelfAction, Message: "action not permitted on own account"}
	ErrLastManager = &Error{Reason: ReasonLastManager, Message: "tenant must keep at least one manager"}
	ErrNoOp        = &Error{Reason: ReasonNoOp, Message: "requested change is already in effect"}
)

func deny(reason Reason, format string, args ...any) *Error {
	return &Error{Reason: reason, Message: fmt.Sprintf(format, args...)}
}
