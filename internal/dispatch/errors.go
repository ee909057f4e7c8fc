package dispatch

import (
	"errors"
	"fmt"

	"github.com/leapstack-labs/starbind/internal/object"
)

var (
	// ErrNoWrapper is returned for a virtual call with no native default on an
	// instance that has no live Starlark wrapper to dispatch to.
	ErrNoWrapper = errors.New("instance has no live wrapper")

	// ErrPureVirtual is returned when a virtual without a native default is not
	// overridden by the instance's class.
	ErrPureVirtual = errors.New("pure virtual method called")

	// ErrNoDeclaringClass is returned when a virtual call names no declaring class.
	ErrNoDeclaringClass = errors.New("no declaring class for virtual call")
)

// IdentityMismatchError is returned when the instance is not of the class the call
// site expects.
type IdentityMismatchError = object.IdentityMismatchError

// OverrideInvocationError wraps an error raised by a dynamic override.
type OverrideInvocationError struct {
	Class  string
	Method string
	Err    error
}

func (e *OverrideInvocationError) Error() string {
	return fmt.Sprintf("override %s.%s: %v", e.Class, e.Method, e.Err)
}

func (e *OverrideInvocationError) Unwrap() error {
	return e.Err
}
