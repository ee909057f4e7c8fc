package object

import (
	"errors"
	"fmt"
)

// ErrDestroyed is matched by InvalidObjectError for instances whose native value
// has already been released.
var ErrDestroyed = errors.New("underlying native object was destroyed")

// InvalidObjectError is returned when a bound instance is used after it was
// invalidated or destroyed.
type InvalidObjectError struct {
	Class     string
	ID        string
	Destroyed bool
}

func (e *InvalidObjectError) Error() string {
	if e.Destroyed {
		return fmt.Sprintf("internal %s object %s: %v", e.Class, e.ID, ErrDestroyed)
	}
	return fmt.Sprintf("internal %s object %s is no longer valid", e.Class, e.ID)
}

// Is lets errors.Is(err, ErrDestroyed) match destroyed instances.
func (e *InvalidObjectError) Is(target error) bool {
	return e.Destroyed && target == ErrDestroyed
}

// IdentityMismatchError reports a bound instance whose native class is not the one a
// call site expects.
type IdentityMismatchError struct {
	Method   string
	Expected string
	Got      string
}

func (e *IdentityMismatchError) Error() string {
	return fmt.Sprintf("descriptor '%s' requires a '%s' object but received '%s'", e.Method, e.Expected, e.Got)
}
