package binding

import (
	"fmt"
	"strings"
)

// RegistryError represents an error registering or looking up a class.
type RegistryError struct {
	Name    string
	Message string
}

func (e *RegistryError) Error() string {
	if e.Name == "" {
		return "binding: " + e.Message
	}
	return fmt.Sprintf("binding %q: %s", e.Name, e.Message)
}

// ArgumentError reports a call whose arguments match no overload.
type ArgumentError struct {
	Method     string
	Got        []string
	Signatures []string
}

func (e *ArgumentError) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "'%s' called with wrong argument types:\n  %s(%s)\nSupported signatures:",
		e.Method, e.Method, strings.Join(e.Got, ", "))
	for _, s := range e.Signatures {
		b.WriteString("\n  ")
		b.WriteString(s)
	}
	return b.String()
}

// ParamError wraps a conversion failure for one parameter of a resolved overload.
type ParamError struct {
	Method string
	Param  int
	Err    error
}

func (e *ParamError) Error() string {
	return fmt.Sprintf("%s: argument %d: %v", e.Method, e.Param+1, e.Err)
}

func (e *ParamError) Unwrap() error {
	return e.Err
}
