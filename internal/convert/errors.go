package convert

import (
	"fmt"
	"strings"
)

// ConversionError reports a value that could not be converted to a native type.
type ConversionError struct {
	// Path holds element indices from the outermost sequence inwards.
	// It is empty when the top-level value itself failed.
	Path []int
	// Want is the native type that was required at the failing position.
	Want Type
	// Got is the Starlark type name of the offending value.
	Got string
	// Reason is an optional detail such as "not iterable" or "overflows int64".
	Reason string
}

// Index returns the outermost failing element index, or -1 for a scalar failure.
func (e *ConversionError) Index() int {
	if len(e.Path) == 0 {
		return -1
	}
	return e.Path[0]
}

func (e *ConversionError) Error() string {
	var b strings.Builder
	if len(e.Path) > 0 {
		b.WriteString("element ")
		for _, i := range e.Path {
			fmt.Fprintf(&b, "[%d]", i)
		}
		b.WriteString(": ")
	}
	fmt.Fprintf(&b, "cannot convert %s to %s", e.Got, e.Want)
	if e.Reason != "" {
		b.WriteString(" (")
		b.WriteString(e.Reason)
		b.WriteString(")")
	}
	return b.String()
}

// at prefixes the error path with index i.
func (e *ConversionError) at(i int) *ConversionError {
	e.Path = append([]int{i}, e.Path...)
	return e
}
