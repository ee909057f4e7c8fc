// Package convert marshals values between native Go types and Starlark values.
//
// Two directions are kept separate. ToStarlark always materialises the canonical
// Starlark shape (sequences become *starlark.List). ToNative is permissive on input:
// any iterable is accepted where a sequence is required, as long as every element
// converts to the target element type.
package convert

import (
	"go.starlark.net/starlark"
)

// Kind is the shape of a native parameter or result slot.
type Kind int

// Supported kinds.
const (
	KindNone Kind = iota
	KindAny
	KindBool
	KindInt
	KindFloat
	KindComplex
	KindString
	KindList
	KindExternal
)

// Type describes the native type expected in a signature slot.
type Type struct {
	Kind Kind
	Elem *Type    // element type for KindList
	Ext  External // converter for KindExternal
}

// Scalar slot types.
var (
	None    = Type{Kind: KindNone}
	Any     = Type{Kind: KindAny}
	Bool    = Type{Kind: KindBool}
	Int     = Type{Kind: KindInt}
	Float   = Type{Kind: KindFloat}
	Complex = Type{Kind: KindComplex}
	String  = Type{Kind: KindString}
)

// ListOf returns the sequence type with the given element type.
func ListOf(elem Type) Type {
	e := elem
	return Type{Kind: KindList, Elem: &e}
}

// ExternalOf returns a slot type whose conversions are provided by ext.
// Bound native classes and container list slots use this to take part in marshalling.
func ExternalOf(ext External) Type {
	return Type{Kind: KindExternal, Ext: ext}
}

// External converts values of a type that the convert package does not know about.
type External interface {
	// TypeName is the native type name used in signatures and error messages.
	TypeName() string
	// Compatible reports whether v can be converted without attempting it.
	Compatible(v starlark.Value) bool
	// ToNative converts v to the native representation.
	ToNative(v starlark.Value) (any, error)
	// ToStarlark converts a native value back to Starlark.
	ToStarlark(v any) (starlark.Value, error)
}

// String renders the type the way signatures print it, e.g. "list<double>".
func (t Type) String() string {
	switch t.Kind {
	case KindNone:
		return "void"
	case KindAny:
		return "object"
	case KindBool:
		return "bool"
	case KindInt:
		return "int"
	case KindFloat:
		return "double"
	case KindComplex:
		return "complex"
	case KindString:
		return "str"
	case KindList:
		if t.Elem == nil {
			return "list<object>"
		}
		return "list<" + t.Elem.String() + ">"
	case KindExternal:
		if t.Ext == nil {
			return "external"
		}
		return t.Ext.TypeName()
	default:
		return "unknown"
	}
}

// Sequencer is implemented by native containers that can be read by index.
// container.Sequence implements it.
type Sequencer interface {
	Len() int
	Index(i int) any
}
