// Package binding describes the native classes and methods exposed to Starlark.
//
// It is the table the generated glue fills in: each Class lists its methods, each
// Method its overloads, and each overload a Signature that the marshalling layers use
// to convert arguments and results.
package binding

import (
	"context"
	"fmt"
	"reflect"
	"sort"
	"strings"

	"github.com/leapstack-labs/starbind/internal/convert"
)

// CallFunc invokes a native method. self is nil for static methods. args have already
// been converted to the native types named by the overload's Signature.
type CallFunc func(ctx context.Context, self any, args []any) (any, error)

// Signature is the calling convention of one native method overload.
type Signature struct {
	Name    string
	Params  []convert.Type
	Result  convert.Type
	Virtual bool
	Static  bool
}

// String renders the signature, e.g. "sumList(list<int>) -> int".
func (s Signature) String() string {
	params := make([]string, len(s.Params))
	for i, p := range s.Params {
		params[i] = p.String()
	}
	var b strings.Builder
	if s.Static {
		b.WriteString("static ")
	}
	if s.Virtual {
		b.WriteString("virtual ")
	}
	fmt.Fprintf(&b, "%s(%s) -> %s", s.Name, strings.Join(params, ", "), s.Result)
	return b.String()
}

// Overload pairs a signature with its native implementation.
type Overload struct {
	Signature
	Call CallFunc
}

// Method is a named native method with one or more overloads.
type Method struct {
	Name      string
	Overloads []*Overload
}

// Virtual reports whether the method can be overridden by a dynamic subclass.
func (m *Method) Virtual() bool {
	for _, o := range m.Overloads {
		if o.Virtual {
			return true
		}
	}
	return false
}

// Static reports whether the method is called without an instance.
func (m *Method) Static() bool {
	return len(m.Overloads) > 0 && m.Overloads[0].Static
}

// Signatures returns the rendered signature of every overload.
func (m *Method) Signatures() []string {
	out := make([]string, len(m.Overloads))
	for i, o := range m.Overloads {
		out[i] = o.Signature.String()
	}
	return out
}

// Handle is the native side of a bound instance as seen by generated glue.
type Handle interface {
	ID() string
	Class() *Class
	Native() any
}

// Class describes a bound native type.
type Class struct {
	Name string
	Base *Class
	Doc  string

	// GoType is the dynamic type of values returned by New.
	GoType reflect.Type

	// New constructs a fresh native value. Nil for abstract classes.
	New func() any

	// Destroy releases native resources once the owning instance is gone.
	Destroy func(native any)

	// Attach installs the per-instance virtual table after a bound instance is created.
	Attach func(native any, h Handle)

	methods map[string]*Method
	order   []string
}

// NewClass declares a class whose native values are *T.
func NewClass[T any](name string, base *Class, newFn func() *T) *Class {
	c := &Class{
		Name:    name,
		Base:    base,
		GoType:  reflect.TypeFor[*T](),
		methods: make(map[string]*Method),
	}
	if newFn != nil {
		c.New = func() any { return newFn() }
	}
	return c
}

// Def adds an overload to the method named by sig.Name and returns c for chaining.
func (c *Class) Def(sig Signature, call CallFunc) *Class {
	if c.methods == nil {
		c.methods = make(map[string]*Method)
	}
	m, ok := c.methods[sig.Name]
	if !ok {
		m = &Method{Name: sig.Name}
		c.methods[sig.Name] = m
		c.order = append(c.order, sig.Name)
	}
	m.Overloads = append(m.Overloads, &Overload{Signature: sig, Call: call})
	return c
}

// Method looks up a method on c or its bases.
func (c *Class) Method(name string) (*Method, bool) {
	for k := c; k != nil; k = k.Base {
		if m, ok := k.methods[name]; ok {
			return m, true
		}
	}
	return nil, false
}

// Methods returns own methods in declaration order followed by inherited ones that
// are not redefined.
func (c *Class) Methods() []*Method {
	seen := make(map[string]bool)
	var out []*Method
	for k := c; k != nil; k = k.Base {
		for _, name := range k.order {
			if seen[name] {
				continue
			}
			seen[name] = true
			out = append(out, k.methods[name])
		}
	}
	return out
}

// VirtualMethods returns the names of all overridable methods, sorted.
func (c *Class) VirtualMethods() []string {
	var out []string
	for _, m := range c.Methods() {
		if m.Virtual() {
			out = append(out, m.Name)
		}
	}
	sort.Strings(out)
	return out
}

// IsA reports whether c is other or derives from it.
func (c *Class) IsA(other *Class) bool {
	for k := c; k != nil; k = k.Base {
		if k == other {
			return true
		}
	}
	return false
}

// Constructor returns the nearest New in the class chain.
func (c *Class) Constructor() func() any {
	for k := c; k != nil; k = k.Base {
		if k.New != nil {
			return k.New
		}
	}
	return nil
}

// Destructor returns the nearest Destroy in the class chain.
func (c *Class) Destructor() func(any) {
	for k := c; k != nil; k = k.Base {
		if k.Destroy != nil {
			return k.Destroy
		}
	}
	return nil
}

// AttachHook returns the nearest Attach in the class chain.
func (c *Class) AttachHook() func(any, Handle) {
	for k := c; k != nil; k = k.Base {
		if k.Attach != nil {
			return k.Attach
		}
	}
	return nil
}

func (c *Class) String() string {
	return c.Name
}
