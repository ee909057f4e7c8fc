package object

import (
	"context"
	"encoding/binary"
	"fmt"
	"sort"
	"sync"

	"github.com/leapstack-labs/starbind/internal/binding"
	"go.starlark.net/starlark"
)

// Wrapper is the Starlark value of a bound instance.
//
// Wrappers are never frozen: attributes set by scripts stay writable after the
// module that created them finishes executing.
type Wrapper struct {
	inst  *Instance
	class *Class

	mu    sync.RWMutex
	attrs starlark.StringDict
}

var (
	_ starlark.HasAttrs    = (*Wrapper)(nil)
	_ starlark.HasSetField = (*Wrapper)(nil)
)

// Instance returns the native half of w.
func (w *Wrapper) Instance() *Instance {
	return w.inst
}

// Class returns the Starlark class w was created as.
func (w *Wrapper) Class() *Class {
	return w.class
}

func (w *Wrapper) String() string {
	return fmt.Sprintf("<%s object at %s>", w.class.name, w.inst.ID()[:8])
}

func (w *Wrapper) Type() string {
	return w.class.name
}

func (w *Wrapper) Freeze() {}

func (w *Wrapper) Truth() starlark.Bool {
	return starlark.True
}

func (w *Wrapper) Hash() (uint32, error) {
	return binary.BigEndian.Uint32(w.inst.id[:4]), nil
}

// Attr looks up instance attributes, then dynamic methods bound to w, then native
// methods.
func (w *Wrapper) Attr(name string) (starlark.Value, error) {
	w.mu.RLock()
	v, ok := w.attrs[name]
	w.mu.RUnlock()
	if ok {
		return v, nil
	}
	if fn, ok := w.class.Override(name); ok {
		return &boundMethod{self: w, fn: fn}, nil
	}
	if m, ok := w.class.native.Method(name); ok {
		if m.Static() {
			return &nativeMethod{owner: w.class, method: m}, nil
		}
		return &nativeMethod{owner: w.class, method: m, self: w}, nil
	}
	return nil, nil
}

func (w *Wrapper) AttrNames() []string {
	seen := make(map[string]bool)
	w.mu.RLock()
	for name := range w.attrs {
		seen[name] = true
	}
	w.mu.RUnlock()
	for _, name := range w.class.AttrNames() {
		if name != "__name__" {
			seen[name] = true
		}
	}
	names := make([]string, 0, len(seen))
	for name := range seen {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func (w *Wrapper) SetField(name string, v starlark.Value) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.attrs[name] = v
	return nil
}

// callNative runs a native method on w's instance, keeping the instance alive for
// the duration of the call.
func (w *Wrapper) callNative(ctx context.Context, m *binding.Method, args starlark.Tuple) (starlark.Value, error) {
	if err := w.inst.Check(); err != nil {
		return nil, err
	}
	w.inst.Retain()
	defer w.inst.Release()
	return m.Invoke(ctx, w.inst.native, args)
}

// nativeMethod is a native method as seen from Starlark. With self unset and a
// non-static method, the first argument is taken as the receiver.
type nativeMethod struct {
	owner  *Class
	method *binding.Method
	self   *Wrapper
}

func (m *nativeMethod) Name() string {
	return m.method.Name
}

func (m *nativeMethod) String() string {
	if m.self != nil {
		return fmt.Sprintf("<built-in method %s of %s object>", m.method.Name, m.self.class.name)
	}
	return fmt.Sprintf("<built-in method %s.%s>", m.owner.name, m.method.Name)
}

func (m *nativeMethod) Type() string {
	return "builtin_function_or_method"
}

func (m *nativeMethod) Freeze() {}

func (m *nativeMethod) Truth() starlark.Bool {
	return starlark.True
}

func (m *nativeMethod) Hash() (uint32, error) {
	return starlark.String(m.owner.name + "." + m.method.Name).Hash()
}

func (m *nativeMethod) CallInternal(thread *starlark.Thread, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	if len(kwargs) > 0 {
		return nil, fmt.Errorf("%s: unexpected keyword arguments", m.method.Name)
	}
	ctx := binding.ThreadContext(thread)
	if m.method.Static() {
		return m.method.Invoke(ctx, nil, args)
	}

	self := m.self
	if self == nil {
		if len(args) == 0 {
			return nil, fmt.Errorf("%s.%s: missing self argument", m.owner.name, m.method.Name)
		}
		w, ok := args[0].(*Wrapper)
		if !ok || !w.inst.class.IsA(m.owner.native) {
			return nil, &IdentityMismatchError{Method: m.method.Name, Expected: m.owner.native.Name, Got: args[0].Type()}
		}
		self, args = w, args[1:]
	}
	return self.callNative(ctx, m.method, args)
}

// boundMethod is a dynamic method with its receiver filled in.
type boundMethod struct {
	self *Wrapper
	fn   starlark.Callable
}

func (b *boundMethod) Name() string {
	return b.fn.Name()
}

func (b *boundMethod) String() string {
	return fmt.Sprintf("<bound method %s.%s of %s>", b.self.class.name, b.fn.Name(), b.self)
}

func (b *boundMethod) Type() string {
	return "method"
}

func (b *boundMethod) Freeze() {}

func (b *boundMethod) Truth() starlark.Bool {
	return starlark.True
}

func (b *boundMethod) Hash() (uint32, error) {
	h, err := b.self.Hash()
	if err != nil {
		return 0, err
	}
	s, err := starlark.String(b.fn.Name()).Hash()
	return h ^ s, err
}

func (b *boundMethod) CallInternal(thread *starlark.Thread, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	full := make(starlark.Tuple, 0, len(args)+1)
	full = append(full, b.self)
	full = append(full, args...)
	return starlark.Call(thread, b.fn, full, kwargs)
}
