package object

import (
	"fmt"
	"sort"
	"sync"
	"unicode"

	"github.com/leapstack-labs/starbind/internal/binding"
	"go.starlark.net/starlark"
)

// Class is the Starlark value of a native class or of a subclass defined by a script.
// Calling it creates an instance.
type Class struct {
	name   string
	native *binding.Class
	base   *Class
	user   bool
	mgr    *Manager

	mu      sync.RWMutex
	methods starlark.StringDict
}

var (
	_ starlark.Callable    = (*Class)(nil)
	_ starlark.HasAttrs    = (*Class)(nil)
	_ starlark.HasSetField = (*Class)(nil)
)

// NewSubclass defines a script class deriving from base. methods become the class's
// dynamic methods; an entry named after a virtual native method overrides it.
func NewSubclass(base *Class, name string, methods starlark.StringDict) (*Class, error) {
	if base == nil {
		return nil, fmt.Errorf("subclass %q: base class is nil", name)
	}
	if !isIdentifier(name) {
		return nil, fmt.Errorf("subclass %q: invalid class name", name)
	}
	own := make(starlark.StringDict, len(methods))
	for k, v := range methods {
		if _, ok := v.(starlark.Callable); !ok {
			return nil, fmt.Errorf("subclass %s: %s is a %s, not callable", name, k, v.Type())
		}
		own[k] = v
	}
	return &Class{
		name:    name,
		native:  base.native,
		base:    base,
		user:    true,
		mgr:     base.mgr,
		methods: own,
	}, nil
}

func isIdentifier(s string) bool {
	if s == "" {
		return false
	}
	for i, r := range s {
		if r == '_' || unicode.IsLetter(r) || (i > 0 && unicode.IsDigit(r)) {
			continue
		}
		return false
	}
	return true
}

// Native returns the nearest native class in c's chain.
func (c *Class) Native() *binding.Class {
	return c.native
}

// Base returns the class c derives from, or nil for a native root class.
func (c *Class) Base() *Class {
	return c.base
}

// IsUserType reports whether c was defined by a script.
func (c *Class) IsUserType() bool {
	return c.user
}

// IsSubclassOf reports whether c is other or derives from it.
func (c *Class) IsSubclassOf(other *Class) bool {
	for k := c; k != nil; k = k.base {
		if k == other {
			return true
		}
	}
	return false
}

// Override returns the dynamic method called name on c's chain of script classes.
// It is looked up on every call so methods replaced after instances exist take effect.
func (c *Class) Override(name string) (starlark.Callable, bool) {
	for k := c; k != nil && k.user; k = k.base {
		k.mu.RLock()
		v, ok := k.methods[name]
		k.mu.RUnlock()
		if ok {
			fn, ok := v.(starlark.Callable)
			return fn, ok
		}
	}
	return nil, false
}

func (c *Class) Name() string {
	return c.name
}

func (c *Class) String() string {
	return fmt.Sprintf("<class '%s'>", c.name)
}

func (c *Class) Type() string {
	return "class"
}

func (c *Class) Freeze() {}

func (c *Class) Truth() starlark.Bool {
	return starlark.True
}

func (c *Class) Hash() (uint32, error) {
	return starlark.String(c.name).Hash()
}

func (c *Class) Attr(name string) (starlark.Value, error) {
	if name == "__name__" {
		return starlark.String(c.name), nil
	}
	if fn, ok := c.Override(name); ok {
		return fn, nil
	}
	if m, ok := c.native.Method(name); ok {
		return &nativeMethod{owner: c, method: m}, nil
	}
	return nil, nil
}

func (c *Class) AttrNames() []string {
	seen := map[string]bool{"__name__": true}
	for k := c; k != nil && k.user; k = k.base {
		k.mu.RLock()
		for name := range k.methods {
			seen[name] = true
		}
		k.mu.RUnlock()
	}
	for _, m := range c.native.Methods() {
		seen[m.Name] = true
	}
	names := make([]string, 0, len(seen))
	for name := range seen {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// SetField replaces or adds a dynamic method on a script class. Native classes are
// read-only.
func (c *Class) SetField(name string, v starlark.Value) error {
	if !c.user {
		return fmt.Errorf("cannot set %s on native class %s", name, c.name)
	}
	if _, ok := v.(starlark.Callable); !ok {
		return fmt.Errorf("%s.%s: %s is not callable", c.name, name, v.Type())
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.methods[name] = v
	return nil
}

// CallInternal constructs an instance: the native value, its wrapper, the per-instance
// virtual table and finally any __init__ defined by a script class.
func (c *Class) CallInternal(thread *starlark.Thread, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	newFn := c.native.Constructor()
	if newFn == nil {
		return nil, fmt.Errorf("%s: cannot instantiate abstract class", c.name)
	}
	inst, err := c.mgr.Adopt(newFn(), c.native, true)
	if err != nil {
		return nil, err
	}
	w := c.mgr.newWrapper(inst, c)
	if attach := c.native.AttachHook(); attach != nil {
		attach(inst.native, inst)
	}

	if init, ok := c.Override("__init__"); ok {
		full := append(starlark.Tuple{w}, args...)
		if _, err := starlark.Call(thread, init, full, kwargs); err != nil {
			return nil, err
		}
	} else if len(args) > 0 || len(kwargs) > 0 {
		return nil, fmt.Errorf("%s() takes no arguments", c.name)
	}

	c.mgr.logger.Debug("instance created", "class", c.name, "id", inst.ID(), "user_type", c.user)
	return w, nil
}

// IsInstance reports whether v is a wrapper whose class is c or derives from it.
func IsInstance(v starlark.Value, c *Class) bool {
	w, ok := v.(*Wrapper)
	return ok && w.class.IsSubclassOf(c)
}
