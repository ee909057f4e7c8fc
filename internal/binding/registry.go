package binding

import (
	"fmt"
	"reflect"
	"sort"
	"sync"
)

// ReservedNames are predeclared by the runtime and cannot be used as class names.
var ReservedNames = []string{
	"assert_eq",
	"assert_ne",
	"assert_true",
	"catch",
	"complex",
	"is_user_type",
	"isinstance",
	"struct",
	"subclass",
}

// Registry maps class names and native Go types to bound classes.
type Registry struct {
	mu      sync.RWMutex
	classes map[string]*Class
	byType  map[reflect.Type]*Class
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		classes: make(map[string]*Class),
		byType:  make(map[reflect.Type]*Class),
	}
}

// Register adds a class. Its base, if any, must already be registered.
func (r *Registry) Register(c *Class) error {
	if c == nil || c.Name == "" {
		return &RegistryError{Message: "class name cannot be empty"}
	}
	for _, reserved := range ReservedNames {
		if c.Name == reserved {
			return &RegistryError{Name: c.Name, Message: "name is reserved for a builtin"}
		}
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if existing, ok := r.classes[c.Name]; ok && existing != c {
		return &RegistryError{Name: c.Name, Message: "class already registered"}
	}
	if c.Base != nil {
		if base, ok := r.classes[c.Base.Name]; !ok || base != c.Base {
			return &RegistryError{Name: c.Name, Message: fmt.Sprintf("base class %q is not registered", c.Base.Name)}
		}
	}

	r.classes[c.Name] = c
	if c.GoType != nil {
		r.byType[c.GoType] = c
	}
	return nil
}

// MustRegister is like Register but panics on error. Generated glue uses it at init.
func (r *Registry) MustRegister(c *Class) *Class {
	if err := r.Register(c); err != nil {
		panic(err)
	}
	return c
}

// Lookup returns the class registered under name.
func (r *Registry) Lookup(name string) (*Class, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	c, ok := r.classes[name]
	return c, ok
}

// Has reports whether a class is registered under name.
func (r *Registry) Has(name string) bool {
	_, ok := r.Lookup(name)
	return ok
}

// Len returns the number of registered classes.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.classes)
}

// Classes returns all registered classes sorted by name.
func (r *Registry) Classes() []*Class {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*Class, 0, len(r.classes))
	for _, c := range r.classes {
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// ClassOf returns the class registered for the dynamic type of native.
func (r *Registry) ClassOf(native any) (*Class, bool) {
	if native == nil {
		return nil, false
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	c, ok := r.byType[reflect.TypeOf(native)]
	return c, ok
}

// Method looks up a method on the named class or its bases.
func (r *Registry) Method(class, name string) (*Method, error) {
	c, ok := r.Lookup(class)
	if !ok {
		return nil, &RegistryError{Name: class, Message: "unknown class"}
	}
	m, ok := c.Method(name)
	if !ok {
		return nil, &RegistryError{Name: class, Message: fmt.Sprintf("no method %q", name)}
	}
	return m, nil
}
