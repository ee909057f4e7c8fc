package object

import (
	"fmt"
	"log/slog"
	"reflect"
	"runtime"
	"sort"
	"sync"
	"weak"

	"github.com/google/uuid"
	"github.com/leapstack-labs/starbind/internal/binding"
	"github.com/leapstack-labs/starbind/internal/convert"
	"go.starlark.net/starlark"
)

// Manager tracks every live Instance by its native value and caches the Starlark
// class value of each registered class.
type Manager struct {
	registry *binding.Registry
	logger   *slog.Logger

	mu        sync.Mutex
	instances map[any]*Instance

	classMu sync.Mutex
	classes map[*binding.Class]*Class
}

// NewManager creates a manager for classes in reg. A nil logger discards output.
func NewManager(reg *binding.Registry, logger *slog.Logger) *Manager {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Manager{
		registry:  reg,
		logger:    logger,
		instances: make(map[any]*Instance),
		classes:   make(map[*binding.Class]*Class),
	}
}

// Registry returns the class registry the manager binds against.
func (m *Manager) Registry() *binding.Registry {
	return m.registry
}

// Adopt starts tracking native as an instance of cls. owned reports whether the
// binding is responsible for destroying native. Adopting an already tracked value
// returns the existing instance.
func (m *Manager) Adopt(native any, cls *binding.Class, owned bool) (*Instance, error) {
	if isNil(native) {
		return nil, fmt.Errorf("cannot bind nil %s", cls)
	}
	if !reflect.TypeOf(native).Comparable() {
		return nil, fmt.Errorf("cannot bind %T: native values must be comparable", native)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if inst, ok := m.instances[native]; ok {
		return inst, nil
	}
	inst := &Instance{
		id:     uuid.New(),
		class:  cls,
		native: native,
		mgr:    m,
		owned:  owned,
		valid:  true,
	}
	m.instances[native] = inst
	m.logger.Debug("instance bound", "class", cls.Name, "id", inst.ID(), "owned", owned)
	return inst, nil
}

// Lookup returns the instance tracking native.
func (m *Manager) Lookup(native any) (*Instance, bool) {
	if native == nil || !reflect.TypeOf(native).Comparable() {
		return nil, false
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	inst, ok := m.instances[native]
	return inst, ok
}

// Len returns the number of tracked instances.
func (m *Manager) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.instances)
}

// Class returns the Starlark class value for c, creating it and its bases on first use.
func (m *Manager) Class(c *binding.Class) *Class {
	m.classMu.Lock()
	defer m.classMu.Unlock()
	return m.classLocked(c)
}

func (m *Manager) classLocked(c *binding.Class) *Class {
	if k, ok := m.classes[c]; ok {
		return k
	}
	k := &Class{name: c.Name, native: c, mgr: m}
	if c.Base != nil {
		k.base = m.classLocked(c.Base)
	}
	m.classes[c] = k
	return k
}

// Globals returns the Starlark class value of every registered class keyed by name.
func (m *Manager) Globals() starlark.StringDict {
	out := make(starlark.StringDict)
	for _, c := range m.registry.Classes() {
		out[c.Name] = m.Class(c)
	}
	return out
}

// Wrap returns the Starlark value for native. A live wrapper is reused so the
// identity of the Starlark object is stable; otherwise a new wrapper of the native
// class is created. Values not created by a script are not owned by the binding.
func (m *Manager) Wrap(native any) (*Wrapper, error) {
	inst, ok := m.Lookup(native)
	if !ok {
		cls, found := m.registry.ClassOf(native)
		if !found {
			return nil, fmt.Errorf("no bound class for %T", native)
		}
		var err error
		if inst, err = m.Adopt(native, cls, false); err != nil {
			return nil, err
		}
	}
	if w := inst.Wrapper(); w != nil {
		return w, nil
	}
	return m.newWrapper(inst, m.Class(inst.class)), nil
}

// newWrapper creates the Starlark half of inst. The wrapper holds one reference,
// dropped when the wrapper becomes unreachable.
func (m *Manager) newWrapper(inst *Instance, cls *Class) *Wrapper {
	w := &Wrapper{inst: inst, class: cls, attrs: make(starlark.StringDict)}
	m.mu.Lock()
	inst.wrapper = weak.Make(w)
	inst.refs++
	m.mu.Unlock()
	runtime.AddCleanup(w, releaseWrapped, inst)
	return w
}

func releaseWrapped(inst *Instance) {
	inst.mgr.logger.Debug("wrapper collected", "class", inst.class.Name, "id", inst.ID())
	inst.Release()
}

func (m *Manager) releaseLocked(i *Instance) []*Instance {
	if i.refs > 0 {
		i.refs--
	}
	if i.refs > 0 {
		return nil
	}
	if m.instances[i.native] == i {
		delete(m.instances, i.native)
	}
	if !i.owned {
		return nil
	}
	return m.destroyLocked(i)
}

func (m *Manager) destroyLocked(i *Instance) []*Instance {
	if i.destroyed {
		return nil
	}
	i.destroyed = true
	i.valid = false
	if m.instances[i.native] == i {
		delete(m.instances, i.native)
	}
	doomed := m.removeParentLocked(i)
	doomed = append(doomed, i)

	children := i.children
	i.children = nil
	for _, c := range children {
		c.parent = nil
		invalidateLocked(c)
		doomed = append(doomed, m.releaseLocked(c)...)
	}
	i.kept = nil
	return doomed
}

func (m *Manager) removeParentLocked(i *Instance) []*Instance {
	p := i.parent
	if p == nil {
		return nil
	}
	i.parent = nil
	for n, c := range p.children {
		if c == i {
			p.children = append(p.children[:n], p.children[n+1:]...)
			break
		}
	}
	return m.releaseLocked(i)
}

// finalize runs destructors for instances destroyed while the lock was held.
func (m *Manager) finalize(doomed []*Instance) {
	for _, i := range doomed {
		if !i.destroyed {
			continue
		}
		m.logger.Debug("instance destroyed", "class", i.class.Name, "id", i.ID(), "owned", i.owned)
		if !i.owned {
			continue
		}
		if destroy := i.class.Destructor(); destroy != nil {
			destroy(i.native)
		}
	}
}

// TypeOf returns the conversion type for parameters and results holding instances of
// c or its subclasses.
func (m *Manager) TypeOf(c *binding.Class) convert.Type {
	return convert.ExternalOf(&instanceType{mgr: m, class: c})
}

type instanceType struct {
	mgr   *Manager
	class *binding.Class
}

func (t *instanceType) TypeName() string {
	return t.class.Name
}

func (t *instanceType) Compatible(v starlark.Value) bool {
	w, ok := v.(*Wrapper)
	return ok && w.inst.class.IsA(t.class)
}

func (t *instanceType) ToNative(v starlark.Value) (any, error) {
	w, ok := v.(*Wrapper)
	if !ok || !w.inst.class.IsA(t.class) {
		return nil, &convert.ConversionError{Want: convert.ExternalOf(t), Got: v.Type()}
	}
	if err := w.inst.Check(); err != nil {
		return nil, err
	}
	return w.inst.native, nil
}

func (t *instanceType) ToStarlark(v any) (starlark.Value, error) {
	if isNil(v) {
		return starlark.None, nil
	}
	w, err := t.mgr.Wrap(v)
	if err != nil {
		return nil, err
	}
	return w, nil
}

// Instances returns the tracked instances sorted by class name then ID.
func (m *Manager) Instances() []*Instance {
	m.mu.Lock()
	out := make([]*Instance, 0, len(m.instances))
	for _, inst := range m.instances {
		out = append(out, inst)
	}
	m.mu.Unlock()
	sort.Slice(out, func(a, b int) bool {
		if out[a].class.Name != out[b].class.Name {
			return out[a].class.Name < out[b].class.Name
		}
		return out[a].ID() < out[b].ID()
	})
	return out
}

func isNil(v any) bool {
	if v == nil {
		return true
	}
	rv := reflect.ValueOf(v)
	return rv.Kind() == reflect.Pointer && rv.IsNil()
}
