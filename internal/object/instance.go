// Package object pairs native Go values with the Starlark values that represent them.
//
// An Instance is the native half. It tracks reference counts, ownership, validity,
// parent/child links and references kept on behalf of the native value. A Wrapper is
// the Starlark half. The wrapper holds its instance strongly; the instance only holds
// a weak pointer back, so a script dropping its last reference lets the wrapper be
// collected while native holders keep the instance alive through Retain.
package object

import (
	"slices"
	"weak"

	"github.com/google/uuid"
	"github.com/leapstack-labs/starbind/internal/binding"
	"go.starlark.net/starlark"
)

// Instance is a native value bound to the Starlark side.
//
// All mutable state is guarded by the owning Manager's mutex.
type Instance struct {
	id     uuid.UUID
	class  *binding.Class
	native any
	mgr    *Manager

	refs      int
	owned     bool
	valid     bool
	destroyed bool

	parent   *Instance
	children []*Instance
	kept     map[string][]starlark.Value

	wrapper weak.Pointer[Wrapper]
}

var _ binding.Handle = (*Instance)(nil)

// ID returns the instance's unique identifier.
func (i *Instance) ID() string {
	return i.id.String()
}

// Class returns the native class the instance was created as.
func (i *Instance) Class() *binding.Class {
	return i.class
}

// Native returns the underlying native value.
func (i *Instance) Native() any {
	return i.native
}

// Manager returns the manager tracking the instance.
func (i *Instance) Manager() *Manager {
	return i.mgr
}

// Wrapper returns the live Starlark wrapper, or nil if it was collected or never made.
func (i *Instance) Wrapper() *Wrapper {
	return i.wrapper.Value()
}

// Retain adds a native reference. Each Retain must be paired with a Release.
func (i *Instance) Retain() {
	i.mgr.mu.Lock()
	defer i.mgr.mu.Unlock()
	i.refs++
}

// Release drops a reference. When none remain the instance is forgotten by its
// manager and, if the binding owns the native value, destroyed.
func (i *Instance) Release() {
	m := i.mgr
	m.mu.Lock()
	doomed := m.releaseLocked(i)
	m.mu.Unlock()
	m.finalize(doomed)
}

// Refs returns the current reference count.
func (i *Instance) Refs() int {
	i.mgr.mu.Lock()
	defer i.mgr.mu.Unlock()
	return i.refs
}

// HasOwnership reports whether the binding is responsible for destroying the native value.
func (i *Instance) HasOwnership() bool {
	i.mgr.mu.Lock()
	defer i.mgr.mu.Unlock()
	return i.owned
}

// TakeOwnership makes the binding responsible for destroying the native value.
// The instance is detached from its parent.
func (i *Instance) TakeOwnership() {
	m := i.mgr
	m.mu.Lock()
	i.owned = true
	doomed := m.removeParentLocked(i)
	m.mu.Unlock()
	m.finalize(doomed)
}

// ReleaseOwnership hands responsibility for the native value to native code.
func (i *Instance) ReleaseOwnership() {
	i.mgr.mu.Lock()
	defer i.mgr.mu.Unlock()
	i.owned = false
}

// IsValid reports whether the instance may still be used.
func (i *Instance) IsValid() bool {
	i.mgr.mu.Lock()
	defer i.mgr.mu.Unlock()
	return i.valid && !i.destroyed
}

// Check returns an *InvalidObjectError if the instance may no longer be used.
func (i *Instance) Check() error {
	i.mgr.mu.Lock()
	defer i.mgr.mu.Unlock()
	return i.checkLocked()
}

func (i *Instance) checkLocked() error {
	if i.valid && !i.destroyed {
		return nil
	}
	return &InvalidObjectError{Class: i.class.Name, ID: i.ID(), Destroyed: i.destroyed}
}

// Invalidate marks the instance and all of its children unusable. Native code calls
// this when it deletes a value it owns.
func (i *Instance) Invalidate() {
	i.mgr.mu.Lock()
	defer i.mgr.mu.Unlock()
	invalidateLocked(i)
}

func invalidateLocked(i *Instance) {
	i.valid = false
	for _, c := range i.children {
		invalidateLocked(c)
	}
}

// MakeValid marks a previously invalidated instance usable again. Destroyed
// instances stay invalid.
func (i *Instance) MakeValid() {
	i.mgr.mu.Lock()
	defer i.mgr.mu.Unlock()
	if !i.destroyed {
		i.valid = true
	}
}

// Destroy invalidates the instance, detaches it from its parent and children and runs
// the class destructor if the binding owns the native value. It is idempotent.
func (i *Instance) Destroy() {
	m := i.mgr
	m.mu.Lock()
	doomed := m.destroyLocked(i)
	m.mu.Unlock()
	m.finalize(doomed)
}

// SetParent makes parent keep i alive. A nil parent is the same as RemoveParent.
func (i *Instance) SetParent(parent *Instance) {
	if parent == nil {
		i.RemoveParent()
		return
	}
	m := i.mgr
	m.mu.Lock()
	if i.parent == parent {
		m.mu.Unlock()
		return
	}
	doomed := m.removeParentLocked(i)
	i.parent = parent
	parent.children = append(parent.children, i)
	i.refs++
	m.mu.Unlock()
	m.finalize(doomed)
}

// RemoveParent detaches i from its parent, dropping the reference the parent held.
func (i *Instance) RemoveParent() {
	m := i.mgr
	m.mu.Lock()
	doomed := m.removeParentLocked(i)
	m.mu.Unlock()
	m.finalize(doomed)
}

// Parent returns the instance keeping i alive, if any.
func (i *Instance) Parent() *Instance {
	i.mgr.mu.Lock()
	defer i.mgr.mu.Unlock()
	return i.parent
}

// Children returns the instances i keeps alive.
func (i *Instance) Children() []*Instance {
	i.mgr.mu.Lock()
	defer i.mgr.mu.Unlock()
	return slices.Clone(i.children)
}

// KeepReference stores v under key for as long as the instance lives. With
// appendRef false any values already stored under key are replaced.
func (i *Instance) KeepReference(key string, v starlark.Value, appendRef bool) {
	i.mgr.mu.Lock()
	defer i.mgr.mu.Unlock()
	if i.kept == nil {
		i.kept = make(map[string][]starlark.Value)
	}
	if appendRef {
		i.kept[key] = append(i.kept[key], v)
		return
	}
	i.kept[key] = []starlark.Value{v}
}

// RemoveReference drops v from the values kept under key.
func (i *Instance) RemoveReference(key string, v starlark.Value) {
	i.mgr.mu.Lock()
	defer i.mgr.mu.Unlock()
	refs := slices.DeleteFunc(i.kept[key], func(x starlark.Value) bool {
		eq, err := starlark.Equal(x, v)
		return err == nil && eq
	})
	if len(refs) == 0 {
		delete(i.kept, key)
		return
	}
	i.kept[key] = refs
}

// References returns the values kept under key.
func (i *Instance) References(key string) []starlark.Value {
	i.mgr.mu.Lock()
	defer i.mgr.mu.Unlock()
	return slices.Clone(i.kept[key])
}
