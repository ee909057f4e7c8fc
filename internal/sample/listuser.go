// Package sample holds native classes that exercise the binding layers, together
// with the glue exposing them to Starlark.
package sample

import (
	"context"
	"sync"

	"github.com/leapstack-labs/starbind/internal/container"
)

// ListUserVirtuals is the virtual table of ListUser.
type ListUserVirtuals interface {
	CreateList(ctx context.Context) (*container.Sequence[int64], error)
}

// ListUser stores a list of integers and produces lists through a virtual method.
type ListUser struct {
	mu   sync.Mutex
	list *container.Sequence[int64]
	vt   ListUserVirtuals
}

// NewListUser creates a ListUser with an empty list.
func NewListUser() *ListUser {
	return &ListUser{list: container.NewSequence[int64]()}
}

// SetVirtuals installs the virtual table used by CallCreateList. Nil restores the
// native implementation.
func (u *ListUser) SetVirtuals(vt ListUserVirtuals) {
	u.mu.Lock()
	defer u.mu.Unlock()
	u.vt = vt
}

// CreateList is the native implementation of the createList virtual.
func (u *ListUser) CreateList(context.Context) (*container.Sequence[int64], error) {
	return container.NewSequence[int64](1, 2), nil
}

// CallCreateList calls createList through the virtual table.
func (u *ListUser) CallCreateList(ctx context.Context) (*container.Sequence[int64], error) {
	u.mu.Lock()
	vt := u.vt
	u.mu.Unlock()
	if vt == nil {
		return u.CreateList(ctx)
	}
	return vt.CreateList(ctx)
}

// CreateComplexList returns a list holding a and b.
func CreateComplexList(a, b complex128) *container.Sequence[complex128] {
	return container.NewSequence(a, b)
}

// SumList adds the integers in s.
func (u *ListUser) SumList(s *container.Sequence[int64]) int64 {
	return container.Sum(s)
}

// SumFloatList adds the floats in s in order.
func (u *ListUser) SumFloatList(s *container.Sequence[float64]) float64 {
	return container.Sum(s)
}

// SetList replaces the stored list with a copy of s.
func (u *ListUser) SetList(s *container.Sequence[int64]) {
	u.mu.Lock()
	defer u.mu.Unlock()
	u.list = s.Clone()
}

// GetList returns a copy of the stored list.
func (u *ListUser) GetList() *container.Sequence[int64] {
	u.mu.Lock()
	defer u.mu.Unlock()
	return u.list.Clone()
}
