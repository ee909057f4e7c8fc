package container

import (
	"fmt"
	"reflect"

	"github.com/leapstack-labs/starbind/internal/convert"
	"go.starlark.net/starlark"
)

// AdaptOut materialises s as a new Starlark list. It reads s once, in order, and
// leaves it unchanged; the list shares no storage with s.
func AdaptOut[T any](s *Sequence[T]) (*starlark.List, error) {
	elems := make([]starlark.Value, 0, s.Len())
	for i, v := range s.All() {
		sv, err := convert.ToStarlark(v)
		if err != nil {
			return nil, fmt.Errorf("list index %d: %w", i, err)
		}
		elems = append(elems, sv)
	}
	return starlark.NewList(elems), nil
}

// AdaptIn builds a native sequence from any Starlark iterable, converting each
// element to elem. It is all-or-nothing: when any element fails, no sequence is
// returned and the error is a *convert.ConversionError naming the index.
func AdaptIn[T any](v starlark.Value, elem convert.Type) (*Sequence[T], error) {
	items := make([]T, 0, max(starlark.Len(v), 0))
	err := convert.Each(v, elem, func(i int, x any) error {
		t, ok := x.(T)
		if !ok {
			return &convert.ConversionError{
				Path:   []int{i},
				Want:   elem,
				Got:    fmt.Sprintf("%T", x),
				Reason: "native element type mismatch",
			}
		}
		items = append(items, t)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &Sequence[T]{items: items}, nil
}

// FromNative wraps a value produced by convert.ToNative for a list slot.
func FromNative[T any](v any) (*Sequence[T], error) {
	switch x := v.(type) {
	case nil:
		return NewSequence[T](), nil
	case *Sequence[T]:
		return x, nil
	case []T:
		return &Sequence[T]{items: x}, nil
	}
	return nil, fmt.Errorf("expected []%v, got %T", reflect.TypeFor[T](), v)
}

// ListType returns the slot type for a list parameter or result whose native form
// is *Sequence[T]. Arguments are built with AdaptIn and results leave through
// AdaptOut; overload matching checks every element against elem.
func ListType[T any](elem convert.Type) convert.Type {
	return convert.ExternalOf(sequenceType[T]{elem: elem})
}

type sequenceType[T any] struct {
	elem convert.Type
}

func (t sequenceType[T]) TypeName() string {
	return convert.ListOf(t.elem).String()
}

func (t sequenceType[T]) Compatible(v starlark.Value) bool {
	return convert.Compatible(v, convert.ListOf(t.elem))
}

func (t sequenceType[T]) ToNative(v starlark.Value) (any, error) {
	s, err := AdaptIn[T](v, t.elem)
	if err != nil {
		return nil, err
	}
	return s, nil
}

func (t sequenceType[T]) ToStarlark(v any) (starlark.Value, error) {
	s, err := FromNative[T](v)
	if err != nil {
		return nil, err
	}
	return AdaptOut(s)
}
