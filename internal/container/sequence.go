// Package container adapts native ordered sequences to and from Starlark lists.
package container

import (
	"iter"
	"slices"
)

// Sequence is an ordered, owned, mutable collection of native elements.
type Sequence[T any] struct {
	items []T
}

// NewSequence returns a sequence holding a copy of items.
func NewSequence[T any](items ...T) *Sequence[T] {
	return &Sequence[T]{items: slices.Clone(items)}
}

// Len returns the number of elements.
func (s *Sequence[T]) Len() int {
	if s == nil {
		return 0
	}
	return len(s.items)
}

// At returns the element at index i. It panics if i is out of range.
func (s *Sequence[T]) At(i int) T {
	return s.items[i]
}

// Index returns the element at i as an any; it makes Sequence a convert.Sequencer.
func (s *Sequence[T]) Index(i int) any {
	return s.items[i]
}

// Set replaces the element at index i.
func (s *Sequence[T]) Set(i int, v T) {
	s.items[i] = v
}

// Append adds v to the end of the sequence.
func (s *Sequence[T]) Append(v ...T) {
	s.items = append(s.items, v...)
}

// All iterates over index/element pairs in order.
func (s *Sequence[T]) All() iter.Seq2[int, T] {
	return func(yield func(int, T) bool) {
		if s == nil {
			return
		}
		for i, v := range s.items {
			if !yield(i, v) {
				return
			}
		}
	}
}

// Slice returns a copy of the elements.
func (s *Sequence[T]) Slice() []T {
	if s == nil {
		return []T{}
	}
	return slices.Clone(s.items)
}

// Clone returns an independent copy of the sequence.
func (s *Sequence[T]) Clone() *Sequence[T] {
	return NewSequence(s.Slice()...)
}

// Number is the set of element types that can be summed.
type Number interface {
	~int | ~int8 | ~int16 | ~int32 | ~int64 |
		~uint | ~uint8 | ~uint16 | ~uint32 | ~uint64 |
		~float32 | ~float64 | ~complex64 | ~complex128
}

// Sum adds the elements in sequence order.
func Sum[T Number](s *Sequence[T]) T {
	return Reduce(s, T(0), func(acc T, v T) T { return acc + v })
}

// Reduce folds the sequence from first to last element. The order is stable, so fn
// need not be commutative.
func Reduce[T, A any](s *Sequence[T], init A, fn func(A, T) A) A {
	acc := init
	for _, v := range s.All() {
		acc = fn(acc, v)
	}
	return acc
}
