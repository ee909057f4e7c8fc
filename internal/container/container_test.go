package container

import (
	"errors"
	"testing"

	"github.com/leapstack-labs/starbind/internal/convert"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.starlark.net/starlark"
)

func ints(ns ...int) []starlark.Value {
	out := make([]starlark.Value, len(ns))
	for i, n := range ns {
		out[i] = starlark.MakeInt(n)
	}
	return out
}

func TestSequence_Basics(t *testing.T) {
	s := NewSequence[int64]()
	assert.Equal(t, 0, s.Len())

	s.Append(3, 5)
	s.Append(7)
	assert.Equal(t, 3, s.Len())
	assert.Equal(t, int64(5), s.At(1))

	s.Set(1, 6)
	assert.Equal(t, []int64{3, 6, 7}, s.Slice())

	clone := s.Clone()
	clone.Set(0, 100)
	assert.Equal(t, int64(3), s.At(0), "clone must be independent")
}

func TestNewSequence_CopiesInput(t *testing.T) {
	src := []int64{1, 2}
	s := NewSequence(src...)
	src[0] = 9
	assert.Equal(t, int64(1), s.At(0))
}

func TestAdaptOut(t *testing.T) {
	s := NewSequence(complex(1.2, 3.4), complex(5.6, 7.8))

	list, err := AdaptOut(s)
	require.NoError(t, err)
	require.Equal(t, 2, list.Len())
	for i := 0; i < list.Len(); i++ {
		assert.Equal(t, "complex", list.Index(i).Type())
	}

	require.NoError(t, list.Append(starlark.MakeInt(1)))
	assert.Equal(t, 2, s.Len(), "adapted list must not alias the sequence")
}

func TestAdaptOut_Nil(t *testing.T) {
	var s *Sequence[int64]
	list, err := AdaptOut(s)
	require.NoError(t, err)
	assert.Equal(t, 0, list.Len())
}

func TestAdaptIn(t *testing.T) {
	tests := []struct {
		name  string
		input starlark.Value
		want  []int64
	}{
		{name: "list", input: starlark.NewList(ints(3, 5, 7)), want: []int64{3, 5, 7}},
		{name: "tuple", input: starlark.Tuple(ints(3, 5, 7)), want: []int64{3, 5, 7}},
		{name: "empty", input: starlark.NewList(nil), want: []int64{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, err := AdaptIn[int64](tt.input, convert.Int)
			require.NoError(t, err)
			assert.Equal(t, tt.want, s.Slice())
		})
	}
}

func TestAdaptIn_AllOrNothing(t *testing.T) {
	input := starlark.NewList(append(ints(1, 2), starlark.String("x"), starlark.MakeInt(4)))

	s, err := AdaptIn[int64](input, convert.Int)
	assert.Nil(t, s)

	var ce *convert.ConversionError
	require.True(t, errors.As(err, &ce))
	assert.Equal(t, 2, ce.Index())
}

func TestAdaptIn_ElementTypeMismatch(t *testing.T) {
	_, err := AdaptIn[int64](starlark.NewList([]starlark.Value{starlark.Float(1)}), convert.Float)

	var ce *convert.ConversionError
	require.True(t, errors.As(err, &ce))
	assert.Equal(t, "native element type mismatch", ce.Reason)
}

func TestRoundTripThroughSequence(t *testing.T) {
	in := starlark.Tuple(ints(3, 5, 7))

	s, err := AdaptIn[int64](in, convert.Int)
	require.NoError(t, err)
	out, err := AdaptOut(s)
	require.NoError(t, err)

	assert.Equal(t, "list", out.Type(), "output is always the canonical kind")
	eq, err := starlark.Equal(out, starlark.NewList(ints(3, 5, 7)))
	require.NoError(t, err)
	assert.True(t, bool(eq))
	neq, err := starlark.Equal(out, in)
	require.NoError(t, err)
	assert.False(t, bool(neq), "list must not equal the tuple it came from")
}

func TestSum(t *testing.T) {
	assert.Equal(t, int64(15), Sum(NewSequence[int64](3, 5, 7)))
	floats := []float64{3.3, 4.4, 5.5}
	var want float64
	for _, f := range floats {
		want += f
	}
	assert.Equal(t, want, Sum(NewSequence(floats...)))

	c := Sum(NewSequence(complex(1.2, 3.4), complex(5.6, 7.8)))
	assert.InDelta(t, 6.8, real(c), 1e-12)
	assert.InDelta(t, 11.2, imag(c), 1e-12)
	assert.Equal(t, int64(0), Sum(NewSequence[int64]()))
}

func TestReduce_PreservesOrder(t *testing.T) {
	s := NewSequence("a", "b", "c")
	got := Reduce(s, "", func(acc string, v string) string { return acc + v })
	assert.Equal(t, "abc", got)
}

func TestFromNative(t *testing.T) {
	s, err := FromNative[int64]([]int64{1, 2})
	require.NoError(t, err)
	assert.Equal(t, 2, s.Len())

	s, err = FromNative[int64](nil)
	require.NoError(t, err)
	assert.Equal(t, 0, s.Len())

	_, err = FromNative[int64]([]float64{1})
	assert.Error(t, err)
}

func TestListType_ToNative(t *testing.T) {
	typ := ListType[int64](convert.Int)
	assert.Equal(t, "list<int>", typ.String())

	tests := []struct {
		name    string
		input   starlark.Value
		want    []int64
		wantIdx int
	}{
		{name: "list", input: starlark.NewList(ints(3, 5, 7)), want: []int64{3, 5, 7}},
		{name: "tuple", input: starlark.Tuple(ints(1, 2)), want: []int64{1, 2}},
		{name: "bad element", input: starlark.NewList(append(ints(1), starlark.String("x"))), wantIdx: 1},
		{name: "not iterable", input: starlark.MakeInt(1), wantIdx: -1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := convert.ToNative(tt.input, typ)
			if tt.want == nil {
				assert.Nil(t, got)
				var ce *convert.ConversionError
				require.True(t, errors.As(err, &ce), "expected *convert.ConversionError, got %T", err)
				assert.Equal(t, tt.wantIdx, ce.Index())
				return
			}
			require.NoError(t, err)
			s, ok := got.(*Sequence[int64])
			require.True(t, ok, "expected *Sequence[int64], got %T", got)
			assert.Equal(t, tt.want, s.Slice())
		})
	}
}

func TestListType_Compatible(t *testing.T) {
	mixed := starlark.NewList([]starlark.Value{starlark.MakeInt(1), starlark.Float(2.5)})

	assert.True(t, convert.Compatible(starlark.Tuple(ints(1, 2)), ListType[int64](convert.Int)))
	assert.False(t, convert.Compatible(mixed, ListType[int64](convert.Int)))
	assert.True(t, convert.Compatible(mixed, ListType[float64](convert.Float)))
	assert.False(t, convert.Compatible(starlark.String("12"), ListType[int64](convert.Int)))
}

func TestListType_ToStarlark(t *testing.T) {
	src := NewSequence(complex(1, 2), complex(3, 4))

	v, err := convert.ToStarlarkAs(src, ListType[complex128](convert.Complex))
	require.NoError(t, err)
	list, ok := v.(*starlark.List)
	require.True(t, ok, "expected *starlark.List, got %T", v)
	assert.Equal(t, 2, list.Len())
	assert.Equal(t, "complex", list.Index(0).Type())

	require.NoError(t, list.SetIndex(0, starlark.None))
	assert.Equal(t, complex(1, 2), src.At(0), "list does not alias the sequence")

	v, err = convert.ToStarlarkAs([]int64{4, 5}, ListType[int64](convert.Int))
	require.NoError(t, err)
	assert.Equal(t, "[4, 5]", v.String())

	_, err = convert.ToStarlarkAs("nope", ListType[int64](convert.Int))
	assert.Error(t, err)
}
