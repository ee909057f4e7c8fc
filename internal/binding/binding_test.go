package binding

import (
	"context"
	"errors"
	"testing"

	"github.com/leapstack-labs/starbind/internal/convert"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.starlark.net/starlark"
)

type counter struct{ n int64 }

type labelled struct{ counter }

func newCounterClass() *Class {
	return NewClass("Counter", nil, func() *counter { return &counter{} }).
		Def(Signature{Name: "add", Params: []convert.Type{convert.Int}, Result: convert.Int},
			func(_ context.Context, self any, args []any) (any, error) {
				c := self.(*counter)
				c.n += args[0].(int64)
				return c.n, nil
			}).
		Def(Signature{Name: "add", Params: []convert.Type{convert.ListOf(convert.Int)}, Result: convert.Int},
			func(_ context.Context, self any, args []any) (any, error) {
				c := self.(*counter)
				for _, v := range args[0].([]int64) {
					c.n += v
				}
				return c.n, nil
			}).
		Def(Signature{Name: "reset", Result: convert.None, Virtual: true},
			func(_ context.Context, self any, _ []any) (any, error) {
				self.(*counter).n = 0
				return nil, nil
			})
}

func TestRegistry_Register(t *testing.T) {
	reg := NewRegistry()
	c := newCounterClass()

	require.NoError(t, reg.Register(c))
	assert.True(t, reg.Has("Counter"))
	assert.Equal(t, 1, reg.Len())

	got, ok := reg.ClassOf(&counter{})
	require.True(t, ok)
	assert.Same(t, c, got)

	// Re-registering the same class is a no-op.
	assert.NoError(t, reg.Register(c))
}

func TestRegistry_ReservedName(t *testing.T) {
	for _, reserved := range ReservedNames {
		t.Run(reserved, func(t *testing.T) {
			reg := NewRegistry()
			err := reg.Register(NewClass[counter](reserved, nil, nil))
			require.Error(t, err)

			var regErr *RegistryError
			require.True(t, errors.As(err, &regErr), "expected *RegistryError, got %T", err)
			assert.Equal(t, reserved, regErr.Name)
		})
	}
}

func TestRegistry_Duplicate(t *testing.T) {
	reg := NewRegistry()
	require.NoError(t, reg.Register(newCounterClass()))
	err := reg.Register(newCounterClass())
	assert.ErrorContains(t, err, "already registered")
}

func TestRegistry_UnregisteredBase(t *testing.T) {
	reg := NewRegistry()
	derived := NewClass("Labelled", newCounterClass(), func() *labelled { return &labelled{} })
	err := reg.Register(derived)
	assert.ErrorContains(t, err, "base class \"Counter\" is not registered")
}

func TestRegistry_ClassesSorted(t *testing.T) {
	reg := NewRegistry()
	base := reg.MustRegister(newCounterClass())
	reg.MustRegister(NewClass("Alpha", base, func() *labelled { return &labelled{} }))

	classes := reg.Classes()
	require.Len(t, classes, 2)
	assert.Equal(t, "Alpha", classes[0].Name)
	assert.Equal(t, "Counter", classes[1].Name)
}

func TestRegistry_Method(t *testing.T) {
	reg := NewRegistry()
	reg.MustRegister(newCounterClass())

	m, err := reg.Method("Counter", "add")
	require.NoError(t, err)
	assert.Len(t, m.Overloads, 2)

	_, err = reg.Method("Counter", "missing")
	assert.Error(t, err)
	_, err = reg.Method("Missing", "add")
	assert.Error(t, err)
}

func TestClass_Inheritance(t *testing.T) {
	base := newCounterClass()
	derived := NewClass[labelled]("Labelled", base, nil)

	assert.True(t, derived.IsA(base))
	assert.False(t, base.IsA(derived))
	assert.NotNil(t, derived.Constructor(), "inherits the base constructor")

	m, ok := derived.Method("reset")
	require.True(t, ok)
	assert.True(t, m.Virtual())
	assert.Equal(t, []string{"reset"}, derived.VirtualMethods())
	assert.Len(t, derived.Methods(), 2)
}

func TestMethod_Resolve(t *testing.T) {
	m, _ := newCounterClass().Method("add")

	o, err := m.Resolve(starlark.Tuple{starlark.MakeInt(1)})
	require.NoError(t, err)
	assert.Equal(t, convert.KindInt, o.Params[0].Kind)

	o, err = m.Resolve(starlark.Tuple{starlark.Tuple{starlark.MakeInt(1), starlark.MakeInt(2)}})
	require.NoError(t, err)
	assert.Equal(t, convert.KindList, o.Params[0].Kind)

	_, err = m.Resolve(starlark.Tuple{starlark.String("x")})
	var argErr *ArgumentError
	require.True(t, errors.As(err, &argErr))
	assert.Equal(t, []string{"string"}, argErr.Got)
	assert.Contains(t, argErr.Error(), "add(list<int>) -> int")
}

func TestMethod_Invoke(t *testing.T) {
	m, _ := newCounterClass().Method("add")
	c := &counter{}

	v, err := m.Invoke(context.Background(), c, starlark.Tuple{starlark.NewList([]starlark.Value{starlark.MakeInt(2), starlark.MakeInt(3)})})
	require.NoError(t, err)
	assert.Equal(t, "5", v.String())
	assert.Equal(t, int64(5), c.n)
}

func TestSignatureString(t *testing.T) {
	sig := Signature{Name: "createComplexList", Params: []convert.Type{convert.Complex, convert.Complex}, Result: convert.ListOf(convert.Complex), Static: true}
	assert.Equal(t, "static createComplexList(complex, complex) -> list<complex>", sig.String())

	sig = Signature{Name: "createList", Result: convert.ListOf(convert.Int), Virtual: true}
	assert.Equal(t, "virtual createList() -> list<int>", sig.String())
}

func TestThreadContext(t *testing.T) {
	_, ok := ThreadFrom(context.Background())
	assert.False(t, ok)

	thread := &starlark.Thread{Name: "t"}
	got, ok := ThreadFrom(WithThread(context.Background(), thread))
	require.True(t, ok)
	assert.Same(t, thread, got)
}

func TestThreadContext_Local(t *testing.T) {
	thread := &starlark.Thread{Name: "t"}

	ctx := ThreadContext(thread)
	got, ok := ThreadFrom(ctx)
	require.True(t, ok)
	assert.Same(t, thread, got)

	type key struct{}
	SetThreadContext(thread, context.WithValue(context.Background(), key{}, "v"))
	ctx = ThreadContext(thread)
	assert.Equal(t, "v", ctx.Value(key{}))
	got, _ = ThreadFrom(ctx)
	assert.Same(t, thread, got)
}

func TestMethod_ResolveSingleOverloadConvertsDirectly(t *testing.T) {
	c := NewClass("Store", nil, func() *counter { return &counter{} }).
		Def(Signature{Name: "set", Params: []convert.Type{convert.ListOf(convert.Int)}, Result: convert.None},
			func(context.Context, any, []any) (any, error) { return nil, nil })
	m, _ := c.Method("set")

	bad := starlark.NewList([]starlark.Value{starlark.MakeInt(1), starlark.MakeInt(2), starlark.String("x")})
	_, err := m.Invoke(context.Background(), &counter{}, starlark.Tuple{bad})

	var paramErr *ParamError
	require.True(t, errors.As(err, &paramErr), "expected *ParamError, got %T", err)
	var convErr *convert.ConversionError
	require.True(t, errors.As(err, &convErr))
	assert.Equal(t, 2, convErr.Index())

	_, err = m.Invoke(context.Background(), &counter{}, nil)
	var argErr *ArgumentError
	assert.True(t, errors.As(err, &argErr), "arity mismatch still reports the signatures")
}
