package dispatch

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/leapstack-labs/starbind/internal/binding"
	"github.com/leapstack-labs/starbind/internal/convert"
	"github.com/leapstack-labs/starbind/internal/object"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.starlark.net/starlark"
)

type shape struct{ sides int64 }

var describeSig = binding.Signature{
	Name:    "describe",
	Params:  []convert.Type{convert.Int},
	Result:  convert.String,
	Virtual: true,
}

type harness struct {
	mgr    *object.Manager
	cls    *binding.Class
	other  *binding.Class
	events []Event
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	h := &harness{}
	reg := binding.NewRegistry()
	h.mgr = object.NewManager(reg, nil)
	h.cls = reg.MustRegister(binding.NewClass("Shape", nil, func() *shape { return &shape{sides: 3} }))
	h.other = reg.MustRegister(binding.NewClass("Other", nil, func() *shape { return &shape{} }))
	return h
}

func (h *harness) bridge(opts ...Option) *Bridge {
	opts = append(opts, WithObserver(ObserverFunc(func(ev Event) { h.events = append(h.events, ev) })))
	return New(opts...)
}

func (h *harness) states() []State {
	out := make([]State, len(h.events))
	for i, ev := range h.events {
		out[i] = ev.State
	}
	return out
}

// instance creates a Shape, or a script subclass of it when src defines methods.
func (h *harness) instance(t *testing.T, src string) *object.Wrapper {
	t.Helper()
	thread := &starlark.Thread{Name: "setup"}
	cls := h.mgr.Class(h.cls)
	if src != "" {
		predeclared := starlark.StringDict{
			"thread_name": starlark.NewBuiltin("thread_name", func(thread *starlark.Thread, _ *starlark.Builtin, _ starlark.Tuple, _ []starlark.Tuple) (starlark.Value, error) {
				return starlark.String(thread.Name), nil
			}),
		}
		globals, err := starlark.ExecFile(thread, "sub.star", src, predeclared) //nolint:staticcheck // SA1019: will migrate to EvalOptions later
		require.NoError(t, err)
		methods := make(starlark.StringDict)
		for name, v := range globals {
			methods[name] = v
		}
		cls, err = object.NewSubclass(cls, "Sub", methods)
		require.NoError(t, err)
	}
	v, err := starlark.Call(thread, cls, nil, nil)
	require.NoError(t, err)
	return v.(*object.Wrapper)
}

func nativeDescribe(n int64) func() (any, error) {
	return func() (any, error) {
		return fmt.Sprintf("native %d", n), nil
	}
}

func TestBridge_NativeDefault(t *testing.T) {
	h := newHarness(t)
	w := h.instance(t, "")

	got, err := Typed[string](h.bridge().Invoke(context.Background(), w.Instance(), h.cls, describeSig, []any{int64(4)}, nativeDescribe(4)))
	require.NoError(t, err)
	assert.Equal(t, "native 4", got)
	assert.Equal(t, []State{StateEntered, StateResolving, StateNativeDefault, StateReturned}, h.states())
}

func TestBridge_DynamicOverride(t *testing.T) {
	h := newHarness(t)
	w := h.instance(t, `
def describe(self, n):
    self.called = True
    return "override %d" % n
`)

	got, err := Typed[string](h.bridge().Invoke(context.Background(), w.Instance(), h.cls, describeSig, []any{int64(5)}, nativeDescribe(5)))
	require.NoError(t, err)
	assert.Equal(t, "override 5", got)
	assert.Equal(t, []State{StateEntered, StateResolving, StateDynamicOverride, StateReturned}, h.states())
	assert.Equal(t, "Sub", h.events[len(h.events)-1].Class)

	called, err := w.Attr("called")
	require.NoError(t, err)
	assert.Equal(t, starlark.True, called)
	assert.Equal(t, 1, w.Instance().Refs(), "the call's reference is released")
}

func TestBridge_OverrideErrors(t *testing.T) {
	tests := []struct {
		name  string
		src   string
		check func(t *testing.T, err error)
	}{
		{
			name: "override fails",
			src: `
def describe(self, n):
    fail("boom")
`,
			check: func(t *testing.T, err error) {
				var invErr *OverrideInvocationError
				require.True(t, errors.As(err, &invErr), "expected *OverrideInvocationError, got %T", err)
				assert.Equal(t, "describe", invErr.Method)
				assert.Contains(t, err.Error(), "boom")
			},
		},
		{
			name: "wrong result type",
			src: `
def describe(self, n):
    return n
`,
			check: func(t *testing.T, err error) {
				var convErr *convert.ConversionError
				require.True(t, errors.As(err, &convErr), "expected *convert.ConversionError, got %T", err)
				assert.Equal(t, convert.KindString, convErr.Want.Kind)
				assert.Contains(t, err.Error(), "returned int")
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t)
			w := h.instance(t, tt.src)
			_, err := h.bridge().Invoke(context.Background(), w.Instance(), h.cls, describeSig, []any{int64(1)}, nativeDescribe(1))
			require.Error(t, err)
			tt.check(t, err)
			assert.Equal(t, StateReturned, h.events[len(h.events)-1].State)
		})
	}
}

func TestBridge_IdentityMismatch(t *testing.T) {
	h := newHarness(t)
	w := h.instance(t, `
def describe(self, n):
    fail("must not be called")
`)

	_, err := h.bridge().Invoke(context.Background(), w.Instance(), h.other, describeSig, []any{int64(1)}, nativeDescribe(1))
	var mismatch *IdentityMismatchError
	require.True(t, errors.As(err, &mismatch))
	assert.Equal(t, "Other", mismatch.Expected)
	assert.Equal(t, "Shape", mismatch.Got)
	assert.Equal(t, []State{StateEntered, StateReturned}, h.states())
}

func TestBridge_NilDeclaringClass(t *testing.T) {
	h := newHarness(t)
	w := h.instance(t, `
def describe(self, n):
    fail("must not be called")
`)

	got, err := h.bridge().Invoke(context.Background(), w.Instance(), nil, describeSig, []any{int64(1)}, nativeDescribe(1))
	assert.Nil(t, got)
	require.ErrorIs(t, err, ErrNoDeclaringClass)
	assert.Equal(t, "describe: no declaring class for virtual call", err.Error())
	assert.Empty(t, h.events, "rejected before the call is entered")
}

func TestBridge_InvalidInstance(t *testing.T) {
	h := newHarness(t)
	w := h.instance(t, "")
	w.Instance().Invalidate()

	_, err := h.bridge().Invoke(context.Background(), w.Instance(), h.cls, describeSig, []any{int64(1)}, nativeDescribe(1))
	var invalid *object.InvalidObjectError
	assert.True(t, errors.As(err, &invalid))
}

func TestBridge_PureVirtual(t *testing.T) {
	h := newHarness(t)

	w := h.instance(t, "")
	_, err := h.bridge().Invoke(context.Background(), w.Instance(), h.cls, describeSig, []any{int64(1)}, nil)
	assert.ErrorIs(t, err, ErrPureVirtual)

	inst, err := h.mgr.Adopt(&shape{}, h.cls, false)
	require.NoError(t, err)
	_, err = h.bridge().Invoke(context.Background(), inst, h.cls, describeSig, []any{int64(1)}, nil)
	assert.ErrorIs(t, err, ErrNoWrapper)
}

type fakePool struct {
	lent, returned int
}

func (p *fakePool) Get(name string) *starlark.Thread {
	p.lent++
	return &starlark.Thread{Name: "pooled " + name}
}

func (p *fakePool) Put(*starlark.Thread) {
	p.returned++
}

func TestBridge_ThreadSelection(t *testing.T) {
	src := `
def describe(self, n):
    return thread_name()
`
	t.Run("caller thread", func(t *testing.T) {
		h := newHarness(t)
		w := h.instance(t, src)
		pool := &fakePool{}
		ctx := binding.WithThread(context.Background(), &starlark.Thread{Name: "caller"})

		got, err := Typed[string](h.bridge(WithThreadSource(pool)).Invoke(ctx, w.Instance(), h.cls, describeSig, []any{int64(1)}, nil))
		require.NoError(t, err)
		assert.Equal(t, "caller", got)
		assert.Zero(t, pool.lent)
	})

	t.Run("pooled thread", func(t *testing.T) {
		h := newHarness(t)
		w := h.instance(t, src)
		pool := &fakePool{}

		got, err := Typed[string](h.bridge(WithThreadSource(pool)).Invoke(context.Background(), w.Instance(), h.cls, describeSig, []any{int64(1)}, nil))
		require.NoError(t, err)
		assert.Equal(t, "pooled dispatch", got)
		assert.Equal(t, 1, pool.lent)
		assert.Equal(t, 1, pool.returned)
	})
}

func TestTyped(t *testing.T) {
	n, err := Typed[int64](int64(3), nil)
	require.NoError(t, err)
	assert.Equal(t, int64(3), n)

	s, err := Typed[string](nil, nil)
	require.NoError(t, err)
	assert.Empty(t, s)

	_, err = Typed[string](int64(3), nil)
	assert.ErrorContains(t, err, "unexpected result type int64, want string")

	boom := errors.New("boom")
	_, err = Typed[string]("x", boom)
	assert.ErrorIs(t, err, boom)
}

func TestStateString(t *testing.T) {
	assert.Equal(t, "dynamic_override", StateDynamicOverride.String())
	assert.Equal(t, "State(42)", State(42).String())
}
