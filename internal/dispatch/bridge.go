// Package dispatch routes calls of virtual native methods to Starlark overrides.
//
// Every bound instance created from a script gets a virtual table whose entries call
// Bridge.Invoke. The bridge looks up an override on the instance's Starlark class at
// call time. If there is one it marshals the native arguments to Starlark, runs the
// override and marshals the result back; otherwise it runs the native default.
package dispatch

import (
	"context"
	"fmt"
	"log/slog"
	"reflect"

	"github.com/leapstack-labs/starbind/internal/binding"
	"github.com/leapstack-labs/starbind/internal/convert"
	"github.com/leapstack-labs/starbind/internal/object"
	"go.starlark.net/starlark"
)

// State is a step of a virtual call.
type State int

const (
	StateEntered State = iota
	StateResolving
	StateNativeDefault
	StateDynamicOverride
	StateReturned
)

func (s State) String() string {
	switch s {
	case StateEntered:
		return "entered"
	case StateResolving:
		return "resolving"
	case StateNativeDefault:
		return "native_default"
	case StateDynamicOverride:
		return "dynamic_override"
	case StateReturned:
		return "returned"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

// Event describes one state transition of a virtual call.
type Event struct {
	Class      string
	Method     string
	InstanceID string
	State      State
	Err        error
}

// Observer is notified of every state transition.
type Observer interface {
	Observe(Event)
}

// ObserverFunc adapts a function to Observer.
type ObserverFunc func(Event)

func (f ObserverFunc) Observe(ev Event) { f(ev) }

// ThreadSource lends Starlark threads for calls that did not originate in Starlark.
type ThreadSource interface {
	Get(name string) *starlark.Thread
	Put(*starlark.Thread)
}

// Bridge dispatches virtual calls.
type Bridge struct {
	threads  ThreadSource
	logger   *slog.Logger
	observer Observer
}

// Option configures a Bridge.
type Option func(*Bridge)

// WithThreadSource sets where threads come from when the context carries none.
func WithThreadSource(src ThreadSource) Option {
	return func(b *Bridge) {
		b.threads = src
	}
}

// WithLogger sets the logger for transitions.
func WithLogger(logger *slog.Logger) Option {
	return func(b *Bridge) {
		b.logger = logger
	}
}

// WithObserver registers an observer for transitions.
func WithObserver(o Observer) Option {
	return func(b *Bridge) {
		b.observer = o
	}
}

// New creates a bridge.
func New(opts ...Option) *Bridge {
	b := &Bridge{}
	for _, opt := range opts {
		opt(b)
	}
	if b.logger == nil {
		b.logger = slog.New(slog.DiscardHandler)
	}
	return b
}

// Invoke performs a virtual call of sig on inst. expected is the class declaring the
// virtual. args are native values matching sig.Params. native runs the native
// default and may be nil for pure virtuals.
func (b *Bridge) Invoke(ctx context.Context, inst *object.Instance, expected *binding.Class, sig binding.Signature, args []any, native func() (any, error)) (any, error) {
	if inst == nil {
		return nil, fmt.Errorf("%s: %w", sig.Name, ErrNoWrapper)
	}
	if expected == nil {
		return nil, fmt.Errorf("%s: %w", sig.Name, ErrNoDeclaringClass)
	}
	ev := Event{Class: inst.Class().Name, Method: sig.Name, InstanceID: inst.ID()}
	b.emit(ev, StateEntered, nil)

	if !inst.Class().IsA(expected) {
		err := &IdentityMismatchError{Method: sig.Name, Expected: expected.Name, Got: inst.Class().Name}
		b.emit(ev, StateReturned, err)
		return nil, err
	}
	if err := inst.Check(); err != nil {
		b.emit(ev, StateReturned, err)
		return nil, err
	}
	inst.Retain()
	defer inst.Release()

	b.emit(ev, StateResolving, nil)
	w := inst.Wrapper()
	var override starlark.Callable
	if w != nil {
		ev.Class = w.Class().Name()
		override, _ = w.Class().Override(sig.Name)
	}

	if override == nil {
		if native == nil {
			err := fmt.Errorf("%s.%s: %w", ev.Class, sig.Name, ErrPureVirtual)
			if w == nil {
				err = fmt.Errorf("%s.%s: %w", ev.Class, sig.Name, ErrNoWrapper)
			}
			b.emit(ev, StateReturned, err)
			return nil, err
		}
		b.emit(ev, StateNativeDefault, nil)
		result, err := native()
		b.emit(ev, StateReturned, err)
		return result, err
	}

	b.emit(ev, StateDynamicOverride, nil)
	result, err := b.callOverride(ctx, w, override, sig, args)
	b.emit(ev, StateReturned, err)
	return result, err
}

func (b *Bridge) callOverride(ctx context.Context, w *object.Wrapper, fn starlark.Callable, sig binding.Signature, args []any) (any, error) {
	if len(args) != len(sig.Params) {
		return nil, fmt.Errorf("%s: got %d arguments, want %d", sig.Name, len(args), len(sig.Params))
	}
	sargs := make(starlark.Tuple, 0, len(args)+1)
	sargs = append(sargs, w)
	for i, a := range args {
		v, err := convert.ToStarlarkAs(a, sig.Params[i])
		if err != nil {
			return nil, fmt.Errorf("%s: argument %d: %w", sig.Name, i+1, err)
		}
		sargs = append(sargs, v)
	}

	thread, done := b.thread(ctx)
	defer done()

	out, err := starlark.Call(thread, fn, sargs, nil)
	if err != nil {
		return nil, &OverrideInvocationError{Class: w.Class().Name(), Method: sig.Name, Err: err}
	}
	result, err := convert.ToNative(out, sig.Result)
	if err != nil {
		return nil, fmt.Errorf("override %s.%s returned %s: %w", w.Class().Name(), sig.Name, out.Type(), err)
	}
	return result, nil
}

// thread returns the thread that entered native code if there is one, so nested
// calls share its call stack and step budget.
func (b *Bridge) thread(ctx context.Context) (*starlark.Thread, func()) {
	if t, ok := binding.ThreadFrom(ctx); ok {
		return t, func() {}
	}
	var t *starlark.Thread
	done := func() {}
	if b.threads != nil {
		t = b.threads.Get("dispatch")
		done = func() { b.threads.Put(t) }
	} else {
		t = &starlark.Thread{Name: "dispatch"}
	}
	binding.SetThreadContext(t, ctx)
	return t, done
}

func (b *Bridge) emit(ev Event, s State, err error) {
	ev.State = s
	ev.Err = err
	if err != nil {
		b.logger.Debug("virtual call", "class", ev.Class, "method", ev.Method, "id", ev.InstanceID, "state", s.String(), "error", err)
	} else {
		b.logger.Debug("virtual call", "class", ev.Class, "method", ev.Method, "id", ev.InstanceID, "state", s.String())
	}
	if b.observer != nil {
		b.observer.Observe(ev)
	}
}

// Typed asserts the result of Invoke to R. A nil result yields the zero R.
func Typed[R any](result any, err error) (R, error) {
	var zero R
	if err != nil {
		return zero, err
	}
	if result == nil {
		return zero, nil
	}
	r, ok := result.(R)
	if !ok {
		return zero, fmt.Errorf("unexpected result type %T, want %v", result, reflect.TypeFor[R]())
	}
	return r, nil
}
