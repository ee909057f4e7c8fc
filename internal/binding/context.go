package binding

import (
	"context"

	"go.starlark.net/starlark"
)

type threadKey struct{}

// contextLocal is the thread-local key holding the context a script runs under.
const contextLocal = "starbind.context"

// WithThread records the Starlark thread that entered native code, so callbacks
// into Starlark made further down the native stack run on the same thread.
func WithThread(ctx context.Context, thread *starlark.Thread) context.Context {
	return context.WithValue(ctx, threadKey{}, thread)
}

// ThreadFrom returns the thread stored by WithThread.
func ThreadFrom(ctx context.Context) (*starlark.Thread, bool) {
	if ctx == nil {
		return nil, false
	}
	t, ok := ctx.Value(threadKey{}).(*starlark.Thread)
	return t, ok && t != nil
}

// SetThreadContext attaches ctx to thread for native calls made from it.
func SetThreadContext(thread *starlark.Thread, ctx context.Context) {
	thread.SetLocal(contextLocal, ctx)
}

// ContextOf returns the context attached to thread by SetThreadContext, or
// context.Background.
func ContextOf(thread *starlark.Thread) context.Context {
	ctx, ok := thread.Local(contextLocal).(context.Context)
	if !ok || ctx == nil {
		return context.Background()
	}
	return ctx
}

// ThreadContext returns the context native code should run under when called from
// thread. The returned context always carries thread itself.
func ThreadContext(thread *starlark.Thread) context.Context {
	return WithThread(ContextOf(thread), thread)
}
