// Package host runs Starlark scripts against the bound native classes.
package host

import (
	"context"
	"fmt"
	"log/slog"
	"maps"
	"sync"

	"github.com/leapstack-labs/starbind/internal/binding"
	"github.com/leapstack-labs/starbind/internal/object"
	"go.starlark.net/starlark"
)

// Loader serves load() statements.
type Loader interface {
	Load(thread *starlark.Thread, module string) (starlark.StringDict, error)
}

// LoaderFunc adapts a function to Loader.
type LoaderFunc func(thread *starlark.Thread, module string) (starlark.StringDict, error)

func (f LoaderFunc) Load(thread *starlark.Thread, module string) (starlark.StringDict, error) {
	return f(thread, module)
}

// Runtime provides the globals and threads for executing scripts.
type Runtime struct {
	mgr      *object.Manager
	pool     *ThreadPool
	loader   Loader
	logger   *slog.Logger
	print    PrintFunc
	maxSteps uint64

	// Extra holds globals added on top of the builtins.
	Extra starlark.StringDict

	builtins starlark.StringDict
	globals  starlark.StringDict

	// mu protects globals
	mu sync.RWMutex
}

// Option is a functional option for configuring a Runtime.
type Option func(*Runtime)

// WithLogger sets the logger. print output is logged at info level unless
// WithPrint overrides it.
func WithLogger(logger *slog.Logger) Option {
	return func(r *Runtime) {
		r.logger = logger
	}
}

// WithThreadPool sets the pool used by EvalAll.
func WithThreadPool(pool *ThreadPool) Option {
	return func(r *Runtime) {
		r.pool = pool
	}
}

// WithLoader enables load() statements.
func WithLoader(l Loader) Option {
	return func(r *Runtime) {
		r.loader = l
	}
}

// WithMaxSteps limits the steps a single execution may take. Zero is unlimited.
func WithMaxSteps(n uint64) Option {
	return func(r *Runtime) {
		r.maxSteps = n
	}
}

// WithPrint sets the handler of the print builtin.
func WithPrint(fn PrintFunc) Option {
	return func(r *Runtime) {
		r.print = fn
	}
}

// WithGlobals adds globals available to every script.
func WithGlobals(globals starlark.StringDict) Option {
	return func(r *Runtime) {
		r.Extra = globals
	}
}

// New creates a runtime exposing the classes registered with mgr.
func New(mgr *object.Manager, opts ...Option) (*Runtime, error) {
	r := &Runtime{
		mgr:   mgr,
		Extra: make(starlark.StringDict),
	}
	for _, opt := range opts {
		opt(r)
	}
	if r.logger == nil {
		r.logger = slog.New(slog.DiscardHandler)
	}
	if r.print == nil {
		logger := r.logger
		r.print = func(thread *starlark.Thread, msg string) {
			logger.Info(msg, "thread", thread.Name)
		}
	}
	if r.pool == nil {
		r.pool = NewThreadPool(0, PoolMaxSteps(r.maxSteps), PoolPrint(r.print))
	}

	r.builtins = Predeclared(mgr)
	extra := r.Extra
	r.Extra = make(starlark.StringDict)
	if err := r.AddGlobals(extra); err != nil {
		return nil, err
	}
	return r, nil
}

// SetLoader enables load() statements after construction. Loaders usually need the
// runtime themselves.
func (r *Runtime) SetLoader(l Loader) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.loader = l
}

// Manager returns the instance manager behind the runtime's classes.
func (r *Runtime) Manager() *object.Manager {
	return r.mgr
}

// Pool returns the runtime's thread pool.
func (r *Runtime) Pool() *ThreadPool {
	return r.pool
}

// Logger returns the runtime's logger.
func (r *Runtime) Logger() *slog.Logger {
	return r.logger
}

// buildGlobals constructs the combined globals dict.
func (r *Runtime) buildGlobals() {
	g := maps.Clone(r.builtins)
	maps.Copy(g, r.Extra)
	r.globals = g
}

// Globals returns the predeclared globals for script execution.
func (r *Runtime) Globals() starlark.StringDict {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.globals
}

// AddGlobals adds values available to every script.
// Returns error if a name conflicts with a builtin or a bound class.
func (r *Runtime) AddGlobals(globals starlark.StringDict) error {
	for name := range globals {
		if _, ok := r.builtins[name]; ok {
			return fmt.Errorf("global %q conflicts with builtin", name)
		}
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	maps.Copy(r.Extra, globals)
	r.buildGlobals()
	return nil
}

// NewThread creates a thread for executing on behalf of ctx. Cancelling ctx cancels
// the thread. The returned func releases the cancellation hook.
func (r *Runtime) NewThread(ctx context.Context, name string) (*starlark.Thread, func()) {
	thread := &starlark.Thread{
		Name:  name,
		Print: r.print,
		Load:  r.load,
	}
	if r.maxSteps > 0 {
		thread.SetMaxExecutionSteps(r.maxSteps)
	}
	binding.SetThreadContext(thread, ctx)
	stop := context.AfterFunc(ctx, func() {
		thread.Cancel(context.Cause(ctx).Error())
	})
	return thread, func() { stop() }
}

func (r *Runtime) load(thread *starlark.Thread, module string) (starlark.StringDict, error) {
	r.mu.RLock()
	l := r.loader
	r.mu.RUnlock()
	if l == nil {
		return nil, fmt.Errorf("load(%q): loading modules is not enabled", module)
	}
	return l.Load(thread, module)
}

// ExecFile executes the Starlark file at filename.
func (r *Runtime) ExecFile(ctx context.Context, filename string) (starlark.StringDict, error) {
	return r.Exec(ctx, filename, nil)
}

// Exec executes src as a Starlark module named filename. src may be a string,
// []byte, io.Reader, or nil to read filename from disk.
func (r *Runtime) Exec(ctx context.Context, filename string, src any) (starlark.StringDict, error) {
	thread, done := r.NewThread(ctx, filename)
	defer done()
	return r.ExecThread(thread, filename, src)
}

// ExecThread executes src on an existing thread. Loaders use it to run modules on
// threads they prepared.
func (r *Runtime) ExecThread(thread *starlark.Thread, filename string, src any) (starlark.StringDict, error) {
	globals, err := starlark.ExecFile(thread, filename, src, r.Globals()) //nolint:staticcheck // SA1019: will migrate to ExecFileOptions later
	if err != nil {
		return nil, newExecError(filename, err)
	}
	r.logger.Debug("executed script", "file", filename, "steps", thread.ExecutionSteps())
	return globals, nil
}

// EvalExpr evaluates a single Starlark expression and returns the result.
func (r *Runtime) EvalExpr(ctx context.Context, expr string, filename string, line int) (starlark.Value, error) {
	return r.EvalExprWithLocals(ctx, expr, filename, line, nil)
}

// EvalExprWithLocals evaluates a Starlark expression with additional local variables.
// The REPL passes the variables defined by earlier statements this way.
func (r *Runtime) EvalExprWithLocals(ctx context.Context, expr string, filename string, line int, locals starlark.StringDict) (starlark.Value, error) {
	thread, done := r.NewThread(ctx, filename)
	defer done()
	return r.eval(thread, expr, filename, line, locals)
}

func (r *Runtime) eval(thread *starlark.Thread, expr, filename string, line int, locals starlark.StringDict) (starlark.Value, error) {
	// Combine globals with locals (locals take precedence)
	globals := r.Globals()
	if len(locals) > 0 {
		combined := make(starlark.StringDict, len(globals)+len(locals))
		maps.Copy(combined, globals)
		maps.Copy(combined, locals)
		globals = combined
	}

	result, err := starlark.Eval(thread, filename, expr, globals) //nolint:staticcheck // SA1019: will migrate to EvalOptions later
	if err != nil {
		return nil, &EvalError{
			File:    filename,
			Line:    line,
			Expr:    expr,
			Message: err.Error(),
			Err:     err,
		}
	}
	return result, nil
}

// EvalAll evaluates tasks in parallel on pooled threads and collects the results
// in task order.
func (r *Runtime) EvalAll(ctx context.Context, tasks []EvalTask) []EvalResult {
	results := make([]EvalResult, len(tasks))
	var wg sync.WaitGroup

	for i, task := range tasks {
		wg.Add(1)
		go func(idx int, t EvalTask) {
			defer wg.Done()

			thread := r.pool.Get(t.Name)
			defer r.pool.Put(thread)
			binding.SetThreadContext(thread, ctx)

			value, err := r.eval(thread, t.Expr, t.Name, 0, nil)
			results[idx] = EvalResult{
				Name:  t.Name,
				Value: value,
				Error: err,
			}
		}(i, task)
	}

	wg.Wait()
	return results
}
