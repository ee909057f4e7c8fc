package host

import (
	"context"
	"sync"

	"github.com/leapstack-labs/starbind/internal/binding"
	"go.starlark.net/starlark"
)

// PrintFunc receives the output of the Starlark print builtin.
type PrintFunc func(thread *starlark.Thread, msg string)

// ThreadPool keeps Starlark threads for reuse. The dispatch bridge borrows from it
// when native code calls a virtual outside any script.
type ThreadPool struct {
	mu       sync.Mutex
	threads  []*starlark.Thread
	maxSize  int
	maxSteps uint64
	print    PrintFunc
}

// PoolOption configures a ThreadPool.
type PoolOption func(*ThreadPool)

// PoolMaxSteps limits the steps each borrowed thread may execute. Zero is unlimited.
func PoolMaxSteps(n uint64) PoolOption {
	return func(p *ThreadPool) {
		p.maxSteps = n
	}
}

// PoolPrint sets the print handler of pooled threads.
func PoolPrint(fn PrintFunc) PoolOption {
	return func(p *ThreadPool) {
		p.print = fn
	}
}

// NewThreadPool creates a new thread pool with the specified maximum size.
func NewThreadPool(maxSize int, opts ...PoolOption) *ThreadPool {
	if maxSize <= 0 {
		maxSize = 10 // default pool size
	}
	p := &ThreadPool{
		threads: make([]*starlark.Thread, 0, maxSize),
		maxSize: maxSize,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Get retrieves a thread from the pool or creates a new one.
// The thread name is used for error reporting.
func (p *ThreadPool) Get(name string) *starlark.Thread {
	p.mu.Lock()
	var thread *starlark.Thread
	if n := len(p.threads); n > 0 {
		thread = p.threads[n-1]
		p.threads = p.threads[:n-1]
	}
	p.mu.Unlock()

	if thread == nil {
		thread = &starlark.Thread{Print: p.print}
		if thread.Print == nil {
			thread.Print = func(*starlark.Thread, string) {}
		}
	}
	thread.Name = name
	if p.maxSteps > 0 {
		// The step counter is cumulative, so the budget is renewed on each loan.
		thread.SetMaxExecutionSteps(thread.ExecutionSteps() + p.maxSteps)
	}
	return thread
}

// Put returns a thread to the pool for reuse.
// If the pool is full, the thread is discarded.
func (p *ThreadPool) Put(thread *starlark.Thread) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if len(p.threads) < p.maxSize {
		thread.Name = ""
		binding.SetThreadContext(thread, context.Background())
		p.threads = append(p.threads, thread)
	}
}

// Size returns the current number of threads in the pool.
func (p *ThreadPool) Size() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.threads)
}

// EvalTask represents a single evaluation task.
type EvalTask struct {
	Name string // Identifier for this task (used for error reporting)
	Expr string // Starlark expression to evaluate
}

// EvalResult represents the result of an evaluation task.
type EvalResult struct {
	Name  string
	Value starlark.Value
	Error error
}

// Drain discards every pooled thread and returns how many there were.
func (p *ThreadPool) Drain() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	n := len(p.threads)
	p.threads = p.threads[:0]
	return n
}
