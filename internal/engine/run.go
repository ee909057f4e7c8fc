package engine

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"go.starlark.net/starlark"
	"golang.org/x/sync/errgroup"
)

// TestPrefix marks top-level functions that RunScript calls after executing a script.
const TestPrefix = "test_"

// TestResult is the outcome of one test function.
type TestResult struct {
	Name     string        `json:"name" yaml:"name"`
	Duration time.Duration `json:"duration_ns" yaml:"duration_ns"`
	Err      error         `json:"-" yaml:"-"`
	Error    string        `json:"error,omitempty" yaml:"error,omitempty"`
}

// Result is the outcome of running one script.
type Result struct {
	File     string        `json:"file" yaml:"file"`
	Duration time.Duration `json:"duration_ns" yaml:"duration_ns"`
	Globals  int           `json:"globals" yaml:"globals"`
	Tests    []*TestResult `json:"tests,omitempty" yaml:"tests,omitempty"`
	Err      error         `json:"-" yaml:"-"`
	Error    string        `json:"error,omitempty" yaml:"error,omitempty"`
}

// Passed reports whether the script and all of its tests succeeded.
func (r *Result) Passed() bool {
	if r.Err != nil {
		return false
	}
	for _, t := range r.Tests {
		if t.Err != nil {
			return false
		}
	}
	return true
}

// Failed returns the number of failed tests, counting a script error as one.
func (r *Result) Failed() int {
	n := 0
	if r.Err != nil {
		n++
	}
	for _, t := range r.Tests {
		if t.Err != nil {
			n++
		}
	}
	return n
}

func (r *Result) setErr(err error) {
	r.Err = err
	if err != nil {
		r.Error = err.Error()
	}
}

// RunOptions controls RunAll.
type RunOptions struct {
	// Concurrency bounds the scripts run at once (<= 0 means one)
	Concurrency int
	// FailFast cancels the remaining scripts after the first failure
	FailFast bool
	// Filter keeps only tests whose name contains it (empty keeps all)
	Filter string
}

// ErrFailed is returned by RunAll when FailFast stopped the run.
var ErrFailed = errors.New("script failed")

// RunScript executes the script at path in a fresh runtime, then calls each of its
// top-level test_ functions in name order.
func (e *Engine) RunScript(ctx context.Context, path string, filter string) *Result {
	res := &Result{File: path}
	start := time.Now()
	defer func() { res.Duration = time.Since(start) }()

	src, err := os.ReadFile(path) //nolint:gosec // G304: path comes from the user or Discover
	if err != nil {
		res.setErr(fmt.Errorf("failed to read script: %w", err))
		return res
	}

	rt, err := e.NewRuntime()
	if err != nil {
		res.setErr(err)
		return res
	}

	e.logger.Debug("running script", "file", path)
	globals, err := rt.Exec(ctx, path, src)
	if err != nil {
		res.setErr(err)
		return res
	}
	res.Globals = len(globals)

	var names []string
	for name, v := range globals {
		if _, ok := v.(starlark.Callable); ok && strings.HasPrefix(name, TestPrefix) && strings.Contains(name, filter) {
			names = append(names, name)
		}
	}
	sort.Strings(names)

	for _, name := range names {
		if ctx.Err() != nil {
			break
		}
		tr := &TestResult{Name: name}
		t0 := time.Now()
		thread, done := rt.NewThread(ctx, filepath.Base(path)+":"+name)
		_, err := starlark.Call(thread, globals[name], nil, nil)
		done()
		tr.Duration = time.Since(t0)
		if err != nil {
			tr.Err = err
			tr.Error = err.Error()
			if evalErr, ok := err.(*starlark.EvalError); ok {
				tr.Error = evalErr.Msg
			}
		}
		e.logger.Debug("test finished", "file", path, "test", name, "ok", err == nil)
		res.Tests = append(res.Tests, tr)
	}
	return res
}

// RunAll runs every script concurrently and returns results in input order. Without
// FailFast the returned error is always nil and failures are reported per Result.
func (e *Engine) RunAll(ctx context.Context, paths []string, opts RunOptions) ([]*Result, error) {
	results := make([]*Result, len(paths))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(max(opts.Concurrency, 1))
	for i, path := range paths {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				results[i] = &Result{File: path}
				results[i].setErr(fmt.Errorf("skipped: %w", context.Cause(gctx)))
				return nil
			}
			res := e.RunScript(gctx, path, opts.Filter)
			results[i] = res
			if opts.FailFast && !res.Passed() {
				return fmt.Errorf("%s: %w", filepath.Base(path), ErrFailed)
			}
			return nil
		})
	}
	err := g.Wait()
	return results, err
}
