package host

import (
	"errors"
	"fmt"

	"go.starlark.net/starlark"
)

// EvalError represents an error during Starlark expression evaluation.
type EvalError struct {
	File    string
	Line    int
	Expr    string
	Message string
	Err     error
}

func (e *EvalError) Error() string {
	if e.Line > 0 {
		return fmt.Sprintf("%s:%d: error evaluating %q: %s", e.File, e.Line, e.Expr, e.Message)
	}
	return fmt.Sprintf("%s: error evaluating %q: %s", e.File, e.Expr, e.Message)
}

func (e *EvalError) Unwrap() error {
	return e.Err
}

// ExecError represents an error executing a Starlark file.
type ExecError struct {
	File      string
	Message   string
	Backtrace string
	Err       error
}

func newExecError(file string, err error) *ExecError {
	e := &ExecError{File: file, Message: err.Error(), Err: err}
	var evalErr *starlark.EvalError
	if errors.As(err, &evalErr) {
		e.Backtrace = evalErr.Backtrace()
	}
	return e
}

func (e *ExecError) Error() string {
	return fmt.Sprintf("%s: %s", e.File, e.Message)
}

func (e *ExecError) Unwrap() error {
	return e.Err
}
