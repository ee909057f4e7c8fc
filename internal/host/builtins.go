package host

import (
	"errors"
	"fmt"

	"github.com/leapstack-labs/starbind/internal/convert"
	"github.com/leapstack-labs/starbind/internal/object"
	"go.starlark.net/starlark"
	"go.starlark.net/starlarkstruct"
)

// Predeclared returns the globals available to every script: one value per bound
// class plus the binding builtins.
//
// Available globals:
//   - complex(real=0.0, imag=0.0): builds a complex number
//   - subclass(base, name, methods={}, **methods): defines a class deriving from base
//   - isinstance(x, cls): reports whether x is an instance of cls or a subclass
//   - is_user_type(x): reports whether x (a class or instance) was defined by a script
//   - assert_eq(a, b, msg=""), assert_ne(a, b, msg=""), assert_true(cond, msg="")
//   - catch(fn, *args, **kwargs): calls fn and returns its error message, or None
//   - struct(**kwargs): an immutable record
func Predeclared(mgr *object.Manager) starlark.StringDict {
	g := mgr.Globals()
	g["complex"] = convert.ComplexBuiltin
	g["subclass"] = starlark.NewBuiltin("subclass", subclass)
	g["isinstance"] = starlark.NewBuiltin("isinstance", isinstance)
	g["is_user_type"] = starlark.NewBuiltin("is_user_type", isUserType)
	g["assert_eq"] = starlark.NewBuiltin("assert_eq", assertEq)
	g["assert_ne"] = starlark.NewBuiltin("assert_ne", assertNe)
	g["assert_true"] = starlark.NewBuiltin("assert_true", assertTrue)
	g["catch"] = starlark.NewBuiltin("catch", catch)
	g["struct"] = starlark.NewBuiltin("struct", starlarkstruct.Make)
	return g
}

func subclass(_ *starlark.Thread, b *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	var (
		base    *object.Class
		name    string
		methods *starlark.Dict
	)
	if err := starlark.UnpackPositionalArgs(b.Name(), args, nil, 2, &base, &name, &methods); err != nil {
		return nil, err
	}

	defs := make(starlark.StringDict)
	if methods != nil {
		for _, item := range methods.Items() {
			key, ok := item[0].(starlark.String)
			if !ok {
				return nil, fmt.Errorf("%s: method names must be strings, got %s", b.Name(), item[0].Type())
			}
			defs[string(key)] = item[1]
		}
	}
	for _, kv := range kwargs {
		defs[string(kv[0].(starlark.String))] = kv[1]
	}

	cls, err := object.NewSubclass(base, name, defs)
	if err != nil {
		return nil, err
	}
	return cls, nil
}

func isinstance(_ *starlark.Thread, b *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	var x, classes starlark.Value
	if err := starlark.UnpackPositionalArgs(b.Name(), args, kwargs, 2, &x, &classes); err != nil {
		return nil, err
	}
	candidates := starlark.Tuple{classes}
	if t, ok := classes.(starlark.Tuple); ok {
		candidates = t
	}
	for _, c := range candidates {
		cls, ok := c.(*object.Class)
		if !ok {
			return nil, fmt.Errorf("%s: got %s, want class", b.Name(), c.Type())
		}
		if object.IsInstance(x, cls) {
			return starlark.True, nil
		}
	}
	return starlark.False, nil
}

func isUserType(_ *starlark.Thread, b *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	var x starlark.Value
	if err := starlark.UnpackPositionalArgs(b.Name(), args, kwargs, 1, &x); err != nil {
		return nil, err
	}
	switch v := x.(type) {
	case *object.Class:
		return starlark.Bool(v.IsUserType()), nil
	case *object.Wrapper:
		return starlark.Bool(v.Class().IsUserType()), nil
	}
	return starlark.False, nil
}

func assertEq(_ *starlark.Thread, b *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	return compare(b, args, kwargs, true)
}

func assertNe(_ *starlark.Thread, b *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	return compare(b, args, kwargs, false)
}

func compare(b *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple, wantEqual bool) (starlark.Value, error) {
	var (
		x, y starlark.Value
		msg  string
	)
	if err := starlark.UnpackArgs(b.Name(), args, kwargs, "a", &x, "b", &y, "msg?", &msg); err != nil {
		return nil, err
	}
	eq, err := starlark.Equal(x, y)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", b.Name(), err)
	}
	if eq == wantEqual {
		return starlark.None, nil
	}
	op := "!="
	if !wantEqual {
		op = "=="
	}
	return nil, failure(b, msg, fmt.Sprintf("%s %s %s", x, op, y))
}

func assertTrue(_ *starlark.Thread, b *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	var (
		cond starlark.Value
		msg  string
	)
	if err := starlark.UnpackArgs(b.Name(), args, kwargs, "cond", &cond, "msg?", &msg); err != nil {
		return nil, err
	}
	if cond.Truth() {
		return starlark.None, nil
	}
	return nil, failure(b, msg, fmt.Sprintf("%s is not true", cond))
}

func failure(b *starlark.Builtin, msg, detail string) error {
	if msg != "" {
		return fmt.Errorf("%s: %s: %s", b.Name(), msg, detail)
	}
	return fmt.Errorf("%s: %s", b.Name(), detail)
}

func catch(thread *starlark.Thread, b *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	if len(args) == 0 {
		return nil, fmt.Errorf("%s: missing function argument", b.Name())
	}
	_, err := starlark.Call(thread, args[0], args[1:], kwargs)
	if err == nil {
		return starlark.None, nil
	}
	var evalErr *starlark.EvalError
	if errors.As(err, &evalErr) {
		return starlark.String(evalErr.Msg), nil
	}
	return starlark.String(err.Error()), nil
}
