package binding

import (
	"context"
	"fmt"

	"github.com/leapstack-labs/starbind/internal/convert"
	"go.starlark.net/starlark"
)

// Resolve picks the first overload whose parameters are all compatible with args.
// A method with a single overload of matching arity is returned without the check,
// so conversion reports which element of an argument was rejected.
func (m *Method) Resolve(args starlark.Tuple) (*Overload, error) {
	if len(m.Overloads) == 1 && len(m.Overloads[0].Params) == len(args) {
		return m.Overloads[0], nil
	}
	for _, o := range m.Overloads {
		if o.Accepts(args) {
			return o, nil
		}
	}
	got := make([]string, len(args))
	for i, a := range args {
		got[i] = a.Type()
	}
	return nil, &ArgumentError{Method: m.Name, Got: got, Signatures: m.Signatures()}
}

// Accepts reports whether args fit this overload's parameters.
func (o *Overload) Accepts(args starlark.Tuple) bool {
	if len(args) != len(o.Params) {
		return false
	}
	for i, p := range o.Params {
		if !convert.Compatible(args[i], p) {
			return false
		}
	}
	return true
}

// ConvertArgs converts Starlark arguments to the overload's native parameter types.
func (o *Overload) ConvertArgs(args starlark.Tuple) ([]any, error) {
	if len(args) != len(o.Params) {
		return nil, fmt.Errorf("%s: got %d arguments, want %d", o.Name, len(args), len(o.Params))
	}
	out := make([]any, len(args))
	for i, p := range o.Params {
		v, err := convert.ToNative(args[i], p)
		if err != nil {
			return nil, &ParamError{Method: o.Name, Param: i, Err: err}
		}
		out[i] = v
	}
	return out, nil
}

// Invoke resolves the overload for args, converts them, runs the native call and
// converts its result back to Starlark.
func (m *Method) Invoke(ctx context.Context, self any, args starlark.Tuple) (starlark.Value, error) {
	o, err := m.Resolve(args)
	if err != nil {
		return nil, err
	}
	nargs, err := o.ConvertArgs(args)
	if err != nil {
		return nil, err
	}
	result, err := o.Call(ctx, self, nargs)
	if err != nil {
		return nil, err
	}
	return convert.ToStarlarkAs(result, o.Result)
}
