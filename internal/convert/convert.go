package convert

import (
	"fmt"
	"math"
	"reflect"

	"go.starlark.net/starlark"
)

// ToStarlark converts a native Go value to a Starlark value.
// Sequences are always materialised as a new *starlark.List, whatever their Go kind.
func ToStarlark(v any) (starlark.Value, error) {
	if v == nil {
		return starlark.None, nil
	}

	switch val := v.(type) {
	case starlark.Value:
		return val, nil

	case string:
		return starlark.String(val), nil

	case bool:
		return starlark.Bool(val), nil

	case int:
		return starlark.MakeInt(val), nil

	case int32:
		return starlark.MakeInt64(int64(val)), nil

	case int64:
		return starlark.MakeInt64(val), nil

	case uint32:
		return starlark.MakeUint64(uint64(val)), nil

	case uint64:
		return starlark.MakeUint64(val), nil

	case float32:
		return starlark.Float(val), nil

	case float64:
		return starlark.Float(val), nil

	case complex64:
		return ComplexValue(complex128(val)), nil

	case complex128:
		return ComplexValue(val), nil

	case Sequencer:
		list := make([]starlark.Value, val.Len())
		for i := range list {
			sv, err := ToStarlark(val.Index(i))
			if err != nil {
				return nil, fmt.Errorf("list index %d: %w", i, err)
			}
			list[i] = sv
		}
		return starlark.NewList(list), nil

	case map[string]any:
		dict := starlark.NewDict(len(val))
		for k, item := range val {
			sv, err := ToStarlark(item)
			if err != nil {
				return nil, fmt.Errorf("dict key %q: %w", k, err)
			}
			if err := dict.SetKey(starlark.String(k), sv); err != nil {
				return nil, fmt.Errorf("dict setkey %q: %w", k, err)
			}
		}
		return dict, nil
	}

	rv := reflect.ValueOf(v)
	if rv.Kind() == reflect.Slice || rv.Kind() == reflect.Array {
		list := make([]starlark.Value, rv.Len())
		for i := range list {
			sv, err := ToStarlark(rv.Index(i).Interface())
			if err != nil {
				return nil, fmt.Errorf("list index %d: %w", i, err)
			}
			list[i] = sv
		}
		return starlark.NewList(list), nil
	}

	return nil, fmt.Errorf("unsupported type: %T", v)
}

// ToStarlarkAs converts a native value that fills a slot of type t.
// Scalars are widened to the slot kind and external types use their converter.
func ToStarlarkAs(v any, t Type) (starlark.Value, error) {
	switch t.Kind {
	case KindNone:
		return starlark.None, nil

	case KindFloat:
		switch x := v.(type) {
		case int:
			return starlark.Float(float64(x)), nil
		case int64:
			return starlark.Float(float64(x)), nil
		}

	case KindComplex:
		switch x := v.(type) {
		case float64:
			return ComplexValue(complex(x, 0)), nil
		case int64:
			return ComplexValue(complex(float64(x), 0)), nil
		}

	case KindExternal:
		if t.Ext == nil {
			return nil, fmt.Errorf("no converter registered for external type")
		}
		return t.Ext.ToStarlark(v)

	case KindList:
		if t.Elem == nil {
			return ToStarlark(v)
		}
		return listAs(v, *t.Elem)
	}

	return ToStarlark(v)
}

func listAs(v any, elem Type) (starlark.Value, error) {
	if v == nil {
		return starlark.NewList(nil), nil
	}
	if seq, ok := v.(Sequencer); ok {
		list := make([]starlark.Value, seq.Len())
		for i := range list {
			sv, err := ToStarlarkAs(seq.Index(i), elem)
			if err != nil {
				return nil, fmt.Errorf("list index %d: %w", i, err)
			}
			list[i] = sv
		}
		return starlark.NewList(list), nil
	}

	rv := reflect.ValueOf(v)
	if rv.Kind() != reflect.Slice && rv.Kind() != reflect.Array {
		return nil, fmt.Errorf("cannot materialise %T as %s", v, ListOf(elem))
	}
	list := make([]starlark.Value, rv.Len())
	for i := range list {
		sv, err := ToStarlarkAs(rv.Index(i).Interface(), elem)
		if err != nil {
			return nil, fmt.Errorf("list index %d: %w", i, err)
		}
		list[i] = sv
	}
	return starlark.NewList(list), nil
}

// ToNative converts a Starlark value to the native representation of t.
//
// Results by kind: int64, float64, complex128, string, bool, nil for None, and typed
// slices ([]int64, []float64, []complex128, []string, []bool, otherwise []any) for lists.
// Failures are reported as *ConversionError.
func ToNative(v starlark.Value, t Type) (any, error) {
	switch t.Kind {
	case KindAny:
		return ToGo(v)

	case KindNone:
		if v == starlark.None {
			return nil, nil
		}

	case KindBool:
		if b, ok := v.(starlark.Bool); ok {
			return bool(b), nil
		}

	case KindInt:
		if i, ok := v.(starlark.Int); ok {
			i64, ok := i.Int64()
			if !ok {
				return nil, &ConversionError{Want: t, Got: v.Type(), Reason: "overflows int64"}
			}
			return i64, nil
		}

	case KindFloat:
		switch x := v.(type) {
		case starlark.Float:
			return float64(x), nil
		case starlark.Int:
			f, ok := intToFloat(x)
			if !ok {
				return nil, &ConversionError{Want: t, Got: v.Type(), Reason: "overflows double"}
			}
			return f, nil
		}

	case KindComplex:
		if i, ok := v.(starlark.Int); ok {
			f, ok := intToFloat(i)
			if !ok {
				return nil, &ConversionError{Want: t, Got: v.Type(), Reason: "overflows double"}
			}
			return complex(f, 0), nil
		}
		if c, ok := asComplex(v); ok {
			return c, nil
		}

	case KindString:
		if s, ok := v.(starlark.String); ok {
			return string(s), nil
		}

	case KindList:
		elem := Any
		if t.Elem != nil {
			elem = *t.Elem
		}
		return toSlice(v, elem)

	case KindExternal:
		if t.Ext != nil {
			return t.Ext.ToNative(v)
		}
	}

	return nil, &ConversionError{Want: t, Got: v.Type()}
}

// intToFloat reports false when x is too large for a float64.
func intToFloat(x starlark.Int) (float64, bool) {
	f := float64(x.Float())
	return f, !math.IsInf(f, 0)
}

func toSlice(v starlark.Value, elem Type) (any, error) {
	switch elem.Kind {
	case KindInt:
		return collect[int64](v, elem)
	case KindFloat:
		return collect[float64](v, elem)
	case KindComplex:
		return collect[complex128](v, elem)
	case KindString:
		return collect[string](v, elem)
	case KindBool:
		return collect[bool](v, elem)
	default:
		return collect[any](v, elem)
	}
}

func collect[T any](v starlark.Value, elem Type) ([]T, error) {
	out := make([]T, 0, max(starlark.Len(v), 0))
	err := Each(v, elem, func(_ int, x any) error {
		if x == nil {
			var zero T
			out = append(out, zero)
			return nil
		}
		out = append(out, x.(T))
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// Each iterates any Starlark iterable exactly once, converting every element to elem
// and passing it to yield in order. The first failing element stops iteration and is
// reported as a *ConversionError carrying its index.
func Each(v starlark.Value, elem Type, yield func(i int, x any) error) error {
	iter := starlark.Iterate(v)
	if iter == nil {
		return &ConversionError{Want: ListOf(elem), Got: v.Type(), Reason: "not iterable"}
	}
	defer iter.Done()

	var x starlark.Value
	for i := 0; iter.Next(&x); i++ {
		nv, err := ToNative(x, elem)
		if err != nil {
			if ce, ok := err.(*ConversionError); ok {
				return ce.at(i)
			}
			return fmt.Errorf("element [%d]: %w", i, err)
		}
		if err := yield(i, nv); err != nil {
			return err
		}
	}
	return nil
}

// Compatible reports whether v would convert to t. Sequences are checked element by
// element; no native value is built.
func Compatible(v starlark.Value, t Type) bool {
	switch t.Kind {
	case KindAny:
		return true
	case KindNone:
		return v == starlark.None
	case KindBool:
		_, ok := v.(starlark.Bool)
		return ok
	case KindInt:
		i, ok := v.(starlark.Int)
		if !ok {
			return false
		}
		_, ok = i.Int64()
		return ok
	case KindFloat:
		switch x := v.(type) {
		case starlark.Float:
			return true
		case starlark.Int:
			_, ok := intToFloat(x)
			return ok
		}
		return false
	case KindComplex:
		if i, ok := v.(starlark.Int); ok {
			_, ok = intToFloat(i)
			return ok
		}
		_, ok := asComplex(v)
		return ok
	case KindString:
		_, ok := v.(starlark.String)
		return ok
	case KindList:
		iter := starlark.Iterate(v)
		if iter == nil {
			return false
		}
		defer iter.Done()
		elem := Any
		if t.Elem != nil {
			elem = *t.Elem
		}
		var x starlark.Value
		for iter.Next(&x) {
			if !Compatible(x, elem) {
				return false
			}
		}
		return true
	case KindExternal:
		return t.Ext != nil && t.Ext.Compatible(v)
	}
	return false
}

// ToGo converts a Starlark value back to a Go value without a target type.
// Returns: string, int64, float64, complex128, bool, []any, map[string]any, or nil.
func ToGo(v starlark.Value) (any, error) {
	switch val := v.(type) {
	case starlark.NoneType:
		return nil, nil

	case starlark.String:
		return string(val), nil

	case starlark.Int:
		i64, ok := val.Int64()
		if !ok {
			// Fallback for very large integers - convert to string
			return val.String(), nil
		}
		return i64, nil

	case starlark.Float:
		return float64(val), nil

	case ComplexValue:
		return complex128(val), nil

	case starlark.Bool:
		return bool(val), nil

	case *starlark.Dict:
		result := make(map[string]any)
		for _, item := range val.Items() {
			key, ok := item[0].(starlark.String)
			if !ok {
				return nil, fmt.Errorf("dict key must be string, got %T", item[0])
			}
			gv, err := ToGo(item[1])
			if err != nil {
				return nil, fmt.Errorf("dict key %q: %w", key, err)
			}
			result[string(key)] = gv
		}
		return result, nil

	case starlark.Indexable:
		result := make([]any, val.Len())
		for i := 0; i < val.Len(); i++ {
			gv, err := ToGo(val.Index(i))
			if err != nil {
				return nil, fmt.Errorf("%s index %d: %w", v.Type(), i, err)
			}
			result[i] = gv
		}
		return result, nil

	case *starlark.Set:
		result := make([]any, 0, val.Len())
		iter := val.Iterate()
		defer iter.Done()
		var x starlark.Value
		for iter.Next(&x) {
			gv, err := ToGo(x)
			if err != nil {
				return nil, err
			}
			result = append(result, gv)
		}
		return result, nil

	default:
		// Try to get a string representation
		return val.String(), nil
	}
}
