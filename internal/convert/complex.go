package convert

import (
	"errors"
	"fmt"
	"strconv"

	"go.starlark.net/starlark"
	"go.starlark.net/syntax"
)

// ComplexValue is the Starlark representation of a native complex128.
// Starlark has no complex type, so the runtime predeclares one.
type ComplexValue complex128

var (
	_ starlark.Value      = ComplexValue(0)
	_ starlark.Comparable = ComplexValue(0)
	_ starlark.HasBinary  = ComplexValue(0)
	_ starlark.HasUnary   = ComplexValue(0)
	_ starlark.HasAttrs   = ComplexValue(0)
)

func (c ComplexValue) String() string {
	re, im := real(c), imag(c)
	if re == 0 {
		return formatFloat(im) + "j"
	}
	sign := "+"
	if im < 0 || (im == 0 && strconv.FormatFloat(im, 'g', -1, 64)[0] == '-') {
		sign = ""
	}
	return "(" + formatFloat(re) + sign + formatFloat(im) + "j)"
}

func formatFloat(f float64) string {
	return strconv.FormatFloat(f, 'g', -1, 64)
}

// Type returns "complex".
func (c ComplexValue) Type() string { return "complex" }

// Freeze is a no-op; complex values are immutable.
func (c ComplexValue) Freeze() {}

// Truth is false only for 0j.
func (c ComplexValue) Truth() starlark.Bool { return c != 0 }

// Hash matches the hash of the equivalent float when the imaginary part is zero.
func (c ComplexValue) Hash() (uint32, error) {
	hr, err := starlark.Float(real(c)).Hash()
	if err != nil {
		return 0, err
	}
	if imag(c) == 0 {
		return hr, nil
	}
	hi, err := starlark.Float(imag(c)).Hash()
	if err != nil {
		return 0, err
	}
	return hr ^ (hi * 1000003), nil
}

// CompareSameType supports == and != only; complex numbers are unordered.
func (c ComplexValue) CompareSameType(op syntax.Token, y starlark.Value, _ int) (bool, error) {
	other := y.(ComplexValue)
	switch op {
	case syntax.EQL:
		return c == other, nil
	case syntax.NEQ:
		return c != other, nil
	default:
		return false, fmt.Errorf("complex numbers are not ordered")
	}
}

// Binary implements + - * / against int, float and complex operands.
func (c ComplexValue) Binary(op syntax.Token, y starlark.Value, side starlark.Side) (starlark.Value, error) {
	other, ok := asComplex(y)
	if !ok {
		return nil, nil
	}
	x, z := complex128(c), other
	if side == starlark.Right {
		x, z = z, x
	}
	switch op {
	case syntax.PLUS:
		return ComplexValue(x + z), nil
	case syntax.MINUS:
		return ComplexValue(x - z), nil
	case syntax.STAR:
		return ComplexValue(x * z), nil
	case syntax.SLASH:
		if z == 0 {
			return nil, errors.New("complex division by zero")
		}
		return ComplexValue(x / z), nil
	}
	return nil, nil
}

// Unary implements unary + and -.
func (c ComplexValue) Unary(op syntax.Token) (starlark.Value, error) {
	switch op {
	case syntax.MINUS:
		return -c, nil
	case syntax.PLUS:
		return c, nil
	}
	return nil, nil
}

// Attr exposes real, imag and conjugate().
func (c ComplexValue) Attr(name string) (starlark.Value, error) {
	switch name {
	case "real":
		return starlark.Float(real(c)), nil
	case "imag":
		return starlark.Float(imag(c)), nil
	case "conjugate":
		return starlark.NewBuiltin("conjugate", func(_ *starlark.Thread, b *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
			if err := starlark.UnpackPositionalArgs(b.Name(), args, kwargs, 0); err != nil {
				return nil, err
			}
			return ComplexValue(complex(real(c), -imag(c))), nil
		}), nil
	}
	return nil, nil
}

// AttrNames lists the complex attributes.
func (c ComplexValue) AttrNames() []string {
	return []string{"conjugate", "imag", "real"}
}

// asComplex widens int, float and complex values to complex128.
func asComplex(v starlark.Value) (complex128, bool) {
	switch x := v.(type) {
	case ComplexValue:
		return complex128(x), true
	case starlark.Float:
		return complex(float64(x), 0), true
	case starlark.Int:
		return complex(float64(x.Float()), 0), true
	}
	return 0, false
}

// ComplexBuiltin is the predeclared complex(real=0.0, imag=0.0) constructor.
var ComplexBuiltin = starlark.NewBuiltin("complex", makeComplex)

func makeComplex(_ *starlark.Thread, b *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	var re, im starlark.Value = starlark.Float(0), starlark.Float(0)
	if err := starlark.UnpackArgs(b.Name(), args, kwargs, "real?", &re, "imag?", &im); err != nil {
		return nil, err
	}
	r, ok := asComplex(re)
	if !ok {
		return nil, fmt.Errorf("%s: real must be a number, not %s", b.Name(), re.Type())
	}
	i, ok := asComplex(im)
	if !ok {
		return nil, fmt.Errorf("%s: imag must be a number, not %s", b.Name(), im.Type())
	}
	// complex(a, b) == a + b*1j, which also folds complex arguments.
	return ComplexValue(r + i*1i), nil
}
