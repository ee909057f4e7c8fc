package host

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuiltins(t *testing.T) {
	tests := []struct {
		name    string
		src     string
		wantErr string
	}{
		{
			name: "subclass with kwargs",
			src: `
Sorted = subclass(Box, "Sorted", items = lambda self: sorted(Box.items(self)))
s = Sorted()
s.put([3, 1, 2])
assert_eq(s.items(), [1, 2, 3])
assert_true(is_user_type(Sorted))
assert_true(is_user_type(s))
assert_true(not is_user_type(Box))
assert_true(not is_user_type(Box()))
assert_true(not is_user_type(1))
`,
		},
		{
			name: "subclass with dict",
			src: `
def _items(self):
    return [0]

Zero = subclass(Box, "Zero", {"items": _items})
assert_eq(Zero().items(), [0])
`,
		},
		{
			name: "subclass of subclass",
			src: `
A = subclass(Box, "A", items = lambda self: [1])
B = subclass(A, "B")
b = B()
assert_eq(b.items(), [1])
assert_true(isinstance(b, A))
assert_true(isinstance(b, Box))
assert_true(isinstance(b, (A, B)))
assert_true(not isinstance(Box(), A))
`,
		},
		{
			name:    "subclass needs a class",
			src:     `subclass(1, "X")`,
			wantErr: "got int, want class",
		},
		{
			name:    "subclass methods must be callable",
			src:     `subclass(Box, "X", items = 1)`,
			wantErr: "items is a int, not callable",
		},
		{
			name:    "isinstance needs classes",
			src:     `isinstance(1, 2)`,
			wantErr: "got int, want class",
		},
		{
			name:    "assert_eq failure",
			src:     `assert_eq(1, 2)`,
			wantErr: "assert_eq: 1 != 2",
		},
		{
			name:    "assert_ne failure with message",
			src:     `assert_ne(1, 1, "same")`,
			wantErr: "assert_ne: same: 1 == 1",
		},
		{
			name:    "assert_true failure",
			src:     `assert_true([])`,
			wantErr: "assert_true: [] is not true",
		},
		{
			name: "catch",
			src: `
def boom():
    fail("bad")

assert_eq(catch(boom), "bad")
assert_eq(catch(lambda: 1), None)
assert_true("wrong argument types" in catch(Box().put, 1, 2))
`,
		},
		{
			name: "struct",
			src: `
s = struct(a = 1, b = "x")
assert_eq(s.a, 1)
assert_eq(s.b, "x")
`,
		},
		{
			name: "complex",
			src: `
c = complex(1.5, -2)
assert_eq(c.real, 1.5)
assert_eq(c.imag, -2.0)
assert_eq(type(c), "complex")
`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rt := newTestRuntime(t)
			_, err := rt.Exec(context.Background(), "builtins.star", tt.src)
			if tt.wantErr != "" {
				assert.ErrorContains(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
		})
	}
}
