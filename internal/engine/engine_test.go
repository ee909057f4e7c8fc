package engine

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/leapstack-labs/starbind/internal/dispatch"
	"github.com/leapstack-labs/starbind/internal/script"
	"github.com/leapstack-labs/starbind/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.starlark.net/starlark"
)

func newTestEngine(t *testing.T, files map[string]string, opts ...func(*Config)) (*Engine, string) {
	t.Helper()
	dir := t.TempDir()
	for name, content := range files {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(content), 0o644))
	}
	cfg := Config{
		ScriptsDir: dir,
		Logger:     testutil.NewTestLogger(t),
		Print:      func(*starlark.Thread, string) {},
	}
	for _, opt := range opts {
		opt(&cfg)
	}
	eng, err := New(cfg)
	require.NoError(t, err)
	t.Cleanup(func() { _ = eng.Close() })
	return eng, dir
}

const passing = `
load("helpers.star", "expected")

Extended = subclass(ListUser, "Extended", createList = lambda self: expected)

def test_override():
    assert_eq(Extended().callCreateList(), expected)

def test_sum():
    assert_eq(ListUser().sumList([1, 2, 3]), 6)

def helper():
    pass
`

const failing = `
def test_bad():
    assert_eq(ListUser().getList(), [1])

def test_good():
    pass
`

func TestNew(t *testing.T) {
	eng, _ := newTestEngine(t, nil)

	cls, ok := eng.Registry().Lookup("ListUser")
	require.True(t, ok)
	assert.Contains(t, cls.VirtualMethods(), "createList")
	assert.NotNil(t, eng.Bridge())
	assert.NotNil(t, eng.Logger())
}

func TestEngine_RunScript(t *testing.T) {
	eng, dir := newTestEngine(t, map[string]string{
		"helpers.star": "expected = [2, 3, 5, 7, 13]\n",
		"passing.star": passing,
		"failing.star": failing,
		"broken.star":  "x = ListUser().sumList(1)\n",
	})

	t.Run("passing", func(t *testing.T) {
		res := eng.RunScript(context.Background(), filepath.Join(dir, "passing.star"), "")
		require.NoError(t, res.Err)
		assert.True(t, res.Passed())
		require.Len(t, res.Tests, 2)
		assert.Equal(t, "test_override", res.Tests[0].Name)
		assert.Equal(t, "test_sum", res.Tests[1].Name)
		assert.Positive(t, res.Duration)
	})

	t.Run("filter", func(t *testing.T) {
		res := eng.RunScript(context.Background(), filepath.Join(dir, "passing.star"), "sum")
		require.Len(t, res.Tests, 1)
		assert.Equal(t, "test_sum", res.Tests[0].Name)
	})

	t.Run("failing test", func(t *testing.T) {
		res := eng.RunScript(context.Background(), filepath.Join(dir, "failing.star"), "")
		require.NoError(t, res.Err)
		assert.False(t, res.Passed())
		assert.Equal(t, 1, res.Failed())
		require.Len(t, res.Tests, 2)
		assert.Contains(t, res.Tests[0].Error, "assert_eq: [] != [1]")
		assert.NoError(t, res.Tests[1].Err)
	})

	t.Run("script error", func(t *testing.T) {
		res := eng.RunScript(context.Background(), filepath.Join(dir, "broken.star"), "")
		require.Error(t, res.Err)
		assert.False(t, res.Passed())
		assert.Contains(t, res.Error, "wrong argument types")
	})

	t.Run("missing file", func(t *testing.T) {
		res := eng.RunScript(context.Background(), filepath.Join(dir, "nope.star"), "")
		assert.ErrorIs(t, res.Err, os.ErrNotExist)
	})
}

func TestEngine_RunAll(t *testing.T) {
	files := map[string]string{
		"helpers.star": "expected = [1]\n",
		"a.star":       "def test_a():\n    pass\n",
		"b.star":       failing,
		"c.star":       "def test_c():\n    pass\n",
	}

	t.Run("collects every result in order", func(t *testing.T) {
		eng, dir := newTestEngine(t, files)
		paths := []string{filepath.Join(dir, "a.star"), filepath.Join(dir, "b.star"), filepath.Join(dir, "c.star")}

		results, err := eng.RunAll(context.Background(), paths, RunOptions{Concurrency: 3})
		require.NoError(t, err)
		require.Len(t, results, 3)
		for i, res := range results {
			assert.Equal(t, paths[i], res.File)
		}
		assert.True(t, results[0].Passed())
		assert.False(t, results[1].Passed())
		assert.True(t, results[2].Passed())
	})

	t.Run("fail fast", func(t *testing.T) {
		eng, dir := newTestEngine(t, files)
		paths := []string{filepath.Join(dir, "b.star"), filepath.Join(dir, "a.star")}

		results, err := eng.RunAll(context.Background(), paths, RunOptions{Concurrency: 1, FailFast: true})
		require.ErrorIs(t, err, ErrFailed)
		assert.False(t, results[0].Passed())
		assert.Contains(t, results[1].Error, "skipped")
	})
}

func TestEngine_Discover(t *testing.T) {
	eng, dir := newTestEngine(t, map[string]string{"b.star": "", "a.star": "", "notes.md": ""})

	files, err := eng.Discover()
	require.NoError(t, err)
	assert.Equal(t, []string{filepath.Join(dir, "a.star"), filepath.Join(dir, "b.star")}, files)
}

func TestEngine_Check(t *testing.T) {
	eng, dir := newTestEngine(t, map[string]string{
		"ext.star": `
def _create(self):
    return [1]

Ext = subclass(ListUser, "Ext", createList = _create, sumList = _create, extra = _create)
Bad = subclass(Nope, "Bad")
`,
		"syntax.star": "def (",
	})

	results, err := eng.Check([]string{filepath.Join(dir, "ext.star")})
	require.NoError(t, err)
	require.Len(t, results, 1)

	kinds := make(map[string]script.FindingKind)
	for _, f := range results[0].Findings {
		kinds[f.Class+"."+f.Method] = f.Kind
	}
	assert.Equal(t, map[string]script.FindingKind{
		"Ext.createList": script.FindingOverride,
		"Ext.sumList":    script.FindingShadow,
		"Ext.extra":      script.FindingNew,
		"Bad.":           script.FindingUnknownBase,
	}, kinds)
	assert.Equal(t, 1, results[0].Severe())

	_, err = eng.Check([]string{filepath.Join(dir, "syntax.star")})
	var parseErr *script.ParseError
	assert.True(t, errors.As(err, &parseErr))
}

func TestEngine_Observer(t *testing.T) {
	var mu sync.Mutex
	var states []dispatch.State
	eng, dir := newTestEngine(t, map[string]string{
		"helpers.star": "expected = [4]\n",
		"main.star":    passing,
	}, func(c *Config) {
		c.Observer = dispatch.ObserverFunc(func(ev dispatch.Event) {
			mu.Lock()
			defer mu.Unlock()
			states = append(states, ev.State)
		})
	})

	res := eng.RunScript(context.Background(), filepath.Join(dir, "main.star"), "override")
	require.True(t, res.Passed(), res.Error)

	mu.Lock()
	defer mu.Unlock()
	assert.Contains(t, states, dispatch.StateDynamicOverride)
}

func TestEngine_Watch(t *testing.T) {
	eng, dir := newTestEngine(t, nil)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var changed atomic.Value
	done := make(chan error, 1)
	go func() {
		done <- eng.Watch(ctx, []string{dir}, 10*time.Millisecond, func(path string) {
			changed.Store(path)
		})
	}()

	target := filepath.Join(dir, "live.star")
	assert.Eventually(t, func() bool {
		// Keep writing until the watcher is registered and reports the change.
		_ = os.WriteFile(target, []byte("x = 1\n"), 0o644)
		_ = os.WriteFile(filepath.Join(dir, "ignored.txt"), []byte("x"), 0o644)
		v, _ := changed.Load().(string)
		return v == target
	}, 5*time.Second, 50*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("Watch did not return after cancel")
	}
}
