package commands

import (
	"bytes"
	"context"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/chzyer/readline"
	"github.com/leapstack-labs/starbind/internal/cli/config"
	"github.com/leapstack-labs/starbind/internal/engine"
	"github.com/leapstack-labs/starbind/internal/host"
	"github.com/leapstack-labs/starbind/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.starlark.net/starlark"
)

func TestNewRunCommand(t *testing.T) {
	cmd := NewRunCommand()

	assert.Equal(t, "run [files or dirs...]", cmd.Use)
	assert.NotEmpty(t, cmd.Short, "Short should not be empty")
	assert.NotEmpty(t, cmd.Example, "Example should not be empty")

	// Verify flags exist (output is a global flag on root, not local)
	for _, flag := range []string{"filter", "fail-fast", "watch"} {
		assert.NotNil(t, cmd.Flags().Lookup(flag), "flag %q should exist", flag)
	}
	assert.Equal(t, "k", cmd.Flags().Lookup("filter").Shorthand)
	assert.Equal(t, []string{"test"}, cmd.Aliases)
}

func TestNewCheckCommand(t *testing.T) {
	cmd := NewCheckCommand()

	assert.Equal(t, "check [files or dirs...]", cmd.Use)
	assert.NotEmpty(t, cmd.Short, "Short should not be empty")
	assert.NotEmpty(t, cmd.Example, "Example should not be empty")
}

func TestNewEvalCommand(t *testing.T) {
	cmd := NewEvalCommand()

	assert.Equal(t, "eval <expr>...", cmd.Use)
	assert.Error(t, cmd.Args(cmd, nil), "eval needs at least one expression")
	assert.NoError(t, cmd.Args(cmd, []string{"1"}))
}

func TestNewInspectCommand(t *testing.T) {
	cmd := NewInspectCommand()

	assert.Equal(t, "inspect [class...]", cmd.Use)
	assert.NotEmpty(t, cmd.Short, "Short should not be empty")
}

func TestNewREPLCommand(t *testing.T) {
	cmd := NewREPLCommand()

	assert.Equal(t, "repl", cmd.Use)
	assert.Error(t, cmd.Args(cmd, []string{"extra"}))
}

// scriptedReader feeds canned lines to runREPL.
type scriptedReader struct {
	lines   []scriptedLine
	pos     int
	prompts []string
}

type scriptedLine struct {
	text string
	err  error
}

func (r *scriptedReader) Readline() (string, error) {
	if r.pos >= len(r.lines) {
		return "", io.EOF
	}
	l := r.lines[r.pos]
	r.pos++
	return l.text, l.err
}

func (r *scriptedReader) SetPrompt(prompt string) {
	r.prompts = append(r.prompts, prompt)
}

func lines(text ...string) []scriptedLine {
	out := make([]scriptedLine, len(text))
	for i, s := range text {
		out[i] = scriptedLine{text: s}
	}
	return out
}

func newREPLEngine(t *testing.T, printTo io.Writer) (*engine.Engine, *host.Runtime) {
	t.Helper()
	eng, err := engine.New(engine.Config{
		ThreadPoolSize: 2,
		Print:          printer(printTo),
		Logger:         testutil.NewTestLogger(t),
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = eng.Close() })

	rt, err := eng.NewRuntime()
	require.NoError(t, err)
	return eng, rt
}

func TestRunREPL(t *testing.T) {
	var out, errOut bytes.Buffer
	eng, rt := newREPLEngine(t, &out)

	rl := &scriptedReader{lines: lines(
		"x = 1 + 2",
		"x",
		"def double(n):",
		"    return n * 2",
		"",
		"double(x)",
		"lu = ListUser()",
		"lu.sumList([1, 2, 3])",
		`print("hi")`,
		"None",
		"missing",
		".classes",
		".bogus",
		".quit",
		"never = 1",
	)}

	err := runREPL(context.Background(), rt, eng.Registry(), rl, &out, &errOut)
	require.NoError(t, err)

	assert.Equal(t, "3\n6\n6\n[<repl>] hi\nListUser\n", out.String())
	assert.Contains(t, errOut.String(), "undefined: missing")
	assert.Contains(t, errOut.String(), "Unknown command: .bogus")
	assert.Equal(t, len(rl.lines)-1, rl.pos, ".quit stops before the last line")
	assert.Equal(t, []string{replContPrompt, replContPrompt, replPrompt}, rl.prompts)
}

func TestRunREPL_Interrupt(t *testing.T) {
	var out, errOut bytes.Buffer
	eng, rt := newREPLEngine(t, &out)

	rl := &scriptedReader{lines: []scriptedLine{
		{text: "def broken():"},
		{text: "    return 1 +"},
		{err: readline.ErrInterrupt},
		{text: "1 + 1"},
	}}

	err := runREPL(context.Background(), rt, eng.Registry(), rl, &out, &errOut)
	require.NoError(t, err)
	assert.Equal(t, "2\n", out.String())
	assert.Empty(t, errOut.String(), "the interrupted block is discarded")
	assert.Equal(t, replPrompt, rl.prompts[len(rl.prompts)-1])
}

func TestRunREPL_ScriptError(t *testing.T) {
	var out, errOut bytes.Buffer
	eng, rt := newREPLEngine(t, &out)

	rl := &scriptedReader{lines: lines(
		`ListUser().sumList([1, "x"])`,
		`fail("boom")`,
		"ok = True",
		"ok",
	)}

	err := runREPL(context.Background(), rt, eng.Registry(), rl, &out, &errOut)
	require.NoError(t, err)
	assert.Contains(t, errOut.String(), "wrong argument types")
	assert.Contains(t, errOut.String(), "boom")
	assert.Contains(t, errOut.String(), "Traceback")
	assert.Equal(t, "True\n", out.String(), "errors do not end the session")
}

func TestPrinter(t *testing.T) {
	var buf bytes.Buffer
	p := printer(&buf)

	p(&starlark.Thread{Name: "/tmp/scripts/a.star"}, "one")
	p(&starlark.Thread{}, "two")
	p(nil, "three")

	assert.Equal(t, "[a.star] one\ntwo\nthree\n", buf.String())
}

func TestResolveScripts(t *testing.T) {
	dir := t.TempDir()
	for _, name := range []string{"b.star", "a.star", "notes.txt"} {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), nil, 0o600))
	}
	single := filepath.Join(dir, "b.star")

	eng, err := engine.New(engine.Config{ScriptsDir: dir})
	require.NoError(t, err)
	t.Cleanup(func() { _ = eng.Close() })

	cfg := config.Default()
	cfg.ScriptsDir = dir

	tests := []struct {
		name    string
		args    []string
		want    []string
		wantErr string
	}{
		{name: "scripts dir", want: []string{filepath.Join(dir, "a.star"), single}},
		{name: "explicit file", args: []string{single}, want: []string{single}},
		{name: "directory arg", args: []string{dir}, want: []string{filepath.Join(dir, "a.star"), single}},
		{name: "missing", args: []string{filepath.Join(dir, "nope.star")}, wantErr: "cannot access"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := resolveScripts(eng, cfg, tt.args)
			if tt.wantErr != "" {
				assert.ErrorContains(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}

	t.Run("missing scripts dir", func(t *testing.T) {
		missing := *cfg
		missing.ScriptsDir = filepath.Join(dir, "absent")
		_, err := resolveScripts(eng, &missing, nil)
		assert.ErrorContains(t, err, "scripts directory does not exist")
	})
}
