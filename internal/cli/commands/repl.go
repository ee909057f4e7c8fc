package commands

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/chzyer/readline"
	"github.com/leapstack-labs/starbind/internal/binding"
	"github.com/leapstack-labs/starbind/internal/host"
	"github.com/spf13/cobra"
	"go.starlark.net/starlark"
	"go.starlark.net/syntax"
)

const (
	replPrompt     = "starbind> "
	replContPrompt = "     ...> "
	replFile       = "<repl>"
)

// replOptions lets the REPL define functions, loop at top level and rebind names.
var replOptions = &syntax.FileOptions{
	Set:             true,
	While:           true,
	TopLevelControl: true,
	GlobalReassign:  true,
	Recursion:       true,
}

// lineReader is the part of *readline.Instance the REPL loop uses.
type lineReader interface {
	Readline() (string, error)
	SetPrompt(prompt string)
}

// NewREPLCommand creates the repl command.
func NewREPLCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "repl",
		Short: "Start an interactive Starlark session with the bindings loaded",
		Long: `Start an interactive session where bound classes can be instantiated,
subclassed and called.

Expressions print their value. Statements ending in ':' open a block that is
closed by an empty line. load() reads modules from the scripts directory.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cmdCtx, cleanup, err := NewCommandContext(cmd, cmd.OutOrStdout())
			if err != nil {
				return err
			}
			defer cleanup()

			rt, err := cmdCtx.Engine.NewRuntime()
			if err != nil {
				return err
			}

			rl, err := readline.NewEx(&readline.Config{
				Prompt:          replPrompt,
				HistoryFile:     historyFile(),
				AutoComplete:    newBindingCompleter(cmdCtx.Engine.Registry()),
				InterruptPrompt: "^C",
				EOFPrompt:       ".quit",
			})
			if err != nil {
				return fmt.Errorf("failed to initialize REPL: %w", err)
			}
			defer func() { _ = rl.Close() }()

			_, _ = fmt.Fprintln(cmd.OutOrStdout(), "starbind REPL")
			_, _ = fmt.Fprintln(cmd.OutOrStdout(), "Type .help for commands, .quit to exit")
			_, _ = fmt.Fprintln(cmd.OutOrStdout())

			return runREPL(cmd.Context(), rt, cmdCtx.Engine.Registry(), rl, cmd.OutOrStdout(), cmd.ErrOrStderr())
		},
	}
}

// runREPL reads chunks from rl until EOF or .quit and executes them against a
// single module whose globals persist between chunks.
func runREPL(ctx context.Context, rt *host.Runtime, reg *binding.Registry, rl lineReader, out, errOut io.Writer) error {
	if ctx == nil {
		ctx = context.Background()
	}
	globals := make(starlark.StringDict)
	for k, v := range rt.Globals() {
		globals[k] = v
	}

	var block strings.Builder
	for {
		line, err := rl.Readline()
		if errors.Is(err, readline.ErrInterrupt) {
			block.Reset()
			rl.SetPrompt(replPrompt)
			continue
		}
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return err
		}

		trimmed := strings.TrimSpace(line)
		if block.Len() == 0 {
			if trimmed == "" {
				continue
			}
			if strings.HasPrefix(trimmed, ".") {
				if quit := handleREPLCommand(reg, trimmed, out, errOut); quit {
					break
				}
				continue
			}
			if !strings.HasSuffix(trimmed, ":") {
				if err := execChunk(ctx, rt, globals, line, out); err != nil {
					_, _ = fmt.Fprintf(errOut, "Error: %v\n", err)
				}
				continue
			}
		}

		// Inside a block: an empty line runs it.
		if trimmed != "" {
			block.WriteString(line)
			block.WriteString("\n")
			rl.SetPrompt(replContPrompt)
			continue
		}
		rl.SetPrompt(replPrompt)
		src := block.String()
		block.Reset()
		if err := execChunk(ctx, rt, globals, src, out); err != nil {
			_, _ = fmt.Fprintf(errOut, "Error: %v\n", err)
		}
	}
	return nil
}

// execChunk runs src in globals. A chunk that is a single expression prints its
// value unless it is None.
func execChunk(ctx context.Context, rt *host.Runtime, globals starlark.StringDict, src string, out io.Writer) error {
	f, err := replOptions.Parse(replFile, src, 0)
	if err != nil {
		return err
	}

	thread, done := rt.NewThread(ctx, replFile)
	defer done()

	if len(f.Stmts) == 1 {
		if stmt, ok := f.Stmts[0].(*syntax.ExprStmt); ok {
			v, err := starlark.EvalExprOptions(replOptions, thread, stmt.X, globals)
			if err != nil {
				return replError(err)
			}
			if v != starlark.None {
				_, _ = fmt.Fprintln(out, v.String())
			}
			return nil
		}
	}
	return replError(starlark.ExecREPLChunk(f, thread, globals))
}

// replError keeps the backtrace for script errors.
func replError(err error) error {
	var evalErr *starlark.EvalError
	if errors.As(err, &evalErr) {
		return errors.New(evalErr.Backtrace())
	}
	return err
}

func handleREPLCommand(reg *binding.Registry, line string, out, errOut io.Writer) bool {
	command := strings.ToLower(strings.Fields(line)[0])

	switch command {
	case ".quit", ".exit":
		return true

	case ".help":
		printREPLHelp(out)

	case ".classes":
		for _, class := range reg.Classes() {
			_, _ = fmt.Fprintln(out, class.Name)
		}

	default:
		_, _ = fmt.Fprintf(errOut, "Unknown command: %s (type .help for commands)\n", command)
	}
	return false
}

func printREPLHelp(w io.Writer) {
	help := `
Commands:
  .help           Show this help message
  .classes        List the bound native classes
  .quit / .exit   Exit the REPL

Tips:
  - A line ending in ':' starts a block; finish it with an empty line
  - Use arrow keys to navigate history
  - Tab completion works for class names and builtins
`
	_, _ = fmt.Fprintln(w, help)
}

// newBindingCompleter completes class names, builtins and dot-commands.
func newBindingCompleter(reg *binding.Registry) *readline.PrefixCompleter {
	var items []readline.PrefixCompleterInterface
	for _, class := range reg.Classes() {
		items = append(items, readline.PcItem(class.Name))
	}
	for _, name := range binding.ReservedNames {
		items = append(items, readline.PcItem(name))
	}
	items = append(items,
		readline.PcItem(".help"),
		readline.PcItem(".classes"),
		readline.PcItem(".quit"),
		readline.PcItem(".exit"),
	)
	return readline.NewPrefixCompleter(items...)
}

// historyFile returns the REPL history location, or "" to disable history.
func historyFile() string {
	dir, err := os.UserCacheDir()
	if err != nil {
		return ""
	}
	dir = filepath.Join(dir, "starbind")
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return ""
	}
	return filepath.Join(dir, "repl_history")
}
