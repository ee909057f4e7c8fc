package commands

import (
	"context"
	"errors"
	"fmt"
	"os/signal"
	"path/filepath"
	"slices"
	"sync"
	"syscall"
	"time"

	"github.com/leapstack-labs/starbind/internal/cli/output"
	"github.com/leapstack-labs/starbind/internal/engine"
	"github.com/spf13/cobra"
)

// RunOptions holds options for the run command.
type RunOptions struct {
	Filter   string
	FailFast bool
	Watch    bool
}

// NewRunCommand creates the run command.
func NewRunCommand() *cobra.Command {
	opts := &RunOptions{}

	cmd := &cobra.Command{
		Use:   "run [files or dirs...]",
		Short: "Run binding scripts and their tests",
		Long: `Execute Starlark scripts against the bound native classes.

Each script runs in its own runtime. After a script executes, every top-level
function named test_* is called in name order. Scripts run concurrently, bounded
by --concurrency. With no arguments, the scripts directory is used.`,
		Example: `  # Run every script in the scripts directory
  starbind run

  # Run specific scripts
  starbind run scripts/list_test.star

  # Only run tests whose name contains "sum"
  starbind run -k sum

  # Rerun when a script changes
  starbind run --watch`,
		Aliases: []string{"test"},
		RunE: func(cmd *cobra.Command, args []string) error {
			return runRun(cmd, args, opts)
		},
	}

	cmd.Flags().StringVarP(&opts.Filter, "filter", "k", "", "Only run tests whose name contains this string")
	cmd.Flags().BoolVar(&opts.FailFast, "fail-fast", false, "Stop after the first failing script")
	cmd.Flags().BoolVarP(&opts.Watch, "watch", "w", false, "Rerun scripts when .star files change")

	return cmd
}

func runRun(cmd *cobra.Command, args []string, opts *RunOptions) error {
	cmdCtx, cleanup, err := NewCommandContext(cmd, cmd.ErrOrStderr())
	if err != nil {
		return err
	}
	defer cleanup()

	paths, err := resolveScripts(cmdCtx.Engine, cmdCtx.Cfg, args)
	if err != nil {
		return err
	}
	if len(paths) == 0 {
		cmdCtx.Renderer.Warning("no scripts found in " + cmdCtx.Cfg.ScriptsDir)
		return nil
	}

	runOpts := engine.RunOptions{
		Concurrency: cmdCtx.Cfg.Concurrency,
		FailFast:    opts.FailFast,
		Filter:      opts.Filter,
	}

	if !opts.Watch {
		return runOnce(cmd.Context(), cmdCtx, paths, runOpts)
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var mu sync.Mutex
	rerun := func() {
		mu.Lock()
		defer mu.Unlock()
		if err := runOnce(ctx, cmdCtx, paths, runOpts); err != nil {
			cmdCtx.Renderer.Error(err.Error())
		}
	}
	rerun()

	dirs := watchDirs(cmdCtx.Cfg.ScriptsDir, paths)
	cmdCtx.Renderer.Println(cmdCtx.Renderer.Muted("Watching for changes. Press Ctrl+C to stop."))
	return cmdCtx.Engine.Watch(ctx, dirs, engine.DefaultDebounce, func(path string) {
		cmdCtx.Renderer.Println(cmdCtx.Renderer.Muted("\nchanged: " + displayPath(path)))
		rerun()
	})
}

func runOnce(ctx context.Context, cmdCtx *CommandContext, paths []string, opts engine.RunOptions) error {
	r := cmdCtx.Renderer
	start := time.Now()

	results, runErr := cmdCtx.Engine.RunAll(ctx, paths, opts)
	if runErr != nil && !errors.Is(runErr, engine.ErrFailed) {
		return runErr
	}

	if ok, err := r.Structured(results); ok {
		if err != nil {
			return err
		}
	} else {
		renderRunResults(r, results, time.Since(start))
	}

	failed := 0
	for _, res := range results {
		if !res.Passed() {
			failed++
		}
	}
	if failed > 0 {
		return fmt.Errorf("%d of %d script(s) failed", failed, len(results))
	}
	return nil
}

func renderRunResults(r *output.Renderer, results []*engine.Result, elapsed time.Duration) {
	styles := r.Styles()
	r.Header(fmt.Sprintf("Ran %d script(s)", len(results)))

	var tests, failedTests int
	for _, res := range results {
		tests += len(res.Tests)
		failedTests += res.Failed()

		status := "PASS"
		if !res.Passed() {
			status = "FAIL"
		}
		detail := fmt.Sprintf("%d test(s) in %s", len(res.Tests), res.Duration.Round(time.Millisecond))
		r.StatusLine(displayPath(res.File), res.Passed(), status, detail)

		if res.Err != nil {
			r.Printf("    %s\n", styles.Error.Render(res.Error))
		}
		for _, t := range res.Tests {
			if t.Err == nil {
				continue
			}
			r.Printf("    %s %s\n", styles.Error.Render("✗ "+t.Name), r.Muted(t.Error))
		}
	}

	r.Println()
	summary := fmt.Sprintf("%d test(s), %d failure(s) in %s", tests, failedTests, elapsed.Round(time.Millisecond))
	if failedTests == 0 {
		r.Success(summary)
	} else {
		r.Println(styles.Error.Render("✗ " + summary))
	}
}

// watchDirs returns the directories containing paths plus the scripts directory.
func watchDirs(scriptsDir string, paths []string) []string {
	var dirs []string
	if scriptsDir != "" {
		dirs = append(dirs, scriptsDir)
	}
	for _, p := range paths {
		dir := filepath.Dir(p)
		if !slices.Contains(dirs, dir) {
			dirs = append(dirs, dir)
		}
	}
	return dirs
}
