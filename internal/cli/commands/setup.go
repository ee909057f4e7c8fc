package commands

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"sync"

	"github.com/leapstack-labs/starbind/internal/cli/config"
	"github.com/leapstack-labs/starbind/internal/cli/output"
	"github.com/leapstack-labs/starbind/internal/engine"
	"github.com/leapstack-labs/starbind/internal/host"
	"github.com/leapstack-labs/starbind/internal/script"
	"github.com/spf13/cobra"
	"go.starlark.net/starlark"
)

// CommandContext holds common dependencies for CLI commands.
type CommandContext struct {
	Cfg      *config.Config
	Logger   *slog.Logger
	Engine   *engine.Engine
	Renderer *output.Renderer
}

// NewCommandContext creates a CommandContext with engine and renderer.
// Returns the context and a cleanup function that must be called (typically via defer).
// Script print() output goes to printTo.
func NewCommandContext(cmd *cobra.Command, printTo io.Writer) (*CommandContext, func(), error) {
	cmdCtx := NewCommandContextWithoutEngine(cmd)

	eng, err := createEngine(cmdCtx.Cfg, cmdCtx.Logger, printer(printTo))
	if err != nil {
		return nil, nil, err
	}
	cmdCtx.Engine = eng

	cleanup := func() {
		_ = eng.Close()
	}
	return cmdCtx, cleanup, nil
}

// NewCommandContextWithoutEngine creates a CommandContext without an engine.
func NewCommandContextWithoutEngine(cmd *cobra.Command) *CommandContext {
	cfg := getConfig()
	logger := config.GetLogger(cmd.Context())
	mode := output.Mode(cfg.OutputFormat)
	r := output.NewRenderer(cmd.OutOrStdout(), cmd.ErrOrStderr(), mode)

	return &CommandContext{
		Cfg:      cfg,
		Logger:   logger,
		Renderer: r,
	}
}

// getConfig returns the current configuration.
// It uses config.GetCurrentConfig() if available, otherwise falls back to environment variables.
func getConfig() *config.Config {
	if cfg := config.GetCurrentConfig(); cfg != nil {
		return cfg
	}

	cfg := config.Default()
	cfg.ScriptsDir = getEnvOrDefault(config.EnvPrefix+"SCRIPTS_DIR", cfg.ScriptsDir)
	cfg.OutputFormat = getEnvOrDefault(config.EnvPrefix+"OUTPUT", cfg.OutputFormat)
	cfg.Verbose = os.Getenv(config.EnvPrefix+"VERBOSE") == "true"
	if n, err := strconv.ParseUint(os.Getenv(config.EnvPrefix+"MAX_STEPS"), 10, 64); err == nil {
		cfg.MaxSteps = n
	}
	return cfg
}

func getEnvOrDefault(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}

func createEngine(cfg *config.Config, logger *slog.Logger, print host.PrintFunc) (*engine.Engine, error) {
	return engine.New(engine.Config{
		ScriptsDir:     cfg.ScriptsDir,
		ThreadPoolSize: cfg.ThreadPoolSize,
		MaxSteps:       cfg.MaxSteps,
		Print:          print,
		Logger:         logger,
	})
}

// printer writes script print() output to w, one line per call, prefixed with the
// thread name when there is one. Scripts run concurrently, so writes are serialized.
func printer(w io.Writer) host.PrintFunc {
	var mu sync.Mutex
	return func(thread *starlark.Thread, msg string) {
		mu.Lock()
		defer mu.Unlock()
		if thread != nil && thread.Name != "" {
			_, _ = fmt.Fprintf(w, "[%s] %s\n", filepath.Base(thread.Name), msg)
			return
		}
		_, _ = fmt.Fprintln(w, msg)
	}
}

// resolveScripts expands args into script paths. Directories contribute the .star
// files directly inside them; no args means the configured scripts directory.
func resolveScripts(eng *engine.Engine, cfg *config.Config, args []string) ([]string, error) {
	if len(args) == 0 {
		if err := cfg.ValidateDirectories(); err != nil {
			return nil, err
		}
		return eng.Discover()
	}

	var paths []string
	for _, arg := range args {
		info, err := os.Stat(arg)
		if err != nil {
			return nil, fmt.Errorf("cannot access %s: %w", arg, err)
		}
		if !info.IsDir() {
			paths = append(paths, arg)
			continue
		}
		files, err := script.Discover(arg)
		if err != nil {
			return nil, err
		}
		paths = append(paths, files...)
	}
	return paths, nil
}

// displayPath shortens path relative to the working directory when possible.
func displayPath(path string) string {
	wd, err := os.Getwd()
	if err != nil {
		return path
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		return path
	}
	if rel, err := filepath.Rel(wd, abs); err == nil && filepath.IsLocal(rel) {
		return rel
	}
	return path
}
