// Package script loads binding scripts and analyses them without executing.
package script

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync"

	"github.com/leapstack-labs/starbind/internal/binding"
	"go.starlark.net/starlark"
)

// Executor runs modules for the loader. *host.Runtime implements it.
type Executor interface {
	NewThread(ctx context.Context, name string) (*starlark.Thread, func())
	ExecThread(thread *starlark.Thread, filename string, src any) (starlark.StringDict, error)
}

// chainLocal is the thread-local key holding the modules being loaded.
const chainLocal = "starbind.load_chain"

// Loader serves load() statements from a scripts directory. Each module is executed
// once per loader; later loads share its exports.
type Loader struct {
	dir    string
	exec   Executor
	logger *slog.Logger

	mu    sync.Mutex
	cache map[string]*module
}

type module struct {
	exports starlark.StringDict
	err     error
}

// NewLoader creates a loader for modules under dir.
func NewLoader(dir string, exec Executor, logger *slog.Logger) *Loader {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Loader{
		dir:    dir,
		exec:   exec,
		logger: logger,
		cache:  make(map[string]*module),
	}
}

// Load resolves name relative to the scripts directory, executes it if needed and
// returns its exports (names not starting with _).
func (l *Loader) Load(thread *starlark.Thread, name string) (starlark.StringDict, error) {
	path, err := l.resolve(name)
	if err != nil {
		return nil, err
	}

	chain, _ := thread.Local(chainLocal).([]string)
	if slices.Contains(chain, path) {
		cycle := make([]string, 0, len(chain)+1)
		for _, p := range append(chain, path) {
			cycle = append(cycle, filepath.Base(p))
		}
		return nil, &LoadError{File: path, Message: "cycle in load graph: " + strings.Join(cycle, " -> ")}
	}

	l.mu.Lock()
	m, ok := l.cache[path]
	l.mu.Unlock()
	if ok {
		return m.exports, m.err
	}

	m = l.execModule(thread, name, path, chain)

	l.mu.Lock()
	l.cache[path] = m
	l.mu.Unlock()
	return m.exports, m.err
}

func (l *Loader) execModule(parent *starlark.Thread, name, path string, chain []string) *module {
	content, err := os.ReadFile(path) //nolint:gosec // G304: path is resolved inside the scripts directory
	if err != nil {
		return &module{err: &LoadError{File: path, Message: fmt.Sprintf("failed to read file: %v", err), Err: err}}
	}

	thread, done := l.exec.NewThread(binding.ContextOf(parent), "load:"+name)
	defer done()
	thread.SetLocal(chainLocal, append(slices.Clone(chain), path))

	globals, err := l.exec.ExecThread(thread, path, content)
	if err != nil {
		return &module{err: &LoadError{File: path, Message: err.Error(), Err: err}}
	}

	exports := make(starlark.StringDict)
	for k, v := range globals {
		if !strings.HasPrefix(k, "_") {
			exports[k] = v
		}
	}
	l.logger.Debug("loaded module", "module", name, "exports", len(exports))
	return &module{exports: exports}
}

// resolve maps a load() name to a file inside the scripts directory.
func (l *Loader) resolve(name string) (string, error) {
	if !strings.HasSuffix(name, ".star") {
		return "", &LoadError{File: name, Message: "module name must end in .star"}
	}
	if filepath.IsAbs(name) || !filepath.IsLocal(name) {
		return "", &LoadError{File: name, Message: "module must be inside the scripts directory"}
	}
	if err := validateModuleName(strings.TrimSuffix(filepath.Base(name), ".star")); err != nil {
		return "", &LoadError{File: name, Message: err.Error()}
	}
	path, err := filepath.Abs(filepath.Join(l.dir, name))
	if err != nil {
		return "", &LoadError{File: name, Message: err.Error(), Err: err}
	}
	return path, nil
}

// Discover returns the .star files directly inside dir, sorted. A missing directory
// yields no files.
func Discover(dir string) ([]string, error) {
	info, err := os.Stat(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to access scripts directory: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("scripts path is not a directory: %s", dir)
	}

	files, err := filepath.Glob(filepath.Join(dir, "*.star"))
	if err != nil {
		return nil, fmt.Errorf("failed to scan scripts directory: %w", err)
	}
	slices.Sort(files)
	return files, nil
}

// validateModuleName checks that a module file name is a valid identifier.
func validateModuleName(name string) error {
	if name == "" {
		return fmt.Errorf("module name cannot be empty")
	}

	for i, r := range name {
		if i == 0 {
			if !isLetter(r) && r != '_' {
				return fmt.Errorf("module name must start with letter or underscore: %s", name)
			}
		} else {
			if !isLetter(r) && !isDigit(r) && r != '_' {
				return fmt.Errorf("module name contains invalid character: %s", name)
			}
		}
	}

	return nil
}

func isLetter(r rune) bool {
	return (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z')
}

func isDigit(r rune) bool {
	return r >= '0' && r <= '9'
}

// LoadError represents an error loading a module.
type LoadError struct {
	File    string
	Message string
	Err     error
}

func (e *LoadError) Error() string {
	return fmt.Sprintf("load %s: %s", filepath.Base(e.File), e.Message)
}

func (e *LoadError) Unwrap() error {
	return e.Err
}
