// Package engine wires the binding layers into a script runner.
//
// An Engine owns the class registry, the dispatch bridge and the thread pool they
// share. Every script runs in its own host runtime with a fresh object manager, so
// bound instances never leak between scripts.
package engine

import (
	"fmt"
	"log/slog"

	"github.com/leapstack-labs/starbind/internal/binding"
	"github.com/leapstack-labs/starbind/internal/dispatch"
	"github.com/leapstack-labs/starbind/internal/host"
	"github.com/leapstack-labs/starbind/internal/object"
	"github.com/leapstack-labs/starbind/internal/sample"
	"github.com/leapstack-labs/starbind/internal/script"
)

// Engine runs binding scripts against the registered native classes.
type Engine struct {
	logger   *slog.Logger
	cfg      Config
	registry *binding.Registry
	pool     *host.ThreadPool
	bridge   *dispatch.Bridge
}

// Config holds engine configuration.
type Config struct {
	// ScriptsDir is where load() statements are resolved
	ScriptsDir string
	// ThreadPoolSize bounds the idle threads kept for native-initiated calls
	ThreadPoolSize int
	// MaxSteps limits execution steps per thread (0 = unlimited)
	MaxSteps uint64
	// Print receives print() output (optional, logs at info if nil)
	Print host.PrintFunc
	// Observer is notified of virtual call transitions (optional)
	Observer dispatch.Observer
	// Logger is the structured logger (optional, uses discard if nil)
	Logger *slog.Logger
}

// New creates an engine and registers the built-in classes.
func New(cfg Config) (*Engine, error) {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	logger.Debug("initializing engine", "scripts_dir", cfg.ScriptsDir, "max_steps", cfg.MaxSteps)

	var poolOpts []host.PoolOption
	if cfg.MaxSteps > 0 {
		poolOpts = append(poolOpts, host.PoolMaxSteps(cfg.MaxSteps))
	}
	if cfg.Print != nil {
		poolOpts = append(poolOpts, host.PoolPrint(cfg.Print))
	}
	pool := host.NewThreadPool(cfg.ThreadPoolSize, poolOpts...)

	bridgeOpts := []dispatch.Option{
		dispatch.WithThreadSource(pool),
		dispatch.WithLogger(logger),
	}
	if cfg.Observer != nil {
		bridgeOpts = append(bridgeOpts, dispatch.WithObserver(cfg.Observer))
	}
	bridge := dispatch.New(bridgeOpts...)

	reg := binding.NewRegistry()
	if _, err := sample.Register(reg, bridge); err != nil {
		return nil, fmt.Errorf("failed to register classes: %w", err)
	}

	return &Engine{
		logger:   logger,
		cfg:      cfg,
		registry: reg,
		pool:     pool,
		bridge:   bridge,
	}, nil
}

// Registry returns the registered native classes.
func (e *Engine) Registry() *binding.Registry {
	return e.registry
}

// Bridge returns the dispatch bridge shared by every runtime.
func (e *Engine) Bridge() *dispatch.Bridge {
	return e.bridge
}

// Logger returns the engine's logger.
func (e *Engine) Logger() *slog.Logger {
	return e.logger
}

// NewRuntime creates a runtime with a fresh object manager. load() statements are
// served from the scripts directory when one is configured.
func (e *Engine) NewRuntime() (*host.Runtime, error) {
	opts := []host.Option{
		host.WithLogger(e.logger),
		host.WithThreadPool(e.pool),
		host.WithMaxSteps(e.cfg.MaxSteps),
	}
	if e.cfg.Print != nil {
		opts = append(opts, host.WithPrint(e.cfg.Print))
	}
	rt, err := host.New(object.NewManager(e.registry, e.logger), opts...)
	if err != nil {
		return nil, err
	}
	if e.cfg.ScriptsDir != "" {
		rt.SetLoader(script.NewLoader(e.cfg.ScriptsDir, rt, e.logger))
	}
	return rt, nil
}

// Discover returns the scripts in the scripts directory.
func (e *Engine) Discover() ([]string, error) {
	return script.Discover(e.cfg.ScriptsDir)
}

// Close releases pooled threads. The engine must not be used afterwards.
func (e *Engine) Close() error {
	e.logger.Debug("closing engine", "pooled_threads", e.pool.Drain())
	return nil
}
