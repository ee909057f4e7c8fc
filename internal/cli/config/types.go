// Package config loads starbind CLI configuration.
package config

// Config holds all CLI configuration options.
type Config struct {
	ScriptsDir     string `koanf:"scripts_dir"`
	LogLevel       string `koanf:"log_level"`
	LogFormat      string `koanf:"log_format"`
	ThreadPoolSize int    `koanf:"thread_pool_size"`
	MaxSteps       uint64 `koanf:"max_steps"` // 0 disables the limit
	Concurrency    int    `koanf:"concurrency"`
	Verbose        bool   `koanf:"verbose"`
	OutputFormat   string `koanf:"output"`
}

// Default configuration values.
const (
	DefaultScriptsDir     = "scripts"
	DefaultLogLevel       = "warn"
	DefaultLogFormat      = "text"
	DefaultThreadPoolSize = 10
	DefaultConcurrency    = 4
	DefaultOutput         = "auto" // Auto-detect: TTY=text, non-TTY=markdown
)

// Default returns a Config holding the default values.
func Default() *Config {
	return &Config{
		ScriptsDir:     DefaultScriptsDir,
		LogLevel:       DefaultLogLevel,
		LogFormat:      DefaultLogFormat,
		ThreadPoolSize: DefaultThreadPoolSize,
		Concurrency:    DefaultConcurrency,
		OutputFormat:   DefaultOutput,
	}
}
