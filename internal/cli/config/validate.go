package config

import (
	"fmt"
	"os"
	"slices"
	"strings"
)

var (
	logLevels     = []string{"debug", "info", "warn", "error"}
	logFormats    = []string{"text", "json"}
	outputFormats = []string{"auto", "text", "markdown", "json", "yaml"}
)

// Validate checks if the configuration is valid.
func (c *Config) Validate() error {
	if c.ScriptsDir == "" {
		return fmt.Errorf("scripts_dir is required")
	}
	if !slices.Contains(logLevels, strings.ToLower(c.LogLevel)) {
		return fmt.Errorf("invalid log_level %q: expected one of %s", c.LogLevel, strings.Join(logLevels, ", "))
	}
	if !slices.Contains(logFormats, strings.ToLower(c.LogFormat)) {
		return fmt.Errorf("invalid log_format %q: expected one of %s", c.LogFormat, strings.Join(logFormats, ", "))
	}
	if c.OutputFormat != "" && !slices.Contains(outputFormats, c.OutputFormat) {
		return fmt.Errorf("invalid output %q: expected one of %s", c.OutputFormat, strings.Join(outputFormats, ", "))
	}
	if c.ThreadPoolSize < 1 {
		return fmt.Errorf("thread_pool_size must be at least 1, got %d", c.ThreadPoolSize)
	}
	if c.Concurrency < 1 {
		return fmt.Errorf("concurrency must be at least 1, got %d", c.Concurrency)
	}
	return nil
}

// ValidateDirectories checks if required directories exist.
func (c *Config) ValidateDirectories() error {
	if _, err := os.Stat(c.ScriptsDir); os.IsNotExist(err) {
		return fmt.Errorf("scripts directory does not exist: %s\nHint: Create the directory or use --scripts-dir to specify a different path", c.ScriptsDir)
	}
	return nil
}
