package engine

import (
	"fmt"
	"os"

	"github.com/leapstack-labs/starbind/internal/script"
)

// CheckResult is the static report for one script.
type CheckResult struct {
	Script   *script.ParsedScript `json:"script" yaml:"script"`
	Findings []script.Finding     `json:"findings" yaml:"findings"`
}

// Severe returns the number of findings that should fail a check.
func (c *CheckResult) Severe() int {
	n := 0
	for _, f := range c.Findings {
		if f.Kind.Severe() {
			n++
		}
	}
	return n
}

// Check parses each script without executing it and reports how its subclasses
// relate to the registered classes.
func (e *Engine) Check(paths []string) ([]*CheckResult, error) {
	results := make([]*CheckResult, 0, len(paths))
	for _, path := range paths {
		content, err := os.ReadFile(path) //nolint:gosec // G304: path comes from the user or Discover
		if err != nil {
			return nil, fmt.Errorf("failed to read %s: %w", path, err)
		}
		ps, err := script.ParseFile(path, content)
		if err != nil {
			return nil, err
		}
		results = append(results, &CheckResult{Script: ps, Findings: script.Check(ps, e.registry)})
	}
	return results, nil
}
