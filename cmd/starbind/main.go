// Package main provides the starbind command.
package main

import (
	"os"

	"github.com/leapstack-labs/starbind/internal/cli"
)

func main() {
	if err := cli.Execute(); err != nil {
		os.Exit(1)
	}
}
