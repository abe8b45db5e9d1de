// Package main provides the tsa command-line tool.
package main

import (
	"os"

	"github.com/leapstack-labs/tsa/internal/cli"
)

func main() {
	if err := cli.Execute(); err != nil {
		os.Exit(1)
	}
}
