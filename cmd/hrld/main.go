// Package main is the entry point for the hrld CLI tool.
package main

import (
	"os"

	"github.com/aidanlsb/herald/internal/cli"
)

func main() {
	if err := cli.Execute(); err != nil {
		os.Exit(1)
	}
}
