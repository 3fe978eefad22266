// Package main provides the entry point for the digitalmemory CLI.
package main

import (
	"os"

	"github.com/dzheng/digitalmemory/cmd/digitalmemory/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
