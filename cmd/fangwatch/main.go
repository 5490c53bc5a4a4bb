// Package main is the entry point for the fangwatch CLI.
package main

import (
	"os"

	"github.com/fangwatch/fangwatch/cmd/fangwatch/commands"
)

func main() {
	if err := commands.Execute(); err != nil {
		os.Exit(1)
	}
}
