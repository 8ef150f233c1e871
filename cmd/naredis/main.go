// Package main provides the entry point for naredis, a small example tool
// exercising the client library from the command line.
package main

import (
	"fmt"
	"os"

	"github.com/eyadof/Net-Async-Redis/internal/cli/command"
)

func main() {
	app := command.App()

	if err := app.Run(os.Args); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}
