// Command docq is the entry point for the docq document Q&A system.
// It provides a CLI interface (via Cobra) and an HTTP server exposing the
// multi-user REST API.
package main

import (
	"fmt"
	"os"

	"github.com/docq-ai/docq-go/cmd/docq/commands"
)

func main() {
	if err := commands.NewRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
