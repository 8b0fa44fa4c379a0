// Command readai is the entry point for the ReadAI reading companion.
// It provides a CLI interface (via Cobra) and an optional HTTP/SSE server
// for interactive use.
package main

import (
	"fmt"
	"os"

	"github.com/readai-labs/readai-go/cmd/readai/commands"
)

func main() {
	if err := commands.NewRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
