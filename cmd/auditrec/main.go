package main

import (
	"os"

	"github.com/codeweaver-pro/auditrec/internal/cli"
)

// version is overridden at build time via -ldflags "-X main.version=...".
var version = "dev"

func main() {
	// Parse errors and command failures are already printed by the
	// flags parser, so exit without repeating them.
	if err := cli.Run(version); err != nil {
		os.Exit(1)
	}
}
