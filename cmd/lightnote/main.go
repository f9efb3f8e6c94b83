package main

import (
	"fmt"
	"os"

	"github.com/lightnote/admission/internal/cli"
)

// Set via ldflags, e.g.
// go build -ldflags="-X main.version=1.0.0 -X main.commit=abc123 -X main.buildDate=2026-01-01"
var (
	version   = "dev"
	commit    = "unknown"
	buildDate = "unknown"
)

func main() {
	cli.SetVersionInfo(version, commit, buildDate)

	if err := cli.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "lightnote: %v\n", err)
		os.Exit(1)
	}
}
