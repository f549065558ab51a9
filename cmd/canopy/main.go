// Canopy - CLI client for the Canopy file management backend.
package main

import (
	"os"

	"github.com/canopy-fm/canopy/internal/cli"
)

// Version is stamped at build time via -ldflags.
var Version = "v1.0.0-dev"

func main() {
	cli.Version = Version

	if err := cli.Execute(); err != nil {
		os.Exit(1)
	}
}
