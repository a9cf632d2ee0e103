// Command gvmscan orchestrates vulnerability scans on a GVM/OpenVAS engine.
package main

import (
	"github.com/anstrom/gvmscan/cmd/cli"
	"github.com/anstrom/gvmscan/internal/api/handlers"
)

// Build information, set via ldflags.
var (
	version   = "dev"
	commit    = "none"
	buildTime = "unknown"
)

func main() {
	cli.SetVersion(version, commit, buildTime)
	handlers.SetBuildInfo(version, commit, buildTime)
	cli.Execute()
}
