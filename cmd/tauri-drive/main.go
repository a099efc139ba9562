package main

import (
	"os"

	"github.com/joshfom/tauri-drive/internal/cli"
)

// Version information - overridden at release time via LDFLAGS.
var (
	Version   = "0.1.0"
	BuildTime = ""
)

func main() {
	cli.Version = Version
	cli.BuildTime = BuildTime

	os.Exit(cli.Execute())
}
