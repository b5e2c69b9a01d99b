package main

import (
	"os"

	"github.com/reowatch/reowatch/cmd"
	"github.com/reowatch/reowatch/internal/conf"
)

// Set at build time with -ldflags "-X main.version=... -X main.buildDate=..."
var (
	version   = "dev"
	buildDate = "unknown"
)

func main() {
	settings := &conf.Settings{
		Version:   version,
		BuildDate: buildDate,
	}

	if err := cmd.RootCommand(settings).Execute(); err != nil {
		os.Exit(1)
	}
}
