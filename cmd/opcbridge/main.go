package main

import (
	"os"

	"github.com/ghalamif/opcbridge/cmd/opcbridge/commands"
)

// Version information - set during build
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

func main() {
	commands.SetVersionInfo(version, commit, date)

	// Errors are already printed with colour by the commands package.
	if err := commands.Execute(); err != nil {
		os.Exit(1)
	}
}
