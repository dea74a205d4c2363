// Command dispatchd runs the channel dispatch operation daemon.
package main

import (
	"fmt"
	"os"

	"github.com/fmuellner/telepathy-mission-control/cmd/dispatchd/commands"
)

// Build-time variables injected via ldflags.
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

func main() {
	commands.Version = version
	commands.Commit = commit
	commands.Date = date

	if err := commands.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
