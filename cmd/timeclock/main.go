/*
main.go - Application entry point

PURPOSE:
  Command-line front end of the time clock. Loads configuration, opens
  the SQLite store and wires the worklog engine for each subcommand.

COMMANDS:
  serve     Start the HTTP API with graceful shutdown
  merge     Merge (or preview merging) one user's fragmented day
  compute   Normal / overtime minutes for an "HH:mm" pair

CONFIGURATION:
  defaults -> --config TOML file -> TIMECLOCK_* env -> --db / --port flags

EXAMPLES:
  timeclock serve --db ./data/timeclock.db --port 3000
  timeclock merge --user u1 --date 2025-03-10 --dry-run
  timeclock compute --start 09:00 --end 19:10

SEE ALSO:
  - config/config.go: Configuration loading
  - api/server.go: Router configuration
  - store/sqlite/sqlite.go: Database implementation
*/
package main

import (
	"fmt"
	"os"
)

func main() {
	if err := NewApp().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}
