package cli

import "fmt"

// Set through -ldflags at build time.
var (
	Version = "dev"
	Commit  = "none"
	Date    = "unknown"
)

func fullVersion() string {
	return fmt.Sprintf("screenrec %s, commit %s, built at %s", Version, Commit, Date)
}
