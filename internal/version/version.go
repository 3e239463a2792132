// Package version holds build metadata injected via ldflags.
package version

import "fmt"

//nolint:revive // Set via ldflags at build time.
var (
	Version = "dev"
	Commit  = "unknown"
	Date    = "unknown"
)

// String formats the build metadata for the version command.
func String() string {
	return fmt.Sprintf("queryforge %s (commit %s, built %s)", Version, Commit, Date)
}

// Info returns the build metadata as a JSON-friendly map.
func Info() map[string]string {
	return map[string]string{"version": Version, "commit": Commit, "date": Date}
}
