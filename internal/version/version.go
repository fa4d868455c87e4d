// Package version holds build metadata reported by /version and the startup log.
package version

// Set with -ldflags "-X github.com/bissquit/alert-garden/internal/version.Version=...".
var (
	Version   = "dev"
	GitCommit = "unknown"
	BuildDate = "unknown"
)
