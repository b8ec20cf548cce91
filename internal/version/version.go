// Package version carries build-time version information.
package version

import "fmt"

// Set at build time via -ldflags.
//
//nolint:gochecknoglobals // Build-time injected values
var (
	Version = "dev"
	Commit  = ""
	Date    = ""
)

// String returns the full human-readable version line.
func String() string {
	s := Version
	if Commit != "" {
		s = fmt.Sprintf("%s (%s)", s, Commit)
	}
	if Date != "" {
		s = fmt.Sprintf("%s built %s", s, Date)
	}
	return s
}
