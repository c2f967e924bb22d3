// Package version holds build-time version information for the docrag binary.
// The variables are populated at build time via -ldflags:
//
//	go build -ldflags="-X github.com/54b3r/docrag/internal/version.Version=v1.2.3 \
//	                    -X github.com/54b3r/docrag/internal/version.Commit=abc1234 \
//	                    -X github.com/54b3r/docrag/internal/version.BuildDate=2025-01-01"
package version

import "fmt"

// Version is the semantic version of the binary. Defaults to "dev".
var Version = "dev"

// Commit is the short git SHA the binary was built from.
var Commit = "unknown"

// BuildDate is the UTC build date (RFC3339).
var BuildDate = "unknown"

// String formats the version triple on one line.
func String() string {
	return fmt.Sprintf("docrag %s (commit %s, built %s)", Version, Commit, BuildDate)
}
