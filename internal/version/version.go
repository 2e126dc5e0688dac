// Package version carries build metadata injected with -ldflags, e.g.
//
//	go build -ldflags "-X github.com/pysugar/service-interactor/internal/version.Version=v0.1.0"
package version

import "fmt"

const name = "service-interactor"

var (
	Version   = "dev"
	Commit    = "none"
	BuildTime = "unknown"
)

// String renders the build information on one line.
func String() string {
	return fmt.Sprintf("%s %s (commit %s, built %s)", name, Version, Commit, BuildTime)
}

// UserAgent identifies outbound vendor requests.
func UserAgent() string {
	return name + "/" + Version
}
