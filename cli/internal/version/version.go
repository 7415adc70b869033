// Package version reports the codexreview build. Release builds set Version
// with -ldflags "-X codexreview/cli/internal/version.Version=v1.0.0"; dev
// builds set Commit the same way.
package version

import (
	"fmt"
	"runtime"
)

var (
	Version = "dev"
	Commit  = ""
)

// String is the short form used by --version: the release version, or
// "dev (abc1234)" when a dev build knows its commit.
func String() string {
	if Version == "dev" && Commit != "" {
		return fmt.Sprintf("%s (%s)", Version, Commit)
	}
	return Version
}

// Long is printed by the version command, e.g.
// "codexreview v1.0.0 linux/amd64 go1.22.5".
func Long() string {
	return fmt.Sprintf("codexreview %s %s/%s %s", String(), runtime.GOOS, runtime.GOARCH, runtime.Version())
}
