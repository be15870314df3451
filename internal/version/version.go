// Package version records the build identity of the deployer binary.
package version

// Stamped at build time via -ldflags; a plain `go build` yields a dev
// binary, which the upgrade command treats as always upgradable.
var (
	// Version is the release tag (e.g. v1.2.0).
	Version = "dev"

	// BuildTime is when the binary was built.
	BuildTime = "unknown"

	// GitCommit is the commit the binary was built from.
	GitCommit = "unknown"
)

// Info returns the build identity for the version endpoint.
func Info() map[string]string {
	return map[string]string{
		"version":    Version,
		"build_time": BuildTime,
		"git_commit": GitCommit,
	}
}
