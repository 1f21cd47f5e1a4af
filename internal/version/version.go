// Package version carries build metadata stamped in with -ldflags -X.
package version

import "fmt"

var (
	// Version is the release tag.
	Version = "dev"
	// GitSHA is the commit the binary was built from.
	GitSHA = "unknown"
	// BuildTime is the build timestamp.
	BuildTime = "unknown"
)

// Info is the build metadata as reported by the status endpoint.
type Info struct {
	Version   string `json:"version"`
	GitSHA    string `json:"git_sha"`
	BuildTime string `json:"build_time"`
}

// Get returns the current build metadata.
func Get() Info {
	return Info{Version: Version, GitSHA: GitSHA, BuildTime: BuildTime}
}

// String formats the metadata for -version output and startup logs.
func String() string {
	return fmt.Sprintf("crosswalk %s (%s, built %s)", Version, GitSHA, BuildTime)
}
