// Package version holds build information injected with -ldflags, e.g.
//
//	-X github.com/charlie0129/radiocal/pkg/version.Version=v0.3.0
package version

var (
	Version   = "UNKNOWN"
	GitCommit = "UNKNOWN"
)

// Info is the version payload served by the daemon.
type Info struct {
	Version   string `json:"version"`
	GitCommit string `json:"gitCommit"`
}

func Get() Info {
	return Info{Version: Version, GitCommit: GitCommit}
}
