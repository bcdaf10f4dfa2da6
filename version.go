package reins

import (
	"fmt"
	"runtime"
)

// Version is the release version. Overridden at build time:
//
//	go build -ldflags "-X github.com/reins-ai/reins.Version=v0.2.0"
var Version = "0.1.0-alpha"

// BuildDate and GitCommit are stamped the same way.
var (
	BuildDate = "unknown"
	GitCommit = "unknown"
)

// Info is a point-in-time snapshot of the build identity.
type Info struct {
	Version   string `json:"version"`
	BuildDate string `json:"build_date"`
	GitCommit string `json:"git_commit"`
	GoVersion string `json:"go_version"`
	Platform  string `json:"platform"`
}

// GetVersion reports the running build.
func GetVersion() Info {
	return Info{
		Version:   Version,
		BuildDate: BuildDate,
		GitCommit: GitCommit,
		GoVersion: runtime.Version(),
		Platform:  fmt.Sprintf("%s/%s", runtime.GOOS, runtime.GOARCH),
	}
}

func (i Info) String() string {
	return fmt.Sprintf("reins %s (built %s, commit %s, %s %s)",
		i.Version, i.BuildDate, i.GitCommit, i.GoVersion, i.Platform)
}
