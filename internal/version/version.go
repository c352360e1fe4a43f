package version

import (
	"fmt"
	"runtime"
)

// Set at link time:
//
//	go build -ldflags "-X github.com/aaronlmathis/sparkwatch/internal/version.Version=v0.2.0"
var (
	Version   = "v0.1.0-dev"
	GitCommit = "unknown"
	BuildDate = "unknown"
)

// Info is served on /version and logged at startup
type Info struct {
	Version   string `json:"version"`
	GitCommit string `json:"gitCommit"`
	BuildDate string `json:"buildDate"`
	GoVersion string `json:"goVersion"`
}

func Get() Info {
	return Info{
		Version:   Version,
		GitCommit: GitCommit,
		BuildDate: BuildDate,
		GoVersion: runtime.Version(),
	}
}

func (i Info) String() string {
	return fmt.Sprintf("sparkwatch %s (commit %s, built %s, %s)",
		i.Version, i.GitCommit, i.BuildDate, i.GoVersion)
}

// UserAgent is sent with every range query
func UserAgent() string {
	return "sparkwatch/" + Version
}
