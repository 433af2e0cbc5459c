// Package version reports the lavender build: ldflags-injected values first,
// falling back to the module information embedded by the Go toolchain.
package version

import (
	"fmt"
	"runtime"
	"runtime/debug"
	"strings"
)

// These variables are set at build time using -ldflags
var (
	Version   = "dev"
	GitCommit = "unknown"
	BuildTime = "unknown"
)

// BuildInfo contains version and build information
type BuildInfo struct {
	Version   string `json:"version"`
	GitCommit string `json:"git_commit"`
	BuildTime string `json:"build_time"`
	GoVersion string `json:"go_version"`
	Platform  string `json:"platform"`
	Dirty     bool   `json:"dirty"`
}

// GetBuildInfo returns the build information of the running binary
func GetBuildInfo() BuildInfo {
	info := BuildInfo{
		Version:   Version,
		GitCommit: GitCommit,
		BuildTime: BuildTime,
		GoVersion: runtime.Version(),
		Platform:  fmt.Sprintf("%s/%s", runtime.GOOS, runtime.GOARCH),
	}

	bi, ok := debug.ReadBuildInfo()
	if !ok {
		return info
	}

	if info.Version == "dev" && bi.Main.Version != "" && bi.Main.Version != "(devel)" {
		info.Version = bi.Main.Version
	}

	for _, setting := range bi.Settings {
		switch setting.Key {
		case "vcs.revision":
			if info.GitCommit == "unknown" {
				info.GitCommit = setting.Value
			}
		case "vcs.time":
			if info.BuildTime == "unknown" {
				info.BuildTime = setting.Value
			}
		case "vcs.modified":
			info.Dirty = setting.Value == "true"
		}
	}

	return info
}

// Short returns a one-line version suitable for `lavender version --short`.
func (b BuildInfo) Short() string {
	if b.GitCommit != "unknown" && len(b.GitCommit) >= 7 {
		if b.Version == "dev" {
			return "dev-" + b.GitCommit[:7]
		}
		return fmt.Sprintf("%s (%s)", b.Version, b.GitCommit[:7])
	}
	return b.Version
}

// String renders every known field, one per line.
func (b BuildInfo) String() string {
	parts := []string{"Version: " + b.Version}
	if b.GitCommit != "unknown" {
		parts = append(parts, "Commit: "+b.GitCommit)
	}
	if b.BuildTime != "unknown" {
		parts = append(parts, "Built: "+b.BuildTime)
	}
	parts = append(parts, "Go: "+b.GoVersion, "Platform: "+b.Platform)
	if b.Dirty {
		parts = append(parts, "Working directory: dirty")
	}
	return strings.Join(parts, "\n")
}
