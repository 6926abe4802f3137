// Package versions provides build version information for the configuration client.
package versions

import (
	"fmt"
	"runtime"
	"runtime/debug"
	"time"
)

const (
	unknownStr = "unknown"
	devVersion = "dev"
)

// Version information set by build using -ldflags
var (
	Version = devVersion
	//nolint:goconst // placeholder replaced at link time
	Commit = unknownStr
	//nolint:goconst // placeholder replaced at link time
	BuildDate = unknownStr
)

// VersionInfo represents the version information
type VersionInfo struct {
	Version   string `json:"version"`
	Commit    string `json:"commit"`
	BuildDate string `json:"build_date"`
	GoVersion string `json:"go_version"`
	Platform  string `json:"platform"`
}

// GetVersionInfo returns the version information
func GetVersionInfo() VersionInfo {
	commit, buildDate := Commit, BuildDate
	if Version == devVersion {
		if info, ok := debug.ReadBuildInfo(); ok {
			commit, buildDate = fromBuildSettings(info.Settings, commit, buildDate)
		}
	}
	return versionInfo(Version, commit, buildDate)
}

// fromBuildSettings fills an unknown commit or build date from the VCS stamp of the binary
func fromBuildSettings(settings []debug.BuildSetting, commit, buildDate string) (string, string) {
	for _, setting := range settings {
		switch setting.Key {
		case "vcs.revision":
			if commit == unknownStr {
				commit = setting.Value
			}
		case "vcs.time":
			if buildDate == unknownStr {
				buildDate = setting.Value
			}
		}
	}
	return commit, buildDate
}

func versionInfo(version, commit, buildDate string) VersionInfo {
	if t, err := time.Parse(time.RFC3339, buildDate); err == nil {
		buildDate = t.UTC().Format("2006-01-02 15:04:05 MST")
	}

	// development builds are named after the first 8 characters of their commit
	if version == devVersion {
		version = fmt.Sprintf("build-%.*s", 8, commit)
	}

	return VersionInfo{
		Version:   version,
		Commit:    commit,
		BuildDate: buildDate,
		GoVersion: runtime.Version(),
		Platform:  runtime.GOOS + "/" + runtime.GOARCH,
	}
}
