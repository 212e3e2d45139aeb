// Package version reports the objfs build version.
//
// Version, Commit and Date are set at build time with
//
//	-ldflags "-X github.com/marmos91/objfs/internal/version.Version=v1.0.0"
//
// and fall back to the module build info for `go install` builds.
package version

import (
	"fmt"
	"io"
	"runtime/debug"
)

var (
	Version = "dev"
	Commit  = "unknown"
	Date    = "unknown"
)

// Info contains version information.
type Info struct {
	Version string `json:"version"`
	Commit  string `json:"commit"`
	Date    string `json:"date"`
}

// GetVersion returns the version string, preferring the compile-time value.
func GetVersion() string {
	if Version != "dev" && Version != "" {
		return Version
	}
	if info, ok := debug.ReadBuildInfo(); ok {
		if info.Main.Version != "" && info.Main.Version != "(devel)" {
			return info.Main.Version
		}
	}
	return "development"
}

// buildSetting returns a vcs setting from the build info.
func buildSetting(key string) string {
	if info, ok := debug.ReadBuildInfo(); ok {
		for _, setting := range info.Settings {
			if setting.Key == key {
				return setting.Value
			}
		}
	}
	return "unknown"
}

// GetInfo returns complete version information.
func GetInfo() Info {
	info := Info{Version: GetVersion(), Commit: Commit, Date: Date}
	if info.Commit == "unknown" || info.Commit == "" {
		info.Commit = buildSetting("vcs.revision")
	}
	if info.Date == "unknown" || info.Date == "" {
		info.Date = buildSetting("vcs.time")
	}
	return info
}

// GetFullVersion returns the version with the short commit and build date.
func GetFullVersion() string {
	info := GetInfo()
	if info.Commit != "unknown" && len(info.Commit) > 7 {
		short := info.Commit[:7]
		if info.Date != "unknown" {
			return fmt.Sprintf("%s (%s, built %s)", info.Version, short, info.Date)
		}
		return fmt.Sprintf("%s (%s)", info.Version, short)
	}
	return info.Version
}

// Print writes human-readable version information to w.
func Print(w io.Writer, appName string) {
	info := GetInfo()
	fmt.Fprintf(w, "%s version %s\n", appName, GetFullVersion())
	fmt.Fprintf(w, "Commit: %s\n", info.Commit)
	fmt.Fprintf(w, "Build Date: %s\n", info.Date)
}
