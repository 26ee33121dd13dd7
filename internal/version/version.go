// Package version reports the appliancectl build version.
package version

import (
	"fmt"
	"runtime"
	"runtime/debug"
	"time"
)

// Set at build time:
//
//	go build -ldflags="-X github.com/muurk/appliancectl/internal/version.Version=v1.2.3 \
//	                   -X github.com/muurk/appliancectl/internal/version.Commit=abc123"
//
// Unset values are taken from the embedded VCS info, falling back to "dev".
var (
	Version = ""
	Commit  = ""
)

func init() {
	info, _ := debug.ReadBuildInfo()
	Version, Commit = resolve(Version, Commit, info, time.Now())
}

func resolve(version, commit string, info *debug.BuildInfo, now time.Time) (string, string) {
	if info != nil {
		settings := make(map[string]string, len(info.Settings))
		for _, s := range info.Settings {
			settings[s.Key] = s.Value
		}

		if rev := settings["vcs.revision"]; commit == "" && rev != "" {
			commit = rev[:min(len(rev), 7)]
			if settings["vcs.modified"] == "true" {
				commit += "-dirty"
			}
		}
		if version == "" {
			if t, err := time.Parse(time.RFC3339, settings["vcs.time"]); err == nil {
				version = "dev-" + t.Format("20060102")
			}
		}
	}

	if version == "" {
		version = "dev-" + now.Format("20060102-150405")
	}
	if commit == "" {
		commit = "unknown"
	}
	return version, commit
}

// Full returns the version including commit and Go runtime.
func Full() string {
	return fmt.Sprintf("%s (commit: %s, %s)", Version, Commit, runtime.Version())
}
