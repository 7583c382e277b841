// Package version reports which edgescan build is running. Release builds
// set the variables with -ldflags "-X"; other builds fall back to the VCS
// stamp the Go toolchain embeds.
package version

import (
	"fmt"
	"runtime"
	"runtime/debug"
	"sync"
)

var (
	Version   = "dev"
	GitCommit = ""
	BuildDate = ""
)

var vcs = sync.OnceValues(func() (string, string) {
	info, ok := debug.ReadBuildInfo()
	if !ok {
		return "", ""
	}
	return parseVCS(info)
})

// parseVCS extracts a short revision, with "-dirty" for modified trees,
// and the commit time.
func parseVCS(info *debug.BuildInfo) (revision, date string) {
	var dirty bool
	for _, s := range info.Settings {
		switch s.Key {
		case "vcs.revision":
			revision = s.Value
		case "vcs.time":
			date = s.Value
		case "vcs.modified":
			dirty = s.Value == "true"
		}
	}
	if len(revision) > 12 {
		revision = revision[:12]
	}
	if revision != "" && dirty {
		revision += "-dirty"
	}
	return revision, date
}

// Commit returns the ldflags commit, the embedded VCS revision, or "unknown".
func Commit() string {
	if GitCommit != "" {
		return GitCommit
	}
	if rev, _ := vcs(); rev != "" {
		return rev
	}
	return "unknown"
}

// Date returns the ldflags build date, the VCS commit time, or "unknown".
func Date() string {
	if BuildDate != "" {
		return BuildDate
	}
	if _, date := vcs(); date != "" {
		return date
	}
	return "unknown"
}

// Info is the one-line string printed by "edgescan version".
func Info() string {
	return fmt.Sprintf("edgescan %s (commit: %s, built: %s, %s %s/%s)",
		Version, Commit(), Date(), runtime.Version(), runtime.GOOS, runtime.GOARCH)
}

// Short returns the release version, e.g. "0.3.0" or "dev".
func Short() string {
	return Version
}

// Map is the version block served by GET /api/v1/health.
func Map() map[string]string {
	return map[string]string{
		"version":    Version,
		"git_commit": Commit(),
		"build_date": Date(),
		"go_version": runtime.Version(),
		"os":         runtime.GOOS,
		"arch":       runtime.GOARCH,
	}
}
