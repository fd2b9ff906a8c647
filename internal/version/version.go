// Package version reports the build version of the binary.
package version

import (
	"runtime"
	"runtime/debug"
)

// Info describes the running build.
type Info struct {
	Version   string
	Revision  string
	Dirty     bool
	GoVersion string
	Install   InstallMethod
}

// Effective returns v, set at build time via ldflags, falling back to the
// module version and then to VCS build info.
func Effective(v string) string {
	if v != "" {
		return v
	}
	info, ok := debug.ReadBuildInfo()
	if !ok {
		return "unknown"
	}
	return fromBuildInfo(info)
}

func fromBuildInfo(info *debug.BuildInfo) string {
	if info.Main.Version != "" && info.Main.Version != "(devel)" {
		return info.Main.Version
	}

	revision, dirty := vcs(info)
	if revision == "" {
		return "devel"
	}
	ver := "devel+" + shortRevision(revision)
	if dirty {
		ver += "+dirty"
	}
	return ver
}

func vcs(info *debug.BuildInfo) (revision string, dirty bool) {
	for _, setting := range info.Settings {
		switch setting.Key {
		case "vcs.revision":
			revision = setting.Value
		case "vcs.modified":
			dirty = setting.Value == "true"
		}
	}
	return revision, dirty
}

// shortRevision returns the first 12 chars of a revision.
func shortRevision(rev string) string {
	if len(rev) > 12 {
		return rev[:12]
	}
	return rev
}

// Current collects Info for the running binary.
func Current(v string) Info {
	out := Info{
		Version:   Effective(v),
		GoVersion: runtime.Version(),
		Install:   DetectInstallMethod(),
	}
	if info, ok := debug.ReadBuildInfo(); ok {
		rev, dirty := vcs(info)
		out.Revision, out.Dirty = shortRevision(rev), dirty
	}
	return out
}
