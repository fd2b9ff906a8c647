package version

import (
	"runtime/debug"
	"strings"
	"testing"
)

func TestEffective_Explicit(t *testing.T) {
	if got := Effective("v1.2.3"); got != "v1.2.3" {
		t.Errorf("Effective = %q", got)
	}
}

func TestFromBuildInfo(t *testing.T) {
	tests := []struct {
		name string
		info debug.BuildInfo
		want string
	}{
		{"module version", debug.BuildInfo{Main: debug.Module{Version: "v0.4.0"}}, "v0.4.0"},
		{"no vcs", debug.BuildInfo{Main: debug.Module{Version: "(devel)"}}, "devel"},
		{
			"revision",
			debug.BuildInfo{Settings: []debug.BuildSetting{{Key: "vcs.revision", Value: "0123456789abcdef"}}},
			"devel+0123456789ab",
		},
		{
			"dirty",
			debug.BuildInfo{Settings: []debug.BuildSetting{
				{Key: "vcs.revision", Value: "abc"},
				{Key: "vcs.modified", Value: "true"},
			}},
			"devel+abc+dirty",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := fromBuildInfo(&tt.info); got != tt.want {
				t.Errorf("fromBuildInfo = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestCurrent(t *testing.T) {
	info := Current("v9")
	if info.Version != "v9" {
		t.Errorf("Version = %q", info.Version)
	}
	if !strings.Contains(info.GoVersion, "go") {
		t.Errorf("GoVersion = %q", info.GoVersion)
	}
	switch info.Install {
	case InstallMethodHomebrew, InstallMethodGo, InstallMethodSource, InstallMethodBinary:
	default:
		t.Errorf("Install = %q", info.Install)
	}
}

func TestClassify(t *testing.T) {
	released := &debug.BuildInfo{Path: MainPath, Main: debug.Module{Path: "github.com/marcus/notecards", Version: "v0.3.1"}}
	local := &debug.BuildInfo{Path: MainPath, Main: debug.Module{Path: "github.com/marcus/notecards", Version: "(devel)"}}
	other := &debug.BuildInfo{Path: "example.com/fork/cmd/cards", Main: debug.Module{Version: "v1.0.0"}}
	noEnv := func(string) string { return "" }
	brewEnv := func(k string) string {
		if k == "HOMEBREW_PREFIX" {
			return "/home/linuxbrew/.linuxbrew"
		}
		return ""
	}

	tests := []struct {
		name   string
		exe    string
		info   *debug.BuildInfo
		getenv func(string) string
		want   InstallMethod
	}{
		{"cellar keg", "/opt/homebrew/Cellar/notecards/0.3.1/bin/notecards", released, noEnv, InstallMethodHomebrew},
		{"linuxbrew prefix", "/home/linuxbrew/.linuxbrew/Cellar/nc/1/bin/notecards", local, brewEnv, InstallMethodHomebrew},
		{"go install", "/home/me/go/bin/notecards", released, noEnv, InstallMethodGo},
		{"source build", "/home/me/src/notecards/notecards", local, noEnv, InstallMethodSource},
		{"other main package", "/usr/local/bin/cards", other, noEnv, InstallMethodBinary},
		{"no build info", "/usr/local/bin/notecards", nil, noEnv, InstallMethodBinary},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := classify(tt.exe, tt.info, tt.getenv); got != tt.want {
				t.Errorf("classify = %q, want %q", got, tt.want)
			}
		})
	}
}
