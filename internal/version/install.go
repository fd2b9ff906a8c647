package version

import (
	"os"
	"path/filepath"
	"runtime/debug"
	"strings"
	"sync"
)

// MainPath is the import path of the notecards command.
const MainPath = "github.com/marcus/notecards/cmd/notecards"

// InstallMethod says how the running binary got onto the machine.
type InstallMethod string

const (
	InstallMethodHomebrew InstallMethod = "homebrew"
	InstallMethodGo       InstallMethod = "go"
	InstallMethodSource   InstallMethod = "source"
	InstallMethodBinary   InstallMethod = "binary"
)

// String returns the method name.
func (m InstallMethod) String() string { return string(m) }

var (
	installOnce sync.Once
	installed   InstallMethod
)

// DetectInstallMethod classifies the running binary once per process.
func DetectInstallMethod() InstallMethod {
	installOnce.Do(func() {
		exe, err := os.Executable()
		if err == nil {
			if resolved, err := filepath.EvalSymlinks(exe); err == nil {
				exe = resolved
			}
		}
		info, _ := debug.ReadBuildInfo()
		installed = classify(exe, info, os.Getenv)
	})
	return installed
}

// classify decides the install method from the executable path and build
// info. A Homebrew keg wins; a released module version of the notecards
// command means "go install path@version"; other builds of the command are
// local source builds; anything else is a downloaded binary.
func classify(exe string, info *debug.BuildInfo, getenv func(string) string) InstallMethod {
	if inHomebrew(exe, getenv("HOMEBREW_PREFIX")) {
		return InstallMethodHomebrew
	}
	if info == nil || info.Path != MainPath {
		return InstallMethodBinary
	}
	if v := info.Main.Version; v != "" && v != "(devel)" {
		return InstallMethodGo
	}
	return InstallMethodSource
}

func inHomebrew(exe, prefix string) bool {
	if exe == "" {
		return false
	}
	exe = filepath.ToSlash(exe)
	if strings.Contains(exe, "/Cellar/notecards/") {
		return true
	}
	return prefix != "" && strings.HasPrefix(exe, filepath.ToSlash(prefix)+"/Cellar/")
}
