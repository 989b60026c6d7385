// Package version holds build metadata for the metaminer CLI, set with
//
//	go build -ldflags "-X github.com/travis4dams/metaminer/internal/version.Version=1.0.0 ..."
package version

import (
	"fmt"
	"runtime"
	"runtime/debug"
	"strings"
)

var (
	Version   = "dev"
	Commit    = "unknown"
	Dirty     = "false" // "true" when built from a modified tree
	BuildDate = "unknown"
)

// Info is the version information printed by "metaminer version --json".
type Info struct {
	Version   string `json:"version"`
	Commit    string `json:"commit"`
	Dirty     bool   `json:"dirty"`
	BuildDate string `json:"build_date"`
	GoVersion string `json:"go_version"`
	Platform  string `json:"platform"`
}

// Get returns the current version information. Without ldflags the module
// version recorded by the Go toolchain is used.
func Get() Info {
	return Info{
		Version:   resolved(),
		Commit:    Commit,
		Dirty:     Dirty == "true",
		BuildDate: BuildDate,
		GoVersion: runtime.Version(),
		Platform:  fmt.Sprintf("%s/%s", runtime.GOOS, runtime.GOARCH),
	}
}

// resolved falls back to the main module version from the build info when
// Version was not set at link time.
func resolved() string {
	if Version != "dev" {
		return Version
	}
	if bi, ok := debug.ReadBuildInfo(); ok && bi.Main.Version != "" && bi.Main.Version != "(devel)" {
		return strings.TrimPrefix(bi.Main.Version, "v")
	}
	return Version
}

// String returns a single-line version string
func String() string {
	v := resolved()
	if Dirty == "true" {
		v += "-dirty"
	}
	return v
}

// Full returns a multi-line version string with all details
func Full() string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "metaminer %s\n", String())
	fmt.Fprintf(&sb, "  Commit:     %s\n", Commit)
	if Dirty == "true" {
		sb.WriteString("  Dirty:      yes\n")
	}
	fmt.Fprintf(&sb, "  Built:      %s\n", BuildDate)
	fmt.Fprintf(&sb, "  Go version: %s\n", runtime.Version())
	fmt.Fprintf(&sb, "  OS/Arch:    %s/%s", runtime.GOOS, runtime.GOARCH)
	return sb.String()
}
