// Package buildinfo holds version information stamped in at link time:
//
//	go build -ldflags "-X github.com/deno-plc/build/pkg/buildinfo.Version=v0.3.0 \
//	    -X github.com/deno-plc/build/pkg/buildinfo.Commit=$(git rev-parse --short HEAD)" ./cmd/plcbuild
package buildinfo

import (
	"fmt"
	"runtime/debug"
)

var (
	Version = "dev"
	Commit  = "none"
	Date    = "unknown"
)

// Template is the cobra --version template.
func Template() string {
	return fmt.Sprintf("{{.Name}} %s\ncommit: %s\nbuilt: %s\nesbuild: %s\n", Version, Commit, Date, DependencyVersion("github.com/evanw/esbuild"))
}

// DependencyVersion reports the version of a module linked into the binary,
// or "unknown" when build info is unavailable (for example in tests).
func DependencyVersion(path string) string {
	bi, ok := debug.ReadBuildInfo()
	if !ok {
		return "unknown"
	}
	for _, dep := range bi.Deps {
		if dep.Path == path {
			if dep.Replace != nil {
				return dep.Replace.Version
			}
			return dep.Version
		}
	}
	return "unknown"
}
