// Package version provides build-time version information.
//
// Variables are set at build time via ldflags:
//
//	go build -ldflags "-X github.com/rickgao/drawsync/internal/version.Version=1.0.0 \
//	                   -X github.com/rickgao/drawsync/internal/version.Commit=$(git rev-parse --short HEAD) \
//	                   -X github.com/rickgao/drawsync/internal/version.BuildTime=$(date -u +%Y-%m-%dT%H:%M:%SZ)"
//
// Without ldflags, Commit and BuildTime fall back to the VCS stamp the Go
// toolchain embeds in the binary.
package version

import (
	"runtime/debug"
	"sync"
)

// Build-time variables (set via ldflags)
var (
	Version   = "dev"
	Commit    = "unknown"
	BuildTime = "unknown"
)

var stampOnce sync.Once

func stamp() {
	stampOnce.Do(func() {
		info, ok := debug.ReadBuildInfo()
		if !ok {
			return
		}
		for _, s := range info.Settings {
			switch s.Key {
			case "vcs.revision":
				if Commit == "unknown" && len(s.Value) >= 7 {
					Commit = s.Value[:7]
				}
			case "vcs.time":
				if BuildTime == "unknown" {
					BuildTime = s.Value
				}
			}
		}
	})
}

// String returns a formatted version string.
func String() string {
	stamp()
	return Version + " (" + Commit + ") built " + BuildTime
}

// UserAgent identifies drawsync in outgoing HTTP requests.
func UserAgent() string {
	return "drawsync/" + Version
}
