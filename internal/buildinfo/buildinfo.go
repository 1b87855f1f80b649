// Package buildinfo identifies the running build.
package buildinfo

import (
	"runtime/debug"
)

// Set at build time via -ldflags "-X sparkrt/internal/buildinfo.Version=...".
var (
	Version = "dev"
	Commit  = "unknown"
	Date    = "unknown"
)

// Short returns a compact build identifier for the window title and logs.
// Without ldflags it falls back to the VCS revision stamped by the toolchain.
func Short() string {
	if Version != "" && Version != "dev" {
		return Version
	}
	if Commit != "" && Commit != "unknown" {
		return shortCommit(Commit)
	}
	if info, ok := debug.ReadBuildInfo(); ok {
		for _, s := range info.Settings {
			if s.Key == "vcs.revision" && s.Value != "" {
				return shortCommit(s.Value)
			}
		}
	}
	return "dev"
}

func shortCommit(c string) string {
	if len(c) > 7 {
		return c[:7]
	}
	return c
}
