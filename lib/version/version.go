// Copyright 2026 The Kelivo Authors
// SPDX-License-Identifier: Apache-2.0

package version

import (
	"fmt"
	"runtime"
	"runtime/debug"
	"sync"
)

// These variables are set via -ldflags at build time:
//
//	go build -ldflags "-X github.com/kelivo/agent-bridge/lib/version.GitCommit=$(git rev-parse --short HEAD)"
var (
	// GitCommit is the short git SHA of the build.
	GitCommit = "unknown"

	// GitDirty indicates whether there were uncommitted changes.
	GitDirty = "false"

	// BuildTime is the UTC timestamp of the build.
	BuildTime = "unknown"

	// Version is the semantic version. This is set manually for releases.
	Version = "0.1.0-dev"
)

// build is the resolved build information.
type build struct {
	version string
	commit  string
	dirty   bool
	time    string
}

var resolved = sync.OnceValue(func() build {
	return resolve(GitCommit, GitDirty, BuildTime, Version, debug.ReadBuildInfo)
})

// resolve fills values that were not injected from the embedded
// build info.
func resolve(commit, dirty, buildTime, version string, read func() (*debug.BuildInfo, bool)) build {
	result := build{version: version, commit: commit, dirty: dirty == "true", time: buildTime}
	info, ok := read()
	if !ok {
		return result
	}
	if result.version == "0.1.0-dev" && info.Main.Version != "" && info.Main.Version != "(devel)" {
		result.version = info.Main.Version
	}
	for _, setting := range info.Settings {
		switch setting.Key {
		case "vcs.revision":
			if result.commit == "unknown" && setting.Value != "" {
				result.commit = setting.Value
				if len(result.commit) > 12 {
					result.commit = result.commit[:12]
				}
			}
		case "vcs.time":
			if result.time == "unknown" && setting.Value != "" {
				result.time = setting.Value
			}
		case "vcs.modified":
			if dirty != "true" && setting.Value == "true" {
				result.dirty = true
			}
		}
	}
	return result
}

func (b build) info() string {
	suffix := ""
	if b.dirty {
		suffix = "-dirty"
	}
	return fmt.Sprintf("%s (%s%s, %s)", b.version, b.commit, suffix, b.time)
}

// Info returns a formatted version string suitable for --version output.
func Info() string {
	return resolved().info()
}

// Full returns detailed version information including Go version.
func Full() string {
	return fmt.Sprintf("%s\n  Go: %s\n  Platform: %s/%s",
		Info(), runtime.Version(), runtime.GOOS, runtime.GOARCH)
}

// Short returns just the version number.
func Short() string {
	return resolved().version
}
