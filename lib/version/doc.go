// Copyright 2026 The Kelivo Authors
// SPDX-License-Identifier: Apache-2.0

// Package version reports build information for the bridge binary.
//
// Release builds inject [GitCommit], [GitDirty], [BuildTime], and
// [Version] with -ldflags -X. When a value was not injected, the
// module and VCS data the Go toolchain embeds in the binary fill it
// in where available, so "go install" builds still report a commit.
//
//   - [Info] -- "0.1.0-dev (abc1234, 2026-02-10T...)" for --version
//   - [Full] -- Info plus Go version and GOOS/GOARCH
//   - [Short] -- just the version number
package version
