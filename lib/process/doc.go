// Copyright 2026 The Kelivo Authors
// SPDX-License-Identifier: Apache-2.0

// Package process holds the bridge binary's exit path. It is the one
// place that writes to stderr without the structured logger, because
// run() can fail before the logger exists.
package process
