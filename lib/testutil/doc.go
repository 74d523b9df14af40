// Copyright 2026 The Kelivo Authors
// SPDX-License-Identifier: Apache-2.0

// Package testutil holds channel helpers shared by the bridge's tests.
//
// [RequireReceive] and [RequireClosed] wrap the select-with-deadline
// pattern so tests that wait on goroutines never hang the suite. They
// are the only place tests use a wall-clock timeout; everything that
// schedules work in production runs against lib/clock.
package testutil
