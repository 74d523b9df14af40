// Copyright 2026 The Kelivo Authors
// SPDX-License-Identifier: Apache-2.0

// Package streamevent defines the normalized events the bridge streams
// to the host and the translation from engine messages to them.
//
// The host sees only this vocabulary, carried as the params of a
// "stream" notification with a "type" discriminator:
//
//	text-delta     incremental assistant text
//	text-done      a complete assistant text block
//	thinking       incremental reasoning text
//	tool-start     the engine decided to call a tool
//	tool-progress  a long-running tool is still working
//	tool-done      a tool call finished (or was denied)
//	session-id     the engine assigned the session identifier
//	result         the run finished successfully
//	error          the run failed
//	aborted        the run was cancelled
//	done           the stream for this run is complete
//
// [Translate] is pure. Engine message kinds it does not know produce
// no events, so a newer engine cannot break an older bridge.
package streamevent
