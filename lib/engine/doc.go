// Copyright 2026 The Kelivo Authors
// SPDX-License-Identifier: Apache-2.0

// Package engine drives the agentic engine behind the bridge.
//
// [Engine] is the seam the invocation controller depends on: one
// blocking Query per invocation, streaming every engine message to a
// handler in arrival order and routing tool-use approvals through a
// [PermissionFunc]. [Claude] implements it by running the Claude Code
// CLI in bidirectional stream-json mode:
//
//	claude --output-format stream-json --input-format stream-json \
//	    --verbose --include-partial-messages \
//	    --permission-prompt-tool stdio --model M --max-turns N ...
//
// The CLI speaks newline-delimited JSON on both pipes. After an
// initialize control request, the prompt is sent as a user message.
// The CLI then emits system, assistant, user, stream_event,
// tool_progress and result messages, interleaved with can_use_tool
// control requests that must be answered before the tool runs.
//
// Credentials travel in the child's environment only. The bridge's own
// environment is never modified, so concurrent or consecutive calls
// cannot observe each other's keys.
package engine
