// Copyright 2026 The Kelivo Authors
// SPDX-License-Identifier: Apache-2.0

// Package permission asks the host to approve tool use on the engine's
// behalf.
//
// The bridge is normally the server in its JSON-RPC conversation with
// the host. For approvals it turns client: [Mediator.RequestApproval]
// sends a requestPermission request with a bridge-chosen id
// ("perm-" followed by a UUID) and blocks until the host echoes that
// id back in a response, the request expires, or the caller gives up.
//
// Each outstanding request moves from issued to exactly one of
// approved, denied, or timed out. Whichever of [Mediator.Resolve],
// [Mediator.Reject], the expiry timer, or context cancellation gets
// there first removes the entry; the others find nothing and are
// no-ops. Late and duplicate host answers are therefore harmless.
package permission
