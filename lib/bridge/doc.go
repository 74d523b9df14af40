// Copyright 2026 The Kelivo Authors
// SPDX-License-Identifier: Apache-2.0

// Package bridge connects the host's JSON-RPC stream to the engine.
//
// [Server] reads records from the host and routes them: responses to
// the permission mediator, invoke to the [Controller], abort to the
// controller's cancellation, and everything else to a method-not-found
// error or the diagnostic log. The read loop never blocks on a
// handler; each invocation runs on its own goroutine.
//
// [Controller] owns the single invocation slot. Begin reserves it (or
// fails with [ErrBusy]), Run drives the engine, streams every
// translated event to the host in engine order, emits the terminal
// done, aborted, or error notification, replies to the invoke request,
// and only then frees the slot.
package bridge
