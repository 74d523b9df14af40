// Copyright 2026 The Kelivo Authors
// SPDX-License-Identifier: Apache-2.0

// Package jsonrpc frames JSON-RPC 2.0 messages over a pair of byte
// streams, one JSON document per line.
//
// [Reader] splits an inbound stream into records, tolerating partial
// reads, blank lines, and oversized records. [Decode] parses a record
// into a [Message] whose classification helpers tell requests,
// notifications, and responses apart. [Writer] serializes outbound
// messages so that concurrent senders never interleave bytes on the
// wire.
//
// The bridge plays both roles over the same pair of streams: it
// answers the host's requests and issues its own (permission prompts)
// whose responses arrive interleaved with ordinary host traffic.
package jsonrpc
