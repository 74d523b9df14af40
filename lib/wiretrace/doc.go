// Copyright 2026 The Kelivo Authors
// SPDX-License-Identifier: Apache-2.0

// Package wiretrace records the bridge's JSON-RPC traffic for
// debugging host integrations.
//
// A trace file is a compressed stream (zstd by default, or lz4) of
// CBOR records, one per frame:
//
//	{t: unix nanoseconds, dir: "in" | "out", frame: bytes}
//
// Frames are the exact JSON-RPC lines without their newline. A
// [Recorder] is attached to the transport with jsonrpc.Reader.Observe
// and jsonrpc.Writer.Observe. Recording never interrupts the bridge:
// the first write error is logged and the recorder goes quiet.
//
// [Dump] reads a trace back and prints one JSON object per record.
// The compression format is detected from the stream's magic number.
package wiretrace
