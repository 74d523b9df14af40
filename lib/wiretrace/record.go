// Copyright 2026 The Kelivo Authors
// SPDX-License-Identifier: Apache-2.0

package wiretrace

import (
	"fmt"
	"strings"
)

// Direction is which way a frame travelled, from the bridge's side.
type Direction string

const (
	Inbound  Direction = "in"
	Outbound Direction = "out"
)

// Record is one traced frame.
type Record struct {
	// T is the capture time in Unix nanoseconds.
	T     int64     `cbor:"t"`
	Dir   Direction `cbor:"dir"`
	Frame []byte    `cbor:"frame"`
}

// Compression selects the trace stream's compression.
type Compression string

const (
	Zstd Compression = "zstd"
	LZ4  Compression = "lz4"
)

// ParseCompression accepts "zstd", "lz4", or "" (zstd).
func ParseCompression(name string) (Compression, error) {
	switch Compression(strings.ToLower(name)) {
	case "", Zstd:
		return Zstd, nil
	case LZ4:
		return LZ4, nil
	}
	return "", fmt.Errorf("unknown trace compression %q (want zstd or lz4)", name)
}
