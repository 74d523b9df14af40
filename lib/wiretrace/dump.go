// Copyright 2026 The Kelivo Authors
// SPDX-License-Identifier: Apache-2.0

package wiretrace

import (
	"bufio"
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"github.com/klauspost/compress/zstd"
	"github.com/pierrec/lz4/v4"
)

var (
	zstdMagic = []byte{0x28, 0xb5, 0x2f, 0xfd}
	lz4Magic  = []byte{0x04, 0x22, 0x4d, 0x18}
)

// dumpLine is the JSON form of a Record. Frames that are valid JSON
// are embedded as-is; anything else is a string.
type dumpLine struct {
	T     int64     `json:"t"`
	Dir   Direction `json:"dir"`
	Frame any       `json:"frame"`
}

// Read decodes every record in a trace stream and calls fn for each.
// A trace cut short by a crash ends cleanly at the last whole record.
func Read(r io.Reader, fn func(Record) error) error {
	buffered := bufio.NewReader(r)
	magic, err := buffered.Peek(4)
	if err != nil {
		if errors.Is(err, io.EOF) && len(magic) == 0 {
			return nil
		}
		return fmt.Errorf("reading trace header: %w", err)
	}

	var stream io.Reader
	switch {
	case bytes.Equal(magic, zstdMagic):
		decoder, err := zstd.NewReader(buffered)
		if err != nil {
			return fmt.Errorf("opening zstd stream: %w", err)
		}
		defer decoder.Close()
		stream = decoder
	case bytes.Equal(magic, lz4Magic):
		stream = lz4.NewReader(buffered)
	default:
		return fmt.Errorf("not a wire trace (magic %x)", magic)
	}

	decoder := newDecoder(stream)
	for {
		var record Record
		err := decoder.Decode(&record)
		if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("decoding trace record: %w", err)
		}
		if err := fn(record); err != nil {
			return err
		}
	}
}

// Dump writes each record of the trace in r to w as one JSON line.
func Dump(r io.Reader, w io.Writer) error {
	encoder := json.NewEncoder(w)
	encoder.SetEscapeHTML(false)
	return Read(r, func(record Record) error {
		line := dumpLine{T: record.T, Dir: record.Dir, Frame: string(record.Frame)}
		if json.Valid(record.Frame) {
			line.Frame = json.RawMessage(record.Frame)
		}
		if err := encoder.Encode(line); err != nil {
			return fmt.Errorf("writing dump: %w", err)
		}
		return nil
	})
}
