// Copyright 2026 The Kelivo Authors
// SPDX-License-Identifier: Apache-2.0

package jsonrpc

import (
	"bufio"
	"bytes"
	"errors"
	"io"
)

// DefaultMaxRecordBytes bounds a single inbound record when the caller
// does not choose a limit. Prompts can embed whole files, so the bound
// is generous.
const DefaultMaxRecordBytes = 16 << 20

// ErrRecordTooLong is returned by Reader.Next for a record that
// exceeded the size limit. The record has been consumed through its
// newline; the stream is still usable.
var ErrRecordTooLong = errors.New("jsonrpc: record exceeds maximum size")

// Reader splits a byte stream into newline-delimited records.
type Reader struct {
	reader         *bufio.Reader
	maxRecordBytes int
	observe        func(record []byte)
}

// NewReader returns a Reader over r. A maxRecordBytes <= 0 selects
// DefaultMaxRecordBytes.
func NewReader(r io.Reader, maxRecordBytes int) *Reader {
	if maxRecordBytes <= 0 {
		maxRecordBytes = DefaultMaxRecordBytes
	}
	return &Reader{
		reader:         bufio.NewReaderSize(r, 64*1024),
		maxRecordBytes: maxRecordBytes,
	}
}

// Observe registers fn to see every record Next returns. It must be
// called before the first Next.
func (r *Reader) Observe(fn func(record []byte)) {
	r.observe = fn
}

// Next returns the next non-blank record with surrounding whitespace
// removed. It returns io.EOF once the stream is exhausted; a final
// record without a trailing newline is still returned first.
func (r *Reader) Next() ([]byte, error) {
	for {
		line, err := r.readLine()
		if err != nil {
			return nil, err
		}
		record := bytes.TrimSpace(line)
		if len(record) == 0 {
			continue
		}
		if r.observe != nil {
			r.observe(record)
		}
		return record, nil
	}
}

// readLine reads through the next newline. The returned slice is owned
// by the caller.
func (r *Reader) readLine() ([]byte, error) {
	var line []byte
	oversized := false
	for {
		chunk, err := r.reader.ReadSlice('\n')
		if !oversized {
			line = append(line, chunk...)
			if len(bytes.TrimRight(line, "\r\n")) > r.maxRecordBytes {
				oversized = true
				line = nil
			}
		}

		switch {
		case err == nil:
			if oversized {
				return nil, ErrRecordTooLong
			}
			return line, nil
		case errors.Is(err, bufio.ErrBufferFull):
			continue
		case errors.Is(err, io.EOF):
			if oversized {
				return nil, ErrRecordTooLong
			}
			if len(line) > 0 {
				return line, nil
			}
			return nil, io.EOF
		default:
			return nil, err
		}
	}
}
