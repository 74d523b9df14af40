// Copyright 2026 The Kelivo Authors
// SPDX-License-Identifier: Apache-2.0

package wiretrace

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"sync"

	"github.com/fxamacker/cbor/v2"
	"github.com/klauspost/compress/zstd"
	"github.com/pierrec/lz4/v4"

	"github.com/kelivo/agent-bridge/lib/clock"
)

// Options configures a Recorder.
type Options struct {
	Compression Compression
	Clock       clock.Clock
	Logger      *slog.Logger
}

// compressor is the part of zstd.Encoder and lz4.Writer a Recorder
// needs.
type compressor interface {
	io.Writer
	Flush() error
	Close() error
}

// Recorder appends frames to a trace. It is safe for concurrent use.
type Recorder struct {
	clock  clock.Clock
	logger *slog.Logger

	mu         sync.Mutex
	file       io.Closer
	compressor compressor
	encoder    *cbor.Encoder
	failed     bool
	closed     bool
	records    int
}

// Create truncates or creates the trace file at path and returns a
// Recorder writing to it.
func Create(path string, options Options) (*Recorder, error) {
	file, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o600)
	if err != nil {
		return nil, fmt.Errorf("creating trace file: %w", err)
	}
	recorder, err := New(file, options)
	if err != nil {
		file.Close()
		return nil, err
	}
	return recorder, nil
}

// New returns a Recorder writing to w. Close closes w when it is an
// io.Closer.
func New(w io.Writer, options Options) (*Recorder, error) {
	if options.Clock == nil {
		options.Clock = clock.Real()
	}
	if options.Logger == nil {
		options.Logger = slog.New(slog.DiscardHandler)
	}

	var stream compressor
	switch options.Compression {
	case "", Zstd:
		encoder, err := zstd.NewWriter(w, zstd.WithEncoderLevel(zstd.SpeedDefault))
		if err != nil {
			return nil, fmt.Errorf("creating zstd stream: %w", err)
		}
		stream = encoder
	case LZ4:
		stream = lz4.NewWriter(w)
	default:
		return nil, fmt.Errorf("unknown trace compression %q", options.Compression)
	}

	recorder := &Recorder{
		clock:      options.Clock,
		logger:     options.Logger,
		compressor: stream,
		encoder:    newEncoder(stream),
	}
	if closer, ok := w.(io.Closer); ok {
		recorder.file = closer
	}
	return recorder, nil
}

// Inbound records a frame read from the host, with credentials
// redacted.
func (r *Recorder) Inbound(frame []byte) { r.record(Inbound, Redact(frame)) }

// Outbound records a frame written to the host.
func (r *Recorder) Outbound(frame []byte) { r.record(Outbound, frame) }

func (r *Recorder) record(direction Direction, frame []byte) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.failed || r.closed {
		return
	}
	record := Record{T: r.clock.Now().UnixNano(), Dir: direction, Frame: frame}
	err := r.encoder.Encode(record)
	if err == nil {
		// Flushed per record so a crash loses at most the frame in
		// flight.
		err = r.compressor.Flush()
	}
	if err != nil {
		r.failed = true
		r.logger.Warn("wire trace disabled after write failure", "error", err, "records", r.records)
		return
	}
	r.records++
}

// Records returns how many frames have been written.
func (r *Recorder) Records() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.records
}

// Close finishes the compressed stream and closes the underlying
// file. Later frames are dropped.
func (r *Recorder) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return nil
	}
	r.closed = true
	err := r.compressor.Close()
	if r.file != nil {
		err = errors.Join(err, r.file.Close())
	}
	if err != nil {
		return fmt.Errorf("closing trace: %w", err)
	}
	return nil
}
