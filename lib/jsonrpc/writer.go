// Copyright 2026 The Kelivo Authors
// SPDX-License-Identifier: Apache-2.0

package jsonrpc

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"sync"
)

// outbound is the wire shape of everything the Writer sends.
type outbound struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      json.RawMessage `json:"id,omitempty"`
	Method  string          `json:"method,omitempty"`
	Params  any             `json:"params,omitempty"`
	Result  any             `json:"result,omitempty"`
	Error   *Error          `json:"error,omitempty"`
}

// Writer sends JSON-RPC messages, one per line. It is safe for
// concurrent use: each message reaches the underlying writer in a
// single Write call made under a lock.
type Writer struct {
	mu      sync.Mutex
	writer  io.Writer
	observe func(frame []byte)
}

// NewWriter returns a Writer that sends to w.
func NewWriter(w io.Writer) *Writer {
	return &Writer{writer: w}
}

// Observe registers fn to see every frame after it is written,
// without its trailing newline. It must be called before the first
// send.
func (w *Writer) Observe(fn func(frame []byte)) {
	w.observe = fn
}

// Notify sends a notification.
func (w *Writer) Notify(method string, params any) error {
	return w.send(outbound{JSONRPC: Version, Method: method, Params: params})
}

// Call sends a request with a caller-chosen string id. The response
// arrives on the inbound stream like any other record.
func (w *Writer) Call(id string, method string, params any) error {
	encodedID, err := json.Marshal(id)
	if err != nil {
		return fmt.Errorf("encoding request id: %w", err)
	}
	return w.send(outbound{JSONRPC: Version, ID: encodedID, Method: method, Params: params})
}

// Respond sends a successful response. The id is echoed verbatim.
func (w *Writer) Respond(id json.RawMessage, result any) error {
	if result == nil {
		result = json.RawMessage("null")
	}
	return w.send(outbound{JSONRPC: Version, ID: id, Result: result})
}

// RespondError sends an error response.
func (w *Writer) RespondError(id json.RawMessage, code int, message string) error {
	if len(id) == 0 {
		id = json.RawMessage("null")
	}
	return w.send(outbound{JSONRPC: Version, ID: id, Error: &Error{Code: code, Message: message}})
}

func (w *Writer) send(message outbound) error {
	var buffer bytes.Buffer
	encoder := json.NewEncoder(&buffer)
	encoder.SetEscapeHTML(false)
	if err := encoder.Encode(message); err != nil {
		return fmt.Errorf("encoding JSON-RPC message: %w", err)
	}
	frame := buffer.Bytes()

	w.mu.Lock()
	defer w.mu.Unlock()
	if _, err := w.writer.Write(frame); err != nil {
		return fmt.Errorf("writing JSON-RPC message: %w", err)
	}
	if w.observe != nil {
		w.observe(frame[:len(frame)-1])
	}
	return nil
}
