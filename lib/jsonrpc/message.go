// Copyright 2026 The Kelivo Authors
// SPDX-License-Identifier: Apache-2.0

package jsonrpc

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// Version is the only protocol version the bridge speaks.
const Version = "2.0"

// JSON-RPC 2.0 standard error codes.
const (
	CodeParseError     = -32700
	CodeInvalidRequest = -32600
	CodeMethodNotFound = -32601
	CodeInvalidParams  = -32602
	CodeInternalError  = -32603
)

// Application error codes, in the implementation-defined server range.
const (
	// CodeInvokeFailed reports an engine invocation that ended in
	// failure (not cancellation).
	CodeInvokeFailed = -32000

	// CodeInvocationActive rejects an invoke that arrives while
	// another invocation is still running.
	CodeInvocationActive = -32001
)

// Message is any inbound JSON-RPC 2.0 message. Which fields are
// present decides its role; see IsRequest, IsNotification, and
// IsResponse.
//
// Result keeps a JSON null as the four bytes "null" so that a
// response carrying a null result is still recognized as a response.
type Message struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      json.RawMessage `json:"id,omitempty"`
	Method  string          `json:"method,omitempty"`
	Params  json.RawMessage `json:"params,omitempty"`
	Result  json.RawMessage `json:"result,omitempty"`
	Error   *Error          `json:"error,omitempty"`
}

// Error is a JSON-RPC 2.0 error object.
type Error struct {
	Code    int             `json:"code"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data,omitempty"`
}

func (e *Error) Error() string {
	return fmt.Sprintf("jsonrpc error %d: %s", e.Code, e.Message)
}

// Decode parses one record. Records that are not a JSON object fail.
func Decode(record []byte) (Message, error) {
	var message Message
	if err := json.Unmarshal(record, &message); err != nil {
		return Message{}, fmt.Errorf("decoding JSON-RPC record: %w", err)
	}
	return message, nil
}

// HasID reports whether the message carries a usable correlation id.
// A JSON null id counts as absent.
func (m *Message) HasID() bool {
	return len(m.ID) > 0 && !bytes.Equal(m.ID, []byte("null"))
}

// IDString returns the id as a string: the decoded value for string
// ids, the literal JSON text for numeric ones, and "" when absent.
func (m *Message) IDString() string {
	if !m.HasID() {
		return ""
	}
	var text string
	if json.Unmarshal(m.ID, &text) == nil {
		return text
	}
	return string(m.ID)
}

// IsResponse reports whether the message answers an earlier request:
// an id, a result or error, and no method.
func (m *Message) IsResponse() bool {
	return m.HasID() && m.Method == "" && (len(m.Result) > 0 || m.Error != nil)
}

// IsRequest reports whether the message is a method call that
// expects a reply.
func (m *Message) IsRequest() bool {
	return m.Method != "" && m.HasID()
}

// IsNotification reports whether the message is a one-way method
// call.
func (m *Message) IsNotification() bool {
	return m.Method != "" && !m.HasID()
}
