// Copyright 2026 The Kelivo Authors
// SPDX-License-Identifier: Apache-2.0

package engine

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Message types the engine emits.
const (
	TypeSystem       = "system"
	TypeAssistant    = "assistant"
	TypeUser         = "user"
	TypeStreamEvent  = "stream_event"
	TypeResult       = "result"
	TypeToolProgress = "tool_progress"
)

// Message is one engine output record. Only the fields for its Type
// are populated; unknown types decode without error so callers can
// skip them.
type Message struct {
	Type      string `json:"type"`
	Subtype   string `json:"subtype,omitempty"`
	UUID      string `json:"uuid,omitempty"`
	SessionID string `json:"session_id,omitempty"`

	// assistant and user
	Message         *APIMessage     `json:"message,omitempty"`
	ParentToolUseID string          `json:"parent_tool_use_id,omitempty"`
	ToolUseResult   json.RawMessage `json:"tool_use_result,omitempty"`

	// stream_event
	Event *StreamEvent `json:"event,omitempty"`

	// result
	Result       string          `json:"result,omitempty"`
	IsError      bool            `json:"is_error,omitempty"`
	Usage        json.RawMessage `json:"usage,omitempty"`
	TotalCostUSD *float64        `json:"total_cost_usd,omitempty"`
	Errors       []string        `json:"errors,omitempty"`
	NumTurns     int             `json:"num_turns,omitempty"`
	DurationMS   int64           `json:"duration_ms,omitempty"`

	// tool_progress
	ToolUseID          string  `json:"tool_use_id,omitempty"`
	ToolName           string  `json:"tool_name,omitempty"`
	ElapsedTimeSeconds float64 `json:"elapsed_time_seconds,omitempty"`
}

// APIMessage is the model-level message inside assistant and user
// records.
type APIMessage struct {
	ID      string         `json:"id,omitempty"`
	Role    string         `json:"role"`
	Model   string         `json:"model,omitempty"`
	Content []ContentBlock `json:"content"`
}

// UnmarshalJSON accepts content either as a block array or as a bare
// string, which the CLI uses for plain user turns.
func (m *APIMessage) UnmarshalJSON(data []byte) error {
	var wire struct {
		ID      string          `json:"id"`
		Role    string          `json:"role"`
		Model   string          `json:"model"`
		Content json.RawMessage `json:"content"`
	}
	if err := json.Unmarshal(data, &wire); err != nil {
		return err
	}
	m.ID, m.Role, m.Model, m.Content = wire.ID, wire.Role, wire.Model, nil

	content := strings.TrimSpace(string(wire.Content))
	switch {
	case content == "" || content == "null":
	case content[0] == '"':
		var text string
		if err := json.Unmarshal(wire.Content, &text); err != nil {
			return fmt.Errorf("decoding message content: %w", err)
		}
		m.Content = []ContentBlock{{Type: BlockText, Text: text}}
	default:
		if err := json.Unmarshal(wire.Content, &m.Content); err != nil {
			return fmt.Errorf("decoding message content: %w", err)
		}
	}
	return nil
}

// Content block types.
const (
	BlockText       = "text"
	BlockToolUse    = "tool_use"
	BlockToolResult = "tool_result"
)

// ContentBlock is one element of an APIMessage's content.
type ContentBlock struct {
	Type string `json:"type"`

	// text
	Text string `json:"text,omitempty"`

	// tool_use
	ID    string          `json:"id,omitempty"`
	Name  string          `json:"name,omitempty"`
	Input json.RawMessage `json:"input,omitempty"`

	// tool_result
	ToolUseID string          `json:"tool_use_id,omitempty"`
	Content   json.RawMessage `json:"content,omitempty"`
	IsError   bool            `json:"is_error,omitempty"`
}

// StreamEvent is a raw model streaming event, forwarded when partial
// messages are enabled.
type StreamEvent struct {
	Type  string       `json:"type"`
	Index int          `json:"index,omitempty"`
	Delta *StreamDelta `json:"delta,omitempty"`
}

// Delta kinds carried by content_block_delta events.
const (
	EventContentBlockDelta = "content_block_delta"
	DeltaText              = "text_delta"
	DeltaThinking          = "thinking_delta"
)

// StreamDelta is the incremental payload of a content_block_delta.
type StreamDelta struct {
	Type     string `json:"type"`
	Text     string `json:"text,omitempty"`
	Thinking string `json:"thinking,omitempty"`
}

// DecodeMessage parses one engine output line.
func DecodeMessage(line []byte) (Message, error) {
	var message Message
	if err := json.Unmarshal(line, &message); err != nil {
		return Message{}, fmt.Errorf("decoding engine message: %w", err)
	}
	return message, nil
}

// Succeeded reports whether a result message ended the run
// successfully.
func (m *Message) Succeeded() bool {
	return m.Type == TypeResult && m.Subtype == "success" && !m.IsError
}

// FailureMessage describes an unsuccessful result: the reported
// errors joined, the result text for an error flagged as success, or a
// generic message naming the subtype.
func (m *Message) FailureMessage() string {
	if len(m.Errors) > 0 {
		return strings.Join(m.Errors, ", ")
	}
	if m.IsError && m.Result != "" {
		return m.Result
	}
	subtype := m.Subtype
	if subtype == "" {
		subtype = "unknown"
	}
	return "Execution failed: " + subtype
}
