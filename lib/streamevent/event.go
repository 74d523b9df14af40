// Copyright 2026 The Kelivo Authors
// SPDX-License-Identifier: Apache-2.0

package streamevent

import (
	"encoding/json"
)

// Method is the notification method that carries events.
const Method = "stream"

// Kind is an event's wire discriminator.
type Kind string

const (
	KindTextDelta    Kind = "text-delta"
	KindTextDone     Kind = "text-done"
	KindThinking     Kind = "thinking"
	KindToolStart    Kind = "tool-start"
	KindToolProgress Kind = "tool-progress"
	KindToolDone     Kind = "tool-done"
	KindSessionID    Kind = "session-id"
	KindResult       Kind = "result"
	KindError        Kind = "error"
	KindAborted      Kind = "aborted"
	KindDone         Kind = "done"
)

// Event is one normalized event. The set of implementations is closed.
type Event interface {
	Kind() Kind
	sealed()
}

// TextDelta is a fragment of streaming assistant text.
type TextDelta struct {
	ID   string `json:"id"`
	Text string `json:"text"`
}

// TextDone is a complete assistant text block.
type TextDone struct {
	ID   string `json:"id"`
	Text string `json:"text"`
}

// Thinking is a fragment of streaming model reasoning.
type Thinking struct {
	ID   string `json:"id"`
	Text string `json:"text"`
}

// ToolStart announces a tool call.
type ToolStart struct {
	ID           string          `json:"id"`
	ToolName     string          `json:"toolName"`
	Input        json.RawMessage `json:"input"`
	InputPreview string          `json:"inputPreview"`
}

// ToolProgress reports that a tool is still running.
type ToolProgress struct {
	ID             string  `json:"id"`
	ToolName       string  `json:"toolName"`
	ElapsedSeconds float64 `json:"elapsedSeconds"`
}

// ToolDone carries a finished tool call's output as text.
type ToolDone struct {
	ID     string `json:"id"`
	Result string `json:"result"`
}

// SessionID reports the engine's session identifier, usable as a
// later invoke's resume token.
type SessionID struct {
	SessionID string `json:"sessionId"`
}

// Result is a successful run's final answer.
type Result struct {
	Result  string          `json:"result"`
	Usage   json.RawMessage `json:"usage,omitempty"`
	CostUSD *float64        `json:"costUSD,omitempty"`
}

// Error reports a failed run.
type Error struct {
	Message string `json:"message"`
}

// Aborted reports a cancelled run.
type Aborted struct{}

// Done closes a run's stream.
type Done struct{}

func (TextDelta) Kind() Kind    { return KindTextDelta }
func (TextDone) Kind() Kind     { return KindTextDone }
func (Thinking) Kind() Kind     { return KindThinking }
func (ToolStart) Kind() Kind    { return KindToolStart }
func (ToolProgress) Kind() Kind { return KindToolProgress }
func (ToolDone) Kind() Kind     { return KindToolDone }
func (SessionID) Kind() Kind    { return KindSessionID }
func (Result) Kind() Kind       { return KindResult }
func (Error) Kind() Kind        { return KindError }
func (Aborted) Kind() Kind      { return KindAborted }
func (Done) Kind() Kind         { return KindDone }

func (TextDelta) sealed()    {}
func (TextDone) sealed()     {}
func (Thinking) sealed()     {}
func (ToolStart) sealed()    {}
func (ToolProgress) sealed() {}
func (ToolDone) sealed()     {}
func (SessionID) sealed()    {}
func (Result) sealed()       {}
func (Error) sealed()        {}
func (Aborted) sealed()      {}
func (Done) sealed()         {}

// Notification wraps an event for the wire, adding its type field.
type Notification struct {
	Event Event
}

// MarshalJSON emits the event's fields with "type" first.
func (n Notification) MarshalJSON() ([]byte, error) {
	body, err := json.Marshal(n.Event)
	if err != nil {
		return nil, err
	}
	kind, err := json.Marshal(n.Event.Kind())
	if err != nil {
		return nil, err
	}
	output := make([]byte, 0, len(body)+len(kind)+8)
	output = append(output, `{"type":`...)
	output = append(output, kind...)
	if len(body) > 2 {
		output = append(output, ',')
		output = append(output, body[1:]...)
	} else {
		output = append(output, '}')
	}
	return output, nil
}
