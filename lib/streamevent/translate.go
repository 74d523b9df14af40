// Copyright 2026 The Kelivo Authors
// SPDX-License-Identifier: Apache-2.0

package streamevent

import (
	"github.com/kelivo/agent-bridge/lib/engine"
	"github.com/kelivo/agent-bridge/lib/jsontext"
)

// ToolInputPreviewLength bounds ToolStart.InputPreview.
const ToolInputPreviewLength = 200

// Translate maps one engine message to the events it implies, in the
// order the host should see them.
func Translate(message engine.Message) []Event {
	switch message.Type {
	case engine.TypeAssistant:
		return translateAssistant(message)
	case engine.TypeStreamEvent:
		return translateStreamEvent(message)
	case engine.TypeUser:
		return translateUser(message)
	case engine.TypeSystem:
		if message.Subtype == "init" {
			return []Event{SessionID{SessionID: message.SessionID}}
		}
	case engine.TypeResult:
		if message.Succeeded() {
			return []Event{Result{
				Result:  message.Result,
				Usage:   message.Usage,
				CostUSD: message.TotalCostUSD,
			}}
		}
		return []Event{Error{Message: message.FailureMessage()}}
	case engine.TypeToolProgress:
		return []Event{ToolProgress{
			ID:             message.ToolUseID,
			ToolName:       message.ToolName,
			ElapsedSeconds: message.ElapsedTimeSeconds,
		}}
	}
	return nil
}

// translateAssistant emits every text block before any tool call in
// the same message.
func translateAssistant(message engine.Message) []Event {
	if message.Message == nil {
		return nil
	}
	var events, tools []Event
	for _, block := range message.Message.Content {
		switch block.Type {
		case engine.BlockText:
			events = append(events, TextDone{ID: message.UUID, Text: block.Text})
		case engine.BlockToolUse:
			input := block.Input
			if len(input) == 0 {
				input = []byte("{}")
			}
			tools = append(tools, ToolStart{
				ID:           block.ID,
				ToolName:     block.Name,
				Input:        input,
				InputPreview: jsontext.Preview(input, ToolInputPreviewLength),
			})
		}
	}
	return append(events, tools...)
}

func translateStreamEvent(message engine.Message) []Event {
	event := message.Event
	if event == nil || event.Type != engine.EventContentBlockDelta || event.Delta == nil {
		return nil
	}
	switch event.Delta.Type {
	case engine.DeltaText:
		return []Event{TextDelta{ID: message.UUID, Text: event.Delta.Text}}
	case engine.DeltaThinking:
		return []Event{Thinking{ID: message.UUID, Text: event.Delta.Thinking}}
	}
	return nil
}

func translateUser(message engine.Message) []Event {
	if len(message.ToolUseResult) == 0 {
		return nil
	}
	id := message.ParentToolUseID
	if id == "" && message.Message != nil {
		for _, block := range message.Message.Content {
			if block.Type == engine.BlockToolResult && block.ToolUseID != "" {
				id = block.ToolUseID
				break
			}
		}
	}
	return []Event{ToolDone{ID: id, Result: jsontext.Stringify(message.ToolUseResult)}}
}
