// Copyright 2026 The Kelivo Authors
// SPDX-License-Identifier: Apache-2.0

// Package jsontext renders raw JSON values as display text for the
// host: compact serializations, previews bounded in length, and
// "stringify unless already a string" conversion.
package jsontext

import (
	"bytes"
	"encoding/json"
)

// Compact returns raw as compact JSON text. An empty value renders as
// "null"; invalid JSON is returned unchanged.
func Compact(raw json.RawMessage) string {
	if len(raw) == 0 {
		return "null"
	}
	var buffer bytes.Buffer
	if err := json.Compact(&buffer, raw); err != nil {
		return string(raw)
	}
	return buffer.String()
}

// Preview returns the compact serialization of raw cut to at most
// limit characters. The cut never splits a UTF-8 sequence.
func Preview(raw json.RawMessage, limit int) string {
	return Truncate(Compact(raw), limit)
}

// Truncate cuts text to at most limit runes.
func Truncate(text string, limit int) string {
	if limit <= 0 {
		return ""
	}
	if len(text) <= limit {
		return text
	}
	count := 0
	for index := range text {
		if count == limit {
			return text[:index]
		}
		count++
	}
	return text
}

// Stringify returns the decoded value when raw is a JSON string and
// the compact serialization otherwise.
func Stringify(raw json.RawMessage) string {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) > 0 && trimmed[0] == '"' {
		var text string
		if json.Unmarshal(trimmed, &text) == nil {
			return text
		}
	}
	return Compact(raw)
}
