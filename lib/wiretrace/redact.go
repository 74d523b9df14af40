// Copyright 2026 The Kelivo Authors
// SPDX-License-Identifier: Apache-2.0

package wiretrace

import (
	"bytes"
	"encoding/json"
	"net/url"
)

// Redacted replaces credential values in recorded frames.
const Redacted = "[REDACTED]"

var (
	apiKeyField  = []byte(`"apiKey"`)
	apiHostField = []byte(`"apiHost"`)
)

// Redact returns frame with params.apiKey replaced by Redacted and any
// userinfo in params.apiHost replaced likewise. Frames without those
// fields, or that are not JSON objects, come back unchanged.
func Redact(frame []byte) []byte {
	if !bytes.Contains(frame, apiKeyField) && !bytes.Contains(frame, apiHostField) {
		return frame
	}
	var message map[string]json.RawMessage
	if err := json.Unmarshal(frame, &message); err != nil {
		return frame
	}
	var params map[string]json.RawMessage
	if err := json.Unmarshal(message["params"], &params); err != nil || params == nil {
		return frame
	}

	changed := false
	if key, ok := params["apiKey"]; ok && string(key) != "null" && string(key) != `""` {
		params["apiKey"] = quote(Redacted)
		changed = true
	}
	if raw, ok := params["apiHost"]; ok {
		var host string
		if json.Unmarshal(raw, &host) == nil {
			if parsed, err := url.Parse(host); err == nil && parsed.User != nil {
				parsed.User = url.User("REDACTED")
				params["apiHost"] = quote(parsed.String())
				changed = true
			}
		}
	}
	if !changed {
		return frame
	}

	encoded, err := marshal(params)
	if err != nil {
		return frame
	}
	message["params"] = encoded
	redacted, err := marshal(message)
	if err != nil {
		return frame
	}
	return redacted
}

func quote(text string) json.RawMessage {
	encoded, _ := marshal(text)
	return encoded
}

// marshal encodes v without HTML escaping or a trailing newline.
func marshal(v any) (json.RawMessage, error) {
	var buffer bytes.Buffer
	encoder := json.NewEncoder(&buffer)
	encoder.SetEscapeHTML(false)
	if err := encoder.Encode(v); err != nil {
		return nil, err
	}
	return bytes.TrimSuffix(buffer.Bytes(), []byte("\n")), nil
}
