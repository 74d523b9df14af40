// Copyright 2026 The Kelivo Authors
// SPDX-License-Identifier: Apache-2.0

package permission

import (
	"encoding/json"
	"fmt"

	"github.com/kelivo/agent-bridge/lib/jsontext"
)

// Behavior is the host's verdict on a tool call.
type Behavior string

const (
	Allow Behavior = "allow"
	Deny  Behavior = "deny"
)

// Decision is the host's answer to a requestPermission request.
type Decision struct {
	Behavior Behavior `json:"behavior"`

	// Message explains a denial to the engine.
	Message string `json:"message,omitempty"`

	// Interrupt asks the engine to stop the whole turn rather than
	// just skipping the tool call.
	Interrupt bool `json:"interrupt,omitempty"`

	// UpdatedInput replaces the tool input on approval. Absent means
	// the original input is used unchanged.
	UpdatedInput json.RawMessage `json:"updatedInput,omitempty"`
}

// Denied builds a denial.
func Denied(message string, interrupt bool) Decision {
	return Decision{Behavior: Deny, Message: message, Interrupt: interrupt}
}

// Allowed reports whether the decision permits the tool call.
func (d Decision) Allowed() bool {
	return d.Behavior == Allow
}

// ParseDecision interprets a host answer. Anything that is not an
// object with behavior "allow" or "deny" is a denial, so a confused
// host can never approve by accident.
func ParseDecision(raw json.RawMessage) Decision {
	var decision Decision
	if err := json.Unmarshal(raw, &decision); err != nil {
		return Denied(fmt.Sprintf("invalid permission answer: %s", jsontext.Preview(raw, 100)), false)
	}
	switch decision.Behavior {
	case Allow:
		return decision
	case Deny:
		if decision.Message == "" {
			decision.Message = "Permission denied by user"
		}
		decision.UpdatedInput = nil
		return decision
	default:
		return Denied(fmt.Sprintf("invalid permission behavior %q", decision.Behavior), false)
	}
}
