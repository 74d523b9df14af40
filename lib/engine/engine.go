// Copyright 2026 The Kelivo Authors
// SPDX-License-Identifier: Apache-2.0

package engine

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/kelivo/agent-bridge/lib/permission"
)

// ErrAborted is returned by Query when ctx was cancelled before the
// engine produced a result.
var ErrAborted = errors.New("engine: invocation aborted")

// Engine runs one agent invocation to completion.
type Engine interface {
	// Query runs query and calls handle for every engine message, in
	// order, from a single goroutine. It returns nil once a successful
	// result has been delivered, ErrAborted after cancellation, a
	// *ResultError when the engine reported a failed result, or
	// another error when the engine could not run.
	Query(ctx context.Context, query Query, handle func(Message)) error
}

// Query is everything one invocation needs.
type Query struct {
	Prompt           string
	WorkingDirectory string
	Model            string
	SystemPrompt     string
	PermissionMode   string
	Resume           string
	AllowedTools     []string
	MaxTurns         int
	Credentials      Credentials

	// CanUseTool decides every tool call the engine attempts. A nil
	// CanUseTool denies everything.
	CanUseTool PermissionFunc
}

// Credentials are scoped to a single Query.
type Credentials struct {
	APIKey  string
	BaseURL string
}

// ToolUse is a tool call awaiting a decision.
type ToolUse struct {
	Name      string
	Input     json.RawMessage
	ToolUseID string
}

// PermissionFunc decides a tool call. ctx is cancelled if the engine
// withdraws the request or the invocation is aborted.
type PermissionFunc func(ctx context.Context, use ToolUse) permission.Decision

// ResultError reports a result message that ended the run
// unsuccessfully. The failure has already been delivered to the
// handler as a normal message.
type ResultError struct {
	Result Message
}

func (e *ResultError) Error() string {
	return e.Result.FailureMessage()
}
