// Copyright 2026 The Kelivo Authors
// SPDX-License-Identifier: Apache-2.0

package permission

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/kelivo/agent-bridge/lib/clock"
	"github.com/kelivo/agent-bridge/lib/jsonrpc"
	"github.com/kelivo/agent-bridge/lib/jsontext"
)

// Method is the JSON-RPC method the bridge calls on the host.
const Method = "requestPermission"

const (
	DefaultTimeout       = 300 * time.Second
	DefaultPreviewLength = 500
)

var (
	// ErrTimedOut is returned when the host does not answer before the
	// request expires.
	ErrTimedOut = errors.New("permission request timed out")

	// ErrRejected wraps a JSON-RPC error the host returned instead of
	// a decision.
	ErrRejected = errors.New("permission request rejected by host")
)

// Transport sends a request to the host. *jsonrpc.Writer satisfies it.
type Transport interface {
	Call(id string, method string, params any) error
}

// Options configures a Mediator. Zero values select defaults.
type Options struct {
	Clock         clock.Clock
	Timeout       time.Duration
	PreviewLength int
	Logger        *slog.Logger

	// NewID generates correlation ids. Defaults to "perm-" + UUID.
	NewID func() string
}

// Request describes one tool call awaiting approval.
type Request struct {
	ToolName  string
	Input     json.RawMessage
	ToolUseID string
}

// Params is the requestPermission payload sent to the host.
type Params struct {
	ToolName     string          `json:"toolName"`
	Input        json.RawMessage `json:"input"`
	InputPreview string          `json:"inputPreview"`
	ExpiresAt    int64           `json:"expiresAt"`
	ToolUseID    string          `json:"toolUseID,omitempty"`
}

// Mediator tracks outstanding approval requests. It is safe for
// concurrent use.
type Mediator struct {
	transport     Transport
	clock         clock.Clock
	timeout       time.Duration
	previewLength int
	logger        *slog.Logger
	newID         func() string

	mu      sync.Mutex
	pending map[string]*pending
}

type pending struct {
	created time.Time
	expires time.Time
	timer   *clock.Timer

	// answer is buffered and receives exactly one value, from
	// whichever path removes the entry from the table.
	answer chan outcome
}

type outcome struct {
	result json.RawMessage
	err    error
}

// New returns a Mediator that sends requests over transport.
func New(transport Transport, options Options) *Mediator {
	if options.Clock == nil {
		options.Clock = clock.Real()
	}
	if options.Timeout <= 0 {
		options.Timeout = DefaultTimeout
	}
	if options.PreviewLength <= 0 {
		options.PreviewLength = DefaultPreviewLength
	}
	if options.Logger == nil {
		options.Logger = slog.New(slog.DiscardHandler)
	}
	if options.NewID == nil {
		options.NewID = func() string { return "perm-" + uuid.NewString() }
	}
	return &Mediator{
		transport:     transport,
		clock:         options.Clock,
		timeout:       options.Timeout,
		previewLength: options.PreviewLength,
		logger:        options.Logger,
		newID:         options.NewID,
		pending:       make(map[string]*pending),
	}
}

// RequestApproval asks the host about a tool call and blocks until it
// answers, the request expires (ErrTimedOut), the host returns an
// error (ErrRejected), or ctx ends (ctx.Err()). Callers treat every
// error as a denial.
func (m *Mediator) RequestApproval(ctx context.Context, request Request) (Decision, error) {
	id := m.newID()
	now := m.clock.Now()
	entry := &pending{
		created: now,
		expires: now.Add(m.timeout),
		answer:  make(chan outcome, 1),
	}

	// The entry is in the table before the request goes out, so an
	// answer that arrives immediately still finds it.
	m.mu.Lock()
	m.pending[id] = entry
	entry.timer = m.clock.AfterFunc(m.timeout, func() {
		if m.finish(id, outcome{err: ErrTimedOut}) {
			m.logger.Warn("permission request timed out",
				"request_id", id,
				"tool_name", request.ToolName,
				"timeout", m.timeout,
			)
		}
	})
	m.mu.Unlock()

	params := Params{
		ToolName:     request.ToolName,
		Input:        request.Input,
		InputPreview: jsontext.Preview(request.Input, m.previewLength),
		ExpiresAt:    entry.expires.UnixMilli(),
		ToolUseID:    request.ToolUseID,
	}
	if len(params.Input) == 0 {
		params.Input = json.RawMessage("{}")
	}
	m.logger.Debug("requesting permission",
		"request_id", id,
		"tool_name", request.ToolName,
		"tool_use_id", request.ToolUseID,
	)
	if err := m.transport.Call(id, Method, params); err != nil {
		m.finish(id, outcome{err: err})
		<-entry.answer
		return Decision{}, fmt.Errorf("sending permission request: %w", err)
	}

	var result outcome
	select {
	case result = <-entry.answer:
	case <-ctx.Done():
		// Either this removes the entry or an answer beat it; in both
		// cases exactly one outcome is now buffered.
		m.finish(id, outcome{err: ctx.Err()})
		result = <-entry.answer
	}
	if result.err != nil {
		return Decision{}, result.err
	}
	decision := ParseDecision(result.result)
	m.logger.Debug("permission answered",
		"request_id", id,
		"tool_name", request.ToolName,
		"behavior", decision.Behavior,
		"waited", m.clock.Now().Sub(entry.created),
	)
	return decision, nil
}

// Resolve delivers the host's answer for id. It reports whether a
// request was waiting; false covers late and duplicate answers.
func (m *Mediator) Resolve(id string, result json.RawMessage) bool {
	return m.finish(id, outcome{result: result})
}

// Reject delivers a JSON-RPC error the host returned for id.
func (m *Mediator) Reject(id string, rpcError *jsonrpc.Error) bool {
	return m.finish(id, outcome{err: fmt.Errorf("%w: %s", ErrRejected, rpcError.Message)})
}

// Pending returns the number of outstanding requests.
func (m *Mediator) Pending() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.pending)
}

// finish removes id and delivers result to its waiter. Only the first
// call for a given id does anything.
func (m *Mediator) finish(id string, result outcome) bool {
	m.mu.Lock()
	entry, ok := m.pending[id]
	if ok {
		delete(m.pending, id)
	}
	m.mu.Unlock()
	if !ok {
		return false
	}
	entry.timer.Stop()
	entry.answer <- result
	return true
}
