// Copyright 2026 The Kelivo Authors
// SPDX-License-Identifier: Apache-2.0

package bridge

import (
	"bufio"
	"context"
	"encoding/json"
	"io"
	"testing"
	"time"

	"github.com/kelivo/agent-bridge/lib/clock"
	"github.com/kelivo/agent-bridge/lib/engine"
	"github.com/kelivo/agent-bridge/lib/jsonrpc"
	"github.com/kelivo/agent-bridge/lib/permission"
	"github.com/kelivo/agent-bridge/lib/testutil"
)

const waitTimeout = 5 * time.Second

var epoch = time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

// scriptedEngine runs a test-supplied function as the engine and
// records every query it receives.
type scriptedEngine struct {
	script  func(ctx context.Context, query engine.Query, handle func(engine.Message)) error
	queries chan engine.Query
}

func newScriptedEngine(script func(ctx context.Context, query engine.Query, handle func(engine.Message)) error) *scriptedEngine {
	return &scriptedEngine{script: script, queries: make(chan engine.Query, 8)}
}

func (e *scriptedEngine) Query(ctx context.Context, query engine.Query, handle func(engine.Message)) error {
	e.queries <- query
	return e.script(ctx, query, handle)
}

// emitLines decodes each line as an engine message and hands it on.
func emitLines(t *testing.T, handle func(engine.Message), lines ...string) {
	t.Helper()
	for _, line := range lines {
		message, err := engine.DecodeMessage([]byte(line))
		if err != nil {
			t.Errorf("bad engine line %s: %v", line, err)
			return
		}
		handle(message)
	}
}

// holdsSlot reports whether an invocation holds the controller's slot.
func holdsSlot(c *Controller) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.active != nil
}

// wireMessage is one line the bridge wrote to stdout.
type wireMessage struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      json.RawMessage `json:"id"`
	Method  string          `json:"method"`
	Params  json.RawMessage `json:"params"`
	Result  json.RawMessage `json:"result"`
	Error   *jsonrpc.Error  `json:"error"`
}

// streamType returns the event type of a stream notification, or "".
func (m wireMessage) streamType() string {
	if m.Method != "stream" {
		return ""
	}
	var event struct {
		Type string `json:"type"`
	}
	json.Unmarshal(m.Params, &event)
	return event.Type
}

// idString returns the id as a string.
func (m wireMessage) idString() string {
	var text string
	if json.Unmarshal(m.ID, &text) == nil {
		return text
	}
	return string(m.ID)
}

// harness runs a Server over in-memory pipes.
type harness struct {
	t          *testing.T
	stdin      *io.PipeWriter
	output     chan wireMessage
	served     chan error
	cancel     context.CancelFunc
	clock      *clock.FakeClock
	mediator   *permission.Mediator
	controller *Controller
}

type harnessOptions struct {
	workingDirectory string
}

func newHarness(t *testing.T, fakeEngine engine.Engine, options ...harnessOptions) *harness {
	t.Helper()
	var configured harnessOptions
	if len(options) > 0 {
		configured = options[0]
	}
	if configured.workingDirectory == "" {
		configured.workingDirectory = "/srv/default"
	}

	stdinReader, stdinWriter := io.Pipe()
	stdoutReader, stdoutWriter := io.Pipe()

	fake := clock.Fake(epoch)
	writer := jsonrpc.NewWriter(stdoutWriter)
	mediator := permission.New(writer, permission.Options{Clock: fake})
	controller, err := NewController(ControllerOptions{
		Engine:           fakeEngine,
		Approver:         mediator,
		Notifier:         writer,
		Clock:            fake,
		WorkingDirectory: configured.workingDirectory,
	})
	if err != nil {
		t.Fatalf("NewController: %v", err)
	}
	server := NewServer(ServerOptions{
		Reader:     jsonrpc.NewReader(stdinReader, 0),
		Writer:     writer,
		Responses:  mediator,
		Controller: controller,
	})

	h := &harness{
		t:          t,
		stdin:      stdinWriter,
		output:     make(chan wireMessage, 256),
		served:     make(chan error, 1),
		clock:      fake,
		mediator:   mediator,
		controller: controller,
	}

	go func() {
		scanner := bufio.NewScanner(stdoutReader)
		scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
		for scanner.Scan() {
			var message wireMessage
			if err := json.Unmarshal(scanner.Bytes(), &message); err != nil {
				t.Errorf("bridge wrote invalid JSON %q: %v", scanner.Text(), err)
				continue
			}
			h.output <- message
		}
	}()

	ctx, cancel := context.WithCancel(context.Background())
	h.cancel = cancel
	go func() { h.served <- server.Serve(ctx) }()

	t.Cleanup(func() {
		controller.Abort()
		waitContext, waitCancel := context.WithTimeout(context.Background(), waitTimeout)
		defer waitCancel()
		controller.Wait(waitContext)
		cancel()
		stdinWriter.Close()
		stdoutWriter.Close()
	})
	return h
}

func (h *harness) send(line string) {
	h.t.Helper()
	if _, err := io.WriteString(h.stdin, line+"\n"); err != nil {
		h.t.Fatalf("writing to bridge stdin: %v", err)
	}
}

func (h *harness) next(description string) wireMessage {
	h.t.Helper()
	return testutil.RequireReceive(h.t, h.output, waitTimeout, description)
}

// nextStream reads the next message and requires it to be a stream
// notification of the given type.
func (h *harness) nextStream(eventType string) wireMessage {
	h.t.Helper()
	message := h.next("waiting for " + eventType + " notification")
	if got := message.streamType(); got != eventType {
		h.t.Fatalf("got %s %s (stream type %q), want stream %q", message.Method, message.Params, got, eventType)
	}
	return message
}

// nextReply reads the next message and requires it to be a response
// to id.
func (h *harness) nextReply(id string) wireMessage {
	h.t.Helper()
	message := h.next("waiting for reply to " + id)
	if message.Method != "" || string(message.ID) != id {
		h.t.Fatalf("got method=%q id=%s params=%s, want reply to %s", message.Method, message.ID, message.Params, id)
	}
	return message
}

// expectQuiet asserts nothing else is written for a short while.
func (h *harness) expectQuiet() {
	h.t.Helper()
	select {
	case message := <-h.output:
		h.t.Fatalf("unexpected output: method=%q id=%s params=%s result=%s", message.Method, message.ID, message.Params, message.Result)
	case <-time.After(50 * time.Millisecond): //nolint:realclock absence check
	}
}
