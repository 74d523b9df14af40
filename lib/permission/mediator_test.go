// Copyright 2026 The Kelivo Authors
// SPDX-License-Identifier: Apache-2.0

package permission

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync/atomic"
	"testing"
	"time"
	"unicode/utf8"

	"github.com/kelivo/agent-bridge/lib/clock"
	"github.com/kelivo/agent-bridge/lib/jsonrpc"
	"github.com/kelivo/agent-bridge/lib/testutil"
)

var epoch = time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

type sentCall struct {
	id     string
	method string
	params Params
}

// recordingTransport captures outbound requests on a channel.
type recordingTransport struct {
	calls chan sentCall
	err   error
}

func newRecordingTransport() *recordingTransport {
	return &recordingTransport{calls: make(chan sentCall, 16)}
}

func (r *recordingTransport) Call(id string, method string, params any) error {
	r.calls <- sentCall{id: id, method: method, params: params.(Params)}
	return r.err
}

type approvalResult struct {
	decision Decision
	err      error
}

// startApproval runs RequestApproval in a goroutine and returns the
// request the host saw plus a channel for the final result.
func startApproval(t *testing.T, ctx context.Context, mediator *Mediator, transport *recordingTransport, request Request) (sentCall, <-chan approvalResult) {
	t.Helper()
	results := make(chan approvalResult, 1)
	go func() {
		decision, err := mediator.RequestApproval(ctx, request)
		results <- approvalResult{decision, err}
	}()
	call := testutil.RequireReceive(t, transport.calls, 5*time.Second, "waiting for requestPermission")
	return call, results
}

func sequentialIDs() func() string {
	var counter atomic.Int64
	return func() string { return fmt.Sprintf("perm-%d", counter.Add(1)) }
}

func TestRequestApprovalAllow(t *testing.T) {
	t.Parallel()

	fake := clock.Fake(epoch)
	transport := newRecordingTransport()
	mediator := New(transport, Options{Clock: fake, NewID: sequentialIDs()})

	call, results := startApproval(t, context.Background(), mediator, transport, Request{
		ToolName:  "Bash",
		Input:     json.RawMessage(`{"command": "ls"}`),
		ToolUseID: "toolu_1",
	})

	if call.method != Method {
		t.Errorf("method = %q, want %q", call.method, Method)
	}
	if call.id != "perm-1" {
		t.Errorf("id = %q, want perm-1", call.id)
	}
	if call.params.ToolName != "Bash" || call.params.ToolUseID != "toolu_1" {
		t.Errorf("params = %+v", call.params)
	}
	if call.params.InputPreview != `{"command":"ls"}` {
		t.Errorf("inputPreview = %q", call.params.InputPreview)
	}
	if want := epoch.Add(DefaultTimeout).UnixMilli(); call.params.ExpiresAt != want {
		t.Errorf("expiresAt = %d, want %d", call.params.ExpiresAt, want)
	}
	if mediator.Pending() != 1 {
		t.Fatalf("Pending() = %d, want 1", mediator.Pending())
	}

	if !mediator.Resolve(call.id, json.RawMessage(`{"behavior":"allow","updatedInput":{"command":"ls -a"}}`)) {
		t.Fatal("Resolve() = false for a pending request")
	}
	result := testutil.RequireReceive(t, results, 5*time.Second, "waiting for decision")
	if result.err != nil {
		t.Fatalf("RequestApproval: %v", result.err)
	}
	if !result.decision.Allowed() {
		t.Errorf("decision = %+v, want allow", result.decision)
	}
	if string(result.decision.UpdatedInput) != `{"command":"ls -a"}` {
		t.Errorf("updatedInput = %s", result.decision.UpdatedInput)
	}
	if mediator.Pending() != 0 {
		t.Errorf("Pending() after resolve = %d, want 0", mediator.Pending())
	}
	if fake.PendingCount() != 0 {
		t.Errorf("timer still armed after resolve")
	}
}

func TestRequestApprovalDeny(t *testing.T) {
	t.Parallel()

	transport := newRecordingTransport()
	mediator := New(transport, Options{Clock: clock.Fake(epoch)})

	call, results := startApproval(t, context.Background(), mediator, transport, Request{ToolName: "Bash"})
	if !strings.HasPrefix(call.id, "perm-") {
		t.Errorf("id = %q, want perm- prefix", call.id)
	}
	if string(call.params.Input) != "{}" {
		t.Errorf("input = %s, want {} for missing input", call.params.Input)
	}
	mediator.Resolve(call.id, json.RawMessage(`{"behavior":"deny","message":"not today","interrupt":true}`))

	result := testutil.RequireReceive(t, results, 5*time.Second, "waiting for decision")
	if result.err != nil {
		t.Fatalf("RequestApproval: %v", result.err)
	}
	want := Decision{Behavior: Deny, Message: "not today", Interrupt: true}
	if result.decision.Behavior != want.Behavior || result.decision.Message != want.Message || !result.decision.Interrupt {
		t.Errorf("decision = %+v, want %+v", result.decision, want)
	}
}

func TestRequestApprovalTimeout(t *testing.T) {
	t.Parallel()

	fake := clock.Fake(epoch)
	transport := newRecordingTransport()
	mediator := New(transport, Options{Clock: fake, NewID: sequentialIDs()})

	call, results := startApproval(t, context.Background(), mediator, transport, Request{ToolName: "Write"})
	fake.WaitForTimers(1)

	fake.Advance(DefaultTimeout - time.Second)
	select {
	case result := <-results:
		t.Fatalf("resolved before expiry: %+v", result)
	default:
	}

	fake.Advance(time.Second)
	result := testutil.RequireReceive(t, results, 5*time.Second, "waiting for timeout")
	if !errors.Is(result.err, ErrTimedOut) {
		t.Fatalf("error = %v, want ErrTimedOut", result.err)
	}
	if mediator.Pending() != 0 {
		t.Errorf("Pending() after timeout = %d, want 0", mediator.Pending())
	}

	// A late answer after expiry is a no-op.
	if mediator.Resolve(call.id, json.RawMessage(`{"behavior":"allow"}`)) {
		t.Error("Resolve() after timeout = true, want false")
	}
}

func TestRequestApprovalCustomTimeout(t *testing.T) {
	t.Parallel()

	fake := clock.Fake(epoch)
	transport := newRecordingTransport()
	mediator := New(transport, Options{Clock: fake, Timeout: 10 * time.Second})

	call, results := startApproval(t, context.Background(), mediator, transport, Request{ToolName: "Read"})
	if want := epoch.Add(10 * time.Second).UnixMilli(); call.params.ExpiresAt != want {
		t.Errorf("expiresAt = %d, want %d", call.params.ExpiresAt, want)
	}
	fake.WaitForTimers(1)
	fake.Advance(10 * time.Second)
	result := testutil.RequireReceive(t, results, 5*time.Second, "waiting for timeout")
	if !errors.Is(result.err, ErrTimedOut) {
		t.Fatalf("error = %v, want ErrTimedOut", result.err)
	}
}

func TestRequestApprovalContextCancel(t *testing.T) {
	t.Parallel()

	fake := clock.Fake(epoch)
	transport := newRecordingTransport()
	mediator := New(transport, Options{Clock: fake})

	ctx, cancel := context.WithCancel(context.Background())
	call, results := startApproval(t, ctx, mediator, transport, Request{ToolName: "Bash"})
	cancel()

	result := testutil.RequireReceive(t, results, 5*time.Second, "waiting for cancellation")
	if !errors.Is(result.err, context.Canceled) {
		t.Fatalf("error = %v, want context.Canceled", result.err)
	}
	if mediator.Pending() != 0 {
		t.Errorf("Pending() after cancel = %d, want 0", mediator.Pending())
	}
	if fake.PendingCount() != 0 {
		t.Errorf("timer still armed after cancel")
	}
	if mediator.Resolve(call.id, json.RawMessage(`{"behavior":"allow"}`)) {
		t.Error("Resolve() after cancel = true, want false")
	}
}

func TestRequestApprovalHostError(t *testing.T) {
	t.Parallel()

	transport := newRecordingTransport()
	mediator := New(transport, Options{Clock: clock.Fake(epoch)})

	call, results := startApproval(t, context.Background(), mediator, transport, Request{ToolName: "Bash"})
	if !mediator.Reject(call.id, &jsonrpc.Error{Code: jsonrpc.CodeInternalError, Message: "dialog crashed"}) {
		t.Fatal("Reject() = false for a pending request")
	}
	result := testutil.RequireReceive(t, results, 5*time.Second, "waiting for rejection")
	if !errors.Is(result.err, ErrRejected) {
		t.Fatalf("error = %v, want ErrRejected", result.err)
	}
	if !strings.Contains(result.err.Error(), "dialog crashed") {
		t.Errorf("error = %q, want host message", result.err)
	}
}

func TestRequestApprovalSendFailure(t *testing.T) {
	t.Parallel()

	fake := clock.Fake(epoch)
	transport := newRecordingTransport()
	transport.err = errors.New("stdout closed")
	mediator := New(transport, Options{Clock: fake})

	_, err := mediator.RequestApproval(context.Background(), Request{ToolName: "Bash"})
	if err == nil || !strings.Contains(err.Error(), "stdout closed") {
		t.Fatalf("error = %v, want send failure", err)
	}
	if mediator.Pending() != 0 {
		t.Errorf("Pending() after send failure = %d, want 0", mediator.Pending())
	}
	if fake.PendingCount() != 0 {
		t.Errorf("timer still armed after send failure")
	}
}

func TestResolveIsOneShot(t *testing.T) {
	t.Parallel()

	transport := newRecordingTransport()
	mediator := New(transport, Options{Clock: clock.Fake(epoch)})

	call, results := startApproval(t, context.Background(), mediator, transport, Request{ToolName: "Bash"})
	if !mediator.Resolve(call.id, json.RawMessage(`{"behavior":"deny"}`)) {
		t.Fatal("first Resolve() = false")
	}
	if mediator.Resolve(call.id, json.RawMessage(`{"behavior":"allow"}`)) {
		t.Error("duplicate Resolve() = true, want false")
	}
	result := testutil.RequireReceive(t, results, 5*time.Second, "waiting for decision")
	if result.decision.Allowed() {
		t.Error("duplicate answer overrode the first")
	}
	if mediator.Resolve("perm-unknown", json.RawMessage(`{}`)) {
		t.Error("Resolve() for an unknown id = true, want false")
	}
}

func TestConcurrentRequestsAreIndependent(t *testing.T) {
	t.Parallel()

	transport := newRecordingTransport()
	mediator := New(transport, Options{Clock: clock.Fake(epoch), NewID: sequentialIDs()})

	first, firstResult := startApproval(t, context.Background(), mediator, transport, Request{ToolName: "Read"})
	second, secondResult := startApproval(t, context.Background(), mediator, transport, Request{ToolName: "Write"})
	if mediator.Pending() != 2 {
		t.Fatalf("Pending() = %d, want 2", mediator.Pending())
	}

	mediator.Resolve(second.id, json.RawMessage(`{"behavior":"deny"}`))
	mediator.Resolve(first.id, json.RawMessage(`{"behavior":"allow"}`))

	if got := testutil.RequireReceive(t, firstResult, 5*time.Second, "first"); !got.decision.Allowed() {
		t.Errorf("first decision = %+v, want allow", got.decision)
	}
	if got := testutil.RequireReceive(t, secondResult, 5*time.Second, "second"); got.decision.Allowed() {
		t.Errorf("second decision = %+v, want deny", got.decision)
	}
}

func TestPreviewTruncation(t *testing.T) {
	t.Parallel()

	transport := newRecordingTransport()
	mediator := New(transport, Options{Clock: clock.Fake(epoch)})

	content := strings.Repeat("ü", 2000)
	input, _ := json.Marshal(map[string]string{"content": content})
	call, results := startApproval(t, context.Background(), mediator, transport, Request{ToolName: "Write", Input: input})

	if got := utf8.RuneCountInString(call.params.InputPreview); got != DefaultPreviewLength {
		t.Errorf("preview length = %d runes, want %d", got, DefaultPreviewLength)
	}
	if string(call.params.Input) != string(input) {
		t.Error("full input was not forwarded unchanged")
	}
	mediator.Resolve(call.id, json.RawMessage(`{"behavior":"allow"}`))
	testutil.RequireReceive(t, results, 5*time.Second, "waiting for decision")
}
