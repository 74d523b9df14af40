// Copyright 2026 The Kelivo Authors
// SPDX-License-Identifier: Apache-2.0

package engine

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/kelivo/agent-bridge/lib/clock"
	"github.com/kelivo/agent-bridge/lib/permission"
)

// Environment variables the CLI reads its credentials from.
const (
	envAPIKey  = "ANTHROPIC_API_KEY"
	envBaseURL = "ANTHROPIC_BASE_URL"
)

const (
	// maxLineBytes bounds one line of CLI output. Tool results can
	// embed whole files.
	maxLineBytes = 16 << 20

	// stderrTailBytes is how much CLI stderr is kept for diagnostics.
	stderrTailBytes = 8 << 10

	initializeRequestID = "init"
)

// ClaudeOptions configures a Claude engine. Zero values select
// defaults.
type ClaudeOptions struct {
	// Binary is the CLI executable. Default "claude".
	Binary string

	// ExtraArgs are appended to every command line.
	ExtraArgs []string

	// InterruptGrace is how long the CLI gets to exit after SIGINT
	// before its process group is killed. Default 5s.
	InterruptGrace time.Duration

	Clock  clock.Clock
	Logger *slog.Logger

	// Environ returns the base environment for the child. Default
	// os.Environ.
	Environ func() []string
}

// Claude runs queries through the Claude Code CLI.
type Claude struct {
	binary         string
	extraArgs      []string
	interruptGrace time.Duration
	clock          clock.Clock
	logger         *slog.Logger
	environ        func() []string
}

// NewClaude returns a Claude engine.
func NewClaude(options ClaudeOptions) *Claude {
	if options.Binary == "" {
		options.Binary = "claude"
	}
	if options.InterruptGrace <= 0 {
		options.InterruptGrace = 5 * time.Second
	}
	if options.Clock == nil {
		options.Clock = clock.Real()
	}
	if options.Logger == nil {
		options.Logger = slog.New(slog.DiscardHandler)
	}
	if options.Environ == nil {
		options.Environ = os.Environ
	}
	return &Claude{
		binary:         options.Binary,
		extraArgs:      options.ExtraArgs,
		interruptGrace: options.InterruptGrace,
		clock:          options.Clock,
		logger:         options.Logger,
		environ:        options.Environ,
	}
}

// arguments builds the CLI command line for query.
func (c *Claude) arguments(query Query) []string {
	arguments := []string{
		"--output-format", "stream-json",
		"--input-format", "stream-json",
		"--verbose",
		"--include-partial-messages",
		"--permission-prompt-tool", "stdio",
	}
	if query.Model != "" {
		arguments = append(arguments, "--model", query.Model)
	}
	if query.MaxTurns > 0 {
		arguments = append(arguments, "--max-turns", strconv.Itoa(query.MaxTurns))
	}
	if query.SystemPrompt != "" {
		arguments = append(arguments, "--system-prompt", query.SystemPrompt)
	}
	if len(query.AllowedTools) > 0 {
		arguments = append(arguments, "--allowedTools", strings.Join(query.AllowedTools, ","))
	}
	if query.PermissionMode != "" {
		arguments = append(arguments, "--permission-mode", query.PermissionMode)
	}
	if query.Resume != "" {
		arguments = append(arguments, "--resume", query.Resume)
	}
	return append(arguments, c.extraArgs...)
}

// environment returns base with the query's credentials applied.
// Credentials replace inherited values; unset credentials leave the
// inherited values alone.
func environment(base []string, credentials Credentials) []string {
	overrides := map[string]string{}
	if credentials.APIKey != "" {
		overrides[envAPIKey] = credentials.APIKey
	}
	if credentials.BaseURL != "" {
		overrides[envBaseURL] = credentials.BaseURL
	}

	result := make([]string, 0, len(base)+len(overrides))
	for _, entry := range base {
		name, _, _ := strings.Cut(entry, "=")
		if _, replaced := overrides[name]; replaced {
			continue
		}
		result = append(result, entry)
	}
	for _, name := range []string{envAPIKey, envBaseURL} {
		if value, ok := overrides[name]; ok {
			result = append(result, name+"="+value)
		}
	}
	return result
}

// Query runs one invocation of the CLI.
func (c *Claude) Query(ctx context.Context, query Query, handle func(Message)) error {
	if err := ctx.Err(); err != nil {
		return ErrAborted
	}

	command := exec.Command(c.binary, c.arguments(query)...)
	command.Dir = query.WorkingDirectory
	command.Env = environment(c.environ(), query.Credentials)
	stderr := &tailBuffer{limit: stderrTailBytes}
	command.Stderr = stderr
	configureProcess(command)

	stdin, err := command.StdinPipe()
	if err != nil {
		return fmt.Errorf("creating stdin pipe: %w", err)
	}
	stdout, err := command.StdoutPipe()
	if err != nil {
		stdin.Close()
		return fmt.Errorf("creating stdout pipe: %w", err)
	}
	if err := command.Start(); err != nil {
		stdin.Close()
		return fmt.Errorf("starting claude: %w", err)
	}
	logger := c.logger.With("pid", command.Process.Pid)
	logger.Debug("claude started", "binary", c.binary, "working_directory", query.WorkingDirectory)

	// Abort: SIGINT the process group so the CLI can unwind, then
	// SIGKILL if it is still running after the grace period.
	exited := make(chan struct{})
	stopWatch := context.AfterFunc(ctx, func() {
		select {
		case <-exited:
			return
		default:
		}
		logger.Info("interrupting claude")
		if err := interruptProcess(command); err != nil {
			logger.Debug("interrupting claude", "error", err)
		}
		select {
		case <-exited:
		case <-c.clock.After(c.interruptGrace):
			logger.Warn("claude ignored interrupt, killing", "grace", c.interruptGrace)
			if err := killProcess(command); err != nil {
				logger.Debug("killing claude", "error", err)
			}
		}
	})
	defer stopWatch()

	runContext, cancelRun := context.WithCancel(ctx)
	session := &claudeSession{
		stdin:   stdin,
		query:   query,
		handle:  handle,
		logger:  logger,
		pending: make(map[string]context.CancelFunc),
	}
	readError := session.run(runContext, stdout)
	cancelRun()
	if readError != nil {
		// Nobody drains stdout any more; a CLI still writing would
		// block forever.
		logger.Warn("reading claude output", "error", readError)
		if err := killProcess(command); err != nil {
			logger.Debug("killing claude", "error", err)
		}
	}
	session.wait()
	stdin.Close()

	waitError := command.Wait()
	close(exited)
	if stderr.Len() > 0 {
		logger.Debug("claude stderr", "tail", stderr.String())
	}

	result := session.result
	switch {
	case result == nil && ctx.Err() != nil:
		return ErrAborted
	case result == nil && session.failure != nil:
		return session.failure
	case result == nil:
		return fmt.Errorf("claude exited without a result (%s)%s", describeExit(waitError, readError), stderr.summary())
	case !result.Succeeded():
		return &ResultError{Result: *result}
	}
	if waitError != nil {
		// The result is authoritative; a non-zero exit after it is
		// only worth a note.
		logger.Debug("claude exited after result", "error", waitError)
	}
	return nil
}

func describeExit(waitError, readError error) string {
	switch {
	case waitError != nil:
		return waitError.Error()
	case readError != nil:
		return "reading output: " + readError.Error()
	default:
		return "exit status 0"
	}
}

// claudeSession is the per-query protocol state.
type claudeSession struct {
	stdin  io.WriteCloser
	query  Query
	handle func(Message)
	logger *slog.Logger

	// writeMu serializes stdin writes from the read loop and from
	// permission goroutines.
	writeMu     sync.Mutex
	stdinClosed bool

	mu      sync.Mutex
	pending map[string]context.CancelFunc
	group   sync.WaitGroup

	result  *Message
	failure error
}

type controlRequest struct {
	Type      string `json:"type"`
	RequestID string `json:"request_id"`
	Request   any    `json:"request"`
}

type controlResponse struct {
	Type     string              `json:"type"`
	Response controlResponseBody `json:"response"`
}

type controlResponseBody struct {
	Subtype   string `json:"subtype"`
	RequestID string `json:"request_id"`
	Response  any    `json:"response,omitempty"`
	Error     string `json:"error,omitempty"`
}

type inboundControl struct {
	Type      string          `json:"type"`
	RequestID string          `json:"request_id"`
	Request   json.RawMessage `json:"request"`
	Response  *struct {
		Subtype   string `json:"subtype"`
		RequestID string `json:"request_id"`
		Error     string `json:"error"`
	} `json:"response"`
}

type canUseToolRequest struct {
	Subtype   string          `json:"subtype"`
	ToolName  string          `json:"tool_name"`
	Input     json.RawMessage `json:"input"`
	ToolUseID string          `json:"tool_use_id"`
}

type userMessage struct {
	Type            string         `json:"type"`
	Message         userAPIMessage `json:"message"`
	ParentToolUseID *string        `json:"parent_tool_use_id"`
	SessionID       string         `json:"session_id"`
}

type userAPIMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// run drives the conversation until stdout closes.
func (s *claudeSession) run(ctx context.Context, stdout io.Reader) error {
	if err := s.send(controlRequest{
		Type:      "control_request",
		RequestID: initializeRequestID,
		Request:   map[string]string{"subtype": "initialize"},
	}); err != nil {
		return err
	}

	scanner := bufio.NewScanner(stdout)
	scanner.Buffer(make([]byte, 0, 64*1024), maxLineBytes)
	for scanner.Scan() {
		line := bytes.TrimSpace(scanner.Bytes())
		if len(line) == 0 {
			continue
		}

		var envelope struct {
			Type string `json:"type"`
		}
		if err := json.Unmarshal(line, &envelope); err != nil {
			s.logger.Warn("skipping malformed claude output", "error", err)
			continue
		}

		switch envelope.Type {
		case "control_request", "control_cancel_request", "control_response":
			var control inboundControl
			if err := json.Unmarshal(line, &control); err != nil {
				s.logger.Warn("skipping malformed control message", "type", envelope.Type, "error", err)
				continue
			}
			s.handleControl(ctx, control)
		case "keep_alive":
		default:
			message, err := DecodeMessage(line)
			if err != nil {
				s.logger.Warn("skipping undecodable claude message", "type", envelope.Type, "error", err)
				continue
			}
			s.handle(message)
			if message.Type == TypeResult {
				result := message
				s.result = &result
				s.closeStdin()
			}
		}
	}
	return scanner.Err()
}

func (s *claudeSession) handleControl(ctx context.Context, control inboundControl) {
	switch control.Type {
	case "control_request":
		s.handleControlRequest(ctx, control.RequestID, control.Request)
	case "control_cancel_request":
		s.cancelPending(control.RequestID)
	case "control_response":
		if err := s.handleControlResponse(control); err != nil {
			s.failure = err
			s.closeStdin()
		}
	}
}

func (s *claudeSession) handleControlResponse(control inboundControl) error {
	if control.Response == nil || control.Response.RequestID != initializeRequestID {
		return nil
	}
	if control.Response.Subtype == "error" {
		return fmt.Errorf("initializing claude: %s", control.Response.Error)
	}
	return s.send(userMessage{
		Type:      "user",
		Message:   userAPIMessage{Role: "user", Content: s.query.Prompt},
		SessionID: "",
	})
}

// handleControlRequest answers a request from the CLI. can_use_tool
// runs in its own goroutine so that a pending approval never stalls
// the output stream.
func (s *claudeSession) handleControlRequest(ctx context.Context, requestID string, raw json.RawMessage) {
	var request canUseToolRequest
	if err := json.Unmarshal(raw, &request); err != nil || request.Subtype != "can_use_tool" {
		subtype := request.Subtype
		s.logger.Debug("rejecting unsupported control request", "request_id", requestID, "subtype", subtype)
		s.sendQuietly(controlResponse{
			Type: "control_response",
			Response: controlResponseBody{
				Subtype:   "error",
				RequestID: requestID,
				Error:     "unsupported control request: " + subtype,
			},
		})
		return
	}

	permissionContext, cancel := context.WithCancel(ctx)
	s.mu.Lock()
	s.pending[requestID] = cancel
	s.mu.Unlock()

	s.group.Add(1)
	go func() {
		defer s.group.Done()
		defer s.cancelPending(requestID)

		decision := permission.Denied("no permission handler configured", false)
		if s.query.CanUseTool != nil {
			decision = s.query.CanUseTool(permissionContext, ToolUse{
				Name:      request.ToolName,
				Input:     request.Input,
				ToolUseID: request.ToolUseID,
			})
		}
		s.sendQuietly(controlResponse{
			Type: "control_response",
			Response: controlResponseBody{
				Subtype:   "success",
				RequestID: requestID,
				Response:  permissionResponse(decision, request.Input),
			},
		})
	}()
}

// permissionResponse renders a decision in the CLI's permission
// result shape.
func permissionResponse(decision permission.Decision, input json.RawMessage) any {
	if decision.Allowed() {
		updated := decision.UpdatedInput
		if len(updated) == 0 {
			updated = input
		}
		if len(updated) == 0 {
			updated = json.RawMessage("{}")
		}
		return struct {
			Behavior     permission.Behavior `json:"behavior"`
			UpdatedInput json.RawMessage     `json:"updatedInput"`
		}{permission.Allow, updated}
	}
	return struct {
		Behavior  permission.Behavior `json:"behavior"`
		Message   string              `json:"message"`
		Interrupt bool                `json:"interrupt,omitempty"`
	}{permission.Deny, decision.Message, decision.Interrupt}
}

func (s *claudeSession) cancelPending(requestID string) {
	s.mu.Lock()
	cancel, ok := s.pending[requestID]
	delete(s.pending, requestID)
	s.mu.Unlock()
	if ok {
		cancel()
	}
}

// wait returns once every permission goroutine has finished.
func (s *claudeSession) wait() {
	s.group.Wait()
}

func (s *claudeSession) send(value any) error {
	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("encoding claude input: %w", err)
	}
	data = append(data, '\n')

	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	if s.stdinClosed {
		return errors.New("claude input already closed")
	}
	if _, err := s.stdin.Write(data); err != nil {
		return fmt.Errorf("writing claude input: %w", err)
	}
	return nil
}

// sendQuietly sends a reply the CLI may no longer be listening for.
func (s *claudeSession) sendQuietly(value any) {
	if err := s.send(value); err != nil {
		s.logger.Debug("dropping claude input", "error", err)
	}
}

func (s *claudeSession) closeStdin() {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	if !s.stdinClosed {
		s.stdinClosed = true
		s.stdin.Close()
	}
}

// tailBuffer keeps the last limit bytes written to it.
type tailBuffer struct {
	mu    sync.Mutex
	limit int
	data  []byte
}

func (b *tailBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.data = append(b.data, p...)
	if excess := len(b.data) - b.limit; excess > 0 {
		b.data = append(b.data[:0], b.data[excess:]...)
	}
	return len(p), nil
}

func (b *tailBuffer) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.data)
}

func (b *tailBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return string(b.data)
}

// summary returns the last stderr line, formatted for appending to an
// error message.
func (b *tailBuffer) summary() string {
	text := strings.TrimSpace(b.String())
	if text == "" {
		return ""
	}
	if index := strings.LastIndexByte(text, '\n'); index >= 0 {
		text = text[index+1:]
	}
	return ": " + text
}
