// Copyright 2026 The Kelivo Authors
// SPDX-License-Identifier: Apache-2.0

package bridge

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"time"

	"github.com/zeebo/blake3"

	"github.com/kelivo/agent-bridge/lib/clock"
	"github.com/kelivo/agent-bridge/lib/engine"
	"github.com/kelivo/agent-bridge/lib/permission"
	"github.com/kelivo/agent-bridge/lib/streamevent"
)

const (
	DefaultModel    = "claude-sonnet-4-20250514"
	DefaultMaxTurns = 100
)

var (
	// ErrBusy rejects an invoke while another invocation is active.
	ErrBusy = errors.New("an invocation is already active")

	// ErrInvalidParams rejects invoke params that cannot run.
	ErrInvalidParams = errors.New("invalid invoke params")
)

// InvokeParams are the host's invoke arguments.
type InvokeParams struct {
	Prompt         string   `json:"prompt"`
	Cwd            string   `json:"cwd,omitempty"`
	Model          string   `json:"model,omitempty"`
	APIKey         string   `json:"apiKey,omitempty"`
	APIHost        string   `json:"apiHost,omitempty"`
	SystemPrompt   string   `json:"systemPrompt,omitempty"`
	PermissionMode string   `json:"permissionMode,omitempty"`
	AllowedTools   []string `json:"allowedTools,omitempty"`
	MaxTurns       int      `json:"maxTurns,omitempty"`
	Resume         string   `json:"resume,omitempty"`
}

// Approver asks the host about a tool call. *permission.Mediator
// satisfies it.
type Approver interface {
	RequestApproval(ctx context.Context, request permission.Request) (permission.Decision, error)
}

// Notifier sends notifications to the host. *jsonrpc.Writer
// satisfies it.
type Notifier interface {
	Notify(method string, params any) error
}

// ControllerOptions configures a Controller.
type ControllerOptions struct {
	Engine   engine.Engine
	Approver Approver
	Notifier Notifier
	Clock    clock.Clock
	Logger   *slog.Logger

	// DefaultModel and DefaultMaxTurns apply when the host omits them.
	DefaultModel    string
	DefaultMaxTurns int

	// WorkingDirectory applies when the host omits cwd. Defaults to
	// the process's working directory.
	WorkingDirectory string
}

// Controller runs at most one invocation at a time.
type Controller struct {
	engine            engine.Engine
	approver          Approver
	notifier          Notifier
	clock             clock.Clock
	logger            *slog.Logger
	defaultModel      string
	defaultMaxTurns   int
	defaultWorkingDir string

	mu     sync.Mutex
	active *Invocation
}

// Invocation is the state of one accepted invoke.
type Invocation struct {
	query   engine.Query
	ctx     context.Context
	cancel  context.CancelFunc
	started time.Time
	logger  *slog.Logger
	done    chan struct{}

	mu        sync.Mutex
	sessionID string
}

// SessionID returns the engine session id, or "" before the engine
// has reported one.
func (inv *Invocation) SessionID() string {
	inv.mu.Lock()
	defer inv.mu.Unlock()
	return inv.sessionID
}

func (inv *Invocation) setSessionID(id string) {
	inv.mu.Lock()
	defer inv.mu.Unlock()
	inv.sessionID = id
}

// Outcome is how an invocation ended. Exactly one of the three cases
// holds: Err != nil (failure), Aborted, or success.
type Outcome struct {
	SessionID string
	Aborted   bool
	Err       error
}

// NewController returns a Controller.
func NewController(options ControllerOptions) (*Controller, error) {
	if options.Engine == nil || options.Approver == nil || options.Notifier == nil {
		return nil, errors.New("bridge: controller needs an engine, an approver, and a notifier")
	}
	if options.Clock == nil {
		options.Clock = clock.Real()
	}
	if options.Logger == nil {
		options.Logger = slog.New(slog.DiscardHandler)
	}
	if options.DefaultModel == "" {
		options.DefaultModel = DefaultModel
	}
	if options.DefaultMaxTurns <= 0 {
		options.DefaultMaxTurns = DefaultMaxTurns
	}
	if options.WorkingDirectory == "" {
		directory, err := os.Getwd()
		if err != nil {
			return nil, fmt.Errorf("resolving working directory: %w", err)
		}
		options.WorkingDirectory = directory
	}
	return &Controller{
		engine:            options.Engine,
		approver:          options.Approver,
		notifier:          options.Notifier,
		clock:             options.Clock,
		logger:            options.Logger,
		defaultModel:      options.DefaultModel,
		defaultMaxTurns:   options.DefaultMaxTurns,
		defaultWorkingDir: options.WorkingDirectory,
	}, nil
}

// Begin validates params and reserves the invocation slot. The caller
// must follow a successful Begin with Run.
func (c *Controller) Begin(params InvokeParams) (*Invocation, error) {
	if params.Prompt == "" {
		return nil, fmt.Errorf("%w: prompt is required", ErrInvalidParams)
	}
	if params.MaxTurns < 0 {
		return nil, fmt.Errorf("%w: maxTurns must not be negative", ErrInvalidParams)
	}

	query := engine.Query{
		Prompt:           params.Prompt,
		WorkingDirectory: params.Cwd,
		Model:            params.Model,
		SystemPrompt:     params.SystemPrompt,
		PermissionMode:   params.PermissionMode,
		Resume:           params.Resume,
		AllowedTools:     params.AllowedTools,
		MaxTurns:         params.MaxTurns,
		Credentials:      engine.Credentials{APIKey: params.APIKey, BaseURL: params.APIHost},
	}
	if query.WorkingDirectory == "" {
		query.WorkingDirectory = c.defaultWorkingDir
	}
	if query.Model == "" {
		query.Model = c.defaultModel
	}
	if query.MaxTurns == 0 {
		query.MaxTurns = c.defaultMaxTurns
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.active != nil {
		return nil, ErrBusy
	}
	ctx, cancel := context.WithCancel(context.Background())
	inv := &Invocation{
		query:   query,
		ctx:     ctx,
		cancel:  cancel,
		started: c.clock.Now(),
		done:    make(chan struct{}),
	}
	inv.logger = c.logger.With(
		"prompt_digest", promptDigest(params.Prompt),
		"model", query.Model,
	)
	inv.query.CanUseTool = c.permissionFunc(inv)
	c.active = inv
	return inv, nil
}

// promptDigest identifies a prompt in logs without revealing it.
func promptDigest(prompt string) string {
	sum := blake3.Sum256([]byte(prompt))
	return hex.EncodeToString(sum[:8])
}

// permissionFunc gates every tool call of inv on the host.
func (c *Controller) permissionFunc(inv *Invocation) engine.PermissionFunc {
	return func(ctx context.Context, use engine.ToolUse) permission.Decision {
		if inv.ctx.Err() != nil {
			return permission.Denied("Aborted", false)
		}
		decision, err := c.approver.RequestApproval(ctx, permission.Request{
			ToolName:  use.Name,
			Input:     use.Input,
			ToolUseID: use.ToolUseID,
		})
		if err != nil {
			inv.logger.Info("tool call denied", "tool_name", use.Name, "reason", err)
			return permission.Denied(err.Error(), true)
		}
		return decision
	}
}

// Run drives inv to completion, calls reply with its outcome after
// the terminal notification, and then frees the slot.
func (c *Controller) Run(inv *Invocation, reply func(Outcome)) {
	defer c.release(inv)

	inv.logger.Info("invocation started",
		"prompt_bytes", len(inv.query.Prompt),
		"working_directory", inv.query.WorkingDirectory,
		"resume", inv.query.Resume != "",
	)
	var turns int
	var engineDuration time.Duration
	err := c.engine.Query(inv.ctx, inv.query, func(message engine.Message) {
		if message.Type == engine.TypeResult {
			turns = message.NumTurns
			engineDuration = time.Duration(message.DurationMS) * time.Millisecond
		}
		for _, event := range streamevent.Translate(message) {
			if session, ok := event.(streamevent.SessionID); ok {
				inv.setSessionID(session.SessionID)
			}
			// Once aborted, a failed result is the engine reporting the
			// interrupt; the host sees only the aborted event.
			if _, failed := event.(streamevent.Error); failed && inv.ctx.Err() != nil {
				continue
			}
			c.emit(inv, event)
		}
	})

	outcome := Outcome{SessionID: inv.SessionID()}
	elapsed := c.clock.Now().Sub(inv.started)
	var resultError *engine.ResultError
	switch {
	case err == nil:
		c.emit(inv, streamevent.Done{})
		inv.logger.Info("invocation finished",
			"session_id", outcome.SessionID,
			"turns", turns,
			"engine_duration", engineDuration,
			"elapsed", elapsed,
		)
	case errors.Is(err, engine.ErrAborted) || inv.ctx.Err() != nil:
		outcome.Aborted = true
		c.emit(inv, streamevent.Aborted{})
		inv.logger.Info("invocation aborted", "session_id", outcome.SessionID, "elapsed", elapsed)
	case errors.As(err, &resultError):
		// The failed result was already streamed as an error event.
		outcome.Err = err
		inv.logger.Warn("invocation failed", "error", err, "elapsed", elapsed)
	default:
		outcome.Err = err
		c.emit(inv, streamevent.Error{Message: failureText(err)})
		inv.logger.Warn("invocation failed", "error", err, "elapsed", elapsed)
	}
	reply(outcome)
}

// failureText is the host-facing message for a failed invocation.
func failureText(err error) string {
	if err == nil || err.Error() == "" {
		return "Invoke failed"
	}
	return err.Error()
}

func (c *Controller) emit(inv *Invocation, event streamevent.Event) {
	if err := c.notifier.Notify(streamevent.Method, streamevent.Notification{Event: event}); err != nil {
		inv.logger.Warn("sending stream notification", "type", event.Kind(), "error", err)
	}
}

func (c *Controller) release(inv *Invocation) {
	inv.cancel()
	c.mu.Lock()
	if c.active == inv {
		c.active = nil
	}
	c.mu.Unlock()
	close(inv.done)
}

// Abort cancels the active invocation. It reports whether there was
// one; with none active it does nothing.
func (c *Controller) Abort() bool {
	c.mu.Lock()
	inv := c.active
	c.mu.Unlock()
	if inv == nil {
		return false
	}
	if inv.ctx.Err() == nil {
		inv.logger.Info("aborting invocation")
	}
	inv.cancel()
	return true
}

// Wait blocks until the active invocation, if any, has replied and
// released the slot, or ctx ends.
func (c *Controller) Wait(ctx context.Context) error {
	c.mu.Lock()
	inv := c.active
	c.mu.Unlock()
	if inv == nil {
		return nil
	}
	select {
	case <-inv.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
