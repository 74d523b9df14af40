// Copyright 2026 The Kelivo Authors
// SPDX-License-Identifier: Apache-2.0

package bridge

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/kelivo/agent-bridge/lib/jsonrpc"
)

// Methods the host may call.
const (
	MethodInvoke = "invoke"
	MethodAbort  = "abort"
)

// ResponseHandler receives the host's answers to bridge-initiated
// requests. *permission.Mediator satisfies it.
type ResponseHandler interface {
	Resolve(id string, result json.RawMessage) bool
	Reject(id string, rpcError *jsonrpc.Error) bool
}

// ServerOptions configures a Server.
type ServerOptions struct {
	Reader     *jsonrpc.Reader
	Writer     *jsonrpc.Writer
	Responses  ResponseHandler
	Controller *Controller
	Logger     *slog.Logger
}

// Server routes the host's JSON-RPC records.
type Server struct {
	reader     *jsonrpc.Reader
	writer     *jsonrpc.Writer
	responses  ResponseHandler
	controller *Controller
	logger     *slog.Logger
}

// NewServer returns a Server.
func NewServer(options ServerOptions) *Server {
	if options.Logger == nil {
		options.Logger = slog.New(slog.DiscardHandler)
	}
	return &Server{
		reader:     options.Reader,
		writer:     options.Writer,
		responses:  options.Responses,
		controller: options.Controller,
		logger:     options.Logger,
	}
}

// invokeResult is the reply to a completed invoke. SessionID is null
// when the engine never reported one.
type invokeResult struct {
	Success   bool    `json:"success"`
	SessionID *string `json:"sessionId"`
}

// abortedResult is the reply to a cancelled invoke. It is
// success-shaped: cancellation is not an error.
type abortedResult struct {
	Success bool `json:"success"`
	Aborted bool `json:"aborted"`
}

// Serve reads and dispatches records until the input ends (nil), the
// input fails (error), or ctx is cancelled (ctx.Err()). Invocations
// still running when Serve returns are left to the caller to abort.
func (s *Server) Serve(ctx context.Context) error {
	records := make(chan []byte)
	readFailure := make(chan error, 1)
	go func() {
		for {
			record, err := s.reader.Next()
			if errors.Is(err, jsonrpc.ErrRecordTooLong) {
				s.logger.Warn("dropping oversized record")
				continue
			}
			if err != nil {
				readFailure <- err
				return
			}
			select {
			case records <- record:
			case <-ctx.Done():
				return
			}
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case err := <-readFailure:
			if errors.Is(err, io.EOF) {
				s.logger.Info("input closed")
				return nil
			}
			return fmt.Errorf("reading input: %w", err)
		case record := <-records:
			s.dispatch(record)
		}
	}
}

// dispatch routes one record. Nothing here blocks on an invocation.
func (s *Server) dispatch(record []byte) {
	message, err := jsonrpc.Decode(record)
	if err != nil {
		s.logger.Warn("dropping malformed record", "error", err, "bytes", len(record))
		return
	}
	if message.JSONRPC != jsonrpc.Version {
		s.logger.Warn("dropping record with unsupported jsonrpc version", "version", message.JSONRPC)
		return
	}

	switch {
	case message.IsResponse():
		s.handleResponse(message)
	case message.Method == MethodInvoke:
		s.handleInvoke(message)
	case message.Method == MethodAbort:
		// abort never gets a reply, even when framed as a request.
		if !s.controller.Abort() {
			s.logger.Debug("abort with no active invocation")
		}
	case message.IsRequest():
		s.logger.Info("unknown method", "method", message.Method)
		s.respondError(message, jsonrpc.CodeMethodNotFound, "Method not found: "+message.Method)
	case message.IsNotification():
		s.logger.Debug("ignoring unknown notification", "method", message.Method)
	default:
		s.logger.Warn("dropping record with unknown shape", "id", message.IDString())
	}
}

func (s *Server) handleResponse(message jsonrpc.Message) {
	id := message.IDString()
	var delivered bool
	if message.Error != nil {
		delivered = s.responses.Reject(id, message.Error)
	} else {
		delivered = s.responses.Resolve(id, message.Result)
	}
	if !delivered {
		s.logger.Debug("ignoring response with no pending request", "id", id)
	}
}

func (s *Server) handleInvoke(message jsonrpc.Message) {
	var params InvokeParams
	raw := bytes.TrimSpace(message.Params)
	if len(raw) > 0 && !bytes.Equal(raw, []byte("null")) {
		if err := json.Unmarshal(raw, &params); err != nil {
			s.respondError(message, jsonrpc.CodeInvalidParams, fmt.Sprintf("%v: %v", ErrInvalidParams, err))
			return
		}
	}

	inv, err := s.controller.Begin(params)
	switch {
	case errors.Is(err, ErrBusy):
		s.logger.Warn("rejecting invoke while another is active", "id", message.IDString())
		s.respondError(message, jsonrpc.CodeInvocationActive, err.Error())
		return
	case err != nil:
		s.respondError(message, jsonrpc.CodeInvalidParams, err.Error())
		return
	}

	go s.controller.Run(inv, func(outcome Outcome) {
		s.replyInvoke(message, outcome)
	})
}

func (s *Server) replyInvoke(message jsonrpc.Message, outcome Outcome) {
	if !message.HasID() {
		return
	}
	switch {
	case outcome.Err != nil:
		s.respondError(message, jsonrpc.CodeInvokeFailed, failureText(outcome.Err))
	case outcome.Aborted:
		s.respond(message.ID, abortedResult{Success: false, Aborted: true})
	default:
		result := invokeResult{Success: true}
		if outcome.SessionID != "" {
			result.SessionID = &outcome.SessionID
		}
		s.respond(message.ID, result)
	}
}

func (s *Server) respond(id json.RawMessage, result any) {
	if err := s.writer.Respond(id, result); err != nil {
		s.logger.Error("sending response", "error", err)
	}
}

// respondError answers message with an error, unless it was sent as a
// notification.
func (s *Server) respondError(message jsonrpc.Message, code int, text string) {
	if !message.HasID() {
		return
	}
	if err := s.writer.RespondError(message.ID, code, text); err != nil {
		s.logger.Error("sending error response", "error", err)
	}
}
