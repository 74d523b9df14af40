// Copyright 2026 The Kelivo Authors
// SPDX-License-Identifier: Apache-2.0

package engine

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"time"
)

// fakeScenarioEnv selects a scripted fake CLI. When set, the test
// binary behaves as claude instead of running tests:
//
//	echo         init, deltas, assistant text, progress, success result
//	permission   one Bash tool call gated on can_use_tool
//	withdrawn    can_use_tool immediately followed by its cancellation
//	unsupported  a hook_callback control request
//	failure      an error_max_turns result
//	hang         init then block until signalled
//	stubborn     like hang but ignores SIGINT
//	crash        exit 3 with a stderr message before any output
//	init-error   fail the initialize handshake
const fakeScenarioEnv = "KELIVO_FAKE_CLAUDE_SCENARIO"

// echoReport is the echo scenario's result text, letting tests see
// how the CLI was launched.
type echoReport struct {
	Args    []string `json:"args"`
	Dir     string   `json:"dir"`
	APIKey  string   `json:"apiKey"`
	BaseURL string   `json:"baseURL"`
	Prompt  string   `json:"prompt"`
}

type fakeCLI struct {
	input  *bufio.Scanner
	output *json.Encoder
}

func (f *fakeCLI) emit(value any) {
	f.output.Encode(value)
}

func (f *fakeCLI) read() map[string]any {
	if !f.input.Scan() {
		return nil
	}
	var value map[string]any
	json.Unmarshal(f.input.Bytes(), &value)
	return value
}

func field(value map[string]any, path ...string) any {
	var current any = value
	for _, key := range path {
		object, ok := current.(map[string]any)
		if !ok {
			return nil
		}
		current = object[key]
	}
	return current
}

func runFakeClaude(scenario string, args []string) int {
	if scenario == "crash" {
		fmt.Fprintln(os.Stderr, "starting up")
		fmt.Fprintln(os.Stderr, "fatal: model overloaded")
		return 3
	}

	input := bufio.NewScanner(os.Stdin)
	input.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	cli := &fakeCLI{input: input, output: json.NewEncoder(os.Stdout)}

	initialize := cli.read()
	if field(initialize, "request", "subtype") != "initialize" {
		fmt.Fprintln(os.Stderr, "expected initialize")
		return 1
	}
	if scenario == "init-error" {
		cli.emit(map[string]any{
			"type": "control_response",
			"response": map[string]any{
				"subtype":    "error",
				"request_id": initialize["request_id"],
				"error":      "unsupported protocol",
			},
		})
		for cli.read() != nil {
		}
		return 1
	}
	cli.emit(map[string]any{
		"type": "control_response",
		"response": map[string]any{
			"subtype":    "success",
			"request_id": initialize["request_id"],
			"response":   map[string]any{},
		},
	})

	user := cli.read()
	prompt, _ := field(user, "message", "content").(string)
	cli.emit(map[string]any{"type": "system", "subtype": "init", "session_id": "sess-fake", "tools": []string{"Bash"}})

	switch scenario {
	case "echo":
		cli.emit(map[string]any{
			"type": "stream_event", "uuid": "u-1",
			"event": map[string]any{"type": "content_block_delta", "index": 0, "delta": map[string]any{"type": "text_delta", "text": "Hel"}},
		})
		cli.emit(map[string]any{
			"type": "assistant", "uuid": "u-2",
			"message": map[string]any{"role": "assistant", "content": []any{map[string]any{"type": "text", "text": prompt}}},
		})
		cli.emit(map[string]any{"type": "tool_progress", "tool_use_id": "toolu_0", "tool_name": "Read", "elapsed_time_seconds": 1.5})
		dir, _ := os.Getwd()
		report, _ := json.Marshal(echoReport{
			Args:    args,
			Dir:     dir,
			APIKey:  os.Getenv("ANTHROPIC_API_KEY"),
			BaseURL: os.Getenv("ANTHROPIC_BASE_URL"),
			Prompt:  prompt,
		})
		cli.emit(map[string]any{
			"type": "result", "subtype": "success", "result": string(report),
			"usage": map[string]any{"input_tokens": 10, "output_tokens": 5}, "total_cost_usd": 0.01,
		})

	case "permission":
		toolInput := map[string]any{"command": "rm -rf /tmp/scratch"}
		cli.emit(map[string]any{
			"type": "assistant", "uuid": "u-3",
			"message": map[string]any{"role": "assistant", "content": []any{
				map[string]any{"type": "tool_use", "id": "toolu_1", "name": "Bash", "input": toolInput},
			}},
		})
		cli.emit(map[string]any{
			"type": "control_request", "request_id": "req-1",
			"request": map[string]any{"subtype": "can_use_tool", "tool_name": "Bash", "input": toolInput, "tool_use_id": "toolu_1"},
		})
		answer := cli.read()
		if field(answer, "response", "request_id") != "req-1" {
			fmt.Fprintln(os.Stderr, "answer for wrong request")
			return 1
		}
		behavior, _ := field(answer, "response", "response", "behavior").(string)
		var outcome string
		if behavior == "allow" {
			command, _ := field(answer, "response", "response", "updatedInput", "command").(string)
			outcome = "ran " + command
		} else {
			message, _ := field(answer, "response", "response", "message").(string)
			outcome = "denied: " + message
		}
		cli.emit(map[string]any{
			"type": "user", "parent_tool_use_id": nil, "tool_use_result": outcome,
			"message": map[string]any{"role": "user", "content": []any{
				map[string]any{"type": "tool_result", "tool_use_id": "toolu_1", "content": outcome, "is_error": behavior != "allow"},
			}},
		})
		cli.emit(map[string]any{"type": "result", "subtype": "success", "result": outcome})

	case "withdrawn":
		cli.emit(map[string]any{
			"type": "control_request", "request_id": "req-2",
			"request": map[string]any{"subtype": "can_use_tool", "tool_name": "Bash", "input": map[string]any{}, "tool_use_id": "toolu_2"},
		})
		cli.emit(map[string]any{"type": "control_cancel_request", "request_id": "req-2"})
		answer := cli.read()
		message, _ := field(answer, "response", "response", "message").(string)
		cli.emit(map[string]any{"type": "result", "subtype": "success", "result": "withdrawn: " + message})

	case "unsupported":
		cli.emit(map[string]any{
			"type": "control_request", "request_id": "req-9",
			"request": map[string]any{"subtype": "hook_callback", "callback_id": "cb"},
		})
		answer := cli.read()
		subtype, _ := field(answer, "response", "subtype").(string)
		message, _ := field(answer, "response", "error").(string)
		cli.emit(map[string]any{"type": "result", "subtype": "success", "result": subtype + ": " + message})

	case "failure":
		cli.emit(map[string]any{
			"type": "result", "subtype": "error_max_turns", "is_error": true,
			"errors": []string{"Reached maximum number of turns (3)"},
		})

	case "stubborn":
		signal.Ignore(os.Interrupt)
		time.Sleep(time.Hour)
		return 1

	case "hang":
		time.Sleep(time.Hour)
		return 1

	default:
		fmt.Fprintf(os.Stderr, "unknown scenario %q\n", scenario)
		return 1
	}

	// The bridge closes stdin once it has the result.
	for cli.read() != nil {
	}
	if strings.Contains(prompt, "exit-nonzero") {
		return 7
	}
	return 0
}
