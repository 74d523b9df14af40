// Copyright 2026 The Kelivo Authors
// SPDX-License-Identifier: Apache-2.0

// Package logging builds the bridge's structured logger.
//
// Stdout carries the JSON-RPC protocol, so logs always go to stderr
// (or another writer chosen by the caller). When that writer is a
// terminal the output is slog text for humans; otherwise it is slog
// JSON, matching what a host application captures.
package logging

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"golang.org/x/term"
)

// Formats accepted by Options.Format.
const (
	FormatAuto = "auto"
	FormatText = "text"
	FormatJSON = "json"
)

// Options configures New. Zero values select info level, automatic
// format, and stderr.
type Options struct {
	Level  string
	Format string
	Writer io.Writer
}

// New returns a logger for options, or an error naming the first
// unrecognized level or format.
func New(options Options) (*slog.Logger, error) {
	level, err := ParseLevel(options.Level)
	if err != nil {
		return nil, err
	}
	writer := options.Writer
	if writer == nil {
		writer = os.Stderr
	}

	handlerOptions := &slog.HandlerOptions{Level: level}
	var handler slog.Handler
	switch strings.ToLower(options.Format) {
	case "", FormatAuto:
		if isTerminal(writer) {
			handler = slog.NewTextHandler(writer, handlerOptions)
		} else {
			handler = slog.NewJSONHandler(writer, handlerOptions)
		}
	case FormatText:
		handler = slog.NewTextHandler(writer, handlerOptions)
	case FormatJSON:
		handler = slog.NewJSONHandler(writer, handlerOptions)
	default:
		return nil, fmt.Errorf("unknown log format %q (want auto, text, or json)", options.Format)
	}
	return slog.New(handler), nil
}

// ParseLevel maps a level name to a slog.Level. The empty string is
// info.
func ParseLevel(name string) (slog.Level, error) {
	switch strings.ToLower(name) {
	case "", "info":
		return slog.LevelInfo, nil
	case "debug":
		return slog.LevelDebug, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	}
	return 0, fmt.Errorf("unknown log level %q (want debug, info, warn, or error)", name)
}

// ValidFormat reports whether name is accepted by New.
func ValidFormat(name string) bool {
	switch strings.ToLower(name) {
	case "", FormatAuto, FormatText, FormatJSON:
		return true
	}
	return false
}

func isTerminal(writer io.Writer) bool {
	file, ok := writer.(*os.File)
	return ok && term.IsTerminal(int(file.Fd()))
}
