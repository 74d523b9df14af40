// Copyright 2026 The Kelivo Authors
// SPDX-License-Identifier: Apache-2.0

// kelivo-agent-bridge connects the Kelivo app to the Claude Code CLI.
//
// The host launches the bridge as a child process and speaks
// newline-delimited JSON-RPC 2.0 over its stdin and stdout. Each
// invoke runs one claude session whose output is streamed back as
// "stream" notifications; every tool call the model attempts is first
// sent to the host as a requestPermission request. Logs go to stderr.
//
// The bridge exits when its stdin closes or it receives SIGINT or
// SIGTERM, aborting any invocation still running.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/pflag"

	"github.com/kelivo/agent-bridge/lib/bridge"
	"github.com/kelivo/agent-bridge/lib/config"
	"github.com/kelivo/agent-bridge/lib/engine"
	"github.com/kelivo/agent-bridge/lib/jsonrpc"
	"github.com/kelivo/agent-bridge/lib/logging"
	"github.com/kelivo/agent-bridge/lib/permission"
	"github.com/kelivo/agent-bridge/lib/process"
	"github.com/kelivo/agent-bridge/lib/version"
	"github.com/kelivo/agent-bridge/lib/wiretrace"
)

const binaryName = "kelivo-agent-bridge"

// envClaudeBinary overrides engine.binary from the config file.
const envClaudeBinary = "KELIVO_CLAUDE_BINARY"

func main() {
	if err := run(os.Args[1:], os.Stdin, os.Stdout, os.Stderr); err != nil {
		process.Fatal(err)
	}
}

type flags struct {
	configPath   string
	claudeBinary string
	logLevel     string
	logFormat    string
	tracePath    string
	dumpTrace    string
	showVersion  bool
}

func run(args []string, stdin io.Reader, stdout, stderr io.Writer) error {
	var options flags
	flagSet := pflag.NewFlagSet(binaryName, pflag.ContinueOnError)
	flagSet.SetOutput(stderr)
	flagSet.StringVar(&options.configPath, "config", "", "path to config file (default: $"+config.EnvConfigPath+", else built-in defaults)")
	flagSet.StringVar(&options.claudeBinary, "claude-binary", "", "claude CLI executable (overrides engine.binary and $"+envClaudeBinary+")")
	flagSet.StringVar(&options.logLevel, "log-level", "", "log level: debug, info, warn, error")
	flagSet.StringVar(&options.logFormat, "log-format", "", "log format: auto, text, json")
	flagSet.StringVar(&options.tracePath, "trace", "", "record JSON-RPC traffic to this file")
	flagSet.StringVar(&options.dumpTrace, "dump-trace", "", "print a recorded trace as JSON lines and exit")
	flagSet.BoolVar(&options.showVersion, "version", false, "print version information and exit")
	flagSet.Usage = func() { printHelp(stderr, flagSet) }

	if err := flagSet.Parse(args); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return nil
		}
		return err
	}
	if extra := flagSet.Args(); len(extra) > 0 {
		return fmt.Errorf("unexpected argument: %s", extra[0])
	}

	if options.showVersion {
		fmt.Fprintf(stdout, "%s %s\n", binaryName, version.Info())
		return nil
	}
	if options.dumpTrace != "" {
		return dumpTrace(options.dumpTrace, stdout)
	}

	cfg, err := loadConfig(options)
	if err != nil {
		return err
	}
	logger, err := logging.New(logging.Options{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
		Writer: stderr,
	})
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	return serve(ctx, cfg, stdin, stdout, logger)
}

// loadConfig applies, in increasing precedence, the defaults, the
// config file, $KELIVO_CLAUDE_BINARY, and the command-line flags.
func loadConfig(options flags) (*config.Config, error) {
	var cfg *config.Config
	var err error
	if options.configPath != "" {
		cfg, err = config.LoadFile(options.configPath)
	} else {
		cfg, err = config.Load()
	}
	if err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}

	if binary := os.Getenv(envClaudeBinary); binary != "" {
		cfg.Engine.Binary = binary
	}
	if options.claudeBinary != "" {
		cfg.Engine.Binary = options.claudeBinary
	}
	if options.logLevel != "" {
		cfg.Logging.Level = options.logLevel
	}
	if options.logFormat != "" {
		cfg.Logging.Format = options.logFormat
	}
	if options.tracePath != "" {
		cfg.Trace.Path = options.tracePath
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

// serve runs the bridge until the input closes or ctx is cancelled,
// then aborts whatever is still running.
func serve(ctx context.Context, cfg *config.Config, stdin io.Reader, stdout io.Writer, logger *slog.Logger) error {
	reader := jsonrpc.NewReader(stdin, cfg.Transport.MaxRecordBytes)
	writer := jsonrpc.NewWriter(stdout)

	if cfg.Trace.Path != "" {
		compression, err := wiretrace.ParseCompression(cfg.Trace.Compression)
		if err != nil {
			return err
		}
		recorder, err := wiretrace.Create(cfg.Trace.Path, wiretrace.Options{
			Compression: compression,
			Logger:      logger.With("component", "wiretrace"),
		})
		if err != nil {
			return err
		}
		defer func() {
			if err := recorder.Close(); err != nil {
				logger.Warn("closing wire trace", "error", err)
			}
		}()
		reader.Observe(recorder.Inbound)
		writer.Observe(recorder.Outbound)
		logger.Info("recording wire trace", "path", cfg.Trace.Path, "compression", compression)
	}

	mediator := permission.New(writer, permission.Options{
		Timeout:       cfg.Permission.Timeout.Std(),
		PreviewLength: cfg.Permission.PreviewLength,
		Logger:        logger.With("component", "permission"),
	})
	claude := engine.NewClaude(engine.ClaudeOptions{
		Binary:         cfg.Engine.Binary,
		ExtraArgs:      cfg.Engine.ExtraArgs,
		InterruptGrace: cfg.Engine.InterruptGrace.Std(),
		Logger:         logger.With("component", "engine"),
	})
	controller, err := bridge.NewController(bridge.ControllerOptions{
		Engine:          claude,
		Approver:        mediator,
		Notifier:        writer,
		Logger:          logger.With("component", "controller"),
		DefaultModel:    cfg.Engine.DefaultModel,
		DefaultMaxTurns: cfg.Engine.DefaultMaxTurns,
	})
	if err != nil {
		return err
	}
	server := bridge.NewServer(bridge.ServerOptions{
		Reader:     reader,
		Writer:     writer,
		Responses:  mediator,
		Controller: controller,
		Logger:     logger.With("component", "server"),
	})

	logger.Info("Kelivo agent bridge started",
		"version", version.Info(),
		"pid", os.Getpid(),
		"claude_binary", cfg.Engine.Binary,
	)
	serveErr := server.Serve(ctx)
	if ctx.Err() != nil {
		logger.Info("received shutdown signal")
	}

	if controller.Abort() {
		waitCtx, cancel := context.WithTimeout(context.Background(), cfg.Shutdown.Grace.Std())
		defer cancel()
		if err := controller.Wait(waitCtx); err != nil {
			logger.Warn("invocation still running at exit", "grace", cfg.Shutdown.Grace.Std())
		}
	}
	logger.Info("shutdown complete")

	if serveErr != nil && !errors.Is(serveErr, context.Canceled) {
		return serveErr
	}
	return nil
}

func dumpTrace(path string, stdout io.Writer) error {
	file, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("opening trace: %w", err)
	}
	defer file.Close()
	return wiretrace.Dump(file, stdout)
}

func printHelp(w io.Writer, flagSet *pflag.FlagSet) {
	fmt.Fprintf(w, `Kelivo agent bridge: runs Claude Code sessions for the Kelivo app.

Speaks newline-delimited JSON-RPC 2.0 on stdin and stdout. Methods:
invoke (run one prompt) and abort (cancel the running one). Logs are
written to stderr.

Usage:
  %s [flags]

Flags:
%s`, binaryName, flagSet.FlagUsages())
}
