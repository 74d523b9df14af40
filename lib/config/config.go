// Copyright 2026 The Kelivo Authors
// SPDX-License-Identifier: Apache-2.0

package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/tidwall/jsonc"
	"gopkg.in/yaml.v3"
)

// EnvConfigPath names the environment variable read by Load.
const EnvConfigPath = "KELIVO_BRIDGE_CONFIG"

// Config is the bridge configuration.
type Config struct {
	Engine     EngineConfig     `yaml:"engine"`
	Permission PermissionConfig `yaml:"permission"`
	Transport  TransportConfig  `yaml:"transport"`
	Shutdown   ShutdownConfig   `yaml:"shutdown"`
	Logging    LoggingConfig    `yaml:"logging"`
	Trace      TraceConfig      `yaml:"trace"`
}

// EngineConfig configures the claude CLI.
type EngineConfig struct {
	// Binary is the claude executable, looked up in PATH when it has
	// no slash.
	Binary string `yaml:"binary"`

	// DefaultModel applies when an invoke names no model.
	DefaultModel string `yaml:"default_model"`

	// DefaultMaxTurns applies when an invoke sets no maxTurns.
	DefaultMaxTurns int `yaml:"default_max_turns"`

	// InterruptGrace is how long an aborted CLI has between SIGINT
	// and SIGKILL.
	InterruptGrace Duration `yaml:"interrupt_grace"`

	// ExtraArgs are appended to every CLI invocation.
	ExtraArgs []string `yaml:"extra_args"`
}

// PermissionConfig configures tool approval requests.
type PermissionConfig struct {
	// Timeout is how long the host has to answer before the tool
	// call is denied.
	Timeout Duration `yaml:"timeout"`

	// PreviewLength bounds the inputPreview sent with each request.
	PreviewLength int `yaml:"preview_length"`
}

// TransportConfig configures the stdio framing.
type TransportConfig struct {
	// MaxRecordBytes is the longest accepted input line.
	MaxRecordBytes int `yaml:"max_record_bytes"`
}

// ShutdownConfig configures process exit.
type ShutdownConfig struct {
	// Grace is how long an active invocation has to wind down after
	// the input closes or a signal arrives.
	Grace Duration `yaml:"grace"`
}

// LoggingConfig configures the stderr logger.
type LoggingConfig struct {
	// Level is debug, info, warn, or error.
	Level string `yaml:"level"`

	// Format is auto, text, or json. Auto picks text on a terminal.
	Format string `yaml:"format"`
}

// TraceConfig configures the wire trace.
type TraceConfig struct {
	// Path is the trace file. Empty disables tracing.
	Path string `yaml:"path"`

	// Compression is zstd or lz4.
	Compression string `yaml:"compression"`
}

// Duration is a time.Duration written as "300s" or "5m".
type Duration time.Duration

// Std returns d as a time.Duration.
func (d Duration) Std() time.Duration { return time.Duration(d) }

func (d Duration) String() string { return time.Duration(d).String() }

// MarshalText implements encoding.TextMarshaler.
func (d Duration) MarshalText() ([]byte, error) {
	return []byte(d.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (d *Duration) UnmarshalText(text []byte) error {
	parsed, err := time.ParseDuration(strings.TrimSpace(string(text)))
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", text, err)
	}
	*d = Duration(parsed)
	return nil
}

// UnmarshalYAML implements yaml.Unmarshaler.
func (d *Duration) UnmarshalYAML(node *yaml.Node) error {
	var text string
	if err := node.Decode(&text); err != nil {
		return fmt.Errorf("line %d: duration must be a string like \"30s\": %w", node.Line, err)
	}
	return d.UnmarshalText([]byte(text))
}

// Default returns the configuration used when no file is given.
func Default() *Config {
	return &Config{
		Engine: EngineConfig{
			Binary:          "claude",
			DefaultModel:    "claude-sonnet-4-20250514",
			DefaultMaxTurns: 100,
			InterruptGrace:  Duration(5 * time.Second),
		},
		Permission: PermissionConfig{
			Timeout:       Duration(300 * time.Second),
			PreviewLength: 500,
		},
		Transport: TransportConfig{
			MaxRecordBytes: 16 << 20,
		},
		Shutdown: ShutdownConfig{
			Grace: Duration(10 * time.Second),
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "auto",
		},
		Trace: TraceConfig{
			Compression: "zstd",
		},
	}
}

// Load loads the file named by KELIVO_BRIDGE_CONFIG, or returns the
// defaults when the variable is unset.
func Load() (*Config, error) {
	path := os.Getenv(EnvConfigPath)
	if path == "" {
		return Default(), nil
	}
	return LoadFile(path)
}

// LoadFile loads path over the defaults. Fields the file omits keep
// their default values.
func LoadFile(path string) (*Config, error) {
	cfg := Default()
	if err := cfg.loadFile(path); err != nil {
		return nil, err
	}
	cfg.expandVariables()
	return cfg, nil
}

func (c *Config) loadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("reading config: %w", err)
	}
	switch strings.ToLower(filepath.Ext(path)) {
	case ".json", ".jsonc":
		// YAML accepts JSON once comments and trailing commas are gone.
		data = jsonc.ToJSON(data)
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("parsing config %s: %w", path, err)
	}
	return nil
}

func (c *Config) expandVariables() {
	vars := map[string]string{
		"HOME": os.Getenv("HOME"),
	}
	c.Engine.Binary = expandVars(c.Engine.Binary, vars)
	c.Trace.Path = expandVars(c.Trace.Path, vars)
}

// varPattern matches ${VAR} and ${VAR:-default}.
var varPattern = regexp.MustCompile(`\$\{([^}:]+)(?::-([^}]*))?\}`)

func expandVars(s string, vars map[string]string) string {
	return varPattern.ReplaceAllStringFunc(s, func(match string) string {
		parts := varPattern.FindStringSubmatch(match)
		if len(parts) < 2 {
			return match
		}
		name := parts[1]
		defaultValue := ""
		if len(parts) >= 3 {
			defaultValue = parts[2]
		}
		if value, ok := vars[name]; ok && value != "" {
			return value
		}
		if value := os.Getenv(name); value != "" {
			return value
		}
		return defaultValue
	})
}

// Validate checks the configuration for errors. All problems are
// reported together.
func (c *Config) Validate() error {
	var errs []error

	if c.Engine.Binary == "" {
		errs = append(errs, errors.New("engine.binary is required"))
	}
	if c.Engine.DefaultModel == "" {
		errs = append(errs, errors.New("engine.default_model is required"))
	}
	if c.Engine.DefaultMaxTurns <= 0 {
		errs = append(errs, fmt.Errorf("engine.default_max_turns must be positive, got %d", c.Engine.DefaultMaxTurns))
	}
	if c.Engine.InterruptGrace <= 0 {
		errs = append(errs, fmt.Errorf("engine.interrupt_grace must be positive, got %s", c.Engine.InterruptGrace))
	}
	if c.Permission.Timeout <= 0 {
		errs = append(errs, fmt.Errorf("permission.timeout must be positive, got %s", c.Permission.Timeout))
	}
	if c.Permission.PreviewLength <= 0 {
		errs = append(errs, fmt.Errorf("permission.preview_length must be positive, got %d", c.Permission.PreviewLength))
	}
	if c.Transport.MaxRecordBytes <= 0 {
		errs = append(errs, fmt.Errorf("transport.max_record_bytes must be positive, got %d", c.Transport.MaxRecordBytes))
	}
	if c.Shutdown.Grace <= 0 {
		errs = append(errs, fmt.Errorf("shutdown.grace must be positive, got %s", c.Shutdown.Grace))
	}
	switch strings.ToLower(c.Logging.Level) {
	case "debug", "info", "warn", "warning", "error":
	default:
		errs = append(errs, fmt.Errorf("logging.level %q is not one of debug, info, warn, error", c.Logging.Level))
	}
	switch strings.ToLower(c.Logging.Format) {
	case "auto", "text", "json":
	default:
		errs = append(errs, fmt.Errorf("logging.format %q is not one of auto, text, json", c.Logging.Format))
	}
	switch strings.ToLower(c.Trace.Compression) {
	case "zstd", "lz4":
	default:
		errs = append(errs, fmt.Errorf("trace.compression %q is not one of zstd, lz4", c.Trace.Compression))
	}

	return errors.Join(errs...)
}
