// Copyright 2025 Tom Barlow
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package log builds the slog logger shared across mcporch and names the
// attribute keys its packages log under.
package log

import (
	"context"
	"io"
	"log/slog"
	"os"
	"strings"

	"golang.org/x/term"
)

// Format is a log output format.
type Format string

const (
	FormatJSON Format = "json"
	FormatText Format = "text"

	// FormatAuto is text on a terminal and JSON otherwise.
	FormatAuto Format = "auto"
)

// LevelTrace sits below debug, for wire payloads and oracle prompts.
const LevelTrace = slog.Level(-8)

// Attribute keys.
const (
	TaskIDKey   = "task_id"
	ServerIDKey = "server_id"
	ProtocolKey = "protocol"
	EndpointKey = "endpoint"
	ToolKey     = "tool"
	StepKey     = "step"
	MethodKey   = "method"
	ProviderKey = "provider"
	DurationKey = "duration_ms"
	EventKey    = "event"
)

// Config configures New.
type Config struct {
	// Level is trace, debug, info, warn or error.
	Level     string
	Format    Format
	Output    io.Writer
	AddSource bool
}

// DefaultConfig logs at info to stderr in the auto format.
func DefaultConfig() *Config {
	return &Config{Level: "info", Format: FormatAuto, Output: os.Stderr}
}

// New builds a logger from cfg. A nil cfg means DefaultConfig.
func New(cfg *Config) *slog.Logger {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	out := cfg.Output
	if out == nil {
		out = os.Stderr
	}

	opts := &slog.HandlerOptions{
		Level:       ParseLevel(cfg.Level),
		AddSource:   cfg.AddSource,
		ReplaceAttr: renameTrace,
	}
	if ResolveFormat(cfg.Format, out) == FormatText {
		return slog.New(slog.NewTextHandler(out, opts))
	}
	return slog.New(slog.NewJSONHandler(out, opts))
}

// renameTrace prints LevelTrace as TRACE instead of DEBUG-4.
func renameTrace(groups []string, a slog.Attr) slog.Attr {
	if a.Key == slog.LevelKey && len(groups) == 0 {
		if lvl, ok := a.Value.Any().(slog.Level); ok && lvl <= LevelTrace {
			a.Value = slog.StringValue("TRACE")
		}
	}
	return a
}

// ResolveFormat turns FormatAuto, or anything unrecognised, into the
// concrete format for out.
func ResolveFormat(format Format, out io.Writer) Format {
	if format == FormatJSON || format == FormatText {
		return format
	}
	if f, ok := out.(*os.File); ok && term.IsTerminal(int(f.Fd())) {
		return FormatText
	}
	return FormatJSON
}

var levels = map[string]slog.Level{
	"trace":   LevelTrace,
	"debug":   slog.LevelDebug,
	"info":    slog.LevelInfo,
	"warn":    slog.LevelWarn,
	"warning": slog.LevelWarn,
	"error":   slog.LevelError,
}

// ParseLevel maps a level name to a slog.Level. Unknown names are info.
func ParseLevel(level string) slog.Level {
	if l, ok := levels[strings.ToLower(level)]; ok {
		return l
	}
	return slog.LevelInfo
}

// WithComponent tags logger with a component name.
func WithComponent(logger *slog.Logger, component string) *slog.Logger {
	return logger.With("component", component)
}

// WithTask tags logger with a task and the server it runs against.
func WithTask(logger *slog.Logger, taskID, serverID string) *slog.Logger {
	return logger.With(slog.String(TaskIDKey, taskID), slog.String(ServerIDKey, serverID))
}

// WithProvider tags logger with an oracle provider.
func WithProvider(logger *slog.Logger, provider string) *slog.Logger {
	return logger.With(slog.String(ProviderKey, provider))
}

// Error is the attribute errors are logged under.
func Error(err error) slog.Attr {
	return slog.Any("error", err)
}

// Trace logs at LevelTrace.
func Trace(logger *slog.Logger, msg string, attrs ...slog.Attr) {
	logger.LogAttrs(context.Background(), LevelTrace, msg, attrs...)
}

// Discard returns a logger that drops everything.
func Discard() *slog.Logger {
	return slog.New(slog.DiscardHandler)
}
