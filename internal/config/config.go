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

// Package config loads mcporch settings from a YAML file and the environment.
//
// Precedence, lowest first: built-in defaults, the config file, environment
// variables, command-line flags (applied by the CLI).
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	internallog "github.com/tombee/mcporch/internal/log"
	"github.com/tombee/mcporch/internal/mcp"
	"github.com/tombee/mcporch/internal/oracle"
	"github.com/tombee/mcporch/internal/registry"
	"github.com/tombee/mcporch/internal/tracing"
	pkgerrors "github.com/tombee/mcporch/pkg/errors"
)

// Oracle provider names.
const (
	ProviderGemini    = "gemini"
	ProviderAnthropic = "anthropic"
	ProviderOpenAI    = "openai"

	// ProviderNone disables the oracle. Every task then runs the fallback plan.
	ProviderNone = "none"
)

// Config is the complete mcporch configuration.
type Config struct {
	Log       LogConfig       `yaml:"log"`
	Oracle    OracleConfig    `yaml:"oracle"`
	Detection DetectionConfig `yaml:"detection"`
	Client    ClientConfig    `yaml:"client"`
	Engine    EngineConfig    `yaml:"engine"`
	Discovery DiscoveryConfig `yaml:"discovery"`
	Tracing   tracing.Config  `yaml:"tracing"`
	Metrics   MetricsConfig   `yaml:"metrics"`

	// ServersFile lists known servers. Relative paths are resolved against
	// the config file's directory.
	ServersFile string `yaml:"servers_file"`

	// path is the file the config was read from, if any.
	path string
}

// LogConfig configures logging behavior.
type LogConfig struct {
	// Level sets the minimum log level (trace, debug, info, warn, error).
	// Environment: MCPORCH_LOG_LEVEL, MCPORCH_DEBUG
	Level string `yaml:"level"`

	// Format sets the output format (json, text, auto).
	// Environment: LOG_FORMAT
	Format string `yaml:"format"`

	// AddSource adds source file and line information to logs.
	AddSource bool `yaml:"add_source"`
}

// OracleConfig selects and tunes the planning oracle.
type OracleConfig struct {
	// Provider is gemini, anthropic, openai or none.
	// Environment: MCPORCH_ORACLE_PROVIDER
	Provider string `yaml:"provider"`

	// Model overrides the provider's default model.
	// Environment: MCPORCH_ORACLE_MODEL, GEMINI_MODEL (gemini only)
	Model string `yaml:"model"`

	// APIKey is a literal key or a secret reference (env:NAME, ${NAME},
	// keychain:KEY). When empty the key is looked up as
	// providers/<provider>/api_key, which also honours GEMINI_API_KEY,
	// ANTHROPIC_API_KEY and OPENAI_API_KEY.
	APIKey string `yaml:"api_key"`

	// BaseURL overrides the provider API endpoint.
	BaseURL string `yaml:"base_url"`

	PlanTimeout    time.Duration `yaml:"plan_timeout"`
	SummaryTimeout time.Duration `yaml:"summary_timeout"`

	// MaxRetries bounds retries of transient provider failures.
	MaxRetries int `yaml:"max_retries"`
}

// DetectionConfig tunes endpoint detection.
type DetectionConfig struct {
	ProbeTimeout time.Duration `yaml:"probe_timeout"`
	ProbePaths   []string      `yaml:"probe_paths"`
	ProbeMethods []string      `yaml:"probe_methods"`

	// ProbeRate caps probes per second; 0 leaves probing unpaced.
	ProbeRate  float64 `yaml:"probe_rate"`
	ProbeBurst int     `yaml:"probe_burst"`

	// VendorFallback enables the known-vendor endpoint and catalog table.
	VendorFallback bool `yaml:"vendor_fallback"`
}

// ClientConfig tunes MCP sessions.
type ClientConfig struct {
	RequestTimeout time.Duration `yaml:"request_timeout"`
	ToolTimeout    time.Duration `yaml:"tool_timeout"`

	// Headers are sent with every request to the server.
	Headers map[string]string `yaml:"headers"`

	// OAuth authenticates MCP requests with the client credentials grant.
	OAuth OAuthConfig `yaml:"oauth"`
}

// OAuthConfig enables OAuth 2.0 client credentials when TokenURL is set.
type OAuthConfig struct {
	TokenURL string `yaml:"token_url"`
	ClientID string `yaml:"client_id"`

	// ClientSecret is a literal or a secret reference.
	ClientSecret string   `yaml:"client_secret"`
	Scopes       []string `yaml:"scopes"`
}

// Enabled reports whether OAuth is configured.
func (o OAuthConfig) Enabled() bool {
	return o.TokenURL != ""
}

// EngineConfig tunes the orchestration engine.
type EngineConfig struct {
	// EventBuffer is the streaming channel capacity.
	EventBuffer int `yaml:"event_buffer"`

	// AllowTools and DenyTools are glob patterns over tool names. Denied
	// tools are hidden from the planner and rejected if a plan names them.
	AllowTools []string `yaml:"allow_tools"`
	DenyTools  []string `yaml:"deny_tools"`
}

// DiscoveryConfig tunes background capability discovery.
type DiscoveryConfig struct {
	Concurrency int           `yaml:"concurrency"`
	Timeout     time.Duration `yaml:"timeout"`
}

// MetricsConfig configures the Prometheus endpoint.
type MetricsConfig struct {
	// Addr is the listen address for /metrics. Empty disables the endpoint.
	Addr string `yaml:"addr"`
}

// Default returns a Config with the built-in defaults.
func Default() *Config {
	return &Config{
		Log: LogConfig{
			Level:  "info",
			Format: string(internallog.FormatAuto),
		},
		Oracle: OracleConfig{
			Provider:       ProviderGemini,
			PlanTimeout:    oracle.DefaultPlanTimeout,
			SummaryTimeout: oracle.DefaultSummaryTimeout,
			MaxRetries:     2,
		},
		Detection: DetectionConfig{
			ProbeTimeout:   mcp.DefaultProbeTimeout,
			ProbeBurst:     1,
			VendorFallback: true,
		},
		Client: ClientConfig{
			RequestTimeout: mcp.DefaultRequestTimeout,
			ToolTimeout:    mcp.DefaultToolTimeout,
		},
		Engine: EngineConfig{
			EventBuffer: 16,
		},
		Discovery: DiscoveryConfig{
			Concurrency: registry.DefaultDiscoveryConcurrency,
			Timeout:     registry.DefaultDiscoveryTimeout,
		},
		Tracing: tracing.DefaultConfig(),
	}
}

// Load builds the configuration. path names the config file; when empty,
// MCPORCH_CONFIG is used, then the default location. A missing file at the
// default location is not an error.
func Load(path string) (*Config, error) {
	return load(path, os.LookupEnv)
}

func load(path string, lookup func(string) (string, bool)) (*Config, error) {
	explicit := path != ""
	if !explicit {
		if v, ok := lookup("MCPORCH_CONFIG"); ok && v != "" {
			path, explicit = v, true
		}
	}
	if !explicit {
		if p, err := DefaultPath(); err == nil {
			path = p
		}
	}

	cfg := Default()
	if path != "" {
		err := cfg.loadFromFile(path)
		switch {
		case err == nil:
		case !explicit && errors.Is(err, os.ErrNotExist):
		default:
			return nil, &pkgerrors.ConfigError{
				Key:    "config_file",
				Reason: fmt.Sprintf("failed to load from %s", path),
				Cause:  err,
			}
		}
	}

	cfg.applyDefaults()
	cfg.applyEnv(lookup)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Parse decodes a YAML document over the defaults without consulting the
// environment.
func Parse(r io.Reader) (*Config, error) {
	cfg := Default()
	if err := cfg.decode(r); err != nil {
		return nil, &pkgerrors.ConfigError{Reason: "failed to parse config", Cause: err}
	}
	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Path returns the file the configuration was read from, or "".
func (c *Config) Path() string {
	return c.path
}

func (c *Config) loadFromFile(path string) error {
	path, err := expandHome(path)
	if err != nil {
		return err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}
	if err := c.decode(bytes.NewReader(data)); err != nil {
		return err
	}
	c.path = path
	return nil
}

func (c *Config) decode(r io.Reader) error {
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(c); err != nil && !errors.Is(err, io.EOF) {
		return fmt.Errorf("failed to parse YAML: %w", err)
	}
	return nil
}

// applyDefaults fills zero values left by a partial config file.
func (c *Config) applyDefaults() {
	d := Default()

	if c.Log.Level == "" {
		c.Log.Level = d.Log.Level
	}
	if c.Log.Format == "" {
		c.Log.Format = d.Log.Format
	}
	if c.Oracle.Provider == "" {
		c.Oracle.Provider = d.Oracle.Provider
	}
	if c.Oracle.PlanTimeout == 0 {
		c.Oracle.PlanTimeout = d.Oracle.PlanTimeout
	}
	if c.Oracle.SummaryTimeout == 0 {
		c.Oracle.SummaryTimeout = d.Oracle.SummaryTimeout
	}
	if c.Detection.ProbeTimeout == 0 {
		c.Detection.ProbeTimeout = d.Detection.ProbeTimeout
	}
	if c.Detection.ProbeBurst == 0 {
		c.Detection.ProbeBurst = d.Detection.ProbeBurst
	}
	if c.Client.RequestTimeout == 0 {
		c.Client.RequestTimeout = d.Client.RequestTimeout
	}
	if c.Client.ToolTimeout == 0 {
		c.Client.ToolTimeout = d.Client.ToolTimeout
	}
	if c.Engine.EventBuffer == 0 {
		c.Engine.EventBuffer = d.Engine.EventBuffer
	}
	if c.Discovery.Concurrency == 0 {
		c.Discovery.Concurrency = d.Discovery.Concurrency
	}
	if c.Discovery.Timeout == 0 {
		c.Discovery.Timeout = d.Discovery.Timeout
	}
	if c.Tracing.ServiceName == "" {
		c.Tracing.ServiceName = d.Tracing.ServiceName
	}
	if c.Tracing.Exporter == "" {
		c.Tracing.Exporter = d.Tracing.Exporter
	}
	if c.Tracing.BatchInterval == 0 {
		c.Tracing.BatchInterval = d.Tracing.BatchInterval
	}
	if c.ServersFile != "" {
		if p, err := expandHome(c.ServersFile); err == nil {
			c.ServersFile = p
		}
		if c.path != "" && !filepath.IsAbs(c.ServersFile) {
			c.ServersFile = filepath.Join(filepath.Dir(c.path), c.ServersFile)
		}
	}
}

// applyEnv overrides settings from environment variables.
func (c *Config) applyEnv(lookup func(string) (string, bool)) {
	get := func(key string) string {
		v, _ := lookup(key)
		return strings.TrimSpace(v)
	}

	if debug := strings.ToLower(get("MCPORCH_DEBUG")); debug == "1" || debug == "true" {
		c.Log.Level = "debug"
		c.Log.AddSource = true
	} else if v := get("MCPORCH_LOG_LEVEL"); v != "" {
		c.Log.Level = strings.ToLower(v)
	}
	if v := get("LOG_FORMAT"); v != "" {
		c.Log.Format = strings.ToLower(v)
	}

	if v := get("MCPORCH_ORACLE_PROVIDER"); v != "" {
		c.Oracle.Provider = strings.ToLower(v)
	}
	if v := get("MCPORCH_ORACLE_MODEL"); v != "" {
		c.Oracle.Model = v
	} else if v := get("GEMINI_MODEL"); v != "" && c.Oracle.Provider == ProviderGemini {
		c.Oracle.Model = v
	}

	if v := get("MCPORCH_METRICS_ADDR"); v != "" {
		c.Metrics.Addr = v
	}
	if v := get("MCPORCH_TRACING_ENABLED"); v != "" {
		if enabled, err := strconv.ParseBool(v); err == nil {
			c.Tracing.Enabled = enabled
		}
	}
	if v := get("OTEL_EXPORTER_OTLP_ENDPOINT"); v != "" {
		c.Tracing.Endpoint = v
		c.Tracing.Exporter = tracing.ExporterOTLPHTTP
		if get("OTEL_EXPORTER_OTLP_PROTOCOL") == "grpc" {
			c.Tracing.Exporter = tracing.ExporterOTLPGRPC
		}
	}
}

// LoggerConfig converts the log section for internal/log.
func (c *Config) LoggerConfig() *internallog.Config {
	cfg := internallog.DefaultConfig()
	cfg.Level = c.Log.Level
	cfg.Format = internallog.Format(c.Log.Format)
	cfg.AddSource = c.Log.AddSource
	return cfg
}

// ConfigDir returns $XDG_CONFIG_HOME/mcporch, or ~/.config/mcporch.
func ConfigDir() (string, error) {
	base := os.Getenv("XDG_CONFIG_HOME")
	if base == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", err
		}
		base = filepath.Join(home, ".config")
	}
	return filepath.Join(base, "mcporch"), nil
}

// DefaultPath returns the default config file location.
func DefaultPath() (string, error) {
	dir, err := ConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "config.yaml"), nil
}

func expandHome(path string) (string, error) {
	if !strings.HasPrefix(path, "~/") {
		return path, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to get home directory: %w", err)
	}
	return filepath.Join(home, path[2:]), nil
}
