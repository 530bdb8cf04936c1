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

package config

import (
	"fmt"
	"strings"

	"github.com/bmatcuk/doublestar/v4"

	internallog "github.com/tombee/mcporch/internal/log"
	"github.com/tombee/mcporch/internal/tracing"
	pkgerrors "github.com/tombee/mcporch/pkg/errors"
)

var (
	validLevels    = []string{"trace", "debug", "info", "warn", "error"}
	validFormats   = []string{string(internallog.FormatJSON), string(internallog.FormatText), string(internallog.FormatAuto)}
	validProviders = []string{ProviderGemini, ProviderAnthropic, ProviderOpenAI, ProviderNone}
	validExporters = []string{tracing.ExporterConsole, tracing.ExporterOTLPHTTP, tracing.ExporterOTLPGRPC, tracing.ExporterNone}
)

// Validate checks the configuration and returns the first problem as a
// *errors.ConfigError naming the offending key.
func (c *Config) Validate() error {
	checks := []struct {
		key    string
		ok     bool
		reason string
	}{
		{"log.level", contains(validLevels, c.Log.Level), oneOf(c.Log.Level, validLevels)},
		{"log.format", contains(validFormats, c.Log.Format), oneOf(c.Log.Format, validFormats)},
		{"oracle.provider", contains(validProviders, c.Oracle.Provider), oneOf(c.Oracle.Provider, validProviders)},
		{"oracle.plan_timeout", c.Oracle.PlanTimeout > 0, "must be positive"},
		{"oracle.summary_timeout", c.Oracle.SummaryTimeout > 0, "must be positive"},
		{"oracle.max_retries", c.Oracle.MaxRetries >= 0, "must not be negative"},
		{"detection.probe_timeout", c.Detection.ProbeTimeout > 0, "must be positive"},
		{"detection.probe_rate", c.Detection.ProbeRate >= 0, "must not be negative"},
		{"detection.probe_burst", c.Detection.ProbeBurst > 0, "must be positive"},
		{"client.request_timeout", c.Client.RequestTimeout > 0, "must be positive"},
		{"client.tool_timeout", c.Client.ToolTimeout > 0, "must be positive"},
		{"client.oauth.client_id", !c.Client.OAuth.Enabled() || c.Client.OAuth.ClientID != "", "is required when client.oauth.token_url is set"},
		{"client.oauth.client_secret", !c.Client.OAuth.Enabled() || c.Client.OAuth.ClientSecret != "", "is required when client.oauth.token_url is set"},
		{"engine.event_buffer", c.Engine.EventBuffer >= 0, "must not be negative"},
		{"engine.allow_tools", validPatterns(c.Engine.AllowTools), "contains a malformed glob pattern"},
		{"engine.deny_tools", validPatterns(c.Engine.DenyTools), "contains a malformed glob pattern"},
		{"discovery.concurrency", c.Discovery.Concurrency > 0, "must be positive"},
		{"discovery.timeout", c.Discovery.Timeout > 0, "must be positive"},
		{"tracing.exporter", contains(validExporters, c.Tracing.Exporter), oneOf(c.Tracing.Exporter, validExporters)},
		{"tracing.sample_rate", c.Tracing.SampleRate >= 0 && c.Tracing.SampleRate <= 1, "must be between 0.0 and 1.0"},
		{
			"tracing.endpoint",
			!c.Tracing.Enabled || !strings.HasPrefix(c.Tracing.Exporter, "otlp") || c.Tracing.Endpoint != "",
			"is required for OTLP exporters",
		},
	}

	for _, check := range checks {
		if !check.ok {
			return &pkgerrors.ConfigError{Key: check.key, Reason: check.reason}
		}
	}
	return nil
}

func contains(values []string, v string) bool {
	for _, candidate := range values {
		if candidate == v {
			return true
		}
	}
	return false
}

func validPatterns(patterns []string) bool {
	for _, p := range patterns {
		if !doublestar.ValidatePattern(p) {
			return false
		}
	}
	return true
}

func oneOf(got string, values []string) string {
	return fmt.Sprintf("got %q, must be one of %s", got, strings.Join(values, ", "))
}
