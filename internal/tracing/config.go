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

package tracing

import (
	"io"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Exporter types.
const (
	ExporterNone     = "none"
	ExporterConsole  = "console"
	ExporterOTLPHTTP = "otlp-http"
	ExporterOTLPGRPC = "otlp-grpc"
)

// Config holds observability configuration.
type Config struct {
	// Enabled controls whether spans are recorded and exported.
	Enabled bool `yaml:"enabled"`

	// ServiceName identifies this service in traces.
	ServiceName string `yaml:"service_name"`

	// ServiceVersion is the application version.
	ServiceVersion string `yaml:"-"`

	// Exporter is "console", "otlp-http", "otlp-grpc" or "none".
	Exporter string `yaml:"exporter"`

	// Endpoint is the OTLP receiver host:port.
	Endpoint string `yaml:"endpoint"`

	// Insecure disables TLS to the OTLP receiver.
	Insecure bool `yaml:"insecure"`

	// Headers are sent with every OTLP export.
	Headers map[string]string `yaml:"headers"`

	// SampleRate is the fraction of root traces to record (0.0 - 1.0).
	SampleRate float64 `yaml:"sample_rate"`

	// BatchInterval is how often spans are flushed.
	BatchInterval time.Duration `yaml:"batch_interval"`

	// Writer receives console exporter output. Defaults to stderr.
	Writer io.Writer `yaml:"-"`

	// Registerer receives the OTel metrics collector. Defaults to
	// prometheus.DefaultRegisterer.
	Registerer prometheus.Registerer `yaml:"-"`
}

// DefaultConfig returns configuration with sensible defaults.
func DefaultConfig() Config {
	return Config{
		Enabled:        false,
		ServiceName:    "mcporch",
		ServiceVersion: "dev",
		Exporter:       ExporterConsole,
		SampleRate:     1.0,
		BatchInterval:  5 * time.Second,
	}
}
