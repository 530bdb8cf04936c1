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

// Package tracing wires OpenTelemetry tracing and metrics for mcporch.
//
// Spans are created through the global tracer provider, so packages such as
// internal/mcp and internal/orchestrator call otel.Tracer directly and get
// no-op spans until Setup installs a real provider:
//
//	provider, err := tracing.Setup(ctx, cfg)
//	if err != nil {
//	    return err
//	}
//	defer provider.Shutdown(context.Background())
//
// Metrics from both the OpenTelemetry meter and prometheus/client_golang
// collectors are served from the default Prometheus registry by
// MetricsHandler and ServeMetrics.
package tracing
