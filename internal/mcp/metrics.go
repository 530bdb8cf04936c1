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

package mcp

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	probesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "mcporch_detection_probes_total",
			Help: "Detection probes by strategy and outcome",
		},
		[]string{"strategy", "outcome"},
	)

	detectionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "mcporch_detections_total",
			Help: "Completed endpoint detections by resulting protocol",
		},
		[]string{"protocol"},
	)

	requestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "mcporch_transport_request_duration_seconds",
			Help:    "Duration of MCP requests by protocol, method and outcome",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"protocol", "method", "outcome"},
	)

	toolCallsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "mcporch_tool_calls_total",
			Help: "Tool invocations by outcome kind",
		},
		[]string{"outcome"},
	)

	vendorFallbacksTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "mcporch_vendor_fallbacks_total",
			Help: "Times a static vendor catalog or endpoint replaced discovery",
		},
		[]string{"vendor", "kind"},
	)
)

// recordRequest records one transport round trip.
func recordRequest(protocol Protocol, method string, start time.Time, err error) {
	outcome := "ok"
	if err != nil {
		outcome = string(KindOf(err))
		if outcome == "" {
			outcome = "error"
		}
	}
	requestDuration.WithLabelValues(string(protocol), method, outcome).Observe(time.Since(start).Seconds())
}

func recordProbe(strategy string, res ProbeResult) {
	outcome := "miss"
	switch {
	case res.Matched:
		outcome = "match"
	case res.Err != nil:
		outcome = "error"
	}
	probesTotal.WithLabelValues(strategy, outcome).Inc()
}
