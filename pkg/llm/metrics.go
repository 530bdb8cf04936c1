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

package llm

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	completionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "mcporch_llm_completions_total",
		Help: "LLM completion requests by provider and outcome.",
	}, []string{"provider", "outcome"})

	completionDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "mcporch_llm_completion_duration_seconds",
		Help:    "LLM completion latency.",
		Buckets: []float64{0.25, 0.5, 1, 2.5, 5, 10, 30, 60},
	}, []string{"provider"})

	tokensTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "mcporch_llm_tokens_total",
		Help: "Tokens consumed by provider and direction.",
	}, []string{"provider", "direction"})
)

// ObserveCompletion records one completion. Providers call it once per
// request; resp may be nil on failure.
func ObserveCompletion(provider string, start time.Time, resp *CompletionResponse, err error) {
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	completionsTotal.WithLabelValues(provider, outcome).Inc()
	completionDuration.WithLabelValues(provider).Observe(time.Since(start).Seconds())
	if resp != nil {
		tokensTotal.WithLabelValues(provider, "input").Add(float64(resp.Usage.InputTokens))
		tokensTotal.WithLabelValues(provider, "output").Add(float64(resp.Usage.OutputTokens))
	}
}
