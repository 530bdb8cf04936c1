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
	"context"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// TaskMetrics records orchestration metrics through the global OTel meter
// provider. Instruments are created on first use, so they follow whatever
// provider Setup installed.
type TaskMetrics struct {
	once sync.Once
	err  error

	tasksTotal   metric.Int64Counter
	stepsTotal   metric.Int64Counter
	taskDuration metric.Float64Histogram
	stepDuration metric.Float64Histogram
}

var defaultMetrics TaskMetrics

// Metrics returns the process-wide task metrics.
func Metrics() *TaskMetrics {
	return &defaultMetrics
}

func (m *TaskMetrics) init() error {
	m.once.Do(func() {
		meter := otel.Meter("github.com/tombee/mcporch")

		if m.tasksTotal, m.err = meter.Int64Counter(
			"mcporch_orchestrator_tasks",
			metric.WithDescription("Orchestration tasks by final status"),
			metric.WithUnit("{task}"),
		); m.err != nil {
			return
		}
		if m.stepsTotal, m.err = meter.Int64Counter(
			"mcporch_orchestrator_steps",
			metric.WithDescription("Executed invoke_tool steps by outcome"),
			metric.WithUnit("{step}"),
		); m.err != nil {
			return
		}
		if m.taskDuration, m.err = meter.Float64Histogram(
			"mcporch_orchestrator_task_duration",
			metric.WithDescription("Task duration in seconds"),
			metric.WithUnit("s"),
		); m.err != nil {
			return
		}
		m.stepDuration, m.err = meter.Float64Histogram(
			"mcporch_orchestrator_step_duration",
			metric.WithDescription("Tool step duration in seconds"),
			metric.WithUnit("s"),
		)
	})
	return m.err
}

// RecordTask records one finished task.
func (m *TaskMetrics) RecordTask(ctx context.Context, status, protocol string, d time.Duration) {
	if m.init() != nil {
		return
	}
	attrs := metric.WithAttributes(
		attribute.String("status", status),
		attribute.String("protocol", protocol),
	)
	m.tasksTotal.Add(ctx, 1, attrs)
	m.taskDuration.Record(ctx, d.Seconds(), attrs)
}

// RecordStep records one executed tool step. outcome is "ok" or an error kind.
func (m *TaskMetrics) RecordStep(ctx context.Context, tool, outcome string, d time.Duration) {
	if m.init() != nil {
		return
	}
	attrs := metric.WithAttributes(
		attribute.String("tool", tool),
		attribute.String("outcome", outcome),
	)
	m.stepsTotal.Add(ctx, 1, attrs)
	m.stepDuration.Record(ctx, d.Seconds(), attrs)
}
