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
	"fmt"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// TaskSpan wraps an OpenTelemetry span with orchestration helpers. A nil
// *TaskSpan is safe to use.
type TaskSpan struct {
	span trace.Span
}

// StartTask creates the root span for one orchestration task.
func StartTask(ctx context.Context, tracer trace.Tracer, taskID, serverID string) (context.Context, *TaskSpan) {
	ctx, span := tracer.Start(ctx, "orchestrator.task",
		trace.WithSpanKind(trace.SpanKindInternal),
		trace.WithAttributes(
			attribute.String("task.id", taskID),
			attribute.String("server.id", serverID),
			attribute.String("span.type", "orchestrator.task"),
		),
	)
	return ctx, &TaskSpan{span: span}
}

// StartPhase creates a span for one engine phase such as planning.
func StartPhase(ctx context.Context, tracer trace.Tracer, phase string) (context.Context, *TaskSpan) {
	ctx, span := tracer.Start(ctx, "orchestrator."+phase,
		trace.WithSpanKind(trace.SpanKindInternal),
		trace.WithAttributes(attribute.String("span.type", "orchestrator.phase")),
	)
	return ctx, &TaskSpan{span: span}
}

// StartStep creates a span for one plan step.
func StartStep(ctx context.Context, tracer trace.Tracer, index int, action, tool string) (context.Context, *TaskSpan) {
	ctx, span := tracer.Start(ctx, fmt.Sprintf("step: %d", index),
		trace.WithSpanKind(trace.SpanKindInternal),
		trace.WithAttributes(
			attribute.Int("step.index", index),
			attribute.String("step.action", action),
			attribute.String("step.tool", tool),
			attribute.String("span.type", "orchestrator.step"),
		),
	)
	return ctx, &TaskSpan{span: span}
}

// SetAttributes adds key-value attributes to the span.
func (s *TaskSpan) SetAttributes(attrs map[string]any) {
	if s == nil || s.span == nil {
		return
	}
	s.span.SetAttributes(toAttributes(attrs)...)
}

// AddEvent records a timestamped event within the span.
func (s *TaskSpan) AddEvent(name string, attrs map[string]any) {
	if s == nil || s.span == nil {
		return
	}
	s.span.AddEvent(name, trace.WithAttributes(toAttributes(attrs)...))
}

// RecordError marks the span failed.
func (s *TaskSpan) RecordError(err error) {
	if s == nil || s.span == nil || err == nil {
		return
	}
	s.span.RecordError(err)
	s.span.SetStatus(codes.Error, err.Error())
}

// SetSuccess marks the span successful.
func (s *TaskSpan) SetSuccess() {
	if s == nil || s.span == nil {
		return
	}
	s.span.SetStatus(codes.Ok, "")
}

// End completes the span.
func (s *TaskSpan) End() {
	if s == nil || s.span == nil {
		return
	}
	s.span.End()
}

func toAttributes(attrs map[string]any) []attribute.KeyValue {
	out := make([]attribute.KeyValue, 0, len(attrs))
	for k, v := range attrs {
		switch val := v.(type) {
		case string:
			out = append(out, attribute.String(k, val))
		case int:
			out = append(out, attribute.Int(k, val))
		case int64:
			out = append(out, attribute.Int64(k, val))
		case float64:
			out = append(out, attribute.Float64(k, val))
		case bool:
			out = append(out, attribute.Bool(k, val))
		case fmt.Stringer:
			out = append(out, attribute.String(k, val.String()))
		default:
			out = append(out, attribute.String(k, fmt.Sprintf("%v", val)))
		}
	}
	return out
}
