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

// Package orchestrator runs prompt-driven tasks against one MCP server:
// connect, discover the catalog, ask an oracle for a plan, execute its tool
// steps in order and summarize the results.
//
// Every task produces an ordered event log. ExecuteTaskStream delivers it as
// it happens; ExecuteTask collects it and returns Replay of the log, so both
// modes agree by construction.
package orchestrator

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"

	"github.com/tombee/mcporch/internal/jq"
	internallog "github.com/tombee/mcporch/internal/log"
	"github.com/tombee/mcporch/internal/mcp"
	"github.com/tombee/mcporch/internal/oracle"
	"github.com/tombee/mcporch/internal/tracing"
)

const (
	// DefaultEventBuffer is the capacity of a stream's event channel.
	DefaultEventBuffer = 16

	// DefaultToolTimeout bounds one invoke_tool step.
	DefaultToolTimeout = mcp.DefaultToolTimeout
)

var tracer = otel.Tracer("github.com/tombee/mcporch/internal/orchestrator")

// Session is the part of mcp.Client the engine uses.
type Session interface {
	Connect(ctx context.Context) error
	Capabilities() mcp.Capabilities
	InvokeTool(ctx context.Context, name string, args map[string]any) (json.RawMessage, error)
	Close() error
}

var _ Session = (*mcp.Client)(nil)

// ClientFactory creates a fresh, unconnected session for one task.
type ClientFactory func(server Server) (Session, error)

// NewClientFactory returns a factory that builds mcp.Clients with opts.
func NewClientFactory(opts ...mcp.ClientOption) ClientFactory {
	return func(server Server) (Session, error) {
		if server.URL == "" {
			return nil, mcp.NewError(mcp.KindConnectionFailed, "server has no endpoint", nil)
		}
		return mcp.NewClient(server.URL, opts...), nil
	}
}

// Engine runs orchestration tasks. It holds no per-task state and is safe for
// concurrent use; each task gets its own session.
type Engine struct {
	newClient   ClientFactory
	oracle      oracle.Oracle
	jq          *jq.Executor
	eventBuffer int
	toolTimeout time.Duration
	policy      ToolPolicy
	logger      *slog.Logger
}

// Option configures an Engine.
type Option func(*Engine)

// WithClientFactory sets how sessions are created.
func WithClientFactory(f ClientFactory) Option {
	return func(e *Engine) {
		if f != nil {
			e.newClient = f
		}
	}
}

// WithOracle sets the planning oracle.
func WithOracle(o oracle.Oracle) Option {
	return func(e *Engine) {
		if o != nil {
			e.oracle = o
		}
	}
}

// WithJQExecutor sets the executor used to resolve step references.
func WithJQExecutor(x *jq.Executor) Option {
	return func(e *Engine) {
		if x != nil {
			e.jq = x
		}
	}
}

// WithEventBuffer sets the stream channel capacity.
func WithEventBuffer(n int) Option {
	return func(e *Engine) {
		if n > 0 {
			e.eventBuffer = n
		}
	}
}

// WithToolTimeout bounds each invoke_tool step.
func WithToolTimeout(d time.Duration) Option {
	return func(e *Engine) {
		if d > 0 {
			e.toolTimeout = d
		}
	}
}

// WithToolPolicy restricts the tools tasks may plan with and call.
func WithToolPolicy(p ToolPolicy) Option {
	return func(e *Engine) { e.policy = p }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(e *Engine) {
		if l != nil {
			e.logger = l
		}
	}
}

// New creates an engine. Without WithOracle every task runs its fallback plan.
func New(opts ...Option) *Engine {
	e := &Engine{
		newClient:   NewClientFactory(),
		oracle:      oracle.Unavailable{Reason: "no oracle configured"},
		jq:          jq.NewExecutor(0, 0),
		eventBuffer: DefaultEventBuffer,
		toolTimeout: DefaultToolTimeout,
		logger:      slog.Default(),
	}
	for _, opt := range opts {
		opt(e)
	}
	e.logger = internallog.WithComponent(e.logger, "orchestrator")
	return e
}

// ExecuteTask runs a task to completion and returns the replayed result. A
// task that ends in the error state returns the result and its error.
func (e *Engine) ExecuteTask(ctx context.Context, server Server, prompt string, taskCtx map[string]any) (*Result, error) {
	var log []Event
	t := e.newTask(server, prompt, taskCtx, func(ev Event) bool {
		log = append(log, ev)
		return true
	})
	e.run(ctx, t)

	res, err := Replay(log)
	if err != nil {
		return nil, err
	}
	if res.Error != nil {
		return res, res.Error
	}
	return res, nil
}

// task is the per-run state of the state machine.
type task struct {
	id      string
	server  Server
	prompt  string
	taskCtx map[string]any
	sink    func(Event) bool
	seq     uint64
	started time.Time
	logger  *slog.Logger
}

func (e *Engine) newTask(server Server, prompt string, taskCtx map[string]any, sink func(Event) bool) *task {
	id := uuid.NewString()
	return &task{
		id:      id,
		server:  server,
		prompt:  prompt,
		taskCtx: taskCtx,
		sink:    sink,
		started: time.Now(),
		logger:  internallog.WithTask(e.logger, id, server.ID),
	}
}

// emit appends an event to the log. It returns false when nobody is
// listening any more and the task should stop.
func (t *task) emit(typ EventType, data any) bool {
	t.seq++
	return t.sink(Event{
		Seq:       t.seq,
		Type:      typ,
		TaskID:    t.id,
		Timestamp: time.Now(),
		Data:      data,
	})
}

func (t *task) fail(span *tracing.TaskSpan, state string, kind mcp.ErrorKind, err error) {
	span.RecordError(err)
	t.logger.Error("task failed", slog.String("state", state), slog.String("kind", string(kind)), internallog.Error(err))
	t.emit(EventError, ErrorData{Kind: kind, Message: err.Error(), State: state})
}

// run drives one task through connecting, discovering, planning, executing
// and finalizing. The session is always closed before run returns.
func (e *Engine) run(ctx context.Context, t *task) {
	ctx, span := tracing.StartTask(ctx, tracer, t.id, t.server.ID)
	defer span.End()

	tasksInFlight.Inc()
	defer tasksInFlight.Dec()

	status := StatusError
	var protocol mcp.Protocol
	defer func() {
		tracing.Metrics().RecordTask(context.WithoutCancel(ctx), string(status), string(protocol), time.Since(t.started))
	}()

	t.logger.Info("task started", slog.String("url", t.server.URL))
	if !t.emit(EventStart, StartData{ServerID: t.server.ID, URL: t.server.URL, Prompt: t.prompt, Context: t.taskCtx}) {
		return
	}

	// Connecting.
	if !t.emit(EventConnecting, ConnectingData{URL: t.server.URL}) {
		return
	}
	session, err := e.newClient(t.server)
	if err != nil {
		t.fail(span, "connecting", mcp.KindConnectionFailed, err)
		return
	}
	defer func() {
		if err := session.Close(); err != nil {
			t.logger.Debug("session close failed", internallog.Error(err))
		}
	}()
	if err := session.Connect(ctx); err != nil {
		t.fail(span, "connecting", connectKind(ctx, err), err)
		return
	}

	// Discovering.
	caps := session.Capabilities()
	protocol = caps.Protocol
	span.SetAttributes(map[string]any{"mcp.protocol": string(caps.Protocol), "mcp.tools": len(caps.Tools)})
	if !t.emit(EventDiscovering, DiscoveringData{Protocol: caps.Protocol, Endpoint: caps.Endpoint}) {
		return
	}
	if !t.emit(EventCapabilities, CapabilitiesData{Capabilities: caps, ToolsCount: len(caps.Tools)}) {
		return
	}

	// Planning.
	tools := e.policy.Filter(caps.Tools)
	if len(tools) < len(caps.Tools) {
		t.logger.Debug("tools hidden by policy", slog.Int("hidden", len(caps.Tools)-len(tools)))
	}
	if !t.emit(EventPlanning, PlanningData{ToolsCount: len(tools)}) {
		return
	}
	plan, reason := e.plan(ctx, t, tools)
	if err := ctx.Err(); err != nil {
		t.fail(span, "planning", cancelKind(err), err)
		return
	}
	if !t.emit(EventPlanReady, PlanReadyData{Plan: plan, StepsCount: len(plan.Steps), Fallback: reason != "", Reason: reason}) {
		return
	}
	span.AddEvent("plan_ready", map[string]any{"steps": len(plan.Steps), "fallback": reason != ""})

	// Executing.
	outputs := make(map[int]any)
	records := make([]StepRecord, 0, plan.InvokeCount())
	for i, step := range plan.Steps {
		if err := ctx.Err(); err != nil {
			t.fail(span, "executing", cancelKind(err), err)
			return
		}
		index := i + 1
		if !t.emit(EventExecutingStep, ExecutingStepData{
			StepIndex:   index,
			TotalSteps:  len(plan.Steps),
			Action:      step.Action,
			Tool:        step.Tool,
			Description: step.Description,
		}) {
			return
		}
		if step.Action != oracle.ActionInvokeTool {
			continue
		}
		rec, ok := e.invoke(ctx, t, session, caps, index, step, outputs)
		if !ok {
			return
		}
		records = append(records, rec)
	}

	// Finalizing.
	if err := ctx.Err(); err != nil {
		t.fail(span, "finalizing", cancelKind(err), err)
		return
	}
	succeeded := 0
	for _, rec := range records {
		if rec.Success {
			succeeded++
		}
	}
	if !t.emit(EventFinalizing, FinalizingData{Executed: len(records), Succeeded: succeeded}) {
		return
	}
	summary, fallback := e.summarize(ctx, t, plan, records)
	if !t.emit(EventOracleResponse, OracleResponseData{Response: summary, Fallback: fallback}) {
		return
	}

	status = StatusSuccess
	span.SetSuccess()
	elapsed := time.Since(t.started)
	t.logger.Info("task complete",
		slog.Int("steps", len(records)),
		slog.Int("succeeded", succeeded),
		slog.Int64(internallog.DurationKey, elapsed.Milliseconds()))
	t.emit(EventComplete, CompleteData{Status: status, Duration: elapsed})
}

// plan asks the oracle for a plan. On any failure it returns the fallback
// plan and the reason.
func (e *Engine) plan(ctx context.Context, t *task, tools []mcp.ToolDescriptor) (*Plan, string) {
	ctx, span := tracing.StartPhase(ctx, tracer, "planning")
	defer span.End()

	plan, err := e.oracle.GeneratePlan(ctx, t.prompt, tools, t.taskCtx)
	if err == nil {
		err = plan.Validate()
	}
	if err != nil {
		span.RecordError(err)
		t.logger.Warn("planning failed, using fallback plan", internallog.Error(err))
		plansTotal.WithLabelValues("fallback").Inc()
		return oracle.FallbackPlan(tools), err.Error()
	}
	plansTotal.WithLabelValues("oracle").Inc()
	t.logger.Debug("plan ready", slog.Int("steps", len(plan.Steps)))
	return plan, ""
}

// invoke runs one invoke_tool step. ok is false when the task must stop
// because nobody is listening.
func (e *Engine) invoke(ctx context.Context, t *task, session Session, caps mcp.Capabilities, index int, step PlanStep, outputs map[int]any) (rec StepRecord, ok bool) {
	ctx, span := tracing.StartStep(ctx, tracer, index, string(step.Action), step.Tool)
	defer span.End()

	logger := t.logger.With(internallog.StepKey, index, internallog.ToolKey, step.Tool)
	start := time.Now()

	args, err := e.jq.ResolveArgs(ctx, step.Args, func(n int) (any, bool) {
		out, found := outputs[n]
		return out, found
	})
	if err == nil {
		err = e.policy.Permits(step.Tool)
	}
	if err != nil {
		if !t.emit(EventInvokingTool, InvokingToolData{Step: index, Tool: step.Tool, Args: step.Args}) {
			return rec, false
		}
		data := ToolErrorData{
			Step:     index,
			Tool:     step.Tool,
			Args:     step.Args,
			Error:    &mcp.ErrorResult{Kind: mcp.KindToolError, Message: err.Error()},
			Duration: time.Since(start),
		}
		span.RecordError(err)
		logger.Warn("step rejected", internallog.Error(err))
		tracing.Metrics().RecordStep(ctx, step.Tool, string(mcp.KindToolError), data.Duration)
		return data.record(), t.emit(EventToolError, data)
	}
	if desc, found := caps.Tool(step.Tool); found {
		args = desc.BuildArguments(args)
	}

	if !t.emit(EventInvokingTool, InvokingToolData{Step: index, Tool: step.Tool, Args: args}) {
		return rec, false
	}

	callCtx, cancel := context.WithTimeout(ctx, e.toolTimeout)
	out, err := session.InvokeTool(callCtx, step.Tool, args)
	cancel()
	elapsed := time.Since(start)

	if err != nil {
		data := ToolErrorData{Step: index, Tool: step.Tool, Args: args, Error: toErrorResult(err), Duration: elapsed}
		span.RecordError(err)
		logger.Warn("step failed", slog.String("kind", string(data.Error.Kind)), internallog.Error(err))
		tracing.Metrics().RecordStep(ctx, step.Tool, string(data.Error.Kind), elapsed)
		return data.record(), t.emit(EventToolError, data)
	}

	var decoded any
	if err := json.Unmarshal(out, &decoded); err == nil {
		outputs[index] = decoded
	}
	logger.Debug("step complete", slog.Int64(internallog.DurationKey, elapsed.Milliseconds()))
	tracing.Metrics().RecordStep(ctx, step.Tool, "ok", elapsed)
	data := ToolResultData{Step: index, Tool: step.Tool, Args: args, Result: out, Duration: elapsed}
	return data.record(), t.emit(EventToolResult, data)
}

// summarize asks the oracle for the final answer, falling back to a short
// explanation when it cannot.
func (e *Engine) summarize(ctx context.Context, t *task, plan *Plan, records []StepRecord) (string, bool) {
	ctx, span := tracing.StartPhase(ctx, tracer, "finalizing")
	defer span.End()

	summary, err := e.oracle.Summarize(ctx, t.prompt, PlanWithResults{Plan: plan, Results: records}, t.taskCtx)
	if err == nil && summary != "" {
		return summary, false
	}
	if err == nil {
		err = errors.New("empty summary")
	}
	span.RecordError(err)
	t.logger.Warn("summary unavailable", internallog.Error(err))
	return fallbackSummary(records, err), true
}

func fallbackSummary(records []StepRecord, err error) string {
	succeeded := 0
	for _, rec := range records {
		if rec.Success {
			succeeded++
		}
	}
	return fmt.Sprintf("Executed %d of %d tool steps successfully. No summary is available: %v", succeeded, len(records), err)
}

// toErrorResult converts an InvokeTool failure into a step error.
func toErrorResult(err error) *mcp.ErrorResult {
	var result *mcp.ErrorResult
	if errors.As(err, &result) {
		return &mcp.ErrorResult{Kind: result.Kind, Message: result.Message}
	}
	kind := mcp.KindOf(err)
	if kind == "" {
		kind = mcp.KindToolError
	}
	return &mcp.ErrorResult{Kind: kind, Message: err.Error()}
}

// connectKind keeps ProtocolUndetected and cancellation distinct; everything
// else is a connection failure.
func connectKind(ctx context.Context, err error) mcp.ErrorKind {
	if ctxErr := ctx.Err(); ctxErr != nil {
		return cancelKind(ctxErr)
	}
	if mcp.KindOf(err) == mcp.KindProtocolUndetected {
		return mcp.KindProtocolUndetected
	}
	return mcp.KindConnectionFailed
}

// cancelKind maps a context error to an error kind.
func cancelKind(err error) mcp.ErrorKind {
	if errors.Is(err, context.DeadlineExceeded) {
		return mcp.KindTimeout
	}
	return mcp.KindConnectionClosed
}
