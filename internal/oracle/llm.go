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

package oracle

import (
	"bytes"
	"context"
	"embed"
	"encoding/json"
	"fmt"
	"log/slog"
	"text/template"
	"time"
	"unicode/utf8"

	internallog "github.com/tombee/mcporch/internal/log"
	"github.com/tombee/mcporch/internal/mcp"
	"github.com/tombee/mcporch/pkg/llm"
)

//go:embed prompts/*.tmpl
var promptFS embed.FS

var prompts = template.Must(template.ParseFS(promptFS, "prompts/*.tmpl"))

// refExample is shown to the model as the syntax for chaining step outputs.
const refExample = "{{ steps[N] | <jq expression> }}"

const (
	DefaultPlanTimeout    = 30 * time.Second
	DefaultSummaryTimeout = 30 * time.Second

	planTemperature    = 0.1
	planMaxTokens      = 1024
	summaryTemperature = 0.7
	summaryMaxTokens   = 2048
)

// LLMOracle plans and summarizes with an llm.Provider.
type LLMOracle struct {
	provider       llm.Provider
	model          string
	planTimeout    time.Duration
	summaryTimeout time.Duration
	logger         *slog.Logger
}

// LLMOption configures an LLMOracle.
type LLMOption func(*LLMOracle)

// WithModel overrides the provider's default model.
func WithModel(model string) LLMOption {
	return func(o *LLMOracle) { o.model = model }
}

// WithPlanTimeout bounds plan generation.
func WithPlanTimeout(d time.Duration) LLMOption {
	return func(o *LLMOracle) {
		if d > 0 {
			o.planTimeout = d
		}
	}
}

// WithSummaryTimeout bounds summarization.
func WithSummaryTimeout(d time.Duration) LLMOption {
	return func(o *LLMOracle) {
		if d > 0 {
			o.summaryTimeout = d
		}
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) LLMOption {
	return func(o *LLMOracle) {
		if logger != nil {
			o.logger = logger
		}
	}
}

// NewLLMOracle creates an oracle backed by provider.
func NewLLMOracle(provider llm.Provider, opts ...LLMOption) *LLMOracle {
	o := &LLMOracle{
		provider:       provider,
		planTimeout:    DefaultPlanTimeout,
		summaryTimeout: DefaultSummaryTimeout,
		logger:         slog.Default(),
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

type planData struct {
	Prompt     string
	Tools      []mcp.ToolDescriptor
	Context    string
	RefExample string
}

type summaryData struct {
	Prompt  string
	Context string
	Results string
}

// GeneratePlan implements Oracle.
func (o *LLMOracle) GeneratePlan(ctx context.Context, prompt string, catalog []mcp.ToolDescriptor, taskCtx map[string]any) (*Plan, error) {
	taskJSON, err := renderContext(taskCtx)
	if err != nil {
		return nil, err
	}
	text, err := render("plan.tmpl", planData{
		Prompt:     prompt,
		Tools:      catalog,
		Context:    taskJSON,
		RefExample: refExample,
	})
	if err != nil {
		return nil, err
	}

	reply, err := o.complete(ctx, "plan generation", o.planTimeout, text, planTemperature, planMaxTokens)
	if err != nil {
		return nil, err
	}

	plan, err := ParsePlan(reply)
	if err != nil {
		o.logger.Debug("unusable plan reply", slog.String("reply", truncate(reply, 512)), internallog.Error(err))
		return nil, err
	}
	return plan, nil
}

// Summarize implements Oracle.
func (o *LLMOracle) Summarize(ctx context.Context, prompt string, results PlanWithResults, taskCtx map[string]any) (string, error) {
	taskJSON, err := renderContext(taskCtx)
	if err != nil {
		return "", err
	}
	resultsJSON, err := json.MarshalIndent(results, "", "  ")
	if err != nil {
		return "", mcp.NewError(mcp.KindOracleUnavailable, "encode plan results", err)
	}
	text, err := render("summary.tmpl", summaryData{
		Prompt:  prompt,
		Context: taskJSON,
		Results: string(resultsJSON),
	})
	if err != nil {
		return "", err
	}
	return o.complete(ctx, "summarization", o.summaryTimeout, text, summaryTemperature, summaryMaxTokens)
}

func (o *LLMOracle) complete(ctx context.Context, op string, timeout time.Duration, prompt string, temperature float64, maxTokens int) (string, error) {
	if o.provider == nil {
		return "", mcp.NewError(mcp.KindOracleUnavailable, "no provider configured", nil)
	}

	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	internallog.Trace(o.logger, "oracle prompt", slog.String("operation", op), slog.String("prompt", prompt))
	resp, err := o.provider.Complete(ctx, llm.CompletionRequest{
		Messages:    llm.UserPrompt(prompt),
		Model:       o.model,
		Temperature: llm.Float64(temperature),
		MaxTokens:   llm.Int(maxTokens),
	})
	if err != nil {
		return "", mcp.NewError(mcp.KindOracleUnavailable, fmt.Sprintf("%s via %s", op, o.provider.Name()), err)
	}
	if resp == nil || resp.Content == "" {
		return "", mcp.NewError(mcp.KindOracleUnavailable, fmt.Sprintf("%s via %s: empty reply", op, o.provider.Name()), nil)
	}

	o.logger.Debug("oracle call complete",
		slog.String("operation", op),
		slog.String("provider", o.provider.Name()),
		slog.String("model", resp.Model),
		slog.Int("output_tokens", resp.Usage.OutputTokens))
	if resp.Truncated() {
		o.logger.Warn("oracle reply truncated",
			slog.String("operation", op),
			slog.String("finish_reason", string(resp.FinishReason)))
	}
	return resp.Content, nil
}

func render(name string, data any) (string, error) {
	var buf bytes.Buffer
	if err := prompts.ExecuteTemplate(&buf, name, data); err != nil {
		return "", mcp.NewError(mcp.KindOracleUnavailable, "render "+name, err)
	}
	return buf.String(), nil
}

func renderContext(taskCtx map[string]any) (string, error) {
	if len(taskCtx) == 0 {
		return "", nil
	}
	b, err := json.MarshalIndent(taskCtx, "", "  ")
	if err != nil {
		return "", mcp.NewError(mcp.KindOracleUnavailable, "encode task context", err)
	}
	return string(b), nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n] + "..."
}
