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

// Package oracle turns a prompt and a tool catalog into an execution plan and
// plan results into a natural-language answer.
package oracle

import (
	"context"
	"encoding/json"
	"time"

	"github.com/tombee/mcporch/internal/mcp"
)

// Action is what a plan step does. Only ActionInvokeTool has side effects.
type Action string

const (
	ActionInvokeTool Action = "invoke_tool"
	ActionAnalyze    Action = "analyze"
	ActionComplete   Action = "complete"
)

// Valid reports whether a is a known action.
func (a Action) Valid() bool {
	switch a {
	case ActionInvokeTool, ActionAnalyze, ActionComplete:
		return true
	}
	return false
}

// PlanStep is one step of a plan.
type PlanStep struct {
	Action      Action         `json:"action"`
	Tool        string         `json:"tool,omitempty"`
	Args        map[string]any `json:"args,omitempty"`
	Description string         `json:"description,omitempty"`
	Result      string         `json:"result,omitempty"`
}

// Plan is an ordered list of steps.
type Plan struct {
	Steps []PlanStep `json:"steps"`
}

// InvokeCount returns the number of invoke_tool steps.
func (p *Plan) InvokeCount() int {
	if p == nil {
		return 0
	}
	n := 0
	for _, s := range p.Steps {
		if s.Action == ActionInvokeTool {
			n++
		}
	}
	return n
}

// StepRecord is the outcome of one executed invoke_tool step.
type StepRecord struct {
	// Step is the 1-based position of the step in the plan.
	Step int `json:"step"`

	Tool string         `json:"tool"`
	Args map[string]any `json:"args"`

	Success bool `json:"success"`

	// Result is the tool's result member, set on success.
	Result json.RawMessage `json:"result,omitempty"`

	// Error is set on failure.
	Error *mcp.ErrorResult `json:"error,omitempty"`

	Duration time.Duration `json:"duration"`
}

// PlanWithResults is what the oracle summarizes.
type PlanWithResults struct {
	Plan    *Plan        `json:"plan"`
	Results []StepRecord `json:"results"`
}

// Oracle plans and summarizes. Implementations are best-effort remote calls;
// every failure is reported as mcp.KindOracleUnavailable.
type Oracle interface {
	GeneratePlan(ctx context.Context, prompt string, catalog []mcp.ToolDescriptor, taskCtx map[string]any) (*Plan, error)
	Summarize(ctx context.Context, prompt string, results PlanWithResults, taskCtx map[string]any) (string, error)
}

// Unavailable is an Oracle that always fails, used when no provider is
// configured.
type Unavailable struct {
	Reason string
}

// GeneratePlan implements Oracle.
func (u Unavailable) GeneratePlan(context.Context, string, []mcp.ToolDescriptor, map[string]any) (*Plan, error) {
	return nil, mcp.NewError(mcp.KindOracleUnavailable, u.Reason, nil)
}

// Summarize implements Oracle.
func (u Unavailable) Summarize(context.Context, string, PlanWithResults, map[string]any) (string, error) {
	return "", mcp.NewError(mcp.KindOracleUnavailable, u.Reason, nil)
}
