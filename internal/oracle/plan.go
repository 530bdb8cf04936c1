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
	"encoding/json"
	"fmt"
	"regexp"

	"github.com/tombee/mcporch/internal/mcp"
)

// jsonObject spans the first "{" to the last "}" of a reply, which strips
// prose and code fences around the plan.
var jsonObject = regexp.MustCompile(`(?s)\{.*\}`)

// ParsePlan extracts and validates a plan from model output.
func ParsePlan(text string) (*Plan, error) {
	raw := jsonObject.FindString(text)
	if raw == "" {
		return nil, mcp.NewError(mcp.KindOracleUnavailable, "reply contains no JSON object", nil)
	}

	var envelope struct {
		Steps json.RawMessage `json:"steps"`
	}
	if err := json.Unmarshal([]byte(raw), &envelope); err != nil {
		return nil, mcp.NewError(mcp.KindOracleUnavailable, "reply is not valid JSON", err)
	}
	if len(envelope.Steps) == 0 || string(envelope.Steps) == "null" {
		return nil, mcp.NewError(mcp.KindOracleUnavailable, "plan has no steps array", nil)
	}

	var plan Plan
	if err := json.Unmarshal(envelope.Steps, &plan.Steps); err != nil {
		return nil, mcp.NewError(mcp.KindOracleUnavailable, "steps is not an array of steps", err)
	}
	if err := plan.Validate(); err != nil {
		return nil, err
	}
	return &plan, nil
}

// Validate checks that the plan has steps, every action is known and every
// invoke_tool step names a tool. Tools missing from the catalog are allowed;
// they fail at execution.
func (p *Plan) Validate() error {
	if p == nil || len(p.Steps) == 0 {
		return mcp.NewError(mcp.KindOracleUnavailable, "plan is empty", nil)
	}
	for i, step := range p.Steps {
		if !step.Action.Valid() {
			return mcp.NewError(mcp.KindOracleUnavailable, fmt.Sprintf("step %d: unknown action %q", i+1, step.Action), nil)
		}
		if step.Action == ActionInvokeTool && step.Tool == "" {
			return mcp.NewError(mcp.KindOracleUnavailable, fmt.Sprintf("step %d: invoke_tool without tool", i+1), nil)
		}
	}
	return nil
}

// FallbackPlan is used when the oracle cannot plan: invoke the first tool
// with no arguments, or a no-op plan when the catalog is empty.
func FallbackPlan(catalog []mcp.ToolDescriptor) *Plan {
	if len(catalog) == 0 {
		return &Plan{Steps: []PlanStep{
			{Action: ActionAnalyze, Description: "No tools available"},
			{Action: ActionComplete, Result: "No MCP tools discovered"},
		}}
	}
	first := catalog[0].Name
	return &Plan{Steps: []PlanStep{{
		Action:      ActionInvokeTool,
		Tool:        first,
		Args:        map[string]any{},
		Description: fmt.Sprintf("Using %s as fallback", first),
	}}}
}
