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
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tombee/mcporch/internal/mcp"
)

func TestParsePlan(t *testing.T) {
	tests := []struct {
		name      string
		input     string
		wantSteps int
		wantErr   bool
	}{
		{name: "bare object", input: `{"steps":[{"action":"analyze","description":"look"}]}`, wantSteps: 1},
		{name: "fenced", input: "```json\n{\"steps\":[{\"action\":\"complete\",\"result\":\"done\"}]}\n```", wantSteps: 1},
		{name: "prose around", input: "Plan:\n{\"steps\":[{\"action\":\"invoke_tool\",\"tool\":\"a\"},{\"action\":\"invoke_tool\",\"tool\":\"b\"}]}\nThanks", wantSteps: 2},
		{name: "no object", input: "no plan here", wantErr: true},
		{name: "missing steps", input: `{"plan":[]}`, wantErr: true},
		{name: "null steps", input: `{"steps":null}`, wantErr: true},
		{name: "empty steps", input: `{"steps":[]}`, wantErr: true},
		{name: "steps not array", input: `{"steps":"invoke"}`, wantErr: true},
		{name: "invoke without tool", input: `{"steps":[{"action":"invoke_tool"}]}`, wantErr: true},
		{name: "unknown action", input: `{"steps":[{"action":"delete_everything"}]}`, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			plan, err := ParsePlan(tt.input)
			if tt.wantErr {
				require.Error(t, err)
				assert.ErrorIs(t, err, mcp.ErrOracleUnavailable)
				return
			}
			require.NoError(t, err)
			assert.Len(t, plan.Steps, tt.wantSteps)
		})
	}
}

func TestParsePlan_UnknownToolIsAccepted(t *testing.T) {
	plan, err := ParsePlan(`{"steps":[{"action":"invoke_tool","tool":"not_in_catalog","args":{"x":1}}]}`)
	require.NoError(t, err)
	assert.Equal(t, "not_in_catalog", plan.Steps[0].Tool)
	assert.Equal(t, float64(1), plan.Steps[0].Args["x"])
}

func TestFallbackPlan(t *testing.T) {
	t.Run("first tool", func(t *testing.T) {
		plan := FallbackPlan([]mcp.ToolDescriptor{{Name: "resolve-library-id"}, {Name: "get-library-docs"}})
		require.Len(t, plan.Steps, 1)
		assert.Equal(t, PlanStep{
			Action:      ActionInvokeTool,
			Tool:        "resolve-library-id",
			Args:        map[string]any{},
			Description: "Using resolve-library-id as fallback",
		}, plan.Steps[0])
		assert.Equal(t, 1, plan.InvokeCount())
	})

	t.Run("empty catalog", func(t *testing.T) {
		plan := FallbackPlan(nil)
		require.Len(t, plan.Steps, 2)
		assert.Equal(t, ActionAnalyze, plan.Steps[0].Action)
		assert.Equal(t, "No tools available", plan.Steps[0].Description)
		assert.Equal(t, ActionComplete, plan.Steps[1].Action)
		assert.Equal(t, "No MCP tools discovered", plan.Steps[1].Result)
		assert.Zero(t, plan.InvokeCount())
		assert.NoError(t, plan.Validate())
	})
}

func TestAction_Valid(t *testing.T) {
	assert.True(t, ActionInvokeTool.Valid())
	assert.True(t, ActionAnalyze.Valid())
	assert.True(t, ActionComplete.Valid())
	assert.False(t, Action("").Valid())
	assert.False(t, Action("INVOKE_TOOL").Valid())
}
