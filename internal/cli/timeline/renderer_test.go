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

package timeline

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/tombee/mcporch/internal/mcp"
	"github.com/tombee/mcporch/internal/oracle"
	"github.com/tombee/mcporch/internal/orchestrator"
)

func TestLine(t *testing.T) {
	tests := []struct {
		name string
		data any
		want []string
	}{
		{
			name: "discovering",
			data: orchestrator.DiscoveringData{Protocol: mcp.ProtocolSSE, Endpoint: "http://h/sse"},
			want: []string{"Detected", "http://h/sse"},
		},
		{
			name: "capabilities",
			data: orchestrator.CapabilitiesData{
				Capabilities: mcp.Capabilities{Tools: []mcp.ToolDescriptor{{Name: "echo"}, {Name: "add"}}},
				ToolsCount:   2,
			},
			want: []string{"2 tools", "echo", "add"},
		},
		{
			name: "no tools",
			data: orchestrator.CapabilitiesData{},
			want: []string{"No tools discovered"},
		},
		{
			name: "fallback plan",
			data: orchestrator.PlanReadyData{StepsCount: 2, Fallback: true, Reason: "oracle unavailable"},
			want: []string{"2 steps", "fallback", "oracle unavailable"},
		},
		{
			name: "step",
			data: orchestrator.ExecutingStepData{StepIndex: 1, TotalSteps: 3, Action: oracle.ActionInvokeTool, Tool: "echo"},
			want: []string{"Step 1/3", "invoke_tool", "echo"},
		},
		{
			name: "invoking",
			data: orchestrator.InvokingToolData{Step: 1, Tool: "echo", Args: map[string]any{"text": "hi"}},
			want: []string{"echo", `{"text":"hi"}`},
		},
		{
			name: "tool result",
			data: orchestrator.ToolResultData{Tool: "echo", Result: json.RawMessage(`{ "ok": true }`), Duration: 1500 * time.Millisecond},
			want: []string{"echo", "1.5s", `{"ok":true}`},
		},
		{
			name: "tool error",
			data: orchestrator.ToolErrorData{Tool: "echo", Error: &mcp.ErrorResult{Kind: mcp.KindToolError, Message: "boom"}},
			want: []string{"echo", "boom"},
		},
		{
			name: "complete",
			data: orchestrator.CompleteData{Status: orchestrator.StatusSuccess, Duration: 2 * time.Second},
			want: []string{"Completed in 2.0s"},
		},
		{
			name: "error",
			data: orchestrator.ErrorData{Kind: mcp.KindConnectionFailed, Message: "refused", State: "connecting"},
			want: []string{"connecting failed", "refused"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			line := Line(orchestrator.Event{Data: tt.data})
			for _, w := range tt.want {
				assert.Contains(t, line, w)
			}
		})
	}
}

func TestRenderer_Event(t *testing.T) {
	var buf bytes.Buffer
	r := NewRenderer(&buf)
	assert.Equal(t, DefaultWidth, r.Width)

	base := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	r.Event(orchestrator.Event{Type: orchestrator.EventStart, TaskID: "0123456789abcdef", Timestamp: base,
		Data: orchestrator.StartData{URL: "http://h"}})
	r.Event(orchestrator.Event{Type: orchestrator.EventConnecting, Timestamp: base.Add(250 * time.Millisecond),
		Data: orchestrator.ConnectingData{URL: "http://h"}})

	lines := strings.Split(strings.TrimRight(buf.String(), "\n"), "\n")
	assert.Len(t, lines, 2)
	assert.Contains(t, lines[0], "Task 01234567")
	assert.Contains(t, lines[1], "250ms")
	assert.Contains(t, lines[1], "Connecting to http://h")
}

func TestRenderer_TruncatesToWidth(t *testing.T) {
	var buf bytes.Buffer
	r := NewRenderer(&buf)
	r.Width = MinWidth

	r.Event(orchestrator.Event{Type: orchestrator.EventOracleResponse, Timestamp: time.Now(),
		Data: orchestrator.OracleResponseData{Response: strings.Repeat("x", 200)}})

	line := strings.TrimRight(buf.String(), "\n")
	assert.LessOrEqual(t, len([]rune(line)), MinWidth)
	assert.True(t, strings.HasSuffix(line, "…"))
}

func TestSummary(t *testing.T) {
	res := &orchestrator.Result{
		Status:   orchestrator.StatusSuccess,
		Protocol: mcp.ProtocolHTTPJSONRPC,
		Plan: &orchestrator.Plan{Steps: []orchestrator.PlanStep{
			{Action: oracle.ActionInvokeTool, Tool: "b"},
			{Action: oracle.ActionInvokeTool, Tool: "a"},
		}},
		Results: []orchestrator.StepRecord{
			{Step: 2, Tool: "a", Error: &mcp.ErrorResult{Kind: mcp.KindToolError, Message: "bad input"}},
			{Step: 1, Tool: "b", Success: true},
		},
		Summary: "Done.",
	}

	out := Summary(res, 80)
	assert.Contains(t, out, "success")
	assert.Contains(t, out, "2 steps")
	assert.Contains(t, out, "bad input")
	assert.Contains(t, out, "Done.")
	assert.Less(t, strings.Index(out, "step 1 b"), strings.Index(out, "step 2 a"))
}

func TestFormatDuration(t *testing.T) {
	assert.Equal(t, "0ms", formatDuration(0))
	assert.Equal(t, "12ms", formatDuration(12*time.Millisecond))
	assert.Equal(t, "3.2s", formatDuration(3200*time.Millisecond))
	assert.Equal(t, "2m05s", formatDuration(125*time.Second))
}

func TestRenderer_Mask(t *testing.T) {
	var buf bytes.Buffer
	r := NewRenderer(&buf)
	r.Mask = func(s string) string { return strings.ReplaceAll(s, "sk-secret", "***") }

	r.Event(orchestrator.Event{Type: orchestrator.EventInvokingTool, Timestamp: time.Now(),
		Data: orchestrator.InvokingToolData{Tool: "login", Args: map[string]any{"token": "sk-secret"}}})
	r.Result(&orchestrator.Result{Status: orchestrator.StatusSuccess, Summary: "used sk-secret"})

	assert.NotContains(t, buf.String(), "sk-secret")
	assert.Contains(t, buf.String(), `{"token":"***"}`)
}
