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

package orchestrator

import (
	"encoding/json"
	"time"

	"github.com/tombee/mcporch/internal/mcp"
	"github.com/tombee/mcporch/internal/oracle"
)

// EventType identifies the type of event.
type EventType string

const (
	EventStart          EventType = "start"
	EventConnecting     EventType = "connecting"
	EventDiscovering    EventType = "discovering"
	EventCapabilities   EventType = "capabilities"
	EventPlanning       EventType = "planning"
	EventPlanReady      EventType = "plan_ready"
	EventExecutingStep  EventType = "executing_step"
	EventInvokingTool   EventType = "invoking_tool"
	EventToolResult     EventType = "tool_result"
	EventToolError      EventType = "tool_error"
	EventFinalizing     EventType = "finalizing"
	EventOracleResponse EventType = "oracle_response"
	EventComplete       EventType = "complete"
	EventError          EventType = "error"
)

// Terminal reports whether t ends a task's event log.
func (t EventType) Terminal() bool {
	return t == EventComplete || t == EventError
}

// Event is one entry of a task's execution log. Seq is strictly increasing
// within a task, starting at 1.
type Event struct {
	Seq       uint64    `json:"seq"`
	Type      EventType `json:"type"`
	TaskID    string    `json:"task_id"`
	Timestamp time.Time `json:"timestamp"`
	Data      any       `json:"data"` // Type depends on Type
}

// StartData is the Data for EventStart.
type StartData struct {
	ServerID string         `json:"server_id,omitempty"`
	URL      string         `json:"url"`
	Prompt   string         `json:"prompt"`
	Context  map[string]any `json:"context,omitempty"`
}

// ConnectingData is the Data for EventConnecting.
type ConnectingData struct {
	URL string `json:"url"`
}

// DiscoveringData is the Data for EventDiscovering.
type DiscoveringData struct {
	Protocol mcp.Protocol `json:"protocol"`
	Endpoint string       `json:"endpoint"`
}

// CapabilitiesData is the Data for EventCapabilities.
type CapabilitiesData struct {
	mcp.Capabilities
	ToolsCount int `json:"tools_count"`
}

// PlanningData is the Data for EventPlanning.
type PlanningData struct {
	ToolsCount int `json:"tools_count"`
}

// PlanReadyData is the Data for EventPlanReady. Fallback is set when the
// oracle could not plan; Reason says why.
type PlanReadyData struct {
	Plan       *Plan  `json:"plan"`
	StepsCount int    `json:"steps_count"`
	Fallback   bool   `json:"fallback,omitempty"`
	Reason     string `json:"reason,omitempty"`
}

// ExecutingStepData is the Data for EventExecutingStep.
type ExecutingStepData struct {
	StepIndex   int           `json:"step_index"`
	TotalSteps  int           `json:"total_steps"`
	Action      oracle.Action `json:"action"`
	Tool        string        `json:"tool,omitempty"`
	Description string        `json:"description,omitempty"`
}

// InvokingToolData is the Data for EventInvokingTool.
type InvokingToolData struct {
	Step int            `json:"step"`
	Tool string         `json:"tool"`
	Args map[string]any `json:"args"`
}

// ToolResultData is the Data for EventToolResult.
type ToolResultData struct {
	Step     int             `json:"step"`
	Tool     string          `json:"tool"`
	Args     map[string]any  `json:"args"`
	Result   json.RawMessage `json:"result"`
	Duration time.Duration   `json:"duration"`
}

// ToolErrorData is the Data for EventToolError.
type ToolErrorData struct {
	Step     int              `json:"step"`
	Tool     string           `json:"tool"`
	Args     map[string]any   `json:"args"`
	Error    *mcp.ErrorResult `json:"error"`
	Duration time.Duration    `json:"duration"`
}

// FinalizingData is the Data for EventFinalizing.
type FinalizingData struct {
	Executed  int `json:"executed"`
	Succeeded int `json:"succeeded"`
}

// OracleResponseData is the Data for EventOracleResponse. Fallback is set
// when the oracle could not summarize and Response explains why.
type OracleResponseData struct {
	Response string `json:"response"`
	Fallback bool   `json:"fallback,omitempty"`
}

// CompleteData is the Data for EventComplete.
type CompleteData struct {
	Status   Status        `json:"status"`
	Duration time.Duration `json:"duration"`
}

// ErrorData is the Data for EventError.
type ErrorData struct {
	Kind    mcp.ErrorKind `json:"kind"`
	Message string        `json:"message"`
	State   string        `json:"state"`
}

func (d ToolResultData) record() StepRecord {
	return StepRecord{
		Step:     d.Step,
		Tool:     d.Tool,
		Args:     d.Args,
		Success:  true,
		Result:   d.Result,
		Duration: d.Duration,
	}
}

func (d ToolErrorData) record() StepRecord {
	return StepRecord{
		Step:     d.Step,
		Tool:     d.Tool,
		Args:     d.Args,
		Error:    d.Error,
		Duration: d.Duration,
	}
}
