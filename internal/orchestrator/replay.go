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
	"fmt"

	"github.com/tombee/mcporch/internal/mcp"
	pkgerrors "github.com/tombee/mcporch/pkg/errors"
)

// Replay rebuilds a task's Result from its event log. The log must start with
// a start event, have strictly increasing sequence numbers and end with
// exactly one terminal event.
func Replay(events []Event) (*Result, error) {
	if len(events) == 0 {
		return nil, invalidLog("event log is empty")
	}
	if events[0].Type != EventStart {
		return nil, invalidLog(fmt.Sprintf("event log starts with %q", events[0].Type))
	}

	res := &Result{Results: []StepRecord{}}
	var lastSeq uint64
	terminal := false

	for i, ev := range events {
		if terminal {
			return nil, invalidLog(fmt.Sprintf("event %d (%s) follows the terminal event", ev.Seq, ev.Type))
		}
		if i > 0 && ev.Seq <= lastSeq {
			return nil, invalidLog(fmt.Sprintf("sequence %d does not follow %d", ev.Seq, lastSeq))
		}
		lastSeq = ev.Seq

		switch ev.Type {
		case EventStart:
			if i > 0 {
				return nil, invalidLog("duplicate start event")
			}
			data, err := payload[StartData](ev)
			if err != nil {
				return nil, err
			}
			res.TaskID = ev.TaskID
			res.Prompt = data.Prompt
			res.ServerID = data.ServerID

		case EventCapabilities:
			data, err := payload[CapabilitiesData](ev)
			if err != nil {
				return nil, err
			}
			caps := data.Capabilities
			res.Protocol = caps.Protocol
			res.Capabilities = &caps

		case EventPlanReady:
			data, err := payload[PlanReadyData](ev)
			if err != nil {
				return nil, err
			}
			res.Plan = data.Plan
			res.PlanFallback = data.Fallback

		case EventToolResult:
			data, err := payload[ToolResultData](ev)
			if err != nil {
				return nil, err
			}
			res.Results = append(res.Results, data.record())

		case EventToolError:
			data, err := payload[ToolErrorData](ev)
			if err != nil {
				return nil, err
			}
			res.Results = append(res.Results, data.record())

		case EventOracleResponse:
			data, err := payload[OracleResponseData](ev)
			if err != nil {
				return nil, err
			}
			res.Summary = data.Response

		case EventComplete:
			data, err := payload[CompleteData](ev)
			if err != nil {
				return nil, err
			}
			res.Status = data.Status
			terminal = true

		case EventError:
			data, err := payload[ErrorData](ev)
			if err != nil {
				return nil, err
			}
			res.Status = StatusError
			res.Error = &mcp.ErrorResult{Kind: data.Kind, Message: data.Message}
			terminal = true

		case EventConnecting, EventDiscovering, EventPlanning, EventExecutingStep,
			EventInvokingTool, EventFinalizing:
			// Progress only.

		default:
			return nil, invalidLog(fmt.Sprintf("unknown event type %q", ev.Type))
		}
	}

	if !terminal {
		return nil, invalidLog("event log has no terminal event")
	}
	return res, nil
}

func payload[T any](ev Event) (T, error) {
	data, ok := ev.Data.(T)
	if !ok {
		var zero T
		return zero, invalidLog(fmt.Sprintf("event %d (%s) carries %T, want %T", ev.Seq, ev.Type, ev.Data, zero))
	}
	return data, nil
}

func invalidLog(msg string) error {
	return &pkgerrors.ValidationError{Field: "events", Message: msg}
}
