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

// Package timeline renders a task's event stream as it arrives.
package timeline

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	"golang.org/x/term"

	"github.com/tombee/mcporch/internal/commands/shared"
	"github.com/tombee/mcporch/internal/orchestrator"
)

const (
	// MinWidth is the narrowest layout rendered.
	MinWidth = 40

	// DefaultWidth is used when the output is not a terminal.
	DefaultWidth = 100
)

var elapsedStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("240")).Width(8).Align(lipgloss.Right)

// Renderer writes one line per event.
type Renderer struct {
	w     io.Writer
	Width int

	// Mask, when set, is applied to every line before it is written.
	Mask func(string) string

	start time.Time
}

// NewRenderer creates a renderer writing to w, sized to the terminal when w
// is one.
func NewRenderer(w io.Writer) *Renderer {
	width := DefaultWidth
	if f, ok := w.(*os.File); ok && term.IsTerminal(int(f.Fd())) {
		if tw, _, err := term.GetSize(int(f.Fd())); err == nil {
			width = tw
		}
	}
	if width < MinWidth {
		width = MinWidth
	}
	return &Renderer{w: w, Width: width}
}

// Event renders ev. Events are expected in sequence order.
func (r *Renderer) Event(ev orchestrator.Event) {
	if r.start.IsZero() || ev.Type == orchestrator.EventStart {
		r.start = ev.Timestamp
	}
	elapsed := ev.Timestamp.Sub(r.start)
	prefix := elapsedStyle.Render(formatDuration(elapsed)) + "  "

	body := Line(ev)
	if body == "" {
		return
	}
	if r.Mask != nil {
		body = r.Mask(body)
	}
	room := r.Width - lipgloss.Width(prefix)
	for i, line := range strings.Split(body, "\n") {
		if i > 0 {
			prefix = strings.Repeat(" ", lipgloss.Width(prefix))
		}
		fmt.Fprintln(r.w, prefix+truncate(line, room))
	}
}

// Line describes ev in one or more lines, without timing.
func Line(ev orchestrator.Event) string {
	switch d := ev.Data.(type) {
	case orchestrator.StartData:
		return shared.Header.Render("Task "+shortID(ev.TaskID)) + " " + shared.Muted.Render(d.URL)
	case orchestrator.ConnectingData:
		return shared.RenderInfo("Connecting to " + d.URL)
	case orchestrator.DiscoveringData:
		return shared.RenderInfo("Detected " + shared.RenderProtocol(d.Protocol) + " at " + d.Endpoint)
	case orchestrator.CapabilitiesData:
		names := d.ToolNames()
		if len(names) == 0 {
			return shared.RenderWarn("No tools discovered")
		}
		return shared.RenderInfo(fmt.Sprintf("%d tools: %s", d.ToolsCount, strings.Join(names, ", ")))
	case orchestrator.PlanningData:
		return shared.RenderInfo(fmt.Sprintf("Planning with %d tools", d.ToolsCount))
	case orchestrator.PlanReadyData:
		msg := fmt.Sprintf("Plan ready: %d steps", d.StepsCount)
		if d.Fallback {
			return shared.RenderWarn(msg + shared.Muted.Render(" (fallback: "+d.Reason+")"))
		}
		return shared.RenderOK(msg)
	case orchestrator.ExecutingStepData:
		msg := fmt.Sprintf("Step %d/%d %s", d.StepIndex, d.TotalSteps, d.Action)
		if d.Tool != "" {
			msg += " " + shared.Bold.Render(d.Tool)
		}
		if d.Description != "" {
			msg += shared.Muted.Render(" - " + d.Description)
		}
		return msg
	case orchestrator.InvokingToolData:
		return "  " + shared.SymbolArrow + " " + d.Tool + shared.Muted.Render(" "+compactJSON(d.Args))
	case orchestrator.ToolResultData:
		return "  " + shared.RenderOK(fmt.Sprintf("%s (%s) %s", d.Tool, formatDuration(d.Duration), shared.Muted.Render(compactJSON(d.Result))))
	case orchestrator.ToolErrorData:
		msg := "unknown error"
		if d.Error != nil {
			msg = fmt.Sprintf("%s: %s", d.Error.Kind, d.Error.Message)
		}
		return "  " + shared.RenderError(fmt.Sprintf("%s (%s) %s", d.Tool, formatDuration(d.Duration), msg))
	case orchestrator.FinalizingData:
		return shared.RenderInfo(fmt.Sprintf("Summarizing: %d of %d tool steps succeeded", d.Succeeded, d.Executed))
	case orchestrator.OracleResponseData:
		if d.Fallback {
			return shared.RenderWarn(d.Response)
		}
		return d.Response
	case orchestrator.CompleteData:
		if d.Status == orchestrator.StatusSuccess {
			return shared.RenderOK("Completed in " + formatDuration(d.Duration))
		}
		return shared.RenderError(fmt.Sprintf("Finished with status %s after %s", d.Status, formatDuration(d.Duration)))
	case orchestrator.ErrorData:
		return shared.RenderError(fmt.Sprintf("%s failed: %s: %s", d.State, d.Kind, d.Message))
	default:
		return string(ev.Type)
	}
}

// Result renders a finished task as a framed block.
func (r *Renderer) Result(res *orchestrator.Result) {
	out := Summary(res, r.Width)
	if r.Mask != nil {
		out = r.Mask(out)
	}
	fmt.Fprintln(r.w, out)
}

// Summary formats the final state of a task.
func Summary(res *orchestrator.Result, width int) string {
	var sb strings.Builder

	status := shared.RenderOK("success")
	if res.Status != orchestrator.StatusSuccess {
		status = shared.RenderError(string(res.Status))
	}
	fmt.Fprintf(&sb, "%s %s\n", shared.RenderLabel("status:  "), status)
	if res.Protocol != "" {
		fmt.Fprintf(&sb, "%s %s\n", shared.RenderLabel("protocol:"), shared.RenderProtocol(res.Protocol))
	}
	if res.Plan != nil {
		plan := fmt.Sprintf("%d steps", len(res.Plan.Steps))
		if res.PlanFallback {
			plan += " (fallback)"
		}
		fmt.Fprintf(&sb, "%s %s\n", shared.RenderLabel("plan:    "), plan)
	}

	results := append([]orchestrator.StepRecord(nil), res.Results...)
	sort.Slice(results, func(i, j int) bool { return results[i].Step < results[j].Step })
	for _, rec := range results {
		line := fmt.Sprintf("step %d %s", rec.Step, rec.Tool)
		if rec.Success {
			fmt.Fprintln(&sb, "  "+shared.RenderOK(line))
		} else {
			msg := ""
			if rec.Error != nil {
				msg = ": " + rec.Error.Message
			}
			fmt.Fprintln(&sb, "  "+shared.RenderError(line+msg))
		}
	}

	if res.Error != nil {
		fmt.Fprintf(&sb, "%s %s: %s\n", shared.RenderLabel("error:   "), res.Error.Kind, res.Error.Message)
	}
	if res.Summary != "" {
		sb.WriteString("\n" + res.Summary)
	}

	inner := width - 4
	if inner < MinWidth-4 {
		inner = MinWidth - 4
	}
	return shared.Block.Width(inner).Render(strings.TrimRight(sb.String(), "\n"))
}

func compactJSON(v any) string {
	if raw, ok := v.(json.RawMessage); ok {
		if len(raw) == 0 {
			return "null"
		}
		var decoded any
		if err := json.Unmarshal(raw, &decoded); err == nil {
			v = decoded
		}
	}
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Sprintf("%v", v)
	}
	return string(data)
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

// formatDuration formats a duration for display.
func formatDuration(d time.Duration) string {
	switch {
	case d < time.Millisecond:
		return "0ms"
	case d < time.Second:
		return fmt.Sprintf("%dms", d.Milliseconds())
	case d < time.Minute:
		return fmt.Sprintf("%.1fs", d.Seconds())
	default:
		return fmt.Sprintf("%dm%02ds", int(d.Minutes()), int(d.Seconds())%60)
	}
}

// truncate shortens s to max display cells with an ellipsis.
func truncate(s string, max int) string {
	if max <= 0 || lipgloss.Width(s) <= max {
		return s
	}
	runes := []rune(s)
	for len(runes) > 0 && lipgloss.Width(string(runes))+1 > max {
		runes = runes[:len(runes)-1]
	}
	return string(runes) + "…"
}
