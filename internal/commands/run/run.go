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

// Package run implements the run command, which plans and executes a task
// against one MCP server.
package run

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"

	"github.com/tombee/mcporch/internal/cli/timeline"
	"github.com/tombee/mcporch/internal/commands/shared"
	"github.com/tombee/mcporch/internal/orchestrator"
)

type options struct {
	stream      bool
	contextJSON string
	timeout     time.Duration
}

// NewCommand creates the run command.
func NewCommand() *cobra.Command {
	var opts options

	cmd := &cobra.Command{
		Use:   "run <url|server-id> <task>",
		Short: "Plan and execute a task against an MCP server",
		Long: `Connect to a server, discover its tools, ask the configured LLM for a
plan and execute it step by step, then summarize the results.

Without an LLM API key a fallback plan is used that calls the first tool.

With --stream each event is printed as it happens; with --json as well,
events are written as one JSON object per line.

Examples:
  mcporch run http://localhost:8080 "find open issues labelled bug"
  mcporch run 3f2a9c1b7d40 "summarize the readme" --stream
  mcporch run http://localhost:8080 "look up the user" --context '{"user":"ada"}'`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runTask(cmd, args[0], args[1], opts)
		},
	}

	cmd.Flags().BoolVar(&opts.stream, "stream", false, "Print events as they happen")
	cmd.Flags().StringVar(&opts.contextJSON, "context", "", "Task context as a JSON object")
	cmd.Flags().DurationVar(&opts.timeout, "timeout", 0, "Overall task deadline (0 for none)")

	return cmd
}

func parseContext(raw string) (map[string]any, error) {
	if raw == "" {
		return nil, nil
	}
	var taskCtx map[string]any
	if err := json.Unmarshal([]byte(raw), &taskCtx); err != nil {
		return nil, shared.NewInputError("--context must be a JSON object", err)
	}
	return taskCtx, nil
}

type runResponse struct {
	shared.JSONResponse
	Result *orchestrator.Result `json:"result"`
}

func runTask(cmd *cobra.Command, target, prompt string, opts options) error {
	taskCtx, err := parseContext(opts.contextJSON)
	if err != nil {
		return err
	}

	ctx := cmd.Context()
	rt, err := shared.NewRuntime(ctx)
	if err != nil {
		return err
	}
	defer func() {
		if err := rt.Close(context.WithoutCancel(ctx)); err != nil {
			rt.Logger.Debug("runtime shutdown failed", "error", err)
		}
	}()

	server, err := rt.ResolveServer(target)
	if err != nil {
		return err
	}

	if opts.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, opts.timeout)
		defer cancel()
	}

	engine := rt.Engine(ctx)
	out := cmd.OutOrStdout()

	var res *orchestrator.Result
	if opts.stream {
		res, err = streamTask(ctx, rt, engine, server, prompt, taskCtx, out)
	} else {
		res, err = engine.ExecuteTask(ctx, server, prompt, taskCtx)
		if res != nil {
			if shared.GetJSON() {
				if jerr := shared.EmitJSON(rt.Masker.Writer(out), runResponse{
					JSONResponse: shared.JSONResponse{Version: "1.0", Command: "run", Success: res.Status == orchestrator.StatusSuccess},
					Result:       res,
				}); jerr != nil {
					return jerr
				}
			} else {
				renderer := timeline.NewRenderer(out)
				renderer.Mask = rt.Masker.Mask
				renderer.Result(res)
			}
		}
	}

	if err != nil {
		return shared.NewServerError("task failed", err)
	}
	return nil
}

// streamTask renders events as they arrive and rebuilds the result from
// them.
func streamTask(ctx context.Context, rt *shared.Runtime, engine *orchestrator.Engine, server orchestrator.Server, prompt string, taskCtx map[string]any, out io.Writer) (*orchestrator.Result, error) {
	stream := engine.ExecuteTaskStream(ctx, server, prompt, taskCtx)
	defer stream.Close()

	renderer := timeline.NewRenderer(out)
	renderer.Mask = rt.Masker.Mask
	encoder := json.NewEncoder(rt.Masker.Writer(out))

	var events []orchestrator.Event
	for ev := range stream.Events() {
		events = append(events, ev)
		if shared.GetJSON() {
			if err := encoder.Encode(ev); err != nil {
				return nil, fmt.Errorf("failed to write event: %w", err)
			}
			continue
		}
		renderer.Event(ev)
	}

	res, err := orchestrator.Replay(events)
	if err != nil {
		return nil, err
	}
	if !shared.GetJSON() {
		renderer.Result(res)
	}
	if res.Error != nil {
		return res, res.Error
	}
	return res, nil
}
