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

package session

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/tombee/mcporch/internal/commands/shared"
	"github.com/tombee/mcporch/internal/jq"
	"github.com/tombee/mcporch/internal/mcp"
)

// NewInvokeCommand creates the invoke command.
func NewInvokeCommand() *cobra.Command {
	var (
		argsJSON string
		argPairs []string
		query    string
	)

	cmd := &cobra.Command{
		Use:   "invoke <url|server-id> <tool>",
		Short: "Call one tool on a server",
		Long: `Connect to a server and call a tool with the given arguments.

Arguments come from --args (a JSON object) and --arg key=value pairs; pairs
win over keys in --args. Schema defaults are filled in for missing keys.
--query applies a jq expression to the result before printing it.

Examples:
  mcporch invoke http://localhost:8080 search --args '{"query":"go"}'
  mcporch invoke http://localhost:8080 search --arg query=go --query '.content[0].text'`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			toolArgs, err := parseArgs(argsJSON, argPairs)
			if err != nil {
				return err
			}
			if err := jq.NewExecutor(0, 0).Validate(query); err != nil {
				return shared.NewInputError("invalid --query", err)
			}
			return runInvoke(cmd, args[0], args[1], toolArgs, query)
		},
	}

	cmd.Flags().StringVar(&argsJSON, "args", "", "Tool arguments as a JSON object")
	cmd.Flags().StringArrayVar(&argPairs, "arg", nil, "Tool argument as key=value (repeatable)")
	cmd.Flags().StringVar(&query, "query", "", "jq expression applied to the result")

	return cmd
}

// parseArgs merges --args and --arg. Pair values are decoded as JSON when
// they parse and kept as strings otherwise.
func parseArgs(argsJSON string, pairs []string) (map[string]any, error) {
	args := map[string]any{}
	if argsJSON != "" {
		if err := json.Unmarshal([]byte(argsJSON), &args); err != nil {
			return nil, shared.NewInputError("--args must be a JSON object", err)
		}
		if args == nil {
			args = map[string]any{}
		}
	}
	for _, pair := range pairs {
		key, value, ok := strings.Cut(pair, "=")
		if !ok || key == "" {
			return nil, shared.NewInputError(fmt.Sprintf("invalid --arg %q", pair), errors.New("expected key=value"))
		}
		var decoded any
		if err := json.Unmarshal([]byte(value), &decoded); err == nil {
			args[key] = decoded
		} else {
			args[key] = value
		}
	}
	return args, nil
}

type invokeResponse struct {
	shared.JSONResponse
	Tool   string           `json:"tool"`
	Args   map[string]any   `json:"args"`
	Result any              `json:"result,omitempty"`
	Error  *mcp.ErrorResult `json:"error,omitempty"`
}

func runInvoke(cmd *cobra.Command, target, tool string, args map[string]any, query string) error {
	rt, server, done, err := openRuntime(cmd, target)
	if err != nil {
		return err
	}
	defer done()

	ctx := cmd.Context()
	out := rt.Masker.Writer(cmd.OutOrStdout())

	client := rt.NewClient(server.URL)
	if err := client.Connect(ctx); err != nil {
		if shared.GetJSON() {
			_ = shared.EmitJSONError(out, "invoke", string(mcp.KindOf(err)), err.Error())
		}
		return shared.NewServerError("failed to connect", err)
	}
	defer client.Close()

	if desc, ok := client.Capabilities().Tool(tool); ok {
		args = desc.BuildArguments(args)
		if missing := desc.MissingArguments(args); len(missing) > 0 {
			rt.Logger.Warn("required arguments missing", "tool", tool, "missing", missing)
		}
	}

	raw, err := client.InvokeTool(ctx, tool, args)
	if err != nil {
		var toolErr *mcp.ErrorResult
		if !errors.As(err, &toolErr) {
			toolErr = &mcp.ErrorResult{Kind: mcp.KindOf(err), Message: err.Error()}
		}
		if shared.GetJSON() {
			_ = shared.EmitJSON(out, invokeResponse{
				JSONResponse: shared.JSONResponse{Version: "1.0", Command: "invoke", Success: false},
				Tool:         tool,
				Args:         args,
				Error:        toolErr,
			})
		}
		return shared.NewServerError(fmt.Sprintf("tool %s failed", tool), err)
	}

	var result any = raw
	if query != "" {
		result, err = jq.NewExecutor(0, 0).Execute(ctx, query, raw)
		if err != nil {
			return shared.NewInputError("failed to apply --query", err)
		}
	}

	if shared.GetJSON() {
		return shared.EmitJSON(out, invokeResponse{
			JSONResponse: shared.JSONResponse{Version: "1.0", Command: "invoke", Success: true},
			Tool:         tool,
			Args:         args,
			Result:       result,
		})
	}

	if s, ok := result.(string); ok {
		fmt.Fprintln(out, s)
		return nil
	}
	pretty, err := json.MarshalIndent(result, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to format result: %w", err)
	}
	fmt.Fprintln(out, string(pretty))
	return nil
}
