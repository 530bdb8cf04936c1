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
	"fmt"

	"github.com/spf13/cobra"

	"github.com/tombee/mcporch/internal/commands/shared"
	"github.com/tombee/mcporch/internal/mcp"
)

// NewToolsCommand creates the tools command.
func NewToolsCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "tools <url|server-id>",
		Short: "List the tools and resources a server exposes",
		Long: `Connect to a server, run the MCP handshake and print its catalog.

Examples:
  mcporch tools http://localhost:8080
  mcporch tools 3f2a9c1b7d40 --json`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runTools(cmd, args[0])
		},
	}
}

type toolsResponse struct {
	shared.JSONResponse
	Capabilities mcp.Capabilities `json:"capabilities"`
}

func runTools(cmd *cobra.Command, target string) error {
	rt, server, done, err := openRuntime(cmd, target)
	if err != nil {
		return err
	}
	defer done()

	out := cmd.OutOrStdout()
	caps, err := mcp.Discover(cmd.Context(), server.URL, rt.ClientOptions()...)
	if err != nil {
		if shared.GetJSON() {
			_ = shared.EmitJSONError(out, "tools", string(mcp.KindOf(err)), err.Error())
		}
		return shared.NewServerError("failed to list tools", err)
	}

	if shared.GetJSON() {
		return shared.EmitJSON(out, toolsResponse{
			JSONResponse: shared.JSONResponse{Version: "1.0", Command: "tools", Success: true},
			Capabilities: caps,
		})
	}

	fmt.Fprintf(out, "%s %s at %s\n\n", shared.Header.Render("Server"), shared.RenderProtocol(caps.Protocol), caps.Endpoint)
	if len(caps.Tools) == 0 {
		fmt.Fprintln(out, shared.RenderWarn("No tools available from this server."))
	} else {
		fmt.Fprintln(out, shared.Bold.Render(fmt.Sprintf("Tools (%d)", len(caps.Tools))))
		for _, t := range caps.Tools {
			fmt.Fprintf(out, "  %s %s\n", shared.SymbolInfo, t.Signature())
		}
	}

	if len(caps.Resources) > 0 {
		fmt.Fprintln(out)
		fmt.Fprintln(out, shared.Bold.Render(fmt.Sprintf("Resources (%d)", len(caps.Resources))))
		for _, r := range caps.Resources {
			fmt.Fprintf(out, "  %s %v %s\n", shared.SymbolInfo, r["uri"], shared.Muted.Render(fmt.Sprint(r["name"])))
		}
	}
	return nil
}
