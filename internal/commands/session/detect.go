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

// NewDetectCommand creates the detect command.
func NewDetectCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "detect <url|server-id>",
		Short: "Detect which MCP protocol a server speaks",
		Long: `Probe a server and report the protocol and endpoint that work.

ws://, wss:// and stdio:// URLs are classified by scheme. HTTP URLs are
probed at the configured paths with JSON-RPC and then SSE.

Examples:
  mcporch detect http://localhost:8080
  mcporch detect ws://localhost:9000/mcp
  mcporch detect http://localhost:8080 --json`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDetect(cmd, args[0])
		},
	}
}

type detectResponse struct {
	shared.JSONResponse
	Endpoint mcp.Endpoint `json:"endpoint"`
}

func runDetect(cmd *cobra.Command, target string) error {
	rt, server, done, err := openRuntime(cmd, target)
	if err != nil {
		return err
	}
	defer done()

	out := cmd.OutOrStdout()
	ep, err := rt.Detector().Detect(cmd.Context(), server.URL)
	if err != nil {
		if shared.GetJSON() {
			_ = shared.EmitJSONError(out, "detect", string(mcp.KindOf(err)), err.Error())
		}
		return shared.NewServerError("detection failed", err)
	}

	if shared.GetJSON() {
		return shared.EmitJSON(out, detectResponse{
			JSONResponse: shared.JSONResponse{Version: "1.0", Command: "detect", Success: true},
			Endpoint:     ep,
		})
	}

	if ep.Protocol == mcp.ProtocolUnknown {
		fmt.Fprintln(out, shared.RenderWarn("No MCP protocol detected; connections will fall back to the vendor table"))
	} else {
		fmt.Fprintln(out, shared.RenderOK("Detected "+shared.RenderProtocol(ep.Protocol)))
	}
	fmt.Fprintf(out, "  %s %s\n", shared.RenderLabel("base url:"), ep.BaseURL)
	fmt.Fprintf(out, "  %s %s\n", shared.RenderLabel("endpoint:"), ep.WorkingURL)
	return nil
}
