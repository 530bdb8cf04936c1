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

package servers

import (
	"context"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/tombee/mcporch/internal/commands/shared"
	"github.com/tombee/mcporch/internal/registry"
)

func newDiscoverCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "discover",
		Short: "Connect to discovered servers and record their capabilities",
		Long: `Connect to every server still in the discovered state that has an
endpoint, run the MCP handshake and mark it deployed or failed.

Concurrency and the per-server timeout come from the discovery section of
the config.`,
		Args: cobra.NoArgs,
		RunE: runDiscover,
	}
}

type discoverResponse struct {
	shared.JSONResponse
	Report  registry.Report   `json:"report"`
	Servers []registry.Server `json:"servers"`
}

func runDiscover(cmd *cobra.Command, args []string) error {
	rt, done, err := openRuntime(cmd)
	if err != nil {
		return err
	}
	defer done()

	reg, err := rt.Registry()
	if err != nil {
		return err
	}
	report, err := rt.Discoverer(reg).Run(cmd.Context())
	if err != nil {
		return shared.NewServerError("discovery interrupted", err)
	}

	return printReport(cmd.OutOrStdout(), "servers discover", reg, report)
}

func printReport(out io.Writer, command string, reg *registry.Registry, report registry.Report) error {
	if shared.GetJSON() {
		return shared.EmitJSON(out, discoverResponse{
			JSONResponse: shared.JSONResponse{Version: "1.0", Command: command, Success: len(report.Failed) == 0},
			Report:       report,
			Servers:      reg.List(),
		})
	}

	if len(report.Deployed)+len(report.Failed)+len(report.Skipped) == 0 {
		fmt.Fprintln(out, "No servers waiting for discovery.")
		return nil
	}
	for _, id := range report.Deployed {
		s, _ := reg.Get(id)
		tools := 0
		if s.Capabilities != nil {
			tools = len(s.Capabilities.Tools)
		}
		fmt.Fprintln(out, shared.RenderOK(fmt.Sprintf("%s (%s) deployed, %d tools", s.Name, id, tools)))
	}
	for _, id := range report.Failed {
		s, _ := reg.Get(id)
		fmt.Fprintln(out, shared.RenderError(fmt.Sprintf("%s (%s) failed: %s", s.Name, id, s.Error)))
	}
	for _, id := range report.Skipped {
		fmt.Fprintln(out, shared.RenderWarn(fmt.Sprintf("%s skipped", id)))
	}
	return nil
}

// openRuntime starts the runtime for cmd. The returned func closes it.
func openRuntime(cmd *cobra.Command) (*shared.Runtime, func(), error) {
	ctx := cmd.Context()
	rt, err := shared.NewRuntime(ctx)
	if err != nil {
		return nil, nil, err
	}
	return rt, func() {
		if err := rt.Close(context.WithoutCancel(ctx)); err != nil {
			rt.Logger.Debug("runtime shutdown failed", "error", err)
		}
	}, nil
}
