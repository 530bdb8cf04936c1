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
	"fmt"

	"github.com/spf13/cobra"

	"github.com/tombee/mcporch/internal/commands/shared"
	"github.com/tombee/mcporch/internal/registry"
)

func newShowCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "show <server-id>",
		Short: "Show one server",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runShow(cmd, args[0])
		},
	}
}

type showResponse struct {
	shared.JSONResponse
	Server     registry.Server `json:"server"`
	Registered bool            `json:"registered"`
}

func runShow(cmd *cobra.Command, id string) error {
	rt, done, err := openRuntime(cmd)
	if err != nil {
		return err
	}
	defer done()

	reg, err := rt.Registry()
	if err != nil {
		return err
	}
	s, err := reg.Get(id)
	if err != nil {
		return shared.NewInputError(fmt.Sprintf("unknown server %q", id), err)
	}

	out := cmd.OutOrStdout()
	if shared.GetJSON() {
		return shared.EmitJSON(out, showResponse{
			JSONResponse: shared.JSONResponse{Version: "1.0", Command: "servers show", Success: true},
			Server:       s,
			Registered:   reg.IsRegistered(id),
		})
	}

	fmt.Fprintln(out, shared.Header.Render(s.Name))
	field := func(label, value string) {
		if value != "" {
			fmt.Fprintf(out, "  %s %s\n", shared.RenderLabel(fmt.Sprintf("%-12s", label+":")), value)
		}
	}
	field("id", s.ID)
	field("description", s.Description)
	field("status", string(s.Status))
	field("method", string(s.DeployMethod))
	field("endpoint", s.Endpoint)
	field("github", s.GitHubURL)
	field("error", s.Error)
	if s.Capabilities != nil {
		field("protocol", string(s.Capabilities.Protocol))
		field("discovered", s.Capabilities.DiscoveredAt.Format("2006-01-02 15:04:05"))
		for _, t := range s.Capabilities.Tools {
			fmt.Fprintf(out, "    %s %s\n", shared.SymbolInfo, t.Signature())
		}
	}
	return nil
}
