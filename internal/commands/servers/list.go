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
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/tombee/mcporch/internal/commands/shared"
	"github.com/tombee/mcporch/internal/registry"
)

func newListCommand() *cobra.Command {
	var (
		status string
		method string
		where  string
	)

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List known servers",
		Example: `  # List every server
  mcporch servers list

  # Only deployed servers
  mcporch servers list --status deployed

  # Deployed servers that offer a search tool
  mcporch servers list --where 'status == "deployed" && "search" in tools'

  # Server ids for scripting
  mcporch servers list --json | jq -r '.servers[].id'`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if status != "" && !registry.Status(status).Valid() {
				return shared.NewInputError(fmt.Sprintf("unknown status %q", status), nil)
			}
			if method != "" && !registry.DeployMethod(method).Valid() {
				return shared.NewInputError(fmt.Sprintf("unknown deploy method %q", method), nil)
			}
			var q *registry.Query
			if where != "" {
				var err error
				if q, err = registry.CompileQuery(where); err != nil {
					return shared.NewInputError("invalid --where expression", err)
				}
			}
			return runList(cmd, registry.Status(status), registry.DeployMethod(method), q)
		},
	}

	cmd.Flags().StringVar(&status, "status", "", "Filter by status (discovered, validated, deployed, failed)")
	cmd.Flags().StringVar(&method, "method", "", "Filter by deploy method")
	cmd.Flags().StringVar(&where, "where", "", "Filter with a boolean expression over server fields")

	return cmd
}

type listResponse struct {
	shared.JSONResponse
	Servers []registry.Server `json:"servers"`
}

func runList(cmd *cobra.Command, status registry.Status, method registry.DeployMethod, q *registry.Query) error {
	rt, done, err := openRuntime(cmd)
	if err != nil {
		return err
	}
	defer done()

	reg, err := rt.Registry()
	if err != nil {
		return err
	}
	servers := reg.Filter(status, method)
	if q != nil {
		matched, err := reg.Select(q)
		if err != nil {
			return shared.NewInputError("evaluate --where expression", err)
		}
		servers = intersect(servers, matched)
	}

	out := cmd.OutOrStdout()
	if shared.GetJSON() {
		return shared.EmitJSON(out, listResponse{
			JSONResponse: shared.JSONResponse{Version: "1.0", Command: "servers list", Success: true},
			Servers:      servers,
		})
	}

	if len(servers) == 0 {
		fmt.Fprintln(out, "No servers found.")
		if rt.Config.ServersFile == "" {
			fmt.Fprintln(out, "\nSet servers_file in the config to list servers.")
		}
		return nil
	}
	printTable(out, reg, servers)
	return nil
}

func printTable(w io.Writer, reg *registry.Registry, servers []registry.Server) {
	fmt.Fprintf(w, "%-12s  %-20s  %-10s  %-8s  %s\n", "ID", "NAME", "STATUS", "METHOD", "ENDPOINT")
	fmt.Fprintln(w, strings.Repeat("-", 78))
	for _, s := range servers {
		endpoint := s.Endpoint
		if endpoint == "" {
			endpoint = shared.Muted.Render("(cached) " + s.GitHubURL)
		} else if !reg.IsRegistered(s.ID) {
			endpoint += shared.Muted.Render(" (cached)")
		}
		fmt.Fprintf(w, "%-12s  %-20s  %-10s  %-8s  %s\n",
			s.ID, truncate(s.Name, 20), s.Status, s.DeployMethod, endpoint)
	}
}

func intersect(a, b []registry.Server) []registry.Server {
	keep := make(map[string]bool, len(b))
	for _, s := range b {
		keep[s.ID] = true
	}
	out := a[:0]
	for _, s := range a {
		if keep[s.ID] {
			out = append(out, s)
		}
	}
	return out
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max-3] + "..."
}
