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

// Package cli builds the mcporch root command.
package cli

import (
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/tombee/mcporch/internal/commands/shared"
)

// Command groups in the root help listing.
const (
	GroupTasks   = "tasks"
	GroupServers = "servers"
	GroupSetup   = "setup"
)

// NewRootCommand creates the root command with the global flags bound.
// Subcommands are attached with AddCommands.
func NewRootCommand() *cobra.Command {
	root := &cobra.Command{
		Use:   "mcporch",
		Short: "Protocol-adaptive MCP client and task orchestrator",
		Long: `mcporch talks to Model Context Protocol servers over whichever transport
they speak (HTTP JSON-RPC, SSE or WebSocket), discovers their tools
and runs natural-language tasks against them with an LLM planner.

  mcporch detect <url>           which protocol does the server speak?
  mcporch tools <url>            what can it do?
  mcporch run <url> "<task>"     plan and execute a task`,
		// Errors are printed by HandleExitError with the right exit code.
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	root.AddGroup(
		&cobra.Group{ID: GroupTasks, Title: "Tasks:"},
		&cobra.Group{ID: GroupServers, Title: "Servers:"},
		&cobra.Group{ID: GroupSetup, Title: "Setup:"},
	)
	bindGlobalFlags(root.PersistentFlags())

	return root
}

func bindGlobalFlags(fs *pflag.FlagSet) {
	f := shared.RegisterFlagPointers()
	fs.StringVarP(f.Config, "config", "c", "", "Config file (default $XDG_CONFIG_HOME/mcporch/config.yaml)")
	fs.BoolVar(f.JSON, "json", false, "Write machine-readable JSON")
	fs.StringVar(f.LogLevel, "log-level", "", "Log level: trace, debug, info, warn or error")
	fs.StringVar(f.LogFormat, "log-format", "", "Log format: json, text or auto")
	fs.StringVar(f.MetricsAddr, "metrics-addr", "", "Serve Prometheus metrics on this address while the command runs")
}

// AddCommands attaches cmds to root under group.
func AddCommands(root *cobra.Command, group string, cmds ...*cobra.Command) {
	for _, c := range cmds {
		c.GroupID = group
		root.AddCommand(c)
	}
}

// SetVersion records build information for the version command.
func SetVersion(v, c, b string) {
	shared.SetVersion(v, c, b)
}

// HandleExitError prints err and exits with its exit code.
func HandleExitError(err error) {
	shared.HandleExitError(err)
}
