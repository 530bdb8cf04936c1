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

// Command mcporch is a protocol-adaptive MCP client and task orchestrator.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/tombee/mcporch/internal/cli"
	"github.com/tombee/mcporch/internal/commands/run"
	"github.com/tombee/mcporch/internal/commands/secrets"
	"github.com/tombee/mcporch/internal/commands/servers"
	"github.com/tombee/mcporch/internal/commands/session"
	versioncmd "github.com/tombee/mcporch/internal/commands/version"
	"github.com/tombee/mcporch/internal/mcp"
)

// Version information (injected via ldflags at build time)
var (
	version   = "dev"
	commit    = "unknown"
	buildDate = "unknown"
)

func main() {
	cli.SetVersion(version, commit, buildDate)
	mcp.ClientVersion = version

	rootCmd := cli.NewRootCommand()

	cli.AddCommands(rootCmd, cli.GroupTasks,
		run.NewCommand(),
		session.NewDetectCommand(),
		session.NewToolsCommand(),
		session.NewInvokeCommand(),
	)
	cli.AddCommands(rootCmd, cli.GroupServers, servers.NewCommand())
	cli.AddCommands(rootCmd, cli.GroupSetup,
		secrets.NewCommand(),
		versioncmd.NewVersionCommand(),
	)
	rootCmd.SetHelpCommand(cli.NewHelpCommand(rootCmd))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := rootCmd.ExecuteContext(ctx)
	stop()
	if err != nil {
		cli.HandleExitError(err)
	}
}
