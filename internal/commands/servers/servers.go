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

// Package servers implements the servers command group over the server
// registry.
package servers

import (
	"github.com/spf13/cobra"
)

// NewCommand creates the servers command.
func NewCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "servers",
		Short: "Inspect and discover servers from the servers file",
		Long: `Work with the MCP servers listed in the servers file (servers_file in
the config).

Servers with an endpoint are registered; repository-only entries sit in
the discovery cache until they are deployed elsewhere.

Commands:
  list      List known servers
  show      Show one server and its capabilities
  discover  Connect to discovered servers and record their capabilities
  watch     Re-run discovery whenever the servers file changes`,
	}

	cmd.AddCommand(newListCommand())
	cmd.AddCommand(newShowCommand())
	cmd.AddCommand(newDiscoverCommand())
	cmd.AddCommand(newWatchCommand())

	return cmd
}
