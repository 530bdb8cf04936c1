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

// Package session implements the commands that talk to a single MCP server
// directly: detect, tools and invoke.
package session

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/tombee/mcporch/internal/commands/shared"
	"github.com/tombee/mcporch/internal/orchestrator"
)

// openRuntime starts the runtime for cmd and resolves target. The returned
// func closes the runtime.
func openRuntime(cmd *cobra.Command, target string) (*shared.Runtime, orchestrator.Server, func(), error) {
	ctx := cmd.Context()
	rt, err := shared.NewRuntime(ctx)
	if err != nil {
		return nil, orchestrator.Server{}, nil, err
	}
	closeFn := func() {
		if err := rt.Close(context.WithoutCancel(ctx)); err != nil {
			rt.Logger.Debug("runtime shutdown failed", "error", err)
		}
	}

	server, err := rt.ResolveServer(target)
	if err != nil {
		closeFn()
		return nil, orchestrator.Server{}, nil, err
	}
	return rt, server, closeFn, nil
}
