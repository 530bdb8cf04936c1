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

// Package version implements the version command.
package version

import (
	"fmt"
	"io"
	"runtime"
	"runtime/debug"
	"strings"

	mcpgo "github.com/mark3labs/mcp-go/mcp"
	"github.com/spf13/cobra"

	"github.com/tombee/mcporch/internal/commands/shared"
	"github.com/tombee/mcporch/internal/mcp"
)

// Info describes the running binary.
type Info struct {
	Version     string         `json:"version"`
	Commit      string         `json:"commit"`
	BuildDate   string         `json:"build_date"`
	GoVersion   string         `json:"go_version"`
	Platform    string         `json:"platform"`
	MCPProtocol string         `json:"mcp_protocol"`
	Transports  []mcp.Protocol `json:"transports"`
}

type response struct {
	shared.JSONResponse
	Info
}

// NewVersionCommand creates the version command.
func NewVersionCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Show version information",
		Long: `Print the mcporch release, the MCP protocol revision it negotiates and
the transports it can speak.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			info := current()
			if shared.GetJSON() {
				return shared.EmitJSON(cmd.OutOrStdout(), response{
					JSONResponse: shared.JSONResponse{Version: "1.0", Command: "version", Success: true},
					Info:         info,
				})
			}
			info.write(cmd.OutOrStdout())
			return nil
		},
	}
}

func current() Info {
	v, commit, built := shared.GetVersion()
	info := Info{
		Version:     v,
		Commit:      commit,
		BuildDate:   built,
		GoVersion:   runtime.Version(),
		Platform:    runtime.GOOS + "/" + runtime.GOARCH,
		MCPProtocol: mcpgo.LATEST_PROTOCOL_VERSION,
		Transports:  []mcp.Protocol{mcp.ProtocolHTTPJSONRPC, mcp.ProtocolSSE, mcp.ProtocolWebSocket},
	}

	// go install builds carry no ldflags; fall back to the VCS stamp.
	if bi, ok := debug.ReadBuildInfo(); ok && info.Commit == "unknown" {
		for _, s := range bi.Settings {
			switch s.Key {
			case "vcs.revision":
				info.Commit = s.Value
			case "vcs.time":
				if info.BuildDate == "unknown" {
					info.BuildDate = s.Value
				}
			}
		}
	}
	return info
}

func (i Info) write(w io.Writer) {
	transports := make([]string, len(i.Transports))
	for n, p := range i.Transports {
		transports[n] = string(p)
	}
	fmt.Fprintf(w, "mcporch %s (%s, %s)\n", i.Version, i.GoVersion, i.Platform)
	rows := [][2]string{
		{"commit", i.Commit},
		{"built", i.BuildDate},
		{"mcp protocol", i.MCPProtocol},
		{"transports", strings.Join(transports, ", ")},
	}
	for _, r := range rows {
		fmt.Fprintf(w, "  %s %s\n", shared.RenderLabel(fmt.Sprintf("%-13s", r[0]+":")), r[1])
	}
}
