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

package cli

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tombee/mcporch/internal/commands/shared"
)

func newHelpTree(t *testing.T) (*cobra.Command, *bytes.Buffer) {
	t.Helper()
	shared.ResetFlagsForTest()
	t.Cleanup(shared.ResetFlagsForTest)

	root := NewRootCommand()
	probe := &cobra.Command{Use: "probe <url>", Short: "Probe a server", RunE: func(*cobra.Command, []string) error { return nil }}
	probe.Flags().Duration("timeout", 0, "Probe timeout")
	probe.Flags().String("target", "", "Target")
	require.NoError(t, probe.MarkFlagRequired("target"))
	root.AddCommand(probe)
	root.SetHelpCommand(NewHelpCommand(root))

	var out bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&out)
	return root, &out
}

func TestHelp_JSONAllCommands(t *testing.T) {
	root, out := newHelpTree(t)
	root.SetArgs([]string{"help", "--json"})
	require.NoError(t, root.Execute())

	var resp HelpResponse
	require.NoError(t, json.Unmarshal(out.Bytes(), &resp))
	assert.True(t, resp.Success)
	var names []string
	for _, c := range resp.Commands {
		names = append(names, c.Name)
	}
	assert.Contains(t, names, "mcporch probe")
	assert.NotContains(t, names, "mcporch help")

	var globals []string
	for _, f := range resp.GlobalFlags {
		globals = append(globals, f.Name)
	}
	assert.Contains(t, globals, "config")
	assert.Contains(t, globals, "json")
}

func TestHelp_JSONOneCommand(t *testing.T) {
	root, out := newHelpTree(t)
	root.SetArgs([]string{"help", "probe", "--json"})
	require.NoError(t, root.Execute())

	var resp HelpResponse
	require.NoError(t, json.Unmarshal(out.Bytes(), &resp))
	require.NotNil(t, resp.Command)
	assert.Contains(t, resp.Command.Usage, "mcporch probe <url>")

	flags := map[string]FlagMetadata{}
	for _, f := range resp.Command.Flags {
		flags[f.Name] = f
	}
	assert.Equal(t, "duration", flags["timeout"].Type)
	assert.True(t, flags["target"].Required)
	assert.False(t, flags["timeout"].Required)
}

func TestHelp_Text(t *testing.T) {
	root, out := newHelpTree(t)
	root.SetArgs([]string{"help", "probe"})
	require.NoError(t, root.Execute())
	assert.Contains(t, out.String(), "Probe a server")
}

func TestHelp_UnknownCommand(t *testing.T) {
	root, _ := newHelpTree(t)
	root.SetArgs([]string{"help", "nope"})
	err := root.Execute()
	require.Error(t, err)
	assert.Equal(t, shared.ExitInvalidInput, shared.ExitCode(err))
}
