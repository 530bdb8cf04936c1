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
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tombee/mcporch/internal/cli"
	"github.com/tombee/mcporch/internal/commands/shared"
	"github.com/tombee/mcporch/internal/registry"
	"github.com/tombee/mcporch/internal/testing/mcptest"
)

// setup writes a config whose servers file lists a live server, an
// unreachable one and a repository-only entry.
func setup(t *testing.T) (live, dead string) {
	t.Helper()
	dir := mcptest.Isolate(t)

	live = mcptest.NewServer(t).URL
	closed := httptest.NewServer(http.NotFoundHandler())
	dead = closed.URL
	closed.Close()

	cfgDir := filepath.Join(dir, "mcporch")
	require.NoError(t, os.MkdirAll(cfgDir, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(cfgDir, "config.yaml"), []byte("servers_file: servers.yaml\n"), 0o600))
	servers := fmt.Sprintf(`servers:
  - name: live
    endpoint: %s
  - name: dead
    endpoint: %s
  - name: repo-only
    github_url: https://github.com/example/repo
`, live, dead)
	require.NoError(t, os.WriteFile(filepath.Join(cfgDir, "servers.yaml"), []byte(servers), 0o600))
	return live, dead
}

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	shared.ResetFlagsForTest()
	t.Cleanup(shared.ResetFlagsForTest)

	root := cli.NewRootCommand()
	root.AddCommand(NewCommand())

	var out bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetArgs(args)
	err := root.ExecuteContext(context.Background())
	return out.String(), err
}

func TestList(t *testing.T) {
	live, _ := setup(t)

	out, err := execute(t, "servers", "list")
	require.NoError(t, err)
	assert.Contains(t, out, registry.ServerID(live))
	assert.Contains(t, out, "repo-only")
	assert.Contains(t, out, "(cached)")
}

func TestList_JSONFilter(t *testing.T) {
	setup(t)

	out, err := execute(t, "servers", "list", "--json", "--method", "external")
	require.NoError(t, err)

	var resp listResponse
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	require.Len(t, resp.Servers, 2)
	for _, s := range resp.Servers {
		assert.Equal(t, registry.MethodExternal, s.DeployMethod)
	}
}

func TestList_InvalidFilter(t *testing.T) {
	setup(t)

	_, err := execute(t, "servers", "list", "--status", "running")
	require.Error(t, err)
	assert.Equal(t, shared.ExitInvalidInput, shared.ExitCode(err))
}

func TestList_Where(t *testing.T) {
	setup(t)

	out, err := execute(t, "servers", "list", "--json", "--where", `name endsWith "-only" || not registered`)
	require.NoError(t, err)

	var resp listResponse
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	require.Len(t, resp.Servers, 1)
	assert.Equal(t, "repo-only", resp.Servers[0].Name)

	_, err = execute(t, "servers", "list", "--where", "status ==")
	require.Error(t, err)
	assert.Equal(t, shared.ExitInvalidInput, shared.ExitCode(err))
}

func TestList_NoServersFile(t *testing.T) {
	mcptest.Isolate(t)

	out, err := execute(t, "servers", "list")
	require.NoError(t, err)
	assert.Contains(t, out, "No servers found.")
}

func TestShow(t *testing.T) {
	live, _ := setup(t)
	id := registry.ServerID(live)

	out, err := execute(t, "servers", "show", id)
	require.NoError(t, err)
	assert.Contains(t, out, "live")
	assert.Contains(t, out, live)

	_, err = execute(t, "servers", "show", "missing")
	require.Error(t, err)
	assert.Equal(t, shared.ExitInvalidInput, shared.ExitCode(err))
}

func TestDiscover(t *testing.T) {
	live, dead := setup(t)

	out, err := execute(t, "servers", "discover", "--json")
	require.NoError(t, err)

	var resp discoverResponse
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	assert.False(t, resp.Success)
	assert.Equal(t, []string{registry.ServerID(live)}, resp.Report.Deployed)
	assert.Equal(t, []string{registry.ServerID(dead)}, resp.Report.Failed)

	byID := make(map[string]registry.Server)
	for _, s := range resp.Servers {
		byID[s.ID] = s
	}
	deployed := byID[registry.ServerID(live)]
	assert.Equal(t, registry.StatusDeployed, deployed.Status)
	require.NotNil(t, deployed.Capabilities)
	assert.ElementsMatch(t, []string{"echo", "upper"}, deployed.Capabilities.ToolNames())
	assert.Equal(t, registry.StatusFailed, byID[registry.ServerID(dead)].Status)
	assert.NotEmpty(t, byID[registry.ServerID(dead)].Error)
}

func TestDiscover_Text(t *testing.T) {
	setup(t)

	out, err := execute(t, "servers", "discover")
	require.NoError(t, err)
	assert.Contains(t, out, "live")
	assert.Contains(t, out, "deployed, 2 tools")
	assert.Contains(t, out, "dead")
	assert.Contains(t, out, "failed")
}

// syncBuffer is a bytes.Buffer safe to read while a command writes to it.
type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

func TestWatch_RediscoversOnChange(t *testing.T) {
	live, _ := setup(t)
	serversFile := filepath.Join(os.Getenv("XDG_CONFIG_HOME"), "mcporch", "servers.yaml")

	shared.ResetFlagsForTest()
	t.Cleanup(shared.ResetFlagsForTest)
	root := cli.NewRootCommand()
	root.AddCommand(NewCommand())
	var out syncBuffer
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetArgs([]string{"servers", "watch", "--debounce", "20ms"})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- root.ExecuteContext(ctx) }()

	require.Eventually(t, func() bool {
		return strings.Contains(out.String(), "live ("+registry.ServerID(live)+") deployed")
	}, 10*time.Second, 20*time.Millisecond)

	only := fmt.Sprintf("servers:\n  - name: renamed\n    endpoint: %s\n", live)
	require.Eventually(t, func() bool {
		_ = os.WriteFile(serversFile, []byte(only), 0o600)
		return strings.Contains(out.String(), "renamed (")
	}, 10*time.Second, 100*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(10 * time.Second):
		t.Fatal("watch did not stop")
	}
}

func TestWatch_NoServersFile(t *testing.T) {
	mcptest.Isolate(t)

	_, err := execute(t, "servers", "watch")
	require.Error(t, err)
	assert.Equal(t, shared.ExitConfigError, shared.ExitCode(err))
}
