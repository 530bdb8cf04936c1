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

package run

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tombee/mcporch/internal/cli"
	"github.com/tombee/mcporch/internal/commands/shared"
	"github.com/tombee/mcporch/internal/orchestrator"
	"github.com/tombee/mcporch/internal/testing/mcptest"
)

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	mcptest.Isolate(t)
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

func TestRun_FallbackPlan(t *testing.T) {
	srv := mcptest.NewServer(t)

	out, err := execute(t, "run", srv.URL, "say something")
	require.NoError(t, err)
	assert.Contains(t, out, "success")
	assert.Contains(t, out, "1 steps (fallback)")
	assert.Contains(t, out, "step 1")
}

func TestRun_Stream(t *testing.T) {
	srv := mcptest.NewServer(t)

	out, err := execute(t, "run", srv.URL, "say something", "--stream")
	require.NoError(t, err)
	assert.Contains(t, out, "Detected http_jsonrpc")
	assert.Contains(t, out, "Plan ready: 1 steps")
	assert.Contains(t, out, "Completed in")
}

func TestRun_StreamJSON(t *testing.T) {
	srv := mcptest.NewServer(t)

	out, err := execute(t, "run", srv.URL, "say something", "--stream", "--json")
	require.NoError(t, err)

	var types []orchestrator.EventType
	var lastSeq uint64
	scanner := bufio.NewScanner(strings.NewReader(out))
	for scanner.Scan() {
		var ev struct {
			Seq  uint64                 `json:"seq"`
			Type orchestrator.EventType `json:"type"`
		}
		require.NoError(t, json.Unmarshal(scanner.Bytes(), &ev))
		assert.Greater(t, ev.Seq, lastSeq)
		lastSeq = ev.Seq
		types = append(types, ev.Type)
	}
	require.NotEmpty(t, types)
	assert.Equal(t, orchestrator.EventStart, types[0])
	assert.Equal(t, orchestrator.EventComplete, types[len(types)-1])
	assert.Contains(t, types, orchestrator.EventToolResult)
}

func TestRun_JSON(t *testing.T) {
	srv := mcptest.NewServer(t)

	out, err := execute(t, "run", srv.URL, "say something", "--json", "--context", `{"user":"ada"}`)
	require.NoError(t, err)

	var resp runResponse
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	assert.True(t, resp.Success)
	require.NotNil(t, resp.Result)
	assert.Equal(t, orchestrator.StatusSuccess, resp.Result.Status)
	assert.True(t, resp.Result.PlanFallback)
	require.Len(t, resp.Result.Results, 1)
	assert.True(t, resp.Result.Results[0].Success)
	assert.NotEmpty(t, resp.Result.Summary)
}

func TestRun_ConnectionFailed(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	out, err := execute(t, "run", url, "anything")
	require.Error(t, err)
	assert.Equal(t, shared.ExitConnectionFailed, shared.ExitCode(err))
	assert.Contains(t, out, "error")
}

func TestRun_InvalidContext(t *testing.T) {
	_, err := execute(t, "run", "http://127.0.0.1:1", "anything", "--context", "[]")
	require.Error(t, err)
	assert.Equal(t, shared.ExitInvalidInput, shared.ExitCode(err))
}

func TestParseContext(t *testing.T) {
	ctx, err := parseContext("")
	require.NoError(t, err)
	assert.Nil(t, ctx)

	ctx, err = parseContext(`{"a":1}`)
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"a": float64(1)}, ctx)
}
