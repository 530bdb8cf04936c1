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

package orchestrator

import (
	"context"
	"encoding/json"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/tombee/mcporch/internal/mcp"
	"github.com/tombee/mcporch/internal/oracle"
)

type toolCall struct {
	tool string
	args map[string]any
}

// fakeSession is a scripted Session.
type fakeSession struct {
	caps       mcp.Capabilities
	connectErr error
	results    map[string]json.RawMessage
	failures   map[string]error

	// block makes InvokeTool wait for its context.
	block bool

	mu        sync.Mutex
	calls     []toolCall
	closed    int
	invoking  chan struct{}
	invokeErr error
}

func newFakeSession(tools []mcp.ToolDescriptor) *fakeSession {
	return &fakeSession{
		caps: mcp.Capabilities{
			Protocol:    mcp.ProtocolHTTPJSONRPC,
			Endpoint:    "http://fake/mcp",
			Initialized: true,
			ServerInfo:  map[string]any{"serverInfo": map[string]any{"name": "fake"}},
			Tools:       tools,
		},
		results:  map[string]json.RawMessage{},
		failures: map[string]error{},
		invoking: make(chan struct{}, 8),
	}
}

func (f *fakeSession) Connect(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return f.connectErr
}

func (f *fakeSession) Capabilities() mcp.Capabilities {
	return f.caps.Clone()
}

func (f *fakeSession) InvokeTool(ctx context.Context, name string, args map[string]any) (json.RawMessage, error) {
	f.mu.Lock()
	f.calls = append(f.calls, toolCall{tool: name, args: args})
	f.mu.Unlock()
	f.invoking <- struct{}{}

	if f.block {
		<-ctx.Done()
		f.mu.Lock()
		f.invokeErr = ctx.Err()
		f.mu.Unlock()
		return nil, ctx.Err()
	}
	if err, ok := f.failures[name]; ok {
		return nil, err
	}
	if out, ok := f.results[name]; ok {
		return out, nil
	}
	return nil, &mcp.ErrorResult{Kind: mcp.KindToolError, Message: "unknown tool " + name}
}

func (f *fakeSession) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed++
	return nil
}

func (f *fakeSession) snapshot() ([]toolCall, int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]toolCall(nil), f.calls...), f.closed, f.invokeErr
}

func factoryFor(s *fakeSession) ClientFactory {
	return func(Server) (Session, error) { return s, nil }
}

// fakeOracle returns a fixed plan and summary.
type fakeOracle struct {
	plan    *Plan
	planErr error
	summary string
	sumErr  error

	mu      sync.Mutex
	catalog []mcp.ToolDescriptor
	results PlanWithResults
}

func (o *fakeOracle) GeneratePlan(_ context.Context, _ string, catalog []mcp.ToolDescriptor, _ map[string]any) (*Plan, error) {
	o.mu.Lock()
	o.catalog = catalog
	o.mu.Unlock()
	return o.plan, o.planErr
}

func (o *fakeOracle) Summarize(_ context.Context, _ string, results PlanWithResults, _ map[string]any) (string, error) {
	o.mu.Lock()
	o.results = results
	o.mu.Unlock()
	return o.summary, o.sumErr
}

func (o *fakeOracle) seen() PlanWithResults {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.results
}

var _ oracle.Oracle = (*fakeOracle)(nil)

func tools(t *testing.T, raw string) []mcp.ToolDescriptor {
	t.Helper()
	var out []mcp.ToolDescriptor
	require.NoError(t, json.Unmarshal([]byte(raw), &out))
	return out
}

func textResult(text string) json.RawMessage {
	b, _ := json.Marshal(map[string]any{
		"content": []map[string]any{{"type": "text", "text": text}},
	})
	return b
}

func invoke(tool string, args map[string]any) PlanStep {
	return PlanStep{Action: oracle.ActionInvokeTool, Tool: tool, Args: args, Description: "call " + tool}
}

func eventTypes(events []Event) []EventType {
	out := make([]EventType, len(events))
	for i, ev := range events {
		out[i] = ev.Type
	}
	return out
}
