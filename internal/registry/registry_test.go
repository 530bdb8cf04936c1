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

package registry

import (
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	internallog "github.com/tombee/mcporch/internal/log"
	"github.com/tombee/mcporch/internal/mcp"
	pkgerrors "github.com/tombee/mcporch/pkg/errors"
)

func newTestRegistry(t *testing.T) *Registry {
	t.Helper()
	r := New(WithLogger(internallog.Discard()))
	base := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	var n atomic.Int64
	r.nowFunc = func() time.Time {
		return base.Add(time.Duration(n.Add(1)) * time.Second)
	}
	return r
}

func TestServerID(t *testing.T) {
	id := ServerID("https://github.com/upstash/context7")
	assert.Len(t, id, 12)
	assert.Equal(t, id, ServerID("https://github.com/upstash/context7"))
	assert.NotEqual(t, id, ServerID("https://github.com/upstash/context8"))

	// md5("") is d41d8cd98f00b204e9800998ecf8427e
	assert.Equal(t, "d41d8cd98f00", ServerID(""))
}

func TestRegister_Defaults(t *testing.T) {
	r := newTestRegistry(t)

	withEndpoint, err := r.Register(Server{Name: "notes", Endpoint: "http://localhost:8080/mcp"})
	require.NoError(t, err)
	assert.Equal(t, ServerID("http://localhost:8080/mcp"), withEndpoint.ID)
	assert.Equal(t, StatusDiscovered, withEndpoint.Status)
	assert.Equal(t, MethodExternal, withEndpoint.DeployMethod)
	assert.False(t, withEndpoint.CreatedAt.IsZero())

	repoOnly, err := r.Register(Server{Name: "ctx", GitHubURL: "https://github.com/upstash/context7", Endpoint: "http://x"})
	require.NoError(t, err)
	assert.Equal(t, ServerID("https://github.com/upstash/context7"), repoOnly.ID, "github url wins over endpoint")

	bare, err := r.Cache(Server{Name: "bare"})
	require.NoError(t, err)
	assert.Equal(t, ServerID("bare"), bare.ID)
	assert.Equal(t, MethodAuto, bare.DeployMethod)
}

func TestRegister_Validation(t *testing.T) {
	tests := []struct {
		name   string
		server Server
		field  string
	}{
		{name: "empty name", server: Server{Name: "  "}, field: "name"},
		{name: "bad status", server: Server{Name: "a", Status: "running"}, field: "status"},
		{name: "bad method", server: Server{Name: "a", DeployMethod: "k8s"}, field: "deploy_method"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := newTestRegistry(t)
			_, err := r.Register(tt.server)
			var verr *pkgerrors.ValidationError
			require.ErrorAs(t, err, &verr)
			assert.Equal(t, tt.field, verr.Field)
			assert.Zero(t, r.Size())
		})
	}
}

func TestGet_RegistryThenCache(t *testing.T) {
	r := newTestRegistry(t)

	_, err := r.Cache(Server{ID: "s1", Name: "cached copy"})
	require.NoError(t, err)

	got, err := r.Get("s1")
	require.NoError(t, err)
	assert.Equal(t, "cached copy", got.Name)
	assert.True(t, r.IsCached("s1"))
	assert.False(t, r.IsRegistered("s1"))

	_, err = r.Register(Server{ID: "s1", Name: "registered copy"})
	require.NoError(t, err)

	got, err = r.Get("s1")
	require.NoError(t, err)
	assert.Equal(t, "registered copy", got.Name)

	_, err = r.Get("missing")
	var nf *pkgerrors.NotFoundError
	require.ErrorAs(t, err, &nf)
	assert.Equal(t, "server", nf.Resource)
	assert.Equal(t, "missing", nf.ID)
}

func TestList_DedupesAndOrders(t *testing.T) {
	r := newTestRegistry(t)

	_, _ = r.Register(Server{ID: "b", Name: "first"})
	_, _ = r.Cache(Server{ID: "a", Name: "second"})
	_, _ = r.Cache(Server{ID: "b", Name: "shadowed"})
	_, _ = r.Register(Server{ID: "c", Name: "fourth"})

	list := r.List()
	require.Len(t, list, 3)
	assert.Equal(t, []string{"b", "a", "c"}, []string{list[0].ID, list[1].ID, list[2].ID})
	assert.Equal(t, "first", list[0].Name)
	assert.Equal(t, 2, r.Size())
}

func TestFilter(t *testing.T) {
	r := newTestRegistry(t)

	_, _ = r.Register(Server{ID: "d1", Name: "d1", Endpoint: "http://a", Status: StatusDeployed})
	_, _ = r.Register(Server{ID: "d2", Name: "d2", DeployMethod: MethodDocker, Status: StatusDeployed})
	_, _ = r.Cache(Server{ID: "c1", Name: "c1", DeployMethod: MethodDocker})
	_, _ = r.Cache(Server{ID: "f1", Name: "f1", Status: StatusFailed})

	ids := func(servers []Server) []string {
		var out []string
		for _, s := range servers {
			out = append(out, s.ID)
		}
		return out
	}

	assert.Equal(t, []string{"d1", "d2"}, ids(r.Filter(StatusDeployed, "")))
	assert.Equal(t, []string{"d2", "c1"}, ids(r.Filter("", MethodDocker)))
	assert.Equal(t, []string{"d2"}, ids(r.Filter(StatusDeployed, MethodDocker)))
	assert.Len(t, r.Filter("", ""), 4)
	assert.Empty(t, r.Filter(StatusValidated, ""))
}

func TestTransition(t *testing.T) {
	r := newTestRegistry(t)
	_, err := r.Cache(Server{ID: "s1", Name: "s1"})
	require.NoError(t, err)

	caps := &Capabilities{
		Capabilities: mcp.Capabilities{
			Protocol: mcp.ProtocolHTTPJSONRPC,
			Tools:    []mcp.ToolDescriptor{{Name: "search"}},
		},
		DiscoveredAt:   time.Now(),
		AutoDiscovered: true,
	}
	got, err := r.Transition("s1", StatusDeployed, Update{Endpoint: "http://localhost:9000/mcp", Capabilities: caps})
	require.NoError(t, err)
	assert.Equal(t, StatusDeployed, got.Status)
	assert.Equal(t, "http://localhost:9000/mcp", got.Endpoint)
	require.NotNil(t, got.Capabilities)
	assert.True(t, got.Capabilities.AutoDiscovered)

	assert.True(t, r.IsRegistered("s1"), "deployed servers are promoted")
	assert.False(t, r.IsCached("s1"))
	assert.True(t, r.IsDeployed("s1"))

	_, err = r.Transition("s1", StatusFailed, Update{Error: "late failure"})
	assert.ErrorIs(t, err, ErrTransitionConflict)

	stored, err := r.Get("s1")
	require.NoError(t, err)
	assert.Equal(t, StatusDeployed, stored.Status)
	assert.Empty(t, stored.Error)
}

func TestTransition_FailedStaysCached(t *testing.T) {
	r := newTestRegistry(t)
	_, _ = r.Cache(Server{ID: "s1", Name: "s1"})

	got, err := r.Transition("s1", StatusFailed, Update{Error: "connection refused"})
	require.NoError(t, err)
	assert.Equal(t, "connection refused", got.Error)
	assert.True(t, r.IsCached("s1"))
	assert.False(t, r.IsRegistered("s1"))
}

func TestTransition_Invalid(t *testing.T) {
	r := newTestRegistry(t)
	_, _ = r.Cache(Server{ID: "s1", Name: "s1"})

	_, err := r.Transition("s1", StatusValidated, Update{})
	var verr *pkgerrors.ValidationError
	assert.ErrorAs(t, err, &verr)

	_, err = r.Transition("nope", StatusDeployed, Update{})
	var nf *pkgerrors.NotFoundError
	assert.ErrorAs(t, err, &nf)
}

func TestTransition_ConcurrentSettlesOnce(t *testing.T) {
	r := newTestRegistry(t)
	_, _ = r.Cache(Server{ID: "s1", Name: "s1"})

	const workers = 32
	var (
		wg        sync.WaitGroup
		wins      atomic.Int32
		conflicts atomic.Int32
		start     = make(chan struct{})
	)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			<-start
			to := StatusDeployed
			if i%2 == 1 {
				to = StatusFailed
			}
			_, err := r.Transition("s1", to, Update{Error: "attempt"})
			switch {
			case err == nil:
				wins.Add(1)
			case errors.Is(err, ErrTransitionConflict):
				conflicts.Add(1)
			}
		}(i)
	}
	close(start)
	wg.Wait()

	assert.Equal(t, int32(1), wins.Load())
	assert.Equal(t, int32(workers-1), conflicts.Load())
}

func TestReset(t *testing.T) {
	r := newTestRegistry(t)
	_, _ = r.Cache(Server{ID: "s1", Name: "s1"})
	_, err := r.Transition("s1", StatusFailed, Update{Error: "boom"})
	require.NoError(t, err)

	got, err := r.Reset("s1")
	require.NoError(t, err)
	assert.Equal(t, StatusDiscovered, got.Status)
	assert.Empty(t, got.Error)

	_, err = r.Transition("s1", StatusDeployed, Update{})
	assert.NoError(t, err, "a reset opens a new attempt")

	_, err = r.Reset("missing")
	assert.Error(t, err)
}

func TestRemoveAndClearCache(t *testing.T) {
	r := newTestRegistry(t)
	_, _ = r.Register(Server{ID: "r1", Name: "r1"})
	_, _ = r.Cache(Server{ID: "c1", Name: "c1"})
	_, _ = r.Cache(Server{ID: "c2", Name: "c2"})

	assert.True(t, r.Remove("c1"))
	assert.False(t, r.Remove("c1"))

	r.ClearCache()
	assert.False(t, r.IsCached("c2"))
	assert.Equal(t, 1, r.Size())
	assert.Len(t, r.List(), 1)
}

func TestCopiesAreIsolated(t *testing.T) {
	r := newTestRegistry(t)
	_, _ = r.Cache(Server{ID: "s1", Name: "s1"})
	_, err := r.Transition("s1", StatusDeployed, Update{Capabilities: &Capabilities{
		Capabilities: mcp.Capabilities{Tools: []mcp.ToolDescriptor{{Name: "search"}}},
	}})
	require.NoError(t, err)

	got, err := r.Get("s1")
	require.NoError(t, err)
	got.Name = "mutated"
	got.Capabilities.Tools[0].Name = "mutated"

	again, err := r.Get("s1")
	require.NoError(t, err)
	assert.Equal(t, "s1", again.Name)
	assert.Equal(t, "search", again.Capabilities.Tools[0].Name)
}
