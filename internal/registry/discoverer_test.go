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
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	internallog "github.com/tombee/mcporch/internal/log"
	"github.com/tombee/mcporch/internal/mcp"
)

func TestDiscoverer_Run(t *testing.T) {
	r := newTestRegistry(t)
	_, _ = r.Cache(Server{ID: "good", Name: "good", Endpoint: "http://good"})
	_, _ = r.Cache(Server{ID: "bad", Name: "bad", Endpoint: "http://bad"})
	_, _ = r.Cache(Server{ID: "repo", Name: "repo", GitHubURL: "https://github.com/x/y"})
	_, _ = r.Register(Server{ID: "done", Name: "done", Endpoint: "http://done", Status: StatusDeployed})

	var calls atomic.Int32
	discover := func(ctx context.Context, endpoint string) (mcp.Capabilities, error) {
		calls.Add(1)
		if endpoint == "http://bad" {
			return mcp.Capabilities{}, mcp.NewError(mcp.KindConnectionFailed, "connection refused", nil)
		}
		return mcp.Capabilities{
			Protocol: mcp.ProtocolHTTPJSONRPC,
			Tools:    []mcp.ToolDescriptor{{Name: "search"}},
		}, nil
	}

	d := NewDiscoverer(r, WithDiscoverFunc(discover), WithDiscovererLogger(internallog.Discard()))
	report, err := d.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, []string{"good"}, report.Deployed)
	assert.Equal(t, []string{"bad"}, report.Failed)
	assert.Empty(t, report.Skipped)
	assert.Equal(t, int32(2), calls.Load(), "only discovered servers with an endpoint are probed")

	good, err := r.Get("good")
	require.NoError(t, err)
	assert.Equal(t, StatusDeployed, good.Status)
	require.NotNil(t, good.Capabilities)
	assert.True(t, good.Capabilities.AutoDiscovered)
	assert.False(t, good.Capabilities.DiscoveredAt.IsZero())
	assert.Equal(t, []string{"search"}, good.Capabilities.ToolNames())
	assert.True(t, r.IsRegistered("good"))

	bad, err := r.Get("bad")
	require.NoError(t, err)
	assert.Equal(t, StatusFailed, bad.Status)
	assert.Contains(t, bad.Error, "connection refused")
}

func TestDiscoverer_ConcurrencyLimit(t *testing.T) {
	r := newTestRegistry(t)
	for _, id := range []string{"a", "b", "c", "d", "e", "f"} {
		_, _ = r.Cache(Server{ID: id, Name: id, Endpoint: "http://" + id})
	}

	var inFlight, peak atomic.Int32
	discover := func(ctx context.Context, endpoint string) (mcp.Capabilities, error) {
		n := inFlight.Add(1)
		defer inFlight.Add(-1)
		for {
			p := peak.Load()
			if n <= p || peak.CompareAndSwap(p, n) {
				break
			}
		}
		time.Sleep(20 * time.Millisecond)
		return mcp.Capabilities{}, nil
	}

	d := NewDiscoverer(r, WithDiscoverFunc(discover), WithConcurrency(2), WithDiscovererLogger(internallog.Discard()))
	report, err := d.Run(context.Background())
	require.NoError(t, err)
	assert.Len(t, report.Deployed, 6)
	assert.LessOrEqual(t, peak.Load(), int32(2))
}

func TestDiscoverer_SkipsSettledElsewhere(t *testing.T) {
	r := newTestRegistry(t)
	_, _ = r.Cache(Server{ID: "s1", Name: "s1", Endpoint: "http://s1"})

	discover := func(ctx context.Context, endpoint string) (mcp.Capabilities, error) {
		// Someone else settles the attempt while discovery is in flight.
		_, err := r.Transition("s1", StatusFailed, Update{Error: "deploy aborted"})
		assert.NoError(t, err)
		return mcp.Capabilities{}, nil
	}

	d := NewDiscoverer(r, WithDiscoverFunc(discover), WithDiscovererLogger(internallog.Discard()))
	report, err := d.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"s1"}, report.Skipped)

	s, _ := r.Get("s1")
	assert.Equal(t, StatusFailed, s.Status)
	assert.Equal(t, "deploy aborted", s.Error)
}

func TestDiscoverer_Timeout(t *testing.T) {
	r := newTestRegistry(t)
	_, _ = r.Cache(Server{ID: "slow", Name: "slow", Endpoint: "http://slow"})

	discover := func(ctx context.Context, endpoint string) (mcp.Capabilities, error) {
		<-ctx.Done()
		return mcp.Capabilities{}, ctx.Err()
	}

	d := NewDiscoverer(r,
		WithDiscoverFunc(discover),
		WithDiscoveryTimeout(10*time.Millisecond),
		WithDiscovererLogger(internallog.Discard()))
	report, err := d.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"slow"}, report.Failed)

	s, _ := r.Get("slow")
	assert.Contains(t, s.Error, context.DeadlineExceeded.Error())
}

func TestDiscoverer_CancelledContext(t *testing.T) {
	r := newTestRegistry(t)
	_, _ = r.Cache(Server{ID: "s1", Name: "s1", Endpoint: "http://s1"})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	d := NewDiscoverer(r,
		WithDiscoverFunc(func(ctx context.Context, endpoint string) (mcp.Capabilities, error) {
			return mcp.Capabilities{}, ctx.Err()
		}),
		WithDiscovererLogger(internallog.Discard()))
	_, err := d.Run(ctx)
	assert.True(t, errors.Is(err, context.Canceled))
}
