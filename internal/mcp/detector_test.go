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

package mcp

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDetect_SchemeShortCircuit(t *testing.T) {
	tests := []struct {
		url  string
		want Protocol
	}{
		{"stdio://local/server", ProtocolStdio},
		{"ws://localhost:9000/mcp", ProtocolWebSocket},
		{"wss://example.com/socket", ProtocolWebSocket},
		{"WSS://example.com/socket", ProtocolWebSocket},
	}

	for _, tt := range tests {
		t.Run(tt.url, func(t *testing.T) {
			d := NewDetector(WithProbeClient(noNetworkClient(t)), WithDetectorLogger(testLogger))
			ep, err := d.Detect(context.Background(), tt.url)
			require.NoError(t, err)
			assert.Equal(t, tt.want, ep.Protocol)
			assert.Equal(t, tt.url, ep.WorkingURL)
			assert.Equal(t, tt.url, ep.BaseURL)
		})
	}
}

func TestDetect_JSONRPCAtMCP(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/mcp", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"result": {}}`))
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	ep, err := NewDetector(WithDetectorLogger(testLogger)).Detect(context.Background(), srv.URL)
	require.NoError(t, err)
	assert.Equal(t, ProtocolHTTPJSONRPC, ep.Protocol)
	assert.Equal(t, srv.URL+"/mcp", ep.WorkingURL)
}

func TestDetect_SSEAtSSE(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/sse", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet || r.Header.Get("Accept") != "text/event-stream" {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		w.Header().Set("Content-Type", "text/event-stream")
		w.WriteHeader(http.StatusOK)
		w.(http.Flusher).Flush()
		select {
		case <-r.Context().Done():
		case <-time.After(2 * time.Second):
		}
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	start := time.Now()
	ep, err := NewDetector(WithDetectorLogger(testLogger)).Detect(context.Background(), srv.URL+"/")
	require.NoError(t, err)
	assert.Equal(t, ProtocolSSE, ep.Protocol)
	assert.Equal(t, srv.URL+"/sse", ep.WorkingURL)
	assert.Less(t, time.Since(start), 2*time.Second, "the SSE probe must not read the stream body")
}

func TestDetect_JSONRPCRequiresKnownKeys(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"status": "ok"}`))
	}))
	defer srv.Close()

	d := NewDetector(WithDetectorLogger(testLogger), WithProbePaths("/mcp"))
	ep, err := d.Detect(context.Background(), srv.URL)
	require.NoError(t, err)
	assert.Equal(t, ProtocolUnknown, ep.Protocol)
}

func TestDetect_NothingMatches(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	defer srv.Close()

	ep, err := NewDetector(WithDetectorLogger(testLogger)).Detect(context.Background(), srv.URL)
	require.NoError(t, err)
	assert.Equal(t, Endpoint{BaseURL: srv.URL, Protocol: ProtocolUnknown, WorkingURL: srv.URL}, ep)
}

func TestDetect_RootIsTriedLast(t *testing.T) {
	var (
		mu   sync.Mutex
		seen []string
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodPost {
			mu.Lock()
			seen = append(seen, r.URL.Path)
			mu.Unlock()
		}
		if r.URL.Path == "/" && r.Method == http.MethodPost {
			w.Write([]byte(`{"jsonrpc":"2.0","id":1,"error":{"code":-32601,"message":"nope"}}`))
			return
		}
		http.NotFound(w, r)
	}))
	defer srv.Close()

	d := NewDetector(WithDetectorLogger(testLogger), WithProbeMethods("ping"))
	ep, err := d.Detect(context.Background(), srv.URL)
	require.NoError(t, err)
	assert.Equal(t, ProtocolHTTPJSONRPC, ep.Protocol)
	assert.Equal(t, srv.URL, ep.WorkingURL)

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, seen, len(DefaultProbePaths))
	assert.Equal(t, "/mcp", seen[0])
	assert.Equal(t, "/", seen[len(seen)-1])
}

func TestDetect_ProbeTimeoutBoundsLatency(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(5 * time.Second):
		}
	}))
	defer srv.Close()

	d := NewDetector(
		WithDetectorLogger(testLogger),
		WithProbePaths("/mcp"),
		WithProbeMethods("ping"),
		WithProbeTimeout(50*time.Millisecond),
	)

	start := time.Now()
	ep, err := d.Detect(context.Background(), srv.URL)
	require.NoError(t, err)
	assert.Equal(t, ProtocolUnknown, ep.Protocol)
	assert.Less(t, time.Since(start), 2*time.Second)
}

func TestDetect_UnsupportedScheme(t *testing.T) {
	d := NewDetector(WithProbeClient(noNetworkClient(t)), WithDetectorLogger(testLogger))

	for _, raw := range []string{"ftp://example.com", "not a url", ""} {
		_, err := d.Detect(context.Background(), raw)
		require.Error(t, err, raw)
		assert.ErrorIs(t, err, ErrProtocolUndetected, raw)
	}
}

func TestDetect_CancelledContext(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := NewDetector(WithDetectorLogger(testLogger)).Detect(ctx, srv.URL)
	require.Error(t, err)
	assert.Equal(t, KindConnectionFailed, KindOf(err))
}

func TestDetect_RateLimitedStillDetects(t *testing.T) {
	srv, _ := newMCPServer(t, nil)

	d := NewDetector(WithDetectorLogger(testLogger), WithProbeRate(1000, 1))
	ep, err := d.Detect(context.Background(), srv.URL)
	require.NoError(t, err)
	assert.Equal(t, ProtocolHTTPJSONRPC, ep.Protocol)
}

func TestDetector_StrategyOrder(t *testing.T) {
	d := NewDetector(WithProbeMethods("initialize", "ping"))
	var names []string
	for _, s := range d.Strategies() {
		names = append(names, s.Name())
	}
	assert.Equal(t, []string{"jsonrpc:initialize", "jsonrpc:ping", "sse"}, names)
}
