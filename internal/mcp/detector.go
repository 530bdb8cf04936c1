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
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	mcpgo "github.com/mark3labs/mcp-go/mcp"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"golang.org/x/time/rate"
)

// DefaultProbePaths are tried in order. The root comes last.
var DefaultProbePaths = []string{
	"/mcp",
	"/sse",
	"/api",
	"/jsonrpc",
	"/rpc",
	"/.well-known/mcp",
	"/v1/mcp",
	"/mcp/v1",
	"",
}

// DefaultProbeMethods are the JSON-RPC methods tried against each path.
var DefaultProbeMethods = []string{
	string(mcpgo.MethodInitialize),
	string(mcpgo.MethodPing),
	"capabilities",
	string(mcpgo.MethodToolsList),
	string(mcpgo.MethodResourcesList),
}

// DefaultProbeTimeout bounds each individual probe.
const DefaultProbeTimeout = 3 * time.Second

// maxProbeBody caps how much of a probe response is read.
const maxProbeBody = 1 << 20

var tracer = otel.Tracer("github.com/tombee/mcporch/internal/mcp")

// ProbeResult is the outcome of one probe. A miss is a normal result, not an
// error; Err records why the probe could not complete.
type ProbeResult struct {
	Matched  bool
	Protocol Protocol
	URL      string
	Err      error
}

// ProbeStrategy checks whether a URL speaks a particular dialect.
type ProbeStrategy interface {
	Name() string
	Probe(ctx context.Context, url string) ProbeResult
}

// Detector resolves a base URL to an Endpoint.
type Detector struct {
	client  *http.Client
	paths   []string
	methods []string
	timeout time.Duration
	limiter *rate.Limiter
	logger  *slog.Logger
}

// DetectorOption configures a Detector.
type DetectorOption func(*Detector)

// WithProbePaths replaces the candidate path suffixes.
func WithProbePaths(paths ...string) DetectorOption {
	return func(d *Detector) { d.paths = append([]string(nil), paths...) }
}

// WithProbeMethods replaces the candidate JSON-RPC methods.
func WithProbeMethods(methods ...string) DetectorOption {
	return func(d *Detector) { d.methods = append([]string(nil), methods...) }
}

// WithProbeTimeout sets the per-probe timeout.
func WithProbeTimeout(timeout time.Duration) DetectorOption {
	return func(d *Detector) {
		if timeout > 0 {
			d.timeout = timeout
		}
	}
}

// WithProbeClient sets the HTTP client used for probes.
func WithProbeClient(client *http.Client) DetectorOption {
	return func(d *Detector) {
		if client != nil {
			d.client = client
		}
	}
}

// WithProbeRate paces probes to at most r per second with the given burst.
// A non-positive r leaves probing unpaced.
func WithProbeRate(r float64, burst int) DetectorOption {
	return func(d *Detector) {
		if r <= 0 {
			d.limiter = nil
			return
		}
		if burst < 1 {
			burst = 1
		}
		d.limiter = rate.NewLimiter(rate.Limit(r), burst)
	}
}

// WithDetectorLogger sets the logger.
func WithDetectorLogger(logger *slog.Logger) DetectorOption {
	return func(d *Detector) {
		if logger != nil {
			d.logger = logger
		}
	}
}

// NewDetector creates a Detector with the default candidates.
func NewDetector(opts ...DetectorOption) *Detector {
	d := &Detector{
		client:  http.DefaultClient,
		paths:   DefaultProbePaths,
		methods: DefaultProbeMethods,
		timeout: DefaultProbeTimeout,
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Strategies returns the ordered strategies tried against each candidate URL:
// one JSON-RPC probe per method, then the SSE probe.
func (d *Detector) Strategies() []ProbeStrategy {
	strategies := make([]ProbeStrategy, 0, len(d.methods)+1)
	for _, method := range d.methods {
		strategies = append(strategies, &jsonRPCProbe{client: d.client, method: method})
	}
	return append(strategies, &sseProbe{client: d.client})
}

// Detect resolves baseURL. ws(s):// and stdio:// are classified without any
// network I/O. For http(s):// the first matching probe wins; when none
// matches the result is ProtocolUnknown with the base URL and a nil error.
func (d *Detector) Detect(ctx context.Context, baseURL string) (Endpoint, error) {
	u, err := url.Parse(baseURL)
	if err != nil || u.Scheme == "" {
		return Endpoint{}, NewError(KindProtocolUndetected, fmt.Sprintf("invalid server URL %q", baseURL), err)
	}

	ep := Endpoint{BaseURL: baseURL, Protocol: ProtocolUnknown, WorkingURL: baseURL}
	switch strings.ToLower(u.Scheme) {
	case "stdio":
		ep.Protocol = ProtocolStdio
		return ep, nil
	case "ws", "wss":
		ep.Protocol = ProtocolWebSocket
		return ep, nil
	case "http", "https":
	default:
		return Endpoint{}, NewError(KindProtocolUndetected, fmt.Sprintf("unsupported scheme %q", u.Scheme), nil)
	}

	ctx, span := tracer.Start(ctx, "mcp.detect")
	defer span.End()
	span.SetAttributes(attribute.String("mcp.base_url", baseURL))

	strategies := d.Strategies()
	for _, path := range d.paths {
		candidate := joinPath(baseURL, path)
		for _, strategy := range strategies {
			if err := ctx.Err(); err != nil {
				return Endpoint{}, transportError(ctx, KindConnectionFailed, "detection aborted", err)
			}
			if d.limiter != nil {
				if err := d.limiter.Wait(ctx); err != nil {
					return Endpoint{}, transportError(ctx, KindConnectionFailed, "detection aborted", err)
				}
			}

			res := d.probe(ctx, strategy, candidate)
			recordProbe(strategy.Name(), res)
			if !res.Matched {
				d.logger.Debug("probe missed",
					"strategy", strategy.Name(), "url", candidate, "error", res.Err)
				continue
			}

			ep.Protocol = res.Protocol
			ep.WorkingURL = res.URL
			d.logger.Info("detected MCP endpoint",
				"protocol", ep.Protocol, "endpoint", ep.WorkingURL, "strategy", strategy.Name())
			span.SetAttributes(attribute.String("mcp.protocol", string(ep.Protocol)))
			detectionsTotal.WithLabelValues(string(ep.Protocol)).Inc()
			return ep, nil
		}
	}

	d.logger.Warn("no MCP endpoint detected", "base_url", baseURL)
	detectionsTotal.WithLabelValues(string(ProtocolUnknown)).Inc()
	return ep, nil
}

func (d *Detector) probe(ctx context.Context, strategy ProbeStrategy, candidate string) ProbeResult {
	ctx, cancel := context.WithTimeout(ctx, d.timeout)
	defer cancel()
	return strategy.Probe(ctx, candidate)
}

// jsonRPCProbe POSTs a single JSON-RPC request.
type jsonRPCProbe struct {
	client *http.Client
	method string
}

func (p *jsonRPCProbe) Name() string { return "jsonrpc:" + p.method }

func (p *jsonRPCProbe) Probe(ctx context.Context, target string) ProbeResult {
	res := ProbeResult{Protocol: ProtocolHTTPJSONRPC, URL: target}

	body, err := json.Marshal(NewRequest(p.method, probeParams(p.method)))
	if err != nil {
		res.Err = err
		return res
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, target, bytes.NewReader(body))
	if err != nil {
		res.Err = err
		return res
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json, text/event-stream")

	resp, err := p.client.Do(req)
	if err != nil {
		res.Err = err
		return res
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		return res
	}
	data, err := io.ReadAll(io.LimitReader(resp.Body, maxProbeBody))
	if err != nil {
		res.Err = err
		return res
	}
	res.Matched = looksLikeJSONRPC(data)
	return res
}

func probeParams(method string) map[string]any {
	if method != string(mcpgo.MethodInitialize) {
		return map[string]any{}
	}
	return map[string]any{
		"protocolVersion": mcpgo.LATEST_PROTOCOL_VERSION,
		"capabilities":    map[string]any{},
		"clientInfo":      clientInfo(),
	}
}

// sseProbe opens an event stream and looks only at the response headers.
type sseProbe struct {
	client *http.Client
}

func (p *sseProbe) Name() string { return "sse" }

func (p *sseProbe) Probe(ctx context.Context, target string) ProbeResult {
	res := ProbeResult{Protocol: ProtocolSSE, URL: target}

	// Cancelling on return releases the stream without reading it.
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		res.Err = err
		return res
	}
	req.Header.Set("Accept", "text/event-stream")

	resp, err := p.client.Do(req)
	if err != nil {
		res.Err = err
		return res
	}
	defer resp.Body.Close()

	res.Matched = resp.StatusCode == http.StatusOK &&
		strings.Contains(resp.Header.Get("Content-Type"), "event-stream")
	return res
}
