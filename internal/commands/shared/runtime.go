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

package shared

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"strings"

	"github.com/tombee/mcporch/internal/config"
	internallog "github.com/tombee/mcporch/internal/log"
	"github.com/tombee/mcporch/internal/mcp"
	"github.com/tombee/mcporch/internal/oracle"
	"github.com/tombee/mcporch/internal/orchestrator"
	"github.com/tombee/mcporch/internal/registry"
	"github.com/tombee/mcporch/internal/secrets"
	"github.com/tombee/mcporch/internal/tracing"
	"github.com/tombee/mcporch/pkg/httpclient"
	"github.com/tombee/mcporch/pkg/llm"
	_ "github.com/tombee/mcporch/pkg/llm/providers"
	pkgsecrets "github.com/tombee/mcporch/pkg/secrets"
)

// Runtime is the configured environment a command runs in.
type Runtime struct {
	Config  *config.Config
	Logger  *slog.Logger
	Secrets *secrets.Resolver

	// Masker hides credentials in log and command output.
	Masker *pkgsecrets.Masker

	httpClient *http.Client
	provider   *tracing.Provider
	cancel     context.CancelFunc
}

// NewRuntime loads configuration, applies the global flags and starts
// tracing and the metrics endpoint when they are configured. Callers must
// Close it.
func NewRuntime(ctx context.Context) (*Runtime, error) {
	cfg, err := config.Load(global.config)
	if err != nil {
		return nil, NewConfigError("failed to load configuration", err)
	}
	global.overlay(cfg)
	if err := cfg.Validate(); err != nil {
		return nil, NewConfigError("invalid flags", err)
	}
	return NewRuntimeFromConfig(ctx, cfg, secrets.DefaultResolver())
}

// NewRuntimeFromConfig builds a runtime from an already loaded config.
func NewRuntimeFromConfig(ctx context.Context, cfg *config.Config, res *secrets.Resolver) (*Runtime, error) {
	masker := pkgsecrets.NewMasker()
	masker.AddSecretsFromEnv(os.Environ())

	logCfg := cfg.LoggerConfig()
	logCfg.Format = internallog.ResolveFormat(logCfg.Format, logCfg.Output)
	logCfg.Output = masker.Writer(logCfg.Output)
	logger := internallog.New(logCfg)

	hcCfg := httpclient.DefaultConfig()
	hcCfg.Timeout = 0
	hcCfg.RetryAttempts = 0
	hcCfg.Logger = logger
	if o := cfg.Client.OAuth; o.Enabled() {
		secret, err := res.Expand(ctx, o.ClientSecret)
		if err != nil {
			return nil, NewConfigError("failed to resolve client.oauth.client_secret", err)
		}
		masker.AddSecret(secret)
		hcCfg.OAuth = &httpclient.OAuth{TokenURL: o.TokenURL, ClientID: o.ClientID, ClientSecret: secret, Scopes: o.Scopes}
	}
	hc, err := httpclient.New(hcCfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create HTTP client: %w", err)
	}

	rt := &Runtime{
		Config:     cfg,
		Logger:     logger,
		Secrets:    res,
		Masker:     masker,
		httpClient: hc,
	}

	if cfg.Tracing.Enabled || cfg.Metrics.Addr != "" {
		rt.provider, err = tracing.Setup(ctx, tracingConfig(cfg))
		if err != nil {
			return nil, NewConfigError("failed to set up tracing", err)
		}
	}
	if cfg.Metrics.Addr != "" {
		var metricsCtx context.Context
		metricsCtx, rt.cancel = context.WithCancel(context.Background())
		if _, err := tracing.ServeMetrics(metricsCtx, cfg.Metrics.Addr, logger); err != nil {
			rt.cancel()
			_ = rt.provider.Shutdown(ctx)
			return nil, NewConfigError("failed to serve metrics", err)
		}
	}
	return rt, nil
}

// tracingConfig stamps the build version onto the tracing section.
func tracingConfig(cfg *config.Config) tracing.Config {
	tcfg := cfg.Tracing
	tcfg.ServiceVersion = build.version
	return tcfg
}

// Close flushes telemetry and stops the metrics endpoint.
func (r *Runtime) Close(ctx context.Context) error {
	if r.cancel != nil {
		r.cancel()
	}
	return r.provider.Shutdown(ctx)
}

// Detector builds a protocol detector from the detection section.
func (r *Runtime) Detector() *mcp.Detector {
	det := r.Config.Detection
	detOpts := []mcp.DetectorOption{
		mcp.WithProbeClient(r.httpClient),
		mcp.WithProbeTimeout(det.ProbeTimeout),
		mcp.WithProbeRate(det.ProbeRate, det.ProbeBurst),
		mcp.WithDetectorLogger(r.Logger),
	}
	if len(det.ProbePaths) > 0 {
		detOpts = append(detOpts, mcp.WithProbePaths(det.ProbePaths...))
	}
	if len(det.ProbeMethods) > 0 {
		detOpts = append(detOpts, mcp.WithProbeMethods(det.ProbeMethods...))
	}
	return mcp.NewDetector(detOpts...)
}

// ClientOptions translates the detection and client sections into MCP
// client options.
func (r *Runtime) ClientOptions() []mcp.ClientOption {
	opts := []mcp.ClientOption{
		mcp.WithHTTPClient(r.httpClient),
		mcp.WithDetector(r.Detector()),
		mcp.WithRequestTimeout(r.Config.Client.RequestTimeout),
		mcp.WithToolTimeout(r.Config.Client.ToolTimeout),
		mcp.WithLogger(r.Logger),
	}
	if len(r.Config.Client.Headers) > 0 {
		h := make(http.Header, len(r.Config.Client.Headers))
		for k, v := range r.Config.Client.Headers {
			h.Set(k, v)
		}
		opts = append(opts, mcp.WithHeader(h))
	}
	if !r.Config.Detection.VendorFallback {
		opts = append(opts, mcp.WithVendorTable(mcp.NewVendorTable()), mcp.WithFallbackPolicy(mcp.NoFallback))
	}
	return opts
}

// NewClient creates an unconnected MCP client for url.
func (r *Runtime) NewClient(url string) *mcp.Client {
	return mcp.NewClient(url, r.ClientOptions()...)
}

// Oracle builds the planning oracle. Missing credentials are not fatal:
// the engine then runs fallback plans.
func (r *Runtime) Oracle(ctx context.Context) oracle.Oracle {
	cfg := r.Config.Oracle
	if cfg.Provider == config.ProviderNone {
		return oracle.Unavailable{Reason: "oracle disabled by configuration"}
	}

	creds, ok, err := r.Config.OracleCredentials(ctx, r.Secrets)
	if err != nil {
		r.Logger.Warn("oracle credentials unavailable", internallog.Error(err))
		return oracle.Unavailable{Reason: err.Error()}
	}
	if !ok {
		return oracle.Unavailable{Reason: fmt.Sprintf("no API key for %s (set %s_API_KEY)", cfg.Provider, strings.ToUpper(cfg.Provider))}
	}

	r.Masker.AddSecret(creds.APIKey)

	provider, err := llm.Open(cfg.Provider, creds)
	if err != nil {
		internallog.WithProvider(r.Logger, cfg.Provider).Warn("oracle provider failed to start", internallog.Error(err))
		return oracle.Unavailable{Reason: err.Error()}
	}
	r.Logger.Debug("oracle provider ready", slog.Any("provider", creds))

	policy := llm.DefaultRetryPolicy()
	policy.MaxRetries = cfg.MaxRetries
	policy.Logger = r.Logger

	return oracle.NewLLMOracle(llm.WithRetry(provider, policy),
		oracle.WithModel(cfg.Model),
		oracle.WithPlanTimeout(cfg.PlanTimeout),
		oracle.WithSummaryTimeout(cfg.SummaryTimeout),
		oracle.WithLogger(r.Logger),
	)
}

// Engine builds an orchestration engine from the configuration.
func (r *Runtime) Engine(ctx context.Context) *orchestrator.Engine {
	return orchestrator.New(
		orchestrator.WithClientFactory(orchestrator.NewClientFactory(r.ClientOptions()...)),
		orchestrator.WithOracle(r.Oracle(ctx)),
		orchestrator.WithEventBuffer(r.Config.Engine.EventBuffer),
		orchestrator.WithToolTimeout(r.Config.Client.ToolTimeout),
		orchestrator.WithToolPolicy(orchestrator.ToolPolicy{
			Allow: r.Config.Engine.AllowTools,
			Deny:  r.Config.Engine.DenyTools,
		}),
		orchestrator.WithLogger(r.Logger),
	)
}

// Registry returns a server registry populated from servers_file.
func (r *Runtime) Registry() (*registry.Registry, error) {
	reg := registry.New(registry.WithLogger(r.Logger))
	if r.Config.ServersFile == "" {
		return reg, nil
	}
	if _, err := reg.LoadFile(r.Config.ServersFile); err != nil {
		return nil, NewConfigError("failed to load servers file", err)
	}
	return reg, nil
}

// Discoverer returns a capability discoverer over reg.
func (r *Runtime) Discoverer(reg *registry.Registry) *registry.Discoverer {
	return registry.NewDiscoverer(reg,
		registry.WithClientOptions(r.ClientOptions()...),
		registry.WithConcurrency(r.Config.Discovery.Concurrency),
		registry.WithDiscoveryTimeout(r.Config.Discovery.Timeout),
		registry.WithDiscovererLogger(r.Logger),
	)
}

// ResolveServer turns a command argument into a server. Anything with a
// scheme is used as a URL; otherwise the argument is a registry id.
func (r *Runtime) ResolveServer(arg string) (orchestrator.Server, error) {
	if strings.Contains(arg, "://") {
		return orchestrator.Server{ID: registry.ServerID(arg), URL: arg}, nil
	}

	reg, err := r.Registry()
	if err != nil {
		return orchestrator.Server{}, err
	}
	s, err := reg.Get(arg)
	if err != nil {
		return orchestrator.Server{}, NewInputError(fmt.Sprintf("%q is neither a URL nor a known server id", arg), err)
	}
	if s.Endpoint == "" {
		return orchestrator.Server{}, NewInputError(fmt.Sprintf("server %s (%s) has no endpoint", s.ID, s.Name), errors.New("set endpoint in the servers file"))
	}
	return orchestrator.Server{ID: s.ID, URL: s.Endpoint}, nil
}
