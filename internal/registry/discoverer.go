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
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	internallog "github.com/tombee/mcporch/internal/log"
	"github.com/tombee/mcporch/internal/mcp"
)

const (
	// DefaultDiscoveryConcurrency bounds simultaneous discoveries.
	DefaultDiscoveryConcurrency = 4

	// DefaultDiscoveryTimeout bounds one server's discovery.
	DefaultDiscoveryTimeout = 30 * time.Second
)

// DiscoverFunc connects to endpoint and returns its capabilities.
type DiscoverFunc func(ctx context.Context, endpoint string) (mcp.Capabilities, error)

// Discoverer settles discovered servers by connecting to them.
type Discoverer struct {
	registry    *Registry
	discover    DiscoverFunc
	concurrency int
	timeout     time.Duration
	logger      *slog.Logger
}

// DiscovererOption configures a Discoverer.
type DiscovererOption func(*Discoverer)

// WithDiscoverFunc replaces mcp.Discover.
func WithDiscoverFunc(f DiscoverFunc) DiscovererOption {
	return func(d *Discoverer) {
		if f != nil {
			d.discover = f
		}
	}
}

// WithClientOptions configures the clients used by the default DiscoverFunc.
func WithClientOptions(opts ...mcp.ClientOption) DiscovererOption {
	return func(d *Discoverer) {
		d.discover = func(ctx context.Context, endpoint string) (mcp.Capabilities, error) {
			return mcp.Discover(ctx, endpoint, opts...)
		}
	}
}

// WithConcurrency bounds simultaneous discoveries.
func WithConcurrency(n int) DiscovererOption {
	return func(d *Discoverer) {
		if n > 0 {
			d.concurrency = n
		}
	}
}

// WithDiscoveryTimeout bounds each server's discovery.
func WithDiscoveryTimeout(t time.Duration) DiscovererOption {
	return func(d *Discoverer) {
		if t > 0 {
			d.timeout = t
		}
	}
}

// WithDiscovererLogger sets the logger.
func WithDiscovererLogger(l *slog.Logger) DiscovererOption {
	return func(d *Discoverer) {
		if l != nil {
			d.logger = l
		}
	}
}

// NewDiscoverer creates a discoverer over reg.
func NewDiscoverer(reg *Registry, opts ...DiscovererOption) *Discoverer {
	d := &Discoverer{
		registry: reg,
		discover: func(ctx context.Context, endpoint string) (mcp.Capabilities, error) {
			return mcp.Discover(ctx, endpoint)
		},
		concurrency: DefaultDiscoveryConcurrency,
		timeout:     DefaultDiscoveryTimeout,
		logger:      slog.Default(),
	}
	for _, opt := range opts {
		opt(d)
	}
	d.logger = internallog.WithComponent(d.logger, "discoverer")
	return d
}

// Report lists the ids each outcome applied to.
type Report struct {
	Deployed []string `json:"deployed"`
	Failed   []string `json:"failed"`

	// Skipped were settled by someone else while discovery ran.
	Skipped []string `json:"skipped"`
}

// Run discovers every server in the discovered state that has an endpoint
// and settles it as deployed, with capabilities, or failed, with the error.
// Individual failures never stop the others. Run returns ctx's error if it
// was cancelled.
func (d *Discoverer) Run(ctx context.Context) (Report, error) {
	var candidates []Server
	for _, s := range d.registry.Filter(StatusDiscovered, "") {
		if s.Endpoint != "" {
			candidates = append(candidates, s)
		}
	}

	var (
		mu     sync.Mutex
		report Report
	)
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(d.concurrency)

	for _, s := range candidates {
		g.Go(func() error {
			outcome := d.discoverOne(gctx, s)
			mu.Lock()
			defer mu.Unlock()
			switch outcome {
			case StatusDeployed:
				report.Deployed = append(report.Deployed, s.ID)
			case StatusFailed:
				report.Failed = append(report.Failed, s.ID)
			default:
				report.Skipped = append(report.Skipped, s.ID)
			}
			return nil
		})
	}
	_ = g.Wait()

	d.logger.Info("discovery finished",
		slog.Int("deployed", len(report.Deployed)),
		slog.Int("failed", len(report.Failed)),
		slog.Int("skipped", len(report.Skipped)))
	return report, ctx.Err()
}

// discoverOne returns the status it settled, or "" when the attempt had
// already been settled elsewhere.
func (d *Discoverer) discoverOne(ctx context.Context, s Server) Status {
	logger := d.logger.With(internallog.ServerIDKey, s.ID, internallog.EndpointKey, s.Endpoint)

	ctx, cancel := context.WithTimeout(ctx, d.timeout)
	caps, err := d.discover(ctx, s.Endpoint)
	cancel()

	var (
		settled Server
		terr    error
	)
	if err != nil {
		logger.Warn("discovery failed", internallog.Error(err))
		settled, terr = d.registry.Transition(s.ID, StatusFailed, Update{Error: err.Error()})
	} else {
		logger.Info("discovered capabilities",
			internallog.ProtocolKey, caps.Protocol,
			slog.Int("tools", len(caps.Tools)))
		settled, terr = d.registry.Transition(s.ID, StatusDeployed, Update{
			Capabilities: &Capabilities{
				Capabilities:   caps,
				DiscoveredAt:   time.Now(),
				AutoDiscovered: true,
			},
		})
	}
	if terr != nil {
		if !errors.Is(terr, ErrTransitionConflict) {
			logger.Warn("could not record discovery", internallog.Error(terr))
		}
		return ""
	}
	return settled.Status
}
