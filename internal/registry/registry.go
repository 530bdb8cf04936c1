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

// Package registry keeps the set of known MCP servers: those registered for
// use and those only seen by discovery. It is safe for concurrent use by
// background discovery and foreground lookups.
package registry

import (
	"crypto/md5"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/tombee/mcporch/internal/mcp"
	pkgerrors "github.com/tombee/mcporch/pkg/errors"
)

// Status is a server's deployment status.
type Status string

const (
	StatusDiscovered Status = "discovered"
	StatusValidated  Status = "validated"
	StatusDeployed   Status = "deployed"
	StatusFailed     Status = "failed"
)

// Valid reports whether s is a known status.
func (s Status) Valid() bool {
	switch s {
	case StatusDiscovered, StatusValidated, StatusDeployed, StatusFailed:
		return true
	}
	return false
}

// settled reports whether a deployment attempt has concluded.
func (s Status) settled() bool {
	return s == StatusDeployed || s == StatusFailed
}

// DeployMethod says how a server is run.
type DeployMethod string

const (
	MethodDocker   DeployMethod = "docker"
	MethodNPX      DeployMethod = "npx"
	MethodE2B      DeployMethod = "e2b"
	MethodLocal    DeployMethod = "local"
	MethodAuto     DeployMethod = "auto"
	MethodExternal DeployMethod = "external"
)

// Valid reports whether m is a known method.
func (m DeployMethod) Valid() bool {
	switch m {
	case MethodDocker, MethodNPX, MethodE2B, MethodLocal, MethodAuto, MethodExternal:
		return true
	}
	return false
}

// ErrTransitionConflict is returned when a deployment attempt has already
// settled.
var ErrTransitionConflict = errors.New("server status already settled for this deployment attempt")

// Capabilities is a discovered capability snapshot.
type Capabilities struct {
	mcp.Capabilities
	DiscoveredAt   time.Time `json:"discovered_at"`
	AutoDiscovered bool      `json:"auto_discovered"`
}

func (c *Capabilities) clone() *Capabilities {
	if c == nil {
		return nil
	}
	return &Capabilities{
		Capabilities:   c.Capabilities.Clone(),
		DiscoveredAt:   c.DiscoveredAt,
		AutoDiscovered: c.AutoDiscovered,
	}
}

// Server is one registry entry.
type Server struct {
	ID           string        `json:"id" yaml:"id,omitempty"`
	Name         string        `json:"name" yaml:"name"`
	Description  string        `json:"description,omitempty" yaml:"description,omitempty"`
	GitHubURL    string        `json:"github_url,omitempty" yaml:"github_url,omitempty"`
	Endpoint     string        `json:"endpoint,omitempty" yaml:"endpoint,omitempty"`
	DeployMethod DeployMethod  `json:"deploy_method" yaml:"deploy_method,omitempty"`
	Status       Status        `json:"status" yaml:"status,omitempty"`
	Capabilities *Capabilities `json:"capabilities,omitempty" yaml:"-"`
	Error        string        `json:"error,omitempty" yaml:"-"`
	CreatedAt    time.Time     `json:"created_at" yaml:"-"`
}

func (s Server) clone() Server {
	s.Capabilities = s.Capabilities.clone()
	return s
}

// ServerID derives a stable id from an identifier such as a repository URL:
// the first 12 hex characters of its MD5.
func ServerID(identifier string) string {
	sum := md5.Sum([]byte(identifier))
	return hex.EncodeToString(sum[:])[:12]
}

// identifier picks what a server's id is derived from.
func (s Server) identifier() string {
	switch {
	case s.GitHubURL != "":
		return s.GitHubURL
	case s.Endpoint != "":
		return s.Endpoint
	default:
		return s.Name
	}
}

// Update carries the fields a transition may set.
type Update struct {
	Endpoint     string
	Error        string
	Capabilities *Capabilities
}

// Registry holds registered servers and a discovery cache. Lookups check the
// registry first.
type Registry struct {
	mu      sync.RWMutex
	servers map[string]Server
	cache   map[string]Server
	logger  *slog.Logger
	nowFunc func() time.Time
}

// Option configures a Registry.
type Option func(*Registry)

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(r *Registry) {
		if l != nil {
			r.logger = l
		}
	}
}

// New creates an empty registry.
func New(opts ...Option) *Registry {
	r := &Registry{
		servers: make(map[string]Server),
		cache:   make(map[string]Server),
		logger:  slog.Default(),
		nowFunc: time.Now,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// prepare validates s and fills defaults.
func (r *Registry) prepare(s Server) (Server, error) {
	if strings.TrimSpace(s.Name) == "" {
		return Server{}, &pkgerrors.ValidationError{Field: "name", Message: "server name cannot be empty"}
	}
	if s.ID == "" {
		s.ID = ServerID(s.identifier())
	}
	if s.Status == "" {
		s.Status = StatusDiscovered
	}
	if !s.Status.Valid() {
		return Server{}, &pkgerrors.ValidationError{Field: "status", Message: fmt.Sprintf("unknown status %q", s.Status)}
	}
	if s.DeployMethod == "" {
		s.DeployMethod = MethodAuto
		if s.Endpoint != "" {
			s.DeployMethod = MethodExternal
		}
	}
	if !s.DeployMethod.Valid() {
		return Server{}, &pkgerrors.ValidationError{
			Field:      "deploy_method",
			Message:    fmt.Sprintf("unknown deploy method %q", s.DeployMethod),
			Suggestion: "use one of docker, npx, e2b, local, auto, external",
		}
	}
	if s.CreatedAt.IsZero() {
		s.CreatedAt = r.nowFunc()
	}
	return s.clone(), nil
}

// Register adds or replaces a server in the registry.
func (r *Registry) Register(s Server) (Server, error) {
	s, err := r.prepare(s)
	if err != nil {
		return Server{}, err
	}

	r.mu.Lock()
	r.servers[s.ID] = s
	r.mu.Unlock()

	r.logger.Info("registered server", slog.String("name", s.Name), slog.String("server_id", s.ID))
	return s.clone(), nil
}

// Cache adds or replaces a server in the discovery cache.
func (r *Registry) Cache(s Server) (Server, error) {
	s, err := r.prepare(s)
	if err != nil {
		return Server{}, err
	}

	r.mu.Lock()
	r.cache[s.ID] = s
	r.mu.Unlock()
	return s.clone(), nil
}

// lookup returns the entry for id and whether it lives in the registry.
// Callers hold r.mu.
func (r *Registry) lookup(id string) (Server, bool, bool) {
	if s, ok := r.servers[id]; ok {
		return s, true, true
	}
	if s, ok := r.cache[id]; ok {
		return s, false, true
	}
	return Server{}, false, false
}

// Get returns a server from the registry or, failing that, the cache.
func (r *Registry) Get(id string) (Server, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	s, _, ok := r.lookup(id)
	if !ok {
		return Server{}, &pkgerrors.NotFoundError{Resource: "server", ID: id}
	}
	return s.clone(), nil
}

// IsRegistered reports whether id is in the registry proper.
func (r *Registry) IsRegistered(id string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.servers[id]
	return ok
}

// IsCached reports whether id is in the discovery cache.
func (r *Registry) IsCached(id string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.cache[id]
	return ok
}

// IsDeployed reports whether id is registered and deployed.
func (r *Registry) IsDeployed(id string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.servers[id]
	return ok && s.Status == StatusDeployed
}

// List returns every known server once, registry entries winning over cached
// ones, ordered by creation time and id.
func (r *Registry) List() []Server {
	r.mu.RLock()
	out := make([]Server, 0, len(r.servers)+len(r.cache))
	for _, s := range r.servers {
		out = append(out, s.clone())
	}
	for id, s := range r.cache {
		if _, dup := r.servers[id]; !dup {
			out = append(out, s.clone())
		}
	}
	r.mu.RUnlock()

	slices.SortFunc(out, func(a, b Server) int {
		if c := a.CreatedAt.Compare(b.CreatedAt); c != 0 {
			return c
		}
		return strings.Compare(a.ID, b.ID)
	})
	return out
}

// Filter lists servers matching status and method. Empty values match all.
func (r *Registry) Filter(status Status, method DeployMethod) []Server {
	all := r.List()
	out := all[:0]
	for _, s := range all {
		if status != "" && s.Status != status {
			continue
		}
		if method != "" && s.DeployMethod != method {
			continue
		}
		out = append(out, s)
	}
	return out
}

// Transition settles the current deployment attempt of id as deployed or
// failed. Each attempt settles at most once; later calls get
// ErrTransitionConflict until Reset starts a new attempt. A deployed server
// is promoted from the cache into the registry.
func (r *Registry) Transition(id string, to Status, u Update) (Server, error) {
	if !to.settled() {
		return Server{}, &pkgerrors.ValidationError{
			Field:   "status",
			Message: fmt.Sprintf("cannot transition to %q", to),
		}
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	s, registered, ok := r.lookup(id)
	if !ok {
		return Server{}, &pkgerrors.NotFoundError{Resource: "server", ID: id}
	}
	if s.Status.settled() {
		return s.clone(), fmt.Errorf("%s %s -> %s: %w", id, s.Status, to, ErrTransitionConflict)
	}

	s.Status = to
	if u.Endpoint != "" {
		s.Endpoint = u.Endpoint
	}
	if u.Error != "" {
		s.Error = u.Error
	}
	if u.Capabilities != nil {
		s.Capabilities = u.Capabilities.clone()
	}

	switch {
	case registered:
		r.servers[id] = s
	case to == StatusDeployed:
		delete(r.cache, id)
		r.servers[id] = s
	default:
		r.cache[id] = s
	}

	r.logger.Info("server status settled", slog.String("server_id", id), slog.String("status", string(to)))
	return s.clone(), nil
}

// Reset starts a new deployment attempt, returning id to discovered and
// clearing the previous error.
func (r *Registry) Reset(id string) (Server, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	s, registered, ok := r.lookup(id)
	if !ok {
		return Server{}, &pkgerrors.NotFoundError{Resource: "server", ID: id}
	}
	s.Status = StatusDiscovered
	s.Error = ""
	if registered {
		r.servers[id] = s
	} else {
		r.cache[id] = s
	}
	return s.clone(), nil
}

// Remove deletes id from both the registry and the cache.
func (r *Registry) Remove(id string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	_, inRegistry := r.servers[id]
	_, inCache := r.cache[id]
	delete(r.servers, id)
	delete(r.cache, id)
	return inRegistry || inCache
}

// ClearCache empties the discovery cache.
func (r *Registry) ClearCache() {
	r.mu.Lock()
	r.cache = make(map[string]Server)
	r.mu.Unlock()
	r.logger.Info("discovery cache cleared")
}

// Size returns the number of registered (not cached) servers.
func (r *Registry) Size() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.servers)
}
