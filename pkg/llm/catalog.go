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

package llm

import (
	"errors"
	"fmt"
	"maps"
	"slices"
	"sync"

	pkgerrors "github.com/tombee/mcporch/pkg/errors"
)

// ErrInvalidDescriptor is returned when registering a descriptor without a
// name or constructor.
var ErrInvalidDescriptor = errors.New("invalid provider descriptor")

// Descriptor describes one provider implementation.
type Descriptor struct {
	Name         string
	DefaultModel string
	New          func(Config) (Provider, error)
}

// Catalog maps provider names to descriptors. Provider packages register
// into the default catalog from init; the runtime opens the configured one.
type Catalog struct {
	mu      sync.RWMutex
	entries map[string]Descriptor
}

// NewCatalog returns an empty catalog.
func NewCatalog() *Catalog {
	return &Catalog{entries: make(map[string]Descriptor)}
}

// Register adds d, replacing any descriptor with the same name.
func (c *Catalog) Register(d Descriptor) error {
	if d.Name == "" || d.New == nil {
		return fmt.Errorf("%w: %q", ErrInvalidDescriptor, d.Name)
	}
	c.mu.Lock()
	c.entries[d.Name] = d
	c.mu.Unlock()
	return nil
}

// Lookup returns the descriptor registered under name.
func (c *Catalog) Lookup(name string) (Descriptor, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	d, ok := c.entries[name]
	return d, ok
}

// Names lists registered providers in sorted order.
func (c *Catalog) Names() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return slices.Sorted(maps.Keys(c.entries))
}

// Open validates cfg and constructs a new provider. An empty cfg.Model
// takes the descriptor's default.
func (c *Catalog) Open(name string, cfg Config) (Provider, error) {
	d, ok := c.Lookup(name)
	if !ok {
		return nil, &pkgerrors.NotFoundError{Resource: "provider", ID: name}
	}
	if err := cfg.Validate(name); err != nil {
		return nil, err
	}
	if cfg.Model == "" {
		cfg.Model = d.DefaultModel
	}

	p, err := d.New(cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to start provider %s: %w", name, err)
	}
	if p == nil {
		return nil, fmt.Errorf("%w: %s returned no provider", ErrInvalidDescriptor, name)
	}
	return p, nil
}

var defaultCatalog = NewCatalog()

// Register adds d to the default catalog. It panics on an invalid
// descriptor, since registration happens from init.
func Register(d Descriptor) {
	if err := defaultCatalog.Register(d); err != nil {
		panic(err)
	}
}

// Open constructs a provider from the default catalog.
func Open(name string, cfg Config) (Provider, error) {
	return defaultCatalog.Open(name, cfg)
}

// Lookup returns a descriptor from the default catalog.
func Lookup(name string) (Descriptor, bool) {
	return defaultCatalog.Lookup(name)
}

// Names lists the providers in the default catalog.
func Names() []string {
	return defaultCatalog.Names()
}
