// Unless explicitly stated otherwise all files in this repository are licensed
// under the Apache License Version 2.0.
// This product includes software developed at ServerSentry (https://serversentry.io/).
// Copyright 2024-present ServerSentry authors.

package plugin

import (
	"fmt"
	"sync"
)

// Factory builds a fresh, unconfigured plugin instance.
type Factory func() Plugin

var (
	catalogueMu sync.RWMutex
	catalogue   = make(map[string]Factory)
)

// RegisterFactory adds a plugin factory to the catalogue. Built-in plugins
// call this from their init function.
func RegisterFactory(name string, factory Factory) {
	catalogueMu.Lock()
	defer catalogueMu.Unlock()
	catalogue[name] = factory
}

// GetFactory looks a factory up in the catalogue.
func GetFactory(name string) (Factory, error) {
	catalogueMu.RLock()
	defer catalogueMu.RUnlock()
	f, ok := catalogue[name]
	if !ok {
		return nil, fmt.Errorf("unknown plugin: %s", name)
	}
	return f, nil
}

// Registry holds the active plugin set for one agent run. It is populated
// once at start, in configuration order, and read-only afterwards.
type Registry struct {
	order   []string
	plugins map[string]Plugin
	stats   map[string]*Stats
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		plugins: make(map[string]Plugin),
		stats:   make(map[string]*Stats),
	}
}

// Register activates a plugin. A plugin becomes active only if Configure
// succeeds on the loaded configuration.
func (r *Registry) Register(name string, p Plugin, cfg map[string]interface{}) error {
	if _, dup := r.plugins[name]; dup {
		return fmt.Errorf("plugin %s registered twice", name)
	}
	if err := p.Configure(cfg); err != nil {
		return fmt.Errorf("configure %s: %w", name, err)
	}
	r.order = append(r.order, name)
	r.plugins[name] = p
	r.stats[name] = NewStats(name)
	return nil
}

// Get returns the active plugin with the given name.
func (r *Registry) Get(name string) (Plugin, bool) {
	p, ok := r.plugins[name]
	return p, ok
}

// Names returns the active plugin names in registration order.
func (r *Registry) Names() []string {
	out := make([]string, len(r.order))
	copy(out, r.order)
	return out
}

// Stats returns the performance counters for one plugin.
func (r *Registry) Stats(name string) *Stats {
	return r.stats[name]
}
