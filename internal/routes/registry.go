// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Plugmesh Authors

// Package routes is the mutable endpoint data source for the web host. It
// holds route entries grouped per plugin and notifies the routing engine of
// changes through a single-shot change token.
package routes

import (
	"fmt"
	"sort"
	"sync"

	"github.com/oklog/ulid/v2"

	"github.com/plugmesh/plugmesh/pkg/sdk"
)

// DisplayLabelPrefix marks routes published by plugins so external tools can
// tell them apart from host routes.
const DisplayLabelPrefix = "Plugin:"

// Entry is one published route.
type Entry struct {
	// ID is a stable identifier for introspection output.
	ID string
	// PluginName is the group the entry belongs to.
	PluginName string
	// Method is the HTTP method.
	Method string
	// Pattern is the declared pattern with `{name[:type]}` parameters.
	Pattern Pattern
	// Handler serves the route.
	Handler sdk.Handler
	// DisplayLabel is DisplayLabelPrefix + the raw pattern.
	DisplayLabel string
}

// Registry is the endpoint data source. Mutations rotate the change token
// so routing consumers rebuild from a fresh snapshot.
type Registry struct {
	mu     sync.RWMutex
	groups map[string][]Entry

	// tokenMu makes rotation atomic with respect to concurrent mutations so
	// no signal is lost.
	tokenMu sync.Mutex
	token   *Token
}

// New creates an empty Registry.
func New() *Registry {
	return &Registry{
		groups: make(map[string][]Entry),
		token:  newToken(),
	}
}

// ChangeToken returns the current change signal. A consumer subscribing
// between a mutation's capture and rotation sees the fresh token and learns
// of the new state on its next read.
func (r *Registry) ChangeToken() *Token {
	r.tokenMu.Lock()
	defer r.tokenMu.Unlock()
	return r.token
}

// Endpoints returns a flat snapshot of all entries, ordered by plugin name
// then registration order.
func (r *Registry) Endpoints() []Entry {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.groups))
	for name := range r.groups {
		names = append(names, name)
	}
	sort.Strings(names)

	var out []Entry
	for _, name := range names {
		out = append(out, r.groups[name]...)
	}
	return out
}

// PluginNames returns the names of all plugins with at least one entry.
func (r *Registry) PluginNames() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.groups))
	for name := range r.groups {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// EntriesFor returns the entries grouped under pluginName.
func (r *Registry) EntriesFor(pluginName string) []Entry {
	r.mu.RLock()
	defer r.mu.RUnlock()
	entries := r.groups[pluginName]
	out := make([]Entry, len(entries))
	copy(out, entries)
	return out
}

// AddForPlugin appends entries under pluginName and rotates the change
// token once for the whole batch.
func (r *Registry) AddForPlugin(pluginName string, entries ...Entry) {
	if len(entries) == 0 {
		return
	}
	r.mu.Lock()
	r.groups[pluginName] = append(r.groups[pluginName], entries...)
	r.mu.Unlock()

	r.rotate()
}

// RemovePlugin drops every entry grouped under pluginName. Rotates only if
// something was removed.
func (r *Registry) RemovePlugin(pluginName string) {
	r.mu.Lock()
	_, existed := r.groups[pluginName]
	delete(r.groups, pluginName)
	r.mu.Unlock()

	if existed {
		r.rotate()
	}
}

// rotate swaps in a fresh token, then expires the captured one. The
// structural change is already visible, so observers woken by the expiry
// read the new state; the mutex keeps concurrent rotations from dropping a
// signal.
func (r *Registry) rotate() {
	r.tokenMu.Lock()
	old := r.token
	r.token = newToken()
	r.tokenMu.Unlock()

	old.expire()
}

// ForPlugin returns a plugin-facing registrar. Entries are collected locally
// and published as one snapshot change by Commit, so a module's whole route
// table becomes visible atomically.
//
// explicitName may be empty; each entry then groups under the first segment
// of its own pattern.
func (r *Registry) ForPlugin(explicitName string) *PluginRegistrar {
	return &PluginRegistrar{registry: r, explicitName: explicitName}
}

// PluginRegistrar is handed to a module's Register call.
type PluginRegistrar struct {
	registry     *Registry
	explicitName string
	entries      []Entry
	err          error
}

var _ sdk.RouteRegistrar = (*PluginRegistrar)(nil)

// AddGet registers a GET route.
func (pr *PluginRegistrar) AddGet(pattern string, h sdk.Handler) {
	pr.add("GET", pattern, h)
}

// AddPost registers a POST route.
func (pr *PluginRegistrar) AddPost(pattern string, h sdk.Handler) {
	pr.add("POST", pattern, h)
}

func (pr *PluginRegistrar) add(method, rawPattern string, h sdk.Handler) {
	parsed, err := ParsePattern(rawPattern)
	if err != nil {
		if pr.err == nil {
			pr.err = err
		}
		return
	}
	group := pr.explicitName
	if group == "" {
		group = parsed.FirstSegment()
	}
	pr.entries = append(pr.entries, Entry{
		ID:           ulid.Make().String(),
		PluginName:   group,
		Method:       method,
		Pattern:      parsed,
		Handler:      h,
		DisplayLabel: DisplayLabelPrefix + rawPattern,
	})
}

// Commit publishes the collected entries of every group in one registry
// mutation with a single token rotation. It returns the group names touched
// (the lifecycle manager removes these on unload) and the first registration
// error, if any.
func (pr *PluginRegistrar) Commit() ([]string, error) {
	if pr.err != nil {
		return nil, fmt.Errorf("route registration: %w", pr.err)
	}
	byGroup := make(map[string][]Entry)
	var order []string
	for _, e := range pr.entries {
		if _, seen := byGroup[e.PluginName]; !seen {
			order = append(order, e.PluginName)
		}
		byGroup[e.PluginName] = append(byGroup[e.PluginName], e)
	}
	if len(order) == 0 {
		return order, nil
	}
	r := pr.registry
	r.mu.Lock()
	for _, group := range order {
		r.groups[group] = append(r.groups[group], byGroup[group]...)
	}
	r.mu.Unlock()
	r.rotate()
	return order, nil
}
