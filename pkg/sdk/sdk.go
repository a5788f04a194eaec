// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Plugmesh Authors

// Package sdk defines the capability contracts shared by the Plugmesh host
// and every plugin. It is compiled into both binaries, so the interfaces and
// payload types here are the single source of type identity across the
// host/plugin boundary.
//
// Plugins implement exactly one capability and serve it from main():
//
//	package main
//
//	import "github.com/plugmesh/plugmesh/pkg/sdk"
//
//	type ping struct{}
//
//	func (ping) Name() string { return "ping" }
//
//	func (ping) Register(r sdk.RouteRegistrar) error {
//		r.AddGet("/ping", func(_ *sdk.Request) (any, error) {
//			return map[string]bool{"pong": true}, nil
//		})
//		return nil
//	}
//
//	func (ping) Dispose() error { return nil }
//
//	func main() {
//		sdk.ServeEndpoints(ping{})
//	}
package sdk

import (
	hashiplug "github.com/hashicorp/go-plugin"
)

// Feature is the capability implemented by console-host plugins: a lifecycle
// object that is started after load and disposed before unload.
type Feature interface {
	// Name returns the plugin's self-declared name.
	Name() string

	// Start begins whatever background work the plugin performs.
	Start() error

	// Dispose releases all held resources (timers, sockets, caches, HTTP
	// clients) and detaches event subscriptions. Called exactly once.
	Dispose() error
}

// EndpointModule is the capability implemented by web-host plugins: a set of
// HTTP route handlers published into the host's router.
type EndpointModule interface {
	// Name returns the plugin's self-declared name. An empty name makes the
	// host derive one from the first route pattern segment.
	Name() string

	// Register publishes the module's routes. Called once after load.
	Register(r RouteRegistrar) error

	// Dispose releases all held resources. Called exactly once.
	Dispose() error
}

// Versioner is optionally implemented by plugins that declare a version.
// The host logs it on load and validates it as semver (warn-only).
type Versioner interface {
	Version() string
}

// RouteRegistrar receives route registrations from an EndpointModule.
//
// Patterns use `{name}` for string parameters and `{name:int}` /
// `{name:bool}` for typed parameters. Typed values are validated by the host
// before the handler runs.
type RouteRegistrar interface {
	// AddGet registers a GET route.
	AddGet(pattern string, h Handler)

	// AddPost registers a POST route.
	AddPost(pattern string, h Handler)
}

// Handler processes one HTTP request. The returned value is serialized as
// JSON; returning json.RawMessage passes bytes through unchanged.
type Handler func(req *Request) (any, error)

// Capability names dispensed over the go-plugin connection.
const (
	CapabilityFeature   = "feature"
	CapabilityEndpoints = "endpoints"
)

// Handshake is the go-plugin handshake configuration. Host and plugins must
// use identical values; a mismatch is rejected before any capability is
// dispensed. Bumping ProtocolVersion is the explicit ABI version gate.
var Handshake = hashiplug.HandshakeConfig{
	ProtocolVersion:  1,
	MagicCookieKey:   "PLUGMESH_PLUGIN",
	MagicCookieValue: "plugmesh-v1",
}

// ServeFeature serves a Feature plugin. Call from main(); blocks and never
// returns under normal operation. Panics if impl is nil.
func ServeFeature(impl Feature) {
	if impl == nil {
		panic("sdk: feature implementation cannot be nil")
	}
	hashiplug.Serve(&hashiplug.ServeConfig{
		HandshakeConfig: Handshake,
		Plugins: map[string]hashiplug.Plugin{
			CapabilityFeature: &FeaturePlugin{Impl: impl},
		},
	})
}

// ServeEndpoints serves an EndpointModule plugin. Call from main(); blocks
// and never returns under normal operation. Panics if impl is nil.
func ServeEndpoints(impl EndpointModule) {
	if impl == nil {
		panic("sdk: endpoint module implementation cannot be nil")
	}
	hashiplug.Serve(&hashiplug.ServeConfig{
		HandshakeConfig: Handshake,
		Plugins: map[string]hashiplug.Plugin{
			CapabilityEndpoints: &EndpointsPlugin{Impl: impl},
		},
	})
}

// versionOf extracts the optional self-declared version.
func versionOf(impl any) string {
	if v, ok := impl.(Versioner); ok {
		return v.Version()
	}
	return ""
}
