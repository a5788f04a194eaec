// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Plugmesh Authors

package lifecycle

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"net/rpc"
	"os"
	"path/filepath"
	"testing"

	hashiplug "github.com/hashicorp/go-plugin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/plugmesh/plugmesh/internal/domain"
	"github.com/plugmesh/plugmesh/internal/routes"
	"github.com/plugmesh/plugmesh/pkg/sdk"
)

// pipeModule is an EndpointModule served in-process over a net.Pipe, giving
// adapters the real host-side proxy types without child processes.
type pipeModule struct {
	name       string
	regErr     error
	startErr   error
	disposeHit *bool
}

func (m *pipeModule) Name() string { return m.name }

func (m *pipeModule) Register(r sdk.RouteRegistrar) error {
	if m.regErr != nil {
		return m.regErr
	}
	r.AddGet("/a/ping", func(_ *sdk.Request) (any, error) {
		return map[string]bool{"pong": true}, nil
	})
	r.AddGet("/a/version", func(_ *sdk.Request) (any, error) {
		return map[string]int{"v": 1}, nil
	})
	return nil
}

func (m *pipeModule) Dispose() error {
	if m.disposeHit != nil {
		*m.disposeHit = true
	}
	return nil
}

// servePlugin wires a go-plugin adapter pair over an in-memory pipe and
// returns the host-side client value.
func servePlugin(t *testing.T, p hashiplug.Plugin) any {
	t.Helper()
	srv, err := p.Server(nil)
	require.NoError(t, err)

	server := rpc.NewServer()
	require.NoError(t, server.RegisterName("Plugin", srv))

	cliConn, srvConn := net.Pipe()
	go server.ServeConn(srvConn)
	t.Cleanup(func() { _ = cliConn.Close() })

	client, err := p.Client(nil, rpc.NewClient(cliConn))
	require.NoError(t, err)
	return client
}

// dispenseProtocol hands out pre-built client values by capability name.
type dispenseProtocol struct {
	values map[string]any
}

func (p *dispenseProtocol) Close() error { return nil }
func (p *dispenseProtocol) Ping() error  { return nil }
func (p *dispenseProtocol) Dispense(name string) (any, error) {
	v, ok := p.values[name]
	if !ok {
		return nil, errors.New("unknown plugin type: " + name)
	}
	return v, nil
}

type protoClient struct {
	proto hashiplug.ClientProtocol
}

func (c *protoClient) Client() (hashiplug.ClientProtocol, error) { return c.proto, nil }
func (c *protoClient) Kill()                                     {}

type protoFactory struct {
	proto hashiplug.ClientProtocol
}

func (f *protoFactory) NewClient(string) domain.PluginClient {
	return &protoClient{proto: f.proto}
}

func loadDomain(t *testing.T, values map[string]any) *domain.Domain {
	t.Helper()
	path := filepath.Join(t.TempDir(), "mod.plugin")
	require.NoError(t, os.WriteFile(path, []byte("#!/bin/true\n"), 0o700)) // #nosec G306

	d, err := domain.LoadFromPath(context.Background(), path,
		&protoFactory{proto: &dispenseProtocol{values: values}}, nil)
	require.NoError(t, err)
	return d
}

func TestWebAdapter_InstantiatePublishesRoutes(t *testing.T) {
	reg := routes.New()
	adapter := &WebAdapter{Registry: reg}

	client := servePlugin(t, &sdk.EndpointsPlugin{Impl: &pipeModule{name: "alpha"}})
	d := loadDomain(t, map[string]any{sdk.CapabilityEndpoints: client})

	inst, desc, err := adapter.Instantiate(d)
	require.NoError(t, err)
	assert.Equal(t, "alpha", desc.Name)
	assert.Equal(t, "alpha", inst.Name())

	entries := reg.Endpoints()
	require.Len(t, entries, 2)
	assert.Equal(t, "alpha", entries[0].PluginName)
	assert.Equal(t, "Plugin:/a/ping", entries[0].DisplayLabel)

	// The published handler proxies into the module.
	body, err := entries[0].Handler(&sdk.Request{Method: "GET"})
	require.NoError(t, err)
	raw, ok := body.(json.RawMessage)
	require.True(t, ok)
	assert.JSONEq(t, `{"pong":true}`, string(raw))
}

func TestWebAdapter_AnonymousModuleGroupsByFirstSegment(t *testing.T) {
	reg := routes.New()
	adapter := &WebAdapter{Registry: reg}

	client := servePlugin(t, &sdk.EndpointsPlugin{Impl: &pipeModule{name: ""}})
	d := loadDomain(t, map[string]any{sdk.CapabilityEndpoints: client})

	_, _, err := adapter.Instantiate(d)
	require.NoError(t, err)
	assert.Equal(t, []string{"a"}, reg.PluginNames())
}

func TestWebAdapter_RegisterFailurePublishesNothing(t *testing.T) {
	reg := routes.New()
	adapter := &WebAdapter{Registry: reg}

	client := servePlugin(t, &sdk.EndpointsPlugin{Impl: &pipeModule{
		name:   "alpha",
		regErr: errors.New("bad wiring"),
	}})
	d := loadDomain(t, map[string]any{sdk.CapabilityEndpoints: client})

	_, _, err := adapter.Instantiate(d)
	require.Error(t, err)
	assert.Empty(t, reg.Endpoints())
}

func TestWebAdapter_MissingCapabilityFails(t *testing.T) {
	reg := routes.New()
	adapter := &WebAdapter{Registry: reg}
	d := loadDomain(t, nil)

	_, _, err := adapter.Instantiate(d)
	require.Error(t, err)
}

func TestWebAdapter_DeactivateRemovesRoutes(t *testing.T) {
	reg := routes.New()
	adapter := &WebAdapter{Registry: reg}

	client := servePlugin(t, &sdk.EndpointsPlugin{Impl: &pipeModule{name: "alpha"}})
	d := loadDomain(t, map[string]any{sdk.CapabilityEndpoints: client})

	inst, _, err := adapter.Instantiate(d)
	require.NoError(t, err)
	require.NotEmpty(t, reg.Endpoints())

	adapter.Deactivate(inst)
	assert.Empty(t, reg.Endpoints())
	for _, e := range reg.Endpoints() {
		assert.NotEqual(t, "alpha", e.PluginName)
	}
}

// pipeFeature is a Feature served in-process.
type pipeFeature struct {
	startErr error
	started  bool
}

func (f *pipeFeature) Name() string { return "ticker" }
func (f *pipeFeature) Start() error {
	f.started = true
	return f.startErr
}
func (f *pipeFeature) Dispose() error { return nil }

func TestConsoleAdapter_InstantiateStartsFeature(t *testing.T) {
	adapter := &ConsoleAdapter{}
	feature := &pipeFeature{}

	client := servePlugin(t, &sdk.FeaturePlugin{Impl: feature})
	d := loadDomain(t, map[string]any{sdk.CapabilityFeature: client})

	inst, desc, err := adapter.Instantiate(d)
	require.NoError(t, err)
	assert.Equal(t, "ticker", desc.Name)
	assert.Equal(t, "ticker", inst.Name())
	assert.True(t, feature.started)
}

func TestConsoleAdapter_StartFailureIsConstructionError(t *testing.T) {
	adapter := &ConsoleAdapter{}
	feature := &pipeFeature{startErr: errors.New("cannot begin")}

	client := servePlugin(t, &sdk.FeaturePlugin{Impl: feature})
	d := loadDomain(t, map[string]any{sdk.CapabilityFeature: client})

	_, _, err := adapter.Instantiate(d)
	require.Error(t, err)
}
