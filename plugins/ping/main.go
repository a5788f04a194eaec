// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Plugmesh Authors

// Package main implements the ping example plugin: a minimal endpoint
// module with a single health-style route.
//
// Build an artifact for the web host:
//
//	go build -o plugins-dir/ping.plugin ./plugins/ping
package main

import (
	"github.com/plugmesh/plugmesh/pkg/sdk"
)

type pingModule struct{}

func (pingModule) Name() string    { return "ping" }
func (pingModule) Version() string { return "1.0.0" }

func (pingModule) Register(r sdk.RouteRegistrar) error {
	r.AddGet("/ping", func(_ *sdk.Request) (any, error) {
		return map[string]bool{"pong": true}, nil
	})
	return nil
}

func (pingModule) Dispose() error { return nil }

func main() {
	sdk.ServeEndpoints(pingModule{})
}
