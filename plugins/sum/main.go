// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Plugmesh Authors

// Package main implements the sum example plugin: typed path parameters
// bound by name.
//
// Build an artifact for the web host:
//
//	go build -o plugins-dir/sum.plugin ./plugins/sum
package main

import (
	"github.com/plugmesh/plugmesh/pkg/sdk"
)

type sumModule struct{}

func (sumModule) Name() string    { return "sum" }
func (sumModule) Version() string { return "1.0.0" }

func (sumModule) Register(r sdk.RouteRegistrar) error {
	r.AddGet("/sum/{x:int}/{y:int}", func(req *sdk.Request) (any, error) {
		x, err := req.Params.Int("x")
		if err != nil {
			return nil, err
		}
		y, err := req.Params.Int("y")
		if err != nil {
			return nil, err
		}
		return map[string]int{"sum": x + y}, nil
	})
	r.AddGet("/sum/even/{n:int}", func(req *sdk.Request) (any, error) {
		n, err := req.Params.Int("n")
		if err != nil {
			return nil, err
		}
		return map[string]bool{"even": n%2 == 0}, nil
	})
	return nil
}

func (sumModule) Dispose() error { return nil }

func main() {
	sdk.ServeEndpoints(sumModule{})
}
