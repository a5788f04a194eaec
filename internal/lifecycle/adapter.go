// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Plugmesh Authors

package lifecycle

import (
	"github.com/samber/oops"

	"github.com/plugmesh/plugmesh/internal/domain"
	"github.com/plugmesh/plugmesh/internal/routes"
	"github.com/plugmesh/plugmesh/pkg/sdk"
)

// Instance is a live plugin capability owned by a handle or the pending-
// disposal queue.
type Instance interface {
	Name() string
	Dispose() error
}

// Adapter binds the manager to one host shape. Instantiate dispenses the
// expected capability from a freshly loaded domain and runs its activation;
// Deactivate removes host-side side effects (routes) without disposing the
// instance.
type Adapter interface {
	Instantiate(d *domain.Domain) (Instance, sdk.DescribeReply, error)
	Deactivate(inst Instance)
}

// ConsoleAdapter drives Feature plugins: start on load, nothing to
// deactivate (disposal alone tears the feature down).
type ConsoleAdapter struct{}

var _ Adapter = (*ConsoleAdapter)(nil)

// Instantiate dispenses the Feature capability and starts it.
func (*ConsoleAdapter) Instantiate(d *domain.Domain) (Instance, sdk.DescribeReply, error) {
	feature, err := d.DispenseFeature()
	if err != nil {
		return nil, sdk.DescribeReply{}, err
	}
	desc, err := feature.Describe()
	if err != nil {
		return nil, sdk.DescribeReply{}, oops.Code(CodeConstructionError).
			With("stage", "describe").
			Wrap(err)
	}
	if err := feature.Start(); err != nil {
		return nil, sdk.DescribeReply{}, oops.Code(CodeConstructionError).
			With("stage", "start").
			With("plugin", desc.Name).
			Wrap(err)
	}
	return feature, desc, nil
}

// Deactivate is a no-op for console features.
func (*ConsoleAdapter) Deactivate(Instance) {}

// WebAdapter drives EndpointModule plugins: register routes on load, remove
// them on deactivation.
type WebAdapter struct {
	Registry *routes.Registry
}

var _ Adapter = (*WebAdapter)(nil)

// webInstance pairs the endpoints proxy with the registry groups its routes
// landed in, so deactivation can remove exactly what registration added.
type webInstance struct {
	module *sdk.EndpointsClient
	groups []string
}

func (w *webInstance) Name() string   { return w.module.Name() }
func (w *webInstance) Dispose() error { return w.module.Dispose() }

// Instantiate dispenses the EndpointModule capability and publishes its
// routes. All route entries become visible as one snapshot change; on any
// failure nothing is published.
func (a *WebAdapter) Instantiate(d *domain.Domain) (Instance, sdk.DescribeReply, error) {
	module, err := d.DispenseEndpoints()
	if err != nil {
		return nil, sdk.DescribeReply{}, err
	}
	desc, err := module.Describe()
	if err != nil {
		return nil, sdk.DescribeReply{}, oops.Code(CodeConstructionError).
			With("stage", "describe").
			Wrap(err)
	}
	registrar := a.Registry.ForPlugin(desc.Name)
	if err := module.Register(registrar); err != nil {
		return nil, sdk.DescribeReply{}, oops.Code(CodeConstructionError).
			With("stage", "register").
			With("plugin", desc.Name).
			Wrap(err)
	}
	groups, err := registrar.Commit()
	if err != nil {
		return nil, sdk.DescribeReply{}, oops.Code(CodeConstructionError).
			With("stage", "register").
			With("plugin", desc.Name).
			Wrap(err)
	}
	return &webInstance{module: module, groups: groups}, desc, nil
}

// Deactivate removes the instance's route groups from the registry. New
// requests stop reaching the instance once the change token rotates;
// in-flight requests keep their captured handler.
func (a *WebAdapter) Deactivate(inst Instance) {
	wi, ok := inst.(*webInstance)
	if !ok {
		return
	}
	for _, group := range wi.groups {
		a.Registry.RemovePlugin(group)
	}
}
