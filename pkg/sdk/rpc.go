// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Plugmesh Authors

package sdk

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/rpc"
	"sync"

	hashiplug "github.com/hashicorp/go-plugin"
)

// ErrUnknownRoute is returned by Invoke for a route ID the plugin never
// registered. Seen by the host when route tables drift (should not happen
// within one load generation).
var ErrUnknownRoute = errors.New("sdk: unknown route id")

// DescribeReply is the plugin's self-description.
type DescribeReply struct {
	Name    string
	Version string
}

// RouteSpec describes one registered route as it travels host-ward.
type RouteSpec struct {
	// ID identifies the route within its plugin for Invoke dispatch.
	ID string
	// Method is the HTTP method (GET or POST).
	Method string
	// Pattern is the declared pattern, e.g. "/sum/{x:int}/{y:int}".
	Pattern string
}

// RoutesReply carries the plugin's full route table.
type RoutesReply struct {
	Routes []RouteSpec
}

// InvokeArgs carries one request to a plugin handler.
type InvokeArgs struct {
	RouteID string
	Request Request
}

// InvokeReply carries the JSON-serialized handler result.
type InvokeReply struct {
	Body []byte
}

// Compile-time checks that the adapters satisfy go-plugin's Plugin interface.
var (
	_ hashiplug.Plugin = (*FeaturePlugin)(nil)
	_ hashiplug.Plugin = (*EndpointsPlugin)(nil)
)

// FeaturePlugin is the go-plugin adapter for the Feature capability.
type FeaturePlugin struct {
	Impl Feature
}

// Server returns the plugin-side RPC server (called in the plugin process).
func (p *FeaturePlugin) Server(_ *hashiplug.MuxBroker) (any, error) {
	return &featureServer{impl: p.Impl}, nil
}

// Client returns the host-side proxy (called in the host process).
func (p *FeaturePlugin) Client(_ *hashiplug.MuxBroker, c *rpc.Client) (any, error) {
	return &FeatureClient{client: c}, nil
}

// EndpointsPlugin is the go-plugin adapter for the EndpointModule capability.
type EndpointsPlugin struct {
	Impl EndpointModule
}

// Server returns the plugin-side RPC server (called in the plugin process).
func (p *EndpointsPlugin) Server(_ *hashiplug.MuxBroker) (any, error) {
	return &endpointsServer{impl: p.Impl}, nil
}

// Client returns the host-side proxy (called in the host process).
func (p *EndpointsPlugin) Client(_ *hashiplug.MuxBroker, c *rpc.Client) (any, error) {
	return &EndpointsClient{client: c}, nil
}

// featureServer runs inside the plugin process and forwards RPC calls to the
// plugin author's implementation.
type featureServer struct {
	impl Feature
}

func (s *featureServer) Describe(_ struct{}, reply *DescribeReply) error {
	reply.Name = s.impl.Name()
	reply.Version = versionOf(s.impl)
	return nil
}

func (s *featureServer) Start(_ struct{}, _ *struct{}) error {
	return s.impl.Start()
}

func (s *featureServer) Dispose(_ struct{}, _ *struct{}) error {
	return s.impl.Dispose()
}

// FeatureClient is the host-side proxy for a Feature plugin. It implements
// Feature so host code handles remote and in-process instances identically.
type FeatureClient struct {
	client *rpc.Client

	mu   sync.Mutex
	info *DescribeReply
}

var _ Feature = (*FeatureClient)(nil)

// Describe fetches and caches the plugin's self-description.
func (c *FeatureClient) Describe() (DescribeReply, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.info != nil {
		return *c.info, nil
	}
	var reply DescribeReply
	if err := c.client.Call("Plugin.Describe", struct{}{}, &reply); err != nil {
		return DescribeReply{}, fmt.Errorf("describe: %w", err)
	}
	c.info = &reply
	return reply, nil
}

// Name returns the cached self-declared name. Describe must have succeeded
// first; the host always calls it during load.
func (c *FeatureClient) Name() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.info == nil {
		return ""
	}
	return c.info.Name
}

// Start invokes the plugin's Start over RPC.
func (c *FeatureClient) Start() error {
	return c.client.Call("Plugin.Start", struct{}{}, &struct{}{})
}

// Dispose invokes the plugin's Dispose over RPC.
func (c *FeatureClient) Dispose() error {
	return c.client.Call("Plugin.Dispose", struct{}{}, &struct{}{})
}

// endpointsServer runs inside the plugin process. Route collection is lazy:
// the module's Register runs once, on the first Routes or Invoke call.
type endpointsServer struct {
	impl EndpointModule

	once     sync.Once
	regErr   error
	routes   []RouteSpec
	handlers map[string]Handler
}

// collect runs the module's Register exactly once.
func (s *endpointsServer) collect() error {
	s.once.Do(func() {
		col := &specCollector{handlers: make(map[string]Handler)}
		if err := s.impl.Register(col); err != nil {
			s.regErr = err
			return
		}
		s.routes = col.routes
		s.handlers = col.handlers
	})
	return s.regErr
}

func (s *endpointsServer) Describe(_ struct{}, reply *DescribeReply) error {
	reply.Name = s.impl.Name()
	reply.Version = versionOf(s.impl)
	return nil
}

func (s *endpointsServer) Routes(_ struct{}, reply *RoutesReply) error {
	if err := s.collect(); err != nil {
		return err
	}
	reply.Routes = s.routes
	return nil
}

func (s *endpointsServer) Invoke(args InvokeArgs, reply *InvokeReply) error {
	if err := s.collect(); err != nil {
		return err
	}
	h, ok := s.handlers[args.RouteID]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownRoute, args.RouteID)
	}
	result, err := h(&args.Request)
	if err != nil {
		return err
	}
	body, err := json.Marshal(result)
	if err != nil {
		return fmt.Errorf("marshal handler result: %w", err)
	}
	reply.Body = body
	return nil
}

func (s *endpointsServer) Dispose(_ struct{}, _ *struct{}) error {
	return s.impl.Dispose()
}

// specCollector is the plugin-side RouteRegistrar: it records specs and
// keeps the handlers local for Invoke dispatch.
type specCollector struct {
	routes   []RouteSpec
	handlers map[string]Handler
}

var _ RouteRegistrar = (*specCollector)(nil)

func (c *specCollector) add(method, pattern string, h Handler) {
	id := fmt.Sprintf("%s %s", method, pattern)
	c.routes = append(c.routes, RouteSpec{ID: id, Method: method, Pattern: pattern})
	c.handlers[id] = h
}

func (c *specCollector) AddGet(pattern string, h Handler)  { c.add("GET", pattern, h) }
func (c *specCollector) AddPost(pattern string, h Handler) { c.add("POST", pattern, h) }

// EndpointsClient is the host-side proxy for an EndpointModule plugin. Its
// Register replays the remote route table into the host registrar with proxy
// handlers, so the host drives remote modules exactly like local ones.
type EndpointsClient struct {
	client *rpc.Client

	mu   sync.Mutex
	info *DescribeReply
}

var _ EndpointModule = (*EndpointsClient)(nil)

// Describe fetches and caches the plugin's self-description.
func (c *EndpointsClient) Describe() (DescribeReply, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.info != nil {
		return *c.info, nil
	}
	var reply DescribeReply
	if err := c.client.Call("Plugin.Describe", struct{}{}, &reply); err != nil {
		return DescribeReply{}, fmt.Errorf("describe: %w", err)
	}
	c.info = &reply
	return reply, nil
}

// Name returns the cached self-declared name ("" before Describe).
func (c *EndpointsClient) Name() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.info == nil {
		return ""
	}
	return c.info.Name
}

// Routes fetches the plugin's route table.
func (c *EndpointsClient) Routes() ([]RouteSpec, error) {
	var reply RoutesReply
	if err := c.client.Call("Plugin.Routes", struct{}{}, &reply); err != nil {
		return nil, fmt.Errorf("routes: %w", err)
	}
	return reply.Routes, nil
}

// Invoke runs the remote handler for routeID and returns its JSON body.
func (c *EndpointsClient) Invoke(routeID string, req *Request) ([]byte, error) {
	var reply InvokeReply
	args := InvokeArgs{RouteID: routeID, Request: *req}
	if err := c.client.Call("Plugin.Invoke", args, &reply); err != nil {
		return nil, err
	}
	return reply.Body, nil
}

// Register replays the remote route table into r. Each handler proxies to
// the plugin process via Invoke; handler bytes pass through as raw JSON.
func (c *EndpointsClient) Register(r RouteRegistrar) error {
	specs, err := c.Routes()
	if err != nil {
		return err
	}
	for _, spec := range specs {
		h := c.proxyHandler(spec.ID)
		switch spec.Method {
		case "GET":
			r.AddGet(spec.Pattern, h)
		case "POST":
			r.AddPost(spec.Pattern, h)
		default:
			return fmt.Errorf("route %s: unsupported method %q", spec.ID, spec.Method)
		}
	}
	return nil
}

func (c *EndpointsClient) proxyHandler(routeID string) Handler {
	return func(req *Request) (any, error) {
		body, err := c.Invoke(routeID, req)
		if err != nil {
			return nil, err
		}
		return json.RawMessage(body), nil
	}
}

// Dispose invokes the plugin's Dispose over RPC.
func (c *EndpointsClient) Dispose() error {
	return c.client.Call("Plugin.Dispose", struct{}{}, &struct{}{})
}
