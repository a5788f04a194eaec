// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Plugmesh Authors

// Package domain loads one plugin artifact into an isolated, independently
// unloadable execution domain.
//
// Go cannot unload dynamically loaded code, so the domain is a child process
// managed through HashiCorp's go-plugin: the artifact is an executable, the
// capability contracts travel over net/rpc, and unloading kills the child
// and waits for it to exit. The shared SDK package is compiled into both
// binaries, which keeps contract type identity on the host side by
// construction; the child's working directory is the artifact's directory so
// private dependencies resolve there.
package domain

import (
	"context"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"sync/atomic"
	"time"

	hashiplug "github.com/hashicorp/go-plugin"
	"github.com/samber/oops"
	"github.com/sethvargo/go-retry"

	"github.com/plugmesh/plugmesh/internal/logging"
	"github.com/plugmesh/plugmesh/pkg/sdk"
)

// Error codes attached to oops errors for programmatic classification.
const (
	CodeIOError          = "IO_ERROR"
	CodeTransientLock    = "TRANSIENT_LOCK"
	CodeCorruptModule    = "CORRUPT_MODULE"
	CodeTypeLoadError    = "TYPE_LOAD_ERROR"
	CodeNoCompatibleType = "NO_COMPATIBLE_TYPE"
)

// Load tuning.
const (
	// readBudget bounds the overall wait for a readable artifact, covering
	// slow writers that hold the file during build/copy.
	readBudget = 5 * time.Second
	// readInterval spaces readability probes.
	readInterval = 75 * time.Millisecond
	// connectAttempts bounds handshake retries against a half-written or
	// still-locked executable.
	connectAttempts = 5
	// connectInterval spaces handshake retries.
	connectInterval = 100 * time.Millisecond
)

// hostPluginMap lists the capabilities the host can dispense. Only the
// client side is used here; the server side lives in the plugin binary.
var hostPluginMap = map[string]hashiplug.Plugin{
	sdk.CapabilityFeature:   &sdk.FeaturePlugin{},
	sdk.CapabilityEndpoints: &sdk.EndpointsPlugin{},
}

// PluginClient wraps the go-plugin client for testability.
type PluginClient interface {
	// Client returns the RPC client protocol.
	Client() (hashiplug.ClientProtocol, error)
	// Kill terminates the plugin process and blocks until it exits.
	Kill()
}

// ClientFactory creates plugin clients.
type ClientFactory interface {
	// NewClient creates a client for the given executable path.
	NewClient(execPath string) PluginClient
}

// DefaultClientFactory creates real go-plugin clients.
type DefaultClientFactory struct{}

// NewClient creates a real go-plugin client. The child runs in the
// artifact's directory so its private dependencies resolve from there.
func (f *DefaultClientFactory) NewClient(execPath string) PluginClient {
	cmd := exec.Command(execPath) // #nosec G204 -- execPath comes from the watched plugin directory
	cmd.Dir = filepath.Dir(execPath)
	return hashiplug.NewClient(&hashiplug.ClientConfig{
		HandshakeConfig: sdk.Handshake,
		Plugins:         hostPluginMap,
		Cmd:             cmd,
	})
}

// Domain is one loaded plugin artifact: a connected child process plus the
// protocol handle used to dispense its capability.
type Domain struct {
	path     string
	client   PluginClient
	proto    hashiplug.ClientProtocol
	unloaded atomic.Bool
}

// LoadFromPath launches the artifact at path and connects to it. The file is
// first probed for readability within a bounded budget (writers replacing
// the artifact are not blocked; probes open read-only and back off), then
// the handshake is retried a fixed number of times. On any failure the
// partially created domain is torn down before returning.
func LoadFromPath(ctx context.Context, path string, factory ClientFactory, logger *slog.Logger) (*Domain, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if factory == nil {
		factory = &DefaultClientFactory{}
	}

	if err := waitReadable(ctx, path); err != nil {
		return nil, err
	}

	// A failed go-plugin client cannot be restarted, so each attempt gets a
	// fresh one and kills it on failure.
	var client PluginClient
	var proto hashiplug.ClientProtocol
	var reasons []string
	backoff := retry.WithMaxRetries(connectAttempts-1, retry.NewConstant(connectInterval))
	err := retry.Do(ctx, backoff, func(ctx context.Context) error {
		c := factory.NewClient(path)
		p, err := c.Client()
		if err != nil {
			c.Kill()
			reasons = appendReason(reasons, err.Error())
			logger.DebugContext(logging.WithPlugin(ctx, "", filepath.Base(path)),
				"plugin connect attempt failed", "error", err)
			return retry.RetryableError(err)
		}
		client, proto = c, p
		return nil
	})
	if err != nil {
		return nil, classifyConnectError(path, err, reasons)
	}

	return &Domain{path: path, client: client, proto: proto}, nil
}

// Path returns the artifact path this domain was loaded from.
func (d *Domain) Path() string {
	return d.path
}

// DispenseFeature returns the artifact's Feature capability.
func (d *Domain) DispenseFeature() (*sdk.FeatureClient, error) {
	raw, err := d.proto.Dispense(sdk.CapabilityFeature)
	if err != nil {
		return nil, oops.Code(CodeNoCompatibleType).
			With("artifact", filepath.Base(d.path)).
			With("capability", sdk.CapabilityFeature).
			Wrap(err)
	}
	client, ok := raw.(*sdk.FeatureClient)
	if !ok {
		return nil, oops.Code(CodeNoCompatibleType).
			With("artifact", filepath.Base(d.path)).
			Errorf("dispensed value is %T, not a feature client", raw)
	}
	return client, nil
}

// DispenseEndpoints returns the artifact's EndpointModule capability.
func (d *Domain) DispenseEndpoints() (*sdk.EndpointsClient, error) {
	raw, err := d.proto.Dispense(sdk.CapabilityEndpoints)
	if err != nil {
		return nil, oops.Code(CodeNoCompatibleType).
			With("artifact", filepath.Base(d.path)).
			With("capability", sdk.CapabilityEndpoints).
			Wrap(err)
	}
	client, ok := raw.(*sdk.EndpointsClient)
	if !ok {
		return nil, oops.Code(CodeNoCompatibleType).
			With("artifact", filepath.Base(d.path)).
			Errorf("dispensed value is %T, not an endpoints client", raw)
	}
	return client, nil
}

// Unload terminates the child process and waits for it to exit, releasing
// its OS handles. Idempotent; safe to call on a partially failed load.
func (d *Domain) Unload() {
	if !d.unloaded.CompareAndSwap(false, true) {
		return
	}
	d.client.Kill()
}

// Unloaded reports whether Unload has run.
func (d *Domain) Unloaded() bool {
	return d.unloaded.Load()
}

// waitReadable probes the artifact until it can be opened for reading or
// the budget expires. A missing file fails immediately: deletions racing a
// debounced reload must abort cleanly, not burn the full budget.
func waitReadable(ctx context.Context, path string) error {
	backoff := retry.WithMaxDuration(readBudget, retry.NewConstant(readInterval))
	err := retry.Do(ctx, backoff, func(ctx context.Context) error {
		f, err := os.Open(path) // #nosec G304 -- path comes from the watched plugin directory
		if err != nil {
			if os.IsNotExist(err) {
				return err
			}
			return retry.RetryableError(err)
		}
		return f.Close()
	})
	if err == nil {
		return nil
	}
	if os.IsNotExist(err) {
		return oops.Code(CodeIOError).
			With("artifact", filepath.Base(path)).
			Wrap(err)
	}
	return oops.Code(CodeTransientLock).
		With("artifact", filepath.Base(path)).
		With("budget", readBudget.String()).
		Wrap(err)
}

// classifyConnectError maps handshake failures to error codes, carrying the
// deduplicated per-attempt reasons.
func classifyConnectError(path string, err error, reasons []string) error {
	code := CodeCorruptModule
	msg := err.Error()
	if strings.Contains(msg, "Incompatible API version") ||
		strings.Contains(msg, "handshake") ||
		strings.Contains(msg, "magic cookie") {
		code = CodeTypeLoadError
	}
	return oops.Code(code).
		With("artifact", filepath.Base(path)).
		With("reasons", reasons).
		Wrap(err)
}

// appendReason records a reason string once.
func appendReason(reasons []string, reason string) []string {
	for _, r := range reasons {
		if r == reason {
			return reasons
		}
	}
	return append(reasons, reason)
}
