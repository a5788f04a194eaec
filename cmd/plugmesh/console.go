// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Plugmesh Authors

package main

import (
	"bufio"
	"context"
	"io"
	"log/slog"
	"strings"
	"sync/atomic"
	"time"

	"github.com/samber/oops"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/plugmesh/plugmesh/internal/config"
	"github.com/plugmesh/plugmesh/internal/lifecycle"
	"github.com/plugmesh/plugmesh/internal/logging"
	"github.com/plugmesh/plugmesh/internal/observability"
	"github.com/plugmesh/plugmesh/pkg/errutil"
)

// NewConsoleCmd creates the console subcommand.
func NewConsoleCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "console",
		Short: "Run the console host (lifecycle plugins)",
		Long: `Run the console host. Each plugin is a lifecycle object: it is
started after load and disposed before unload. Type 'q' to quit.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runConsole(cmd.Context(), cmd.Flags(), cmd.InOrStdin())
		},
	}
	config.RegisterFlags(cmd.Flags())
	return cmd
}

// runConsole starts the console host and blocks until 'q' on stdin, a
// signal, or a fatal startup error.
func runConsole(ctx context.Context, flags *pflag.FlagSet, stdin io.Reader) error {
	h, err := setupHost(flags)
	if err != nil {
		return err
	}
	defer h.teardown()

	mgr, err := lifecycle.NewManager(lifecycle.Config{
		Dir:         h.cfg.PluginsDirectory,
		Pattern:     h.cfg.ArtifactPattern(),
		IgnoreNames: []string{h.cfg.SDKArtifactName()},
		Adapter:     &lifecycle.ConsoleAdapter{},
		// Console features serve no in-flight requests; a reload swaps
		// immediately instead of queueing the old instance.
		EnableHotSwap: false,
		Metrics:       h.lifecycleMetrics,
	})
	if err != nil {
		return err
	}
	defer mgr.Dispose()

	if err := mgr.Start(ctx); err != nil {
		errutil.LogError(slog.Default(), "console host failed to start", err)
		return err
	}
	h.markReady()

	slog.Info("console host ready", "dir", h.cfg.PluginsDirectory)

	// Watch stdin for the quit command.
	quit := make(chan struct{})
	go func() {
		scanner := bufio.NewScanner(stdin)
		for scanner.Scan() {
			if strings.EqualFold(strings.TrimSpace(scanner.Text()), "q") {
				close(quit)
				return
			}
		}
	}()

	select {
	case <-quit:
		slog.Info("quit requested")
	case <-ctx.Done():
		slog.Info("shutdown signal received")
	}

	slog.Info("shutting down...")
	return nil
}

// host bundles the pieces shared by both host shapes.
type host struct {
	cfg              config.Config
	obs              *observability.Server
	lifecycleMetrics *lifecycle.Metrics
	ready            atomic.Bool
}

func (h *host) markReady() {
	h.ready.Store(true)
}

func (h *host) teardown() {
	if h.obs != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := h.obs.Stop(ctx); err != nil {
			slog.Warn("error stopping observability server", "error", err)
		}
	}
}

// setupHost loads configuration, installs logging, and starts the
// observability server when configured.
func setupHost(flags *pflag.FlagSet) (*host, error) {
	cfg, err := config.Load(configFile, flags)
	if err != nil {
		return nil, oops.Code("CONFIG_INVALID").Wrap(err)
	}

	logging.SetDefault("plugmesh", version, cfg.LogFormat)

	slog.Info("starting plugmesh",
		"version", version,
		"commit", commit,
		"plugins_dir", cfg.PluginsDirectory,
	)

	h := &host{cfg: cfg}
	if cfg.MetricsAddr != "" {
		h.obs = observability.NewServer(cfg.MetricsAddr, h.ready.Load)
		h.lifecycleMetrics = lifecycle.NewMetrics(h.obs.Registerer())
		if err := h.obs.Start(); err != nil {
			return nil, oops.Code("RESOURCE_UNAVAILABLE").
				With("addr", cfg.MetricsAddr).
				Wrap(err)
		}
	}
	return h, nil
}
