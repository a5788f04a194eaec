// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Plugmesh Authors

package main

import (
	"context"
	"log/slog"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/plugmesh/plugmesh/internal/config"
	"github.com/plugmesh/plugmesh/internal/lifecycle"
	"github.com/plugmesh/plugmesh/internal/routes"
	"github.com/plugmesh/plugmesh/internal/web"
	"github.com/plugmesh/plugmesh/pkg/errutil"
)

// NewWebCmd creates the web subcommand.
func NewWebCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "web",
		Short: "Run the web host (plugin HTTP routes)",
		Long: `Run the web host. Each plugin publishes HTTP routes into the
host router; replacing an artifact hot-swaps its routes without dropping
in-flight traffic.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runWeb(cmd.Context(), cmd.Flags())
		},
	}
	config.RegisterFlags(cmd.Flags())
	return cmd
}

// runWeb starts the web host and blocks until a shutdown signal.
func runWeb(ctx context.Context, flags *pflag.FlagSet) error {
	h, err := setupHost(flags)
	if err != nil {
		return err
	}
	defer h.teardown()

	registry := routes.New()

	mgr, err := lifecycle.NewManager(lifecycle.Config{
		Dir:           h.cfg.PluginsDirectory,
		Pattern:       h.cfg.ArtifactPattern(),
		IgnoreNames:   []string{h.cfg.SDKArtifactName()},
		Adapter:       &lifecycle.WebAdapter{Registry: registry},
		EnableHotSwap: h.cfg.PluginManager.EnableHotSwap,
		GracePeriod:   time.Duration(h.cfg.PluginManager.GracePeriodSeconds) * time.Second,
		Metrics:       h.lifecycleMetrics,
	})
	if err != nil {
		return err
	}
	defer mgr.Dispose()

	server := web.NewServer(web.Config{
		Addr:           h.cfg.HTTPAddr,
		Registry:       registry,
		AllowedOrigins: h.cfg.AllowedOrigins,
	})
	if err := server.Start(ctx); err != nil {
		errutil.LogError(slog.Default(), "web server failed to start", err)
		return err
	}
	defer func() {
		stopCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := server.Stop(stopCtx); err != nil {
			slog.Warn("error stopping web server", "error", err)
		}
	}()

	if err := mgr.Start(ctx); err != nil {
		errutil.LogError(slog.Default(), "web host failed to start", err)
		return err
	}
	h.markReady()

	slog.Info("web host ready",
		"addr", server.Addr(),
		"dir", h.cfg.PluginsDirectory,
		"hot_swap", h.cfg.PluginManager.EnableHotSwap,
	)

	<-ctx.Done()
	slog.Info("shutting down...")
	return nil
}
