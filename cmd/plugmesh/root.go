// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Plugmesh Authors

package main

import (
	"github.com/spf13/cobra"
)

// Global flags available to all subcommands.
var configFile string

// NewRootCmd creates the root command for the Plugmesh CLI.
func NewRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "plugmesh",
		Short: "Plugmesh - a hot-swapping plugin host",
		Long: `Plugmesh watches a directory for plugin artifacts and loads,
reloads, and unloads them at runtime. The console host runs lifecycle
plugins; the web host publishes plugin HTTP routes with zero-downtime
hot-swap.`,
		SilenceUsage: true,
	}

	// Global flag for config file path
	cmd.PersistentFlags().StringVar(&configFile, "config", "", "config file path")

	// Add subcommands
	cmd.AddCommand(NewConsoleCmd())
	cmd.AddCommand(NewWebCmd())

	return cmd
}
