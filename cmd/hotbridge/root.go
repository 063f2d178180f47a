// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Hotbridge Contributors

package main

import (
	"github.com/spf13/cobra"

	"github.com/hotbridge/hotbridge/internal/config"
)

// Global flags available to all subcommands.
var configFile string

// NewRootCmd creates the root command for the hotbridge CLI.
func NewRootCmd() *cobra.Command {
	return newRootCmd(nil)
}

func newRootCmd(deps *Deps) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "hotbridge",
		Short: "hotbridge - hot-reloadable plugin bridge",
		Long: `hotbridge loads plugin modules (WebAssembly or Lua) into collectible
contexts, dispatches calls into them and unloads them so a fresh build can
replace the old one without restarting the host.`,
		SilenceUsage: true,
	}

	cmd.PersistentFlags().StringVar(&configFile, "config", "", "config file path (default: XDG_CONFIG_HOME/hotbridge/config.yaml)")
	config.RegisterFlags(cmd.PersistentFlags())

	cmd.AddCommand(NewRunCmd(deps))
	cmd.AddCommand(NewWatchCmd(deps))
	cmd.AddCommand(NewSchemaCmd())

	return cmd
}
