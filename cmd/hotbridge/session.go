// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Hotbridge Contributors

package main

import (
	"context"
	"log/slog"
	"sync/atomic"

	"github.com/samber/oops"
	"github.com/spf13/cobra"

	"github.com/hotbridge/hotbridge/internal/abi"
	"github.com/hotbridge/hotbridge/internal/bridge"
	"github.com/hotbridge/hotbridge/internal/command"
	"github.com/hotbridge/hotbridge/internal/config"
	"github.com/hotbridge/hotbridge/internal/logging"
	"github.com/hotbridge/hotbridge/internal/native"
	pluginlua "github.com/hotbridge/hotbridge/internal/plugin/lua"
	"github.com/hotbridge/hotbridge/internal/plugin/wasm"
)

// loadConfig reads configuration from --config, or from the default path when
// that file exists, then applies flags.
func loadConfig(cmd *cobra.Command, deps *Deps) (config.Config, error) {
	if configFile != "" {
		return config.Load(configFile, false, cmd.Flags())
	}

	path, err := deps.ConfigPathGetter()
	if err != nil {
		slog.Debug("no default config path", "error", err)
		return config.Load("", false, cmd.Flags())
	}
	return config.Load(path, true, cmd.Flags())
}

// session is an initialized bridge together with the module hosts it uses.
type session struct {
	cfg    config.Config
	bridge *bridge.Bridge
	wasm   *wasm.Host
	faults atomic.Int64
}

// openSession loads configuration, sets up logging and initializes a bridge
// whose host table writes to the operator log.
func openSession(ctx context.Context, cmd *cobra.Command, deps *Deps) (*session, error) {
	cfg, err := loadConfig(cmd, deps)
	if err != nil {
		return nil, oops.Code("CONFIG_LOAD_FAILED").Wrap(err)
	}

	logger := logging.SetDefault("hotbridge", version, cfg.LogFormat, cmd.ErrOrStderr())

	s := &session{cfg: cfg, wasm: wasm.NewHost()}
	s.bridge = bridge.New(cfg.Bridge(), bridge.WithHosts(s.wasm, pluginlua.NewHost()))

	table := native.SlogTable(logger)
	report := table.Exception
	table.Exception = func(message string) {
		s.faults.Add(1)
		report(message)
	}

	if s.bridge.Dispatch(ctx, command.Initialize{Host: table, Checksum: cfg.Checksum}) != abi.Initialized {
		_ = s.wasm.Close(ctx)
		return nil, oops.Code("INITIALIZE_FAILED").Errorf("bridge initialization failed")
	}

	logger.InfoContext(ctx, "bridge initialized", "checksum", cfg.Checksum)
	return s, nil
}

// load loads the first compatible plugin and fails when none was loaded.
func (s *session) load(ctx context.Context) error {
	s.bridge.Dispatch(ctx, command.LoadAssemblies{})
	p := s.bridge.Plugin()
	if p == nil {
		return oops.Code("NO_PLUGIN_LOADED").
			Hint("check managed-root, framework-module and checksum").
			Errorf("no plugin was loaded")
	}
	slog.InfoContext(ctx, "plugin loaded",
		"plugin", p.Name,
		"path", p.Path,
		"functions", p.Functions(),
	)
	return nil
}

// Close unloads the active plugin and releases the module hosts.
func (s *session) Close(ctx context.Context) {
	s.bridge.Dispatch(ctx, command.UnloadAssemblies{})
	if err := s.wasm.Close(ctx); err != nil {
		slog.WarnContext(ctx, "error closing wasm host", "error", err)
	}
}

// Faults returns the number of faults the bridge has reported.
func (s *session) Faults() int64 {
	return s.faults.Load()
}
