// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Hotbridge Contributors

package bridge

import (
	"context"
	"log/slog"

	"github.com/samber/oops"

	"github.com/hotbridge/hotbridge/internal/abi"
	"github.com/hotbridge/hotbridge/internal/command"
	"github.com/hotbridge/hotbridge/internal/native"
	"github.com/hotbridge/hotbridge/internal/plugin"
	"github.com/hotbridge/hotbridge/pkg/errutil"
)

// Messages sent to the host log while loading.
const (
	loadedMessage       = "framework loaded successfully for "
	incompatibleMessage = "framework loading failed, version is incompatible with the runtime, please recompile the project with an updated version referenced in "
)

func (b *Bridge) initialize(ctx context.Context, c command.Initialize) (abi.Address, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.table.Load() != nil {
		return abi.Null, oops.Code("ALREADY_INITIALIZED").
			Errorf("bridge is already initialized; initializing twice is not supported")
	}
	if err := c.Host.Validate(); err != nil {
		return abi.Null, err
	}

	lctx, handle := b.contexts.Provision()
	b.handle = handle
	b.checksum = c.Checksum
	b.table.Store(c.Host)
	b.setState(Initialized)

	slog.InfoContext(ctx, "bridge initialized",
		"checksum", c.Checksum,
		"context", lctx.String())
	return abi.Initialized, nil
}

func (b *Bridge) loadAssemblies(ctx context.Context) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	table, err := b.initialized()
	if err != nil {
		return err
	}

	if b.registry.Active() != nil {
		if err := b.unload(ctx, table); err != nil {
			return err
		}
	}

	root, err := b.cfg.Root()
	if err != nil {
		return err
	}
	discoverer, err := plugin.NewDiscoverer(root, b.cfg.ModulePatterns, b.hosts...)
	if err != nil {
		return err
	}

	framework := b.cfg.FrameworkModule
	for candidate, err := range discoverer.Modules(ctx) {
		if err != nil {
			return err
		}

		meta := candidate.Metadata
		if meta.Name == framework || !meta.DependsOn(framework) {
			continue
		}

		done, err := b.load(ctx, table, discoverer, candidate)
		if err != nil {
			return err
		}
		if done {
			return nil
		}
	}

	slog.InfoContext(ctx, "no plugin found", "root", root, "framework", framework)
	return nil
}

// load loads one candidate into the active context. It returns false when
// the candidate's framework is incompatible and the scan should go on.
func (b *Bridge) load(ctx context.Context, table *native.Table, discoverer *plugin.Discoverer, candidate plugin.Candidate) (bool, error) {
	meta := candidate.Metadata
	framework := b.cfg.FrameworkModule

	frameworkPath, err := discoverer.FrameworkPath(meta, framework)
	if err != nil {
		return false, err
	}

	lctx := b.contexts.Active()
	loaded, err := candidate.Host.Load(ctx, lctx, plugin.LoadRequest{
		Plugin:        meta,
		Framework:     framework,
		FrameworkPath: frameworkPath,
		Log: func(level int32, message string) {
			table.Log(native.Level(level), message)
		},
	})
	if err != nil {
		return false, b.abandon(ctx, table, nil, err)
	}

	if loaded.Checksum() != b.checksum {
		slog.WarnContext(ctx, "framework checksum mismatch",
			"plugin", meta.Path,
			"framework", frameworkPath,
			"want", b.checksum,
			"got", loaded.Checksum())
		table.Log(native.Fatal, incompatibleMessage+meta.Path)
		return false, b.abandon(ctx, table, loaded, nil)
	}

	fns, err := loaded.Bootstrap(ctx, table.Shared())
	if err != nil {
		return false, b.abandon(ctx, table, loaded, err)
	}

	p := plugin.NewPlugin(meta, b.registry.NextGeneration(), loaded, lctx, fns)
	b.registry.Install(p)
	b.setState(Loaded)

	slog.InfoContext(ctx, "plugin loaded",
		"plugin", p.Name,
		"path", p.Path,
		"generation", p.Generation,
		"functions", len(fns),
		"context", lctx.String())
	table.Log(native.Display, loadedMessage+meta.Path)
	return true, nil
}

// abandon disposes a partial load and unloads the active context. It returns
// cause, or the unload failure when there is no cause.
func (b *Bridge) abandon(ctx context.Context, table *native.Table, loaded plugin.Loaded, cause error) error {
	if loaded != nil {
		if err := loaded.Close(ctx); err != nil {
			errutil.LogError(slog.Default(), "failed to close abandoned module", err)
		}
	}
	if err := b.unload(ctx, table); err != nil {
		if cause == nil {
			return err
		}
		errutil.LogError(slog.Default(), "failed to unload after load failure", err)
	}
	return cause
}

func (b *Bridge) unloadAssemblies(ctx context.Context) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	table, err := b.initialized()
	if err != nil {
		return err
	}
	return b.unload(ctx, table)
}

// unload empties the registry, disposes the plugin module, unloads the
// active context and waits for it to be reclaimed. A fresh context is always
// provisioned afterwards, even when the wait fails.
func (b *Bridge) unload(ctx context.Context, table *native.Table) error {
	b.setState(Unloading)

	if p := b.registry.Clear(); p != nil {
		if err := p.Module.Close(ctx); err != nil {
			errutil.LogError(slog.Default(), "failed to close plugin module", err)
		}
		slog.InfoContext(ctx, "plugin unloaded", "plugin", p.Name, "generation", p.Generation)
	}

	previous := b.contexts.Active()
	previous.RequestUnload()

	result, err := b.loop.Wait(ctx, b.handle, table.Log)

	lctx, handle := b.contexts.Provision()
	b.handle = handle
	b.setState(Initialized)

	slog.InfoContext(ctx, "context unloaded",
		"previous", previous.String(),
		"outcome", result.Outcome,
		"attempts", result.Attempts,
		"context", lctx.String())
	return err
}
