// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Hotbridge Contributors

// Package wasm provides the WebAssembly module host using wazero.
//
// Every collectible context gets its own wazero runtime holding the WASI
// imports, the hotbridge host module, the framework module and the plugin.
// The runtime is closed when the context is reclaimed.
package wasm

import (
	"bytes"
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/samber/oops"
	"github.com/tetratelabs/wazero"
	"github.com/tetratelabs/wazero/api"
	"github.com/tetratelabs/wazero/imports/wasi_snapshot_preview1"

	"github.com/hotbridge/hotbridge/internal/loadctx"
	"github.com/hotbridge/hotbridge/internal/plugin"
)

// HostModule is the name of the module exporting host functions to plugin code.
const HostModule = "hotbridge"

const (
	resourceName   = "wasm.runtime"
	checksumExport = "checksum"
	loadExport     = "load"
	initExport     = "_initialize"
	maxParams      = 3
)

var magic = []byte{0x00, 0x61, 0x73, 0x6D}

// Host loads WebAssembly modules.
type Host struct {
	config wazero.RuntimeConfig
	cache  wazero.CompilationCache
}

// Option configures a Host.
type Option func(*Host)

// WithInterpreter runs modules in the wazero interpreter instead of the compiler.
func WithInterpreter() Option {
	return func(h *Host) {
		h.config = wazero.NewRuntimeConfigInterpreter()
	}
}

// NewHost creates a WebAssembly host. Compiled modules are cached across
// contexts until Close.
//
// Calls stop when their context is done. wazero ends such a call by closing
// the module instance running it, so a cancelled Execute leaves the plugin
// closed: later calls fail with MODULE_CLOSED naming the cancelled call until
// the plugin is reloaded. A cancelled Bootstrap fails the load.
func NewHost(opts ...Option) *Host {
	h := &Host{
		config: wazero.NewRuntimeConfig(),
		cache:  wazero.NewCompilationCache(),
	}
	for _, opt := range opts {
		opt(h)
	}
	h.config = h.config.
		WithCompilationCache(h.cache).
		WithCloseOnContextDone(true)
	return h
}

// Close releases the compilation cache.
func (h *Host) Close(ctx context.Context) error {
	return h.cache.Close(ctx)
}

// Extensions implements plugin.Host.
func (h *Host) Extensions() []string {
	return []string{".wasm"}
}

// Inspect implements plugin.Host.
func (h *Host) Inspect(ctx context.Context, path string) (*plugin.Metadata, error) {
	bin, err := os.ReadFile(path) //nolint:gosec // path comes from discovery
	if err != nil {
		return nil, oops.In("wasm").Code("MODULE_UNREADABLE").With("path", path).Wrap(err)
	}
	if !bytes.HasPrefix(bin, magic) {
		return nil, plugin.ErrNotModule
	}

	rt := wazero.NewRuntimeWithConfig(ctx, wazero.NewRuntimeConfigInterpreter())
	defer func() {
		_ = rt.Close(ctx)
	}()

	compiled, err := rt.CompileModule(ctx, bin)
	if err != nil {
		return nil, oops.In("wasm").With("path", path).Wrapf(plugin.ErrNotModule, "compile: %v", err)
	}

	meta := &plugin.Metadata{
		Name: compiled.Name(),
		Path: path,
	}
	if meta.Name == "" {
		meta.Name = strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	}

	seen := make(map[string]struct{})
	addDependency := func(module string) {
		if _, ok := seen[module]; ok {
			return
		}
		seen[module] = struct{}{}
		meta.Dependencies = append(meta.Dependencies, module)
	}
	for _, def := range compiled.ImportedFunctions() {
		module, _, _ := def.Import()
		addDependency(module)
	}
	for _, def := range compiled.ImportedMemories() {
		module, _, _ := def.Import()
		addDependency(module)
	}

	return meta, nil
}

// Load implements plugin.Host. The framework module is instantiated once per
// context; the plugin is compiled here and instantiated by Bootstrap.
func (h *Host) Load(ctx context.Context, lctx *loadctx.Context, req plugin.LoadRequest) (plugin.Loaded, error) {
	rt, err := h.runtime(ctx, lctx, req.Log)
	if err != nil {
		return nil, err
	}

	framework := rt.Module(req.Framework)
	if framework == nil {
		framework, err = h.instantiate(ctx, rt, req.FrameworkPath, req.Framework)
		if err != nil {
			return nil, oops.In("wasm").Code("FRAMEWORK_LOAD_FAILED").
				With("framework", req.FrameworkPath).
				Wrap(err)
		}
	}

	checksum := framework.ExportedGlobal(checksumExport)
	if checksum == nil {
		return nil, oops.In("wasm").Code("FRAMEWORK_INVALID").
			With("framework", req.FrameworkPath).
			Errorf("framework module does not export a %q global", checksumExport)
	}
	if checksum.Type() != api.ValueTypeI32 {
		return nil, oops.In("wasm").Code("FRAMEWORK_INVALID").
			With("framework", req.FrameworkPath).
			With("type", api.ValueTypeName(checksum.Type())).
			Errorf("framework %q global must be i32", checksumExport)
	}

	bin, err := os.ReadFile(req.Plugin.Path)
	if err != nil {
		return nil, oops.In("wasm").Code("MODULE_UNREADABLE").With("path", req.Plugin.Path).Wrap(err)
	}
	compiled, err := rt.CompileModule(ctx, bin)
	if err != nil {
		return nil, oops.In("wasm").Code("MODULE_INVALID").With("path", req.Plugin.Path).Wrap(err)
	}

	slog.Debug("wasm module compiled",
		"plugin", req.Plugin.Name,
		"context", lctx.String())

	return &module{
		rt:        rt,
		name:      req.Plugin.Name,
		path:      req.Plugin.Path,
		framework: framework,
		checksum:  int32(uint32(checksum.Get())), //nolint:gosec // i32 global
		compiled:  compiled,
	}, nil
}

// runtime returns the context's runtime, creating it on first use.
func (h *Host) runtime(ctx context.Context, lctx *loadctx.Context, log func(int32, string)) (wazero.Runtime, error) {
	res, err := lctx.Resource(resourceName, func() (loadctx.Resource, error) {
		rt := wazero.NewRuntimeWithConfig(context.WithoutCancel(ctx), h.config)

		if _, err := wasi_snapshot_preview1.Instantiate(ctx, rt); err != nil {
			_ = rt.Close(ctx)
			return nil, oops.In("wasm").Code("RUNTIME_INIT_FAILED").Wrap(err)
		}
		if err := instantiateHostModule(ctx, rt, log); err != nil {
			_ = rt.Close(ctx)
			return nil, oops.In("wasm").Code("RUNTIME_INIT_FAILED").Wrap(err)
		}
		return rt, nil
	})
	if err != nil {
		return nil, err
	}
	return res.(wazero.Runtime), nil
}

func (h *Host) instantiate(ctx context.Context, rt wazero.Runtime, path, name string) (api.Module, error) {
	bin, err := os.ReadFile(path) //nolint:gosec // path comes from discovery
	if err != nil {
		return nil, err
	}
	compiled, err := rt.CompileModule(ctx, bin)
	if err != nil {
		return nil, err
	}
	return rt.InstantiateModule(ctx, compiled, wazero.NewModuleConfig().
		WithName(name).
		WithStartFunctions())
}

// instantiateHostModule exports log(level, ptr, len) to module code.
func instantiateHostModule(ctx context.Context, rt wazero.Runtime, log func(int32, string)) error {
	_, err := rt.NewHostModuleBuilder(HostModule).
		NewFunctionBuilder().
		WithFunc(func(_ context.Context, m api.Module, level, ptr, length uint32) {
			mem := m.Memory()
			if mem == nil {
				slog.Warn("wasm log called without memory", "module", m.Name())
				return
			}
			msg, ok := mem.Read(ptr, length)
			if !ok {
				slog.Warn("wasm log out of bounds",
					"module", m.Name(),
					"ptr", ptr,
					"len", length)
				return
			}
			if log == nil {
				slog.Info(string(msg), "module", m.Name(), "level", level)
				return
			}
			log(int32(level), string(msg)) //nolint:gosec // level is a small enum
		}).
		Export("log").
		Instantiate(ctx)
	return err
}
