// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Hotbridge Contributors

package wasm

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"sync"

	"github.com/samber/oops"
	"github.com/tetratelabs/wazero"
	"github.com/tetratelabs/wazero/api"

	"github.com/hotbridge/hotbridge/internal/abi"
	"github.com/hotbridge/hotbridge/internal/plugin"
)

// module is a plugin module loaded into a context runtime.
type module struct {
	rt        wazero.Runtime
	name      string
	path      string
	framework api.Module
	checksum  int32
	compiled  wazero.CompiledModule

	mu       sync.Mutex
	instance api.Module
	// cancelledBy names the call whose cancelled context closed the instance.
	cancelledBy string
}

func (m *module) Checksum() int32 {
	return m.checksum
}

// Bootstrap runs the framework load entry with the shared handles, then
// instantiates the plugin and binds its callable exports.
func (m *module) Bootstrap(ctx context.Context, shared plugin.Shared) (map[string]plugin.Function, error) {
	if load := m.framework.ExportedFunction(loadExport); load != nil {
		if _, err := load.Call(ctx, uint64(shared.Events), uint64(shared.Functions)); err != nil {
			return nil, oops.In("wasm").Code("FRAMEWORK_BOOTSTRAP_FAILED").
				With("plugin", m.path).
				Wrap(err)
		}
	}

	instance, err := m.rt.InstantiateModule(ctx, m.compiled, wazero.NewModuleConfig().
		WithName(m.name).
		WithStartFunctions())
	if err != nil {
		return nil, oops.In("wasm").Code("MODULE_INSTANTIATE_FAILED").
			With("plugin", m.path).
			Wrap(err)
	}
	m.instance = instance

	if init := instance.ExportedFunction(initExport); init != nil {
		if _, err := init.Call(ctx); err != nil {
			return nil, oops.In("wasm").Code("MODULE_INIT_FAILED").
				With("plugin", m.path).
				Wrap(err)
		}
	}

	fns := make(map[string]plugin.Function)
	for name, def := range m.compiled.ExportedFunctions() {
		if strings.HasPrefix(name, "_") {
			continue
		}
		if !callable(def) {
			slog.Debug("skipping wasm export with unsupported signature",
				"plugin", m.name,
				"export", name,
				"params", len(def.ParamTypes()))
			continue
		}
		fns[name] = &function{
			module: m,
			name:   name,
			fn:     instance.ExportedFunction(name),
			params: len(def.ParamTypes()),
		}
	}
	return fns, nil
}

// Close closes the plugin instance and its compiled module. The framework and
// runtime belong to the context.
func (m *module) Close(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	var errs []error
	if m.instance != nil {
		errs = append(errs, m.instance.Close(ctx))
		m.instance = nil
	}
	errs = append(errs, m.compiled.Close(ctx))
	if err := errors.Join(errs...); err != nil {
		return oops.In("wasm").Code("MODULE_CLOSE_FAILED").With("plugin", m.path).Wrap(err)
	}
	return nil
}

func callable(def api.FunctionDefinition) bool {
	params := def.ParamTypes()
	if len(params) > maxParams {
		return false
	}
	for _, p := range params {
		if p != api.ValueTypeI64 {
			return false
		}
	}
	return true
}

// function is a callable plugin export. Calls into one module are serialised.
type function struct {
	module *module
	name   string
	fn     api.Function
	params int
}

func (f *function) Name() string {
	return f.name
}

func (f *function) Call(ctx context.Context, arg abi.Argument) error {
	f.module.mu.Lock()
	defer f.module.mu.Unlock()

	m := f.module
	if m.instance == nil {
		return oops.In("wasm").Code("MODULE_CLOSED").
			With("function", f.name).
			Errorf("module %s is closed", m.name)
	}
	if m.instance.IsClosed() {
		return oops.In("wasm").Code("MODULE_CLOSED").
			With("function", f.name).
			With("cancelled_by", m.cancelledBy).
			Hint("reload the plugin to run it again").
			Errorf("module %s was closed when a call to %s was cancelled", m.name, m.cancelledBy)
	}

	words := arg.Words()
	if _, err := f.fn.Call(ctx, words[:f.params]...); err != nil {
		if m.instance.IsClosed() {
			m.cancelledBy = f.name
			slog.Warn("wasm module closed by cancelled call",
				"plugin", m.name,
				"function", f.name,
				"cause", context.Cause(ctx))
			return oops.In("wasm").Code("CALL_CANCELLED").
				With("plugin", m.name).
				With("function", f.name).
				Hint("the module instance is closed until the plugin is reloaded").
				Wrap(err)
		}
		return oops.In("wasm").Code("FUNCTION_TRAPPED").
			With("plugin", f.module.name).
			With("function", f.name).
			Wrap(err)
	}
	return nil
}
