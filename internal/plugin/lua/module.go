// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Hotbridge Contributors

package lua

import (
	"context"
	"encoding/binary"
	"strings"

	"github.com/samber/oops"
	lua "github.com/yuin/gopher-lua"

	"github.com/hotbridge/hotbridge/internal/abi"
	"github.com/hotbridge/hotbridge/internal/plugin"
)

// module is a plugin chunk loaded into a context's Lua state.
type module struct {
	state    *state
	name     string
	path     string
	chunk    *lua.LFunction
	checksum int32
	closed   bool
}

func (m *module) Checksum() int32 {
	return m.checksum
}

// Bootstrap runs the plugin chunk, then hands its result to the framework's
// load entry together with the shared handles. Without a load entry the
// chunk's own table is the function table.
func (m *module) Bootstrap(ctx context.Context, shared plugin.Shared) (map[string]plugin.Function, error) {
	m.state.mu.Lock()
	defer m.state.mu.Unlock()

	L := m.state.L
	L.SetContext(ctx)
	defer L.RemoveContext()

	if err := L.CallByParam(lua.P{Fn: m.chunk, NRet: 1, Protect: true}); err != nil {
		return nil, oops.In("lua").Code("MODULE_INIT_FAILED").With("plugin", m.path).Wrap(err)
	}
	exports := L.Get(-1)
	L.Pop(1)

	if load, ok := m.state.framework.RawGetString("load").(*lua.LFunction); ok {
		err := L.CallByParam(lua.P{Fn: load, NRet: 1, Protect: true},
			handle(shared.Events),
			handle(shared.Functions),
			exports)
		if err != nil {
			return nil, oops.In("lua").Code("FRAMEWORK_BOOTSTRAP_FAILED").With("plugin", m.path).Wrap(err)
		}
		exports = L.Get(-1)
		L.Pop(1)
	}

	table, ok := exports.(*lua.LTable)
	if !ok {
		return nil, oops.In("lua").Code("MODULE_INVALID").
			With("plugin", m.path).
			Errorf("plugin exports are %s, want table", exports.Type())
	}

	fns := make(map[string]plugin.Function)
	table.ForEach(func(k, v lua.LValue) {
		name, ok := k.(lua.LString)
		if !ok || strings.HasPrefix(string(name), "_") {
			return
		}
		if fn, ok := v.(*lua.LFunction); ok {
			fns[string(name)] = &function{module: m, name: string(name), fn: fn}
		}
	})
	return fns, nil
}

// Close detaches the plugin's functions. The Lua state belongs to the context.
func (m *module) Close(_ context.Context) error {
	m.state.mu.Lock()
	defer m.state.mu.Unlock()
	m.closed = true
	m.chunk = nil
	return nil
}

// handle passes a shared-region handle to Lua as an 8-byte little-endian
// string, so every bit of the address survives.
func handle(a abi.Address) lua.LString {
	return lua.LString(binary.LittleEndian.AppendUint64(nil, uint64(a)))
}

// function is a Lua function exported by the plugin. It receives the call
// argument as a 24-byte string.
type function struct {
	module *module
	name   string
	fn     *lua.LFunction
}

func (f *function) Name() string {
	return f.name
}

func (f *function) Call(ctx context.Context, arg abi.Argument) error {
	st := f.module.state
	st.mu.Lock()
	defer st.mu.Unlock()

	if f.module.closed || st.closed {
		return oops.In("lua").Code("MODULE_CLOSED").
			With("function", f.name).
			Errorf("module %s is closed", f.module.name)
	}

	st.L.SetContext(ctx)
	defer st.L.RemoveContext()

	if err := st.L.CallByParam(lua.P{Fn: f.fn, NRet: 0, Protect: true}, lua.LString(string(arg[:]))); err != nil {
		return oops.In("lua").Code("FUNCTION_FAILED").
			With("plugin", f.module.name).
			With("function", f.name).
			Wrap(err)
	}
	return nil
}
