// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Hotbridge Contributors

// Package lua provides the Lua module host: sandboxed gopher-lua states, one
// per collectible context.
package lua

import (
	"context"
	"fmt"
	"log/slog"

	lua "github.com/yuin/gopher-lua"
)

// HostLibName is the global table exposing host functions to module code.
const HostLibName = "hotbridge"

// safeLibrary represents a Lua library that is safe to load in sandboxed state.
type safeLibrary struct {
	name string
	fn   lua.LGFunction
}

// defaultSafeLibraries returns the list of libraries safe to load.
// Safe: base, table, string, math.
// Blocked: os, io, debug, package.
func defaultSafeLibraries() []safeLibrary {
	return []safeLibrary{
		{lua.BaseLibName, lua.OpenBase},
		{lua.TabLibName, lua.OpenTable},
		{lua.StringLibName, lua.OpenString},
		{lua.MathLibName, lua.OpenMath},
	}
}

// StateFactory creates sandboxed Lua states with only safe libraries.
type StateFactory struct {
	// libraries allows overriding the default safe libraries for testing.
	libraries []safeLibrary
}

// NewStateFactory creates a new state factory.
func NewStateFactory() *StateFactory {
	return &StateFactory{
		libraries: defaultSafeLibraries(),
	}
}

// unsafeBaseFunctions lists base library functions that must be blocked.
// These functions load code from the filesystem or from strings outside the
// module's own chunk.
var unsafeBaseFunctions = []string{"dofile", "loadfile", "loadstring", "load", "require"}

// LogFunc receives messages logged through hotbridge.log.
type LogFunc func(level int32, message string)

// NewState creates a fresh Lua state with only safe libraries loaded and the
// hotbridge host table installed. Messages logged by module code go to log,
// or to slog when log is nil.
func (f *StateFactory) NewState(ctx context.Context, log LogFunc) (*lua.LState, error) {
	L := lua.NewState(lua.Options{
		SkipOpenLibs: true, // Don't load any libraries by default
	})

	for _, lib := range f.libraries {
		if err := L.CallByParam(lua.P{
			Fn:      L.NewFunction(lib.fn),
			NRet:    0,
			Protect: true,
		}, lua.LString(lib.name)); err != nil {
			L.Close()
			return nil, fmt.Errorf("failed to open library %s: %w", lib.name, err)
		}
	}

	for _, fn := range unsafeBaseFunctions {
		L.SetGlobal(fn, lua.LNil)
	}

	host := L.NewTable()
	L.SetField(host, "log", L.NewFunction(func(L *lua.LState) int {
		level := int32(L.CheckInt(1)) //nolint:gosec // level is a small enum
		message := L.CheckString(2)
		if log == nil {
			slog.InfoContext(ctx, message, "level", level)
			return 0
		}
		log(level, message)
		return 0
	}))
	L.SetGlobal(HostLibName, host)

	return L, nil
}
