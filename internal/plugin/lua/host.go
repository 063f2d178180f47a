// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Hotbridge Contributors

package lua

import (
	"context"
	"math"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/samber/oops"
	lua "github.com/yuin/gopher-lua"
	"github.com/yuin/gopher-lua/parse"

	"github.com/hotbridge/hotbridge/internal/loadctx"
	"github.com/hotbridge/hotbridge/internal/plugin"
)

// Compile-time interface check.
var _ plugin.Host = (*Host)(nil)

const resourceName = "lua.state"

// Host loads Lua modules.
type Host struct {
	factory *StateFactory
}

// NewHost creates a new Lua module host.
func NewHost() *Host {
	return &Host{factory: NewStateFactory()}
}

// Extensions implements plugin.Host.
func (h *Host) Extensions() []string {
	return []string{".lua"}
}

// Inspect parses the chunk without running it. The module name is the file's
// base name; dependencies are its top-level require calls.
func (h *Host) Inspect(_ context.Context, path string) (*plugin.Metadata, error) {
	f, err := os.Open(filepath.Clean(path))
	if err != nil {
		return nil, oops.In("lua").Code("MODULE_UNREADABLE").With("path", path).Wrap(err)
	}
	defer func() {
		_ = f.Close()
	}()

	chunk, err := parse.Parse(f, path)
	if err != nil {
		return nil, oops.In("lua").With("path", path).Hint("syntax error").Wrapf(plugin.ErrNotModule, "parse: %v", err)
	}

	return &plugin.Metadata{
		Name:         strings.TrimSuffix(filepath.Base(path), filepath.Ext(path)),
		Path:         path,
		Dependencies: requires(chunk),
	}, nil
}

// state is the Lua state owned by one context. Every use of L holds mu.
type state struct {
	mu        sync.Mutex
	L         *lua.LState
	framework *lua.LTable
	name      string
	closed    bool
}

func (s *state) Close(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.closed {
		s.L.Close()
		s.closed = true
	}
	return nil
}

// Load implements plugin.Host. The framework chunk runs once per context and
// becomes the only module require can resolve; the plugin chunk is compiled
// here and run by Bootstrap.
func (h *Host) Load(ctx context.Context, lctx *loadctx.Context, req plugin.LoadRequest) (plugin.Loaded, error) {
	res, err := lctx.Resource(resourceName, func() (loadctx.Resource, error) {
		L, err := h.factory.NewState(ctx, req.Log)
		if err != nil {
			return nil, oops.In("lua").Code("RUNTIME_INIT_FAILED").Wrap(err)
		}
		return &state{L: L}, nil
	})
	if err != nil {
		return nil, err
	}
	st := res.(*state)

	st.mu.Lock()
	defer st.mu.Unlock()

	if st.framework == nil {
		framework, err := runFramework(st.L, req.FrameworkPath)
		if err != nil {
			return nil, oops.In("lua").Code("FRAMEWORK_LOAD_FAILED").
				With("framework", req.FrameworkPath).
				Wrap(err)
		}
		st.framework = framework
		st.name = req.Framework
		st.L.SetGlobal("require", st.L.NewFunction(st.require))
	}

	checksum, err := frameworkChecksum(st.framework)
	if err != nil {
		return nil, oops.In("lua").Code("FRAMEWORK_INVALID").
			With("framework", req.FrameworkPath).
			Wrap(err)
	}

	chunk, err := st.L.LoadFile(req.Plugin.Path)
	if err != nil {
		return nil, oops.In("lua").Code("MODULE_INVALID").
			With("path", req.Plugin.Path).
			Hint("syntax error").
			Wrap(err)
	}

	return &module{
		state:    st,
		name:     req.Plugin.Name,
		path:     req.Plugin.Path,
		chunk:    chunk,
		checksum: checksum,
	}, nil
}

// frameworkChecksum reads the framework's checksum field, which must be an
// integer in the int32 range.
func frameworkChecksum(framework *lua.LTable) (int32, error) {
	n, ok := framework.RawGetString("checksum").(lua.LNumber)
	if !ok {
		return 0, oops.Errorf("framework module does not return a numeric %q field", "checksum")
	}
	f := float64(n)
	if f != math.Trunc(f) || f < math.MinInt32 || f > math.MaxInt32 {
		return 0, oops.With("checksum", f).
			Errorf("framework checksum %v is not a 32-bit integer", f)
	}
	return int32(f), nil
}

func runFramework(L *lua.LState, path string) (*lua.LTable, error) {
	chunk, err := L.LoadFile(path)
	if err != nil {
		return nil, err
	}
	if err := L.CallByParam(lua.P{Fn: chunk, NRet: 1, Protect: true}); err != nil {
		return nil, err
	}
	ret := L.Get(-1)
	L.Pop(1)

	table, ok := ret.(*lua.LTable)
	if !ok {
		return nil, oops.Errorf("framework chunk returned %s, want table", ret.Type())
	}
	return table, nil
}

// require resolves the framework module and nothing else.
func (s *state) require(L *lua.LState) int {
	name := L.CheckString(1)
	if name != s.name {
		L.RaiseError("module %q not found", name)
		return 0
	}
	L.Push(s.framework)
	return 1
}
