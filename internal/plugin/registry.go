// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Hotbridge Contributors

package plugin

import (
	"slices"
	"sync/atomic"

	"github.com/cespare/xxhash/v2"
	"github.com/samber/oops"

	"github.com/hotbridge/hotbridge/internal/abi"
	"github.com/hotbridge/hotbridge/internal/loadctx"
)

// NameHash returns the stable hash of a function name used as the lookup key
// in a plugin's function table.
func NameHash(name string) uint64 {
	return xxhash.Sum64String(name)
}

// Plugin is the loaded plugin: its module handle, owning context and bound
// function table.
type Plugin struct {
	Name       string
	Path       string
	Generation uint32
	Module     Loaded
	Context    *loadctx.Context

	byHash map[uint64]abi.Address
	slots  []Function
}

// NewPlugin binds fns into a function table whose addresses carry generation.
// Names hashing to the same key overwrite each other; the last one bound wins.
func NewPlugin(meta *Metadata, generation uint32, module Loaded, lctx *loadctx.Context, fns map[string]Function) *Plugin {
	p := &Plugin{
		Name:       meta.Name,
		Path:       meta.Path,
		Generation: generation,
		Module:     module,
		Context:    lctx,
		byHash:     make(map[uint64]abi.Address, len(fns)),
		slots:      make([]Function, 0, len(fns)),
	}

	names := make([]string, 0, len(fns))
	for name := range fns {
		names = append(names, name)
	}
	slices.Sort(names)

	for _, name := range names {
		p.byHash[NameHash(name)] = p.address(len(p.slots))
		p.slots = append(p.slots, fns[name])
	}
	return p
}

// Find returns the address bound to name.
func (p *Plugin) Find(name string) (abi.Address, bool) {
	addr, ok := p.byHash[NameHash(name)]
	return addr, ok
}

// Functions returns the names of every bound function, sorted.
func (p *Plugin) Functions() []string {
	names := make([]string, 0, len(p.slots))
	for _, fn := range p.slots {
		names = append(names, fn.Name())
	}
	slices.Sort(names)
	return names
}

// Resolve maps an address back to its function. Addresses minted for another
// generation are reported as stale.
func (p *Plugin) Resolve(addr abi.Address) (Function, error) {
	generation := uint32(uint64(addr) >> 32)
	slot := int(uint32(addr)) - 1

	if generation != p.Generation {
		return nil, oops.Code("FUNCTION_STALE").
			With("address", addr.String()).
			With("generation", generation).
			With("active_generation", p.Generation).
			Errorf("function address %s belongs to an unloaded plugin", addr)
	}
	if slot < 0 || slot >= len(p.slots) {
		return nil, oops.Code("FUNCTION_UNKNOWN").
			With("address", addr.String()).
			With("plugin", p.Name).
			Errorf("function address %s is not bound in plugin %s", addr, p.Name)
	}
	return p.slots[slot], nil
}

func (p *Plugin) address(slot int) abi.Address {
	return abi.Address(uint64(p.Generation)<<32 | uint64(slot+1))
}

// Registry holds at most one active plugin. Installs and removals are atomic,
// so readers never observe a partially built plugin.
type Registry struct {
	active     atomic.Pointer[Plugin]
	generation atomic.Uint32
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{}
}

// NextGeneration reserves the generation for the next plugin to be installed.
func (r *Registry) NextGeneration() uint32 {
	return r.generation.Add(1)
}

// Install makes p the active plugin and returns the plugin it replaced.
func (r *Registry) Install(p *Plugin) *Plugin {
	return r.active.Swap(p)
}

// Clear empties the registry and returns the plugin that was active.
func (r *Registry) Clear() *Plugin {
	return r.active.Swap(nil)
}

// Active returns the active plugin, or nil when none is loaded.
func (r *Registry) Active() *Plugin {
	return r.active.Load()
}

// Resolve maps an address to the active plugin and its function.
func (r *Registry) Resolve(addr abi.Address) (*Plugin, Function, error) {
	p := r.active.Load()
	if p == nil {
		return nil, nil, oops.Code("PLUGIN_NOT_LOADED").
			With("address", addr.String()).
			Errorf("no plugin is loaded to execute function address %s", addr)
	}
	fn, err := p.Resolve(addr)
	if err != nil {
		return nil, nil, err
	}
	return p, fn, nil
}
