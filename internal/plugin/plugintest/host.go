// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Hotbridge Contributors

// Package plugintest provides an in-memory module host for tests.
package plugintest

import (
	"context"
	"sync"

	"github.com/hotbridge/hotbridge/internal/abi"
	"github.com/hotbridge/hotbridge/internal/loadctx"
	"github.com/hotbridge/hotbridge/internal/plugin"
)

// CallFunc is the body of a fake plugin function.
type CallFunc func(ctx context.Context, arg abi.Argument) error

// Module describes a fake module image registered with a Host.
type Module struct {
	Name         string
	Dependencies []string
	Checksum     int32
	Functions    map[string]CallFunc
	LoadErr      error
	BootstrapErr error
}

// Host is a plugin.Host serving modules registered by path. Paths that were
// never registered are not module images.
type Host struct {
	ext string

	mu       sync.Mutex
	modules  map[string]Module
	loads    []plugin.LoadRequest
	shared   []plugin.Shared
	closes   int
	released int
	retain   bool
	retained []*loadctx.Lease
}

// NewHost creates a host for files with extension ext.
func NewHost(ext string) *Host {
	return &Host{
		ext:     ext,
		modules: make(map[string]Module),
	}
}

// Add registers m as the module image at path.
func (h *Host) Add(path string, m Module) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.modules[path] = m
}

// Retain makes every following Load hold a lease on its context until
// ReleaseRetained is called, which keeps the context from being reclaimed.
func (h *Host) Retain(retain bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.retain = retain
}

// ReleaseRetained releases every lease held because of Retain.
func (h *Host) ReleaseRetained() {
	h.mu.Lock()
	retained := h.retained
	h.retained = nil
	h.mu.Unlock()

	for _, l := range retained {
		l.Release()
	}
}

// Loads returns every load request served so far.
func (h *Host) Loads() []plugin.LoadRequest {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]plugin.LoadRequest(nil), h.loads...)
}

// Shared returns the shared handles passed to every bootstrap so far.
func (h *Host) Shared() []plugin.Shared {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]plugin.Shared(nil), h.shared...)
}

// Closes returns how many loaded modules were disposed.
func (h *Host) Closes() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.closes
}

// ContextsReleased returns how many contexts reclaimed a resource attached by this host.
func (h *Host) ContextsReleased() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.released
}

// Extensions implements plugin.Host.
func (h *Host) Extensions() []string {
	return []string{h.ext}
}

// Inspect implements plugin.Host.
func (h *Host) Inspect(_ context.Context, path string) (*plugin.Metadata, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	m, ok := h.modules[path]
	if !ok {
		return nil, plugin.ErrNotModule
	}
	return &plugin.Metadata{
		Name:         m.Name,
		Path:         path,
		Dependencies: append([]string(nil), m.Dependencies...),
	}, nil
}

// Load implements plugin.Host.
func (h *Host) Load(_ context.Context, lctx *loadctx.Context, req plugin.LoadRequest) (plugin.Loaded, error) {
	h.mu.Lock()
	h.loads = append(h.loads, req)
	m := h.modules[req.Plugin.Path]
	framework, hasFramework := h.modules[req.FrameworkPath]
	retain := h.retain
	h.mu.Unlock()

	if m.LoadErr != nil {
		return nil, m.LoadErr
	}

	if _, err := lctx.Resource("plugintest", func() (loadctx.Resource, error) {
		return resource{host: h}, nil
	}); err != nil {
		return nil, err
	}

	if retain {
		lease, err := lctx.Acquire()
		if err != nil {
			return nil, err
		}
		h.mu.Lock()
		h.retained = append(h.retained, lease)
		h.mu.Unlock()
	}

	checksum := m.Checksum
	if hasFramework {
		checksum = framework.Checksum
	}
	return &loaded{host: h, module: m, checksum: checksum}, nil
}

type resource struct {
	host *Host
}

func (r resource) Close(_ context.Context) error {
	r.host.mu.Lock()
	defer r.host.mu.Unlock()
	r.host.released++
	return nil
}

type loaded struct {
	host     *Host
	module   Module
	checksum int32
}

func (l *loaded) Checksum() int32 {
	return l.checksum
}

func (l *loaded) Bootstrap(_ context.Context, shared plugin.Shared) (map[string]plugin.Function, error) {
	l.host.mu.Lock()
	l.host.shared = append(l.host.shared, shared)
	l.host.mu.Unlock()

	if l.module.BootstrapErr != nil {
		return nil, l.module.BootstrapErr
	}

	fns := make(map[string]plugin.Function, len(l.module.Functions))
	for name, call := range l.module.Functions {
		fns[name] = Function{FuncName: name, Fn: call}
	}
	return fns, nil
}

func (l *loaded) Close(_ context.Context) error {
	l.host.mu.Lock()
	defer l.host.mu.Unlock()
	l.host.closes++
	return nil
}

// Function is a plugin.Function backed by a Go func.
type Function struct {
	FuncName string
	Fn       CallFunc
}

// Name implements plugin.Function.
func (f Function) Name() string {
	return f.FuncName
}

// Call implements plugin.Function.
func (f Function) Call(ctx context.Context, arg abi.Argument) error {
	if f.Fn == nil {
		return nil
	}
	return f.Fn(ctx, arg)
}
