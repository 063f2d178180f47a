// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Hotbridge Contributors

package loadctx

import (
	"log/slog"
	"sync"
)

// Handle observes a context without owning it. It only answers whether the
// context has been reclaimed yet.
type Handle struct {
	status *status
}

// Alive reports whether the observed context has not been reclaimed. The zero
// Handle observes nothing and is never alive.
func (h Handle) Alive() bool {
	return h.status != nil && !h.status.released.Load()
}

// Generation returns the observed context's generation, or 0 for the zero Handle.
func (h Handle) Generation() uint64 {
	if h.status == nil {
		return 0
	}
	return h.status.generation
}

// Manager owns exactly one active context at a time.
type Manager struct {
	mu     sync.Mutex
	active *Context
	next   uint64
}

// NewManager creates a manager with no active context.
func NewManager() *Manager {
	return &Manager{}
}

// Provision creates a brand-new context, makes it the active one and returns
// it with its observation handle. The previous context is not touched; callers
// request its unload before provisioning a replacement.
func (m *Manager) Provision() (*Context, Handle) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.next++
	c := newContext(m.next)
	m.active = c

	slog.Debug("context provisioned", "context", c.String())
	return c, c.Observe()
}

// Active returns the active context, or nil before the first Provision.
func (m *Manager) Active() *Context {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.active
}
