// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Hotbridge Contributors

// Package loadctx provides collectible execution contexts: isolated groups of
// runtime resources that are torn down and reclaimed as a unit.
//
// A context is reclaimed once an unload has been requested and every lease
// borrowed from it has been released. Leases dropped without an explicit
// Release are released by a runtime cleanup after the next garbage
// collection, so forcing collections makes progress toward reclamation.
package loadctx

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/oklog/ulid/v2"
)

// ErrUnloading is returned when a context that is unloading is asked for a
// new lease or resource.
var ErrUnloading = errors.New("context is unloading")

// Resource is a runtime resource owned by a context.
type Resource interface {
	Close(ctx context.Context) error
}

// status is the part of a context visible to observation handles.
type status struct {
	id         ulid.ULID
	generation uint64
	released   atomic.Bool
}

// Context is a collectible execution context.
type Context struct {
	status *status

	mu        sync.Mutex
	resources map[string]Resource
	order     []string

	leases    atomic.Int64
	unloading atomic.Bool
}

func newContext(generation uint64) *Context {
	return &Context{
		status: &status{
			id:         ulid.Make(),
			generation: generation,
		},
		resources: make(map[string]Resource),
	}
}

// ID returns the context's unique id.
func (c *Context) ID() ulid.ULID {
	return c.status.id
}

// Generation returns the context's position in the sequence of contexts
// provisioned by its manager, starting at 1.
func (c *Context) Generation() uint64 {
	return c.status.generation
}

// String identifies the context in logs.
func (c *Context) String() string {
	return fmt.Sprintf("%d/%s", c.status.generation, c.status.id)
}

// Resource returns the resource attached under name, attaching the result of
// create when none exists yet.
func (c *Context) Resource(name string, create func() (Resource, error)) (Resource, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.unloading.Load() {
		return nil, ErrUnloading
	}
	if r, ok := c.resources[name]; ok {
		return r, nil
	}

	r, err := create()
	if err != nil {
		return nil, err
	}
	c.resources[name] = r
	c.order = append(c.order, name)
	return r, nil
}

// Acquire borrows a lease that keeps the context from being reclaimed until
// it is released.
func (c *Context) Acquire() (*Lease, error) {
	if c.unloading.Load() {
		return nil, ErrUnloading
	}
	c.leases.Add(1)
	if c.unloading.Load() {
		c.releaseLease()
		return nil, ErrUnloading
	}
	return newLease(c), nil
}

// Leases returns the number of outstanding leases.
func (c *Context) Leases() int64 {
	return c.leases.Load()
}

// Unloading reports whether an unload has been requested.
func (c *Context) Unloading() bool {
	return c.unloading.Load()
}

// Released reports whether the context has been reclaimed.
func (c *Context) Released() bool {
	return c.status.released.Load()
}

// Observe returns a non-owning observation handle for the context.
func (c *Context) Observe() Handle {
	return Handle{status: c.status}
}

// RequestUnload marks the context as unloading. New leases and resources are
// refused from now on; the context is reclaimed when the last lease is released.
func (c *Context) RequestUnload() {
	if c.unloading.Swap(true) {
		return
	}
	slog.Debug("context unload requested",
		"context", c.String(),
		"leases", c.leases.Load())
	c.tryReclaim()
}

func (c *Context) releaseLease() {
	if c.leases.Add(-1) == 0 && c.unloading.Load() {
		c.tryReclaim()
	}
}

// tryReclaim closes every resource, newest first, once the context is
// unloading and holds no leases.
func (c *Context) tryReclaim() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.status.released.Load() || !c.unloading.Load() || c.leases.Load() != 0 {
		return
	}

	for i := len(c.order) - 1; i >= 0; i-- {
		name := c.order[i]
		if err := c.resources[name].Close(context.Background()); err != nil {
			slog.Warn("failed to close context resource",
				"context", c.String(),
				"resource", name,
				"error", err)
		}
	}
	c.resources = nil
	c.order = nil
	c.status.released.Store(true)

	slog.Debug("context reclaimed", "context", c.String())
}
