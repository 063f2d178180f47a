// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Hotbridge Contributors

// Package plugin provides module discovery, the module host contract and the
// registry of the single active plugin.
package plugin

import (
	"context"
	"errors"
	"slices"

	"github.com/hotbridge/hotbridge/internal/abi"
	"github.com/hotbridge/hotbridge/internal/loadctx"
)

// ErrNotModule is returned by Host.Inspect when a file is not a valid module image.
var ErrNotModule = errors.New("not a valid module image")

// Host loads modules of a specific runtime type into collectible contexts.
type Host interface {
	// Extensions returns the file extensions (with leading dot) this host loads.
	Extensions() []string

	// Inspect reads module metadata without loading the module.
	Inspect(ctx context.Context, path string) (*Metadata, error)

	// Load loads the framework and plugin modules described by req into lctx.
	// The returned Loaded is the unload handle for the plugin module.
	Load(ctx context.Context, lctx *loadctx.Context, req LoadRequest) (Loaded, error)
}

// Metadata describes a module image.
type Metadata struct {
	Name         string
	Path         string
	Dependencies []string
}

// DependsOn reports whether the module directly references module name.
func (m *Metadata) DependsOn(name string) bool {
	return slices.Contains(m.Dependencies, name)
}

// LoadRequest names the modules Host.Load should bring into a context.
type LoadRequest struct {
	Plugin        *Metadata
	Framework     string // framework module name
	FrameworkPath string

	// Log receives messages logged by module code, with host log levels.
	Log func(level int32, message string)
}

// Shared holds the opaque shared-region handles passed to the framework bootstrap.
type Shared struct {
	Events    abi.Address
	Functions abi.Address
}

// Loaded is a plugin module loaded into a context together with its framework.
type Loaded interface {
	// Checksum returns the compatibility checksum declared by the framework module.
	Checksum() int32

	// Bootstrap runs the framework load entry and returns the plugin's callable
	// functions keyed by exported name.
	Bootstrap(ctx context.Context, shared Shared) (map[string]Function, error)

	// Close disposes the plugin module. Context-wide resources stay attached to
	// the context until it is reclaimed.
	Close(ctx context.Context) error
}

// Function is a callable plugin entry point.
type Function interface {
	Name() string
	Call(ctx context.Context, arg abi.Argument) error
}
