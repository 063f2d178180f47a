// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Hotbridge Contributors

package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/hotbridge/hotbridge/internal/observability"
	"github.com/hotbridge/hotbridge/internal/xdg"
)

// Deps contains injectable dependencies for the commands.
// All fields with nil values will use their default implementations.
type Deps struct {
	// ConfigPathGetter returns the config file used when --config is not set.
	// Default: xdg.ConfigFile
	ConfigPathGetter func() (string, error)

	// ObservabilityServerFactory creates an observability server.
	// Default: observability.NewServer
	ObservabilityServerFactory func(addr string, ready observability.ReadinessChecker, registrations ...observability.Registration) ObservabilityServer

	// SignalContext returns a context cancelled on shutdown signals.
	// Default: signal.NotifyContext with SIGINT and SIGTERM
	SignalContext func(ctx context.Context) (context.Context, context.CancelFunc)
}

// ObservabilityServer interface wraps the methods used from observability.Server.
type ObservabilityServer interface {
	Start() (<-chan error, error)
	Stop(ctx context.Context) error
	Addr() string
}

func (d *Deps) withDefaults() *Deps {
	out := Deps{}
	if d != nil {
		out = *d
	}
	if out.ConfigPathGetter == nil {
		out.ConfigPathGetter = xdg.ConfigFile
	}
	if out.ObservabilityServerFactory == nil {
		out.ObservabilityServerFactory = func(addr string, ready observability.ReadinessChecker, registrations ...observability.Registration) ObservabilityServer {
			return observability.NewServer(addr, ready, registrations...)
		}
	}
	if out.SignalContext == nil {
		out.SignalContext = func(ctx context.Context) (context.Context, context.CancelFunc) {
			return signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
		}
	}
	return &out
}
