// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Hotbridge Contributors

// Package bridge implements the host command protocol: it owns the plugin
// lifecycle, resolves plugin functions by name, dispatches calls and reports
// faults back to the host.
package bridge

import (
	"context"
	"fmt"
	"log/slog"
	"runtime/debug"
	"sync"
	"sync/atomic"

	"github.com/samber/oops"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/hotbridge/hotbridge/internal/abi"
	"github.com/hotbridge/hotbridge/internal/command"
	"github.com/hotbridge/hotbridge/internal/loadctx"
	"github.com/hotbridge/hotbridge/internal/native"
	"github.com/hotbridge/hotbridge/internal/plugin"
	"github.com/hotbridge/hotbridge/internal/reclaim"
	"github.com/hotbridge/hotbridge/pkg/errutil"
)

var tracer = otel.Tracer("hotbridge/bridge")

// Fault prefixes reported with the lifecycle commands' failures.
const (
	InitializeFailed = "runtime initialization failed"
	LoadFailed       = "loading of assemblies failed"
	UnloadFailed     = "unloading of assemblies failed"
)

// State is the bridge lifecycle state.
type State int32

// Lifecycle states.
const (
	Uninitialized State = iota
	Initialized
	Loaded
	Unloading
)

// String returns the state name.
func (s State) String() string {
	switch s {
	case Uninitialized:
		return "uninitialized"
	case Initialized:
		return "initialized"
	case Loaded:
		return "loaded"
	case Unloading:
		return "unloading"
	default:
		return "unknown"
	}
}

// Bridge serves host commands. The zero value is not usable; use New.
type Bridge struct {
	cfg      Config
	hosts    []plugin.Host
	loop     *reclaim.Loop
	contexts *loadctx.Manager
	registry *plugin.Registry

	table atomic.Pointer[native.Table]
	state atomic.Int32

	// mu serialises lifecycle commands and guards the fields below.
	mu       sync.Mutex
	checksum int32
	handle   loadctx.Handle
}

// Option configures a Bridge.
type Option func(*Bridge)

// WithHosts registers the module hosts used to inspect and load modules.
func WithHosts(hosts ...plugin.Host) Option {
	return func(b *Bridge) {
		b.hosts = append(b.hosts, hosts...)
	}
}

// WithReclaimLoop replaces the loop used to wait for unloading contexts.
func WithReclaimLoop(loop *reclaim.Loop) Option {
	return func(b *Bridge) {
		b.loop = loop
	}
}

// New creates a bridge awaiting Initialize.
func New(cfg Config, opts ...Option) *Bridge {
	b := &Bridge{
		cfg:      cfg.withDefaults(),
		contexts: loadctx.NewManager(),
		registry: plugin.NewRegistry(),
	}
	for _, opt := range opts {
		opt(b)
	}
	if b.loop == nil {
		b.loop = reclaim.New(
			reclaim.WithWarnAfter(b.cfg.WarnAfter),
			reclaim.WithGiveUpAfter(b.cfg.GiveUpAfter),
		)
	}
	return b
}

// State returns the lifecycle state.
func (b *Bridge) State() State {
	return State(b.state.Load())
}

// Ready reports whether Initialize has succeeded.
func (b *Bridge) Ready() bool {
	return b.table.Load() != nil
}

// Plugin returns the loaded plugin, or nil.
func (b *Bridge) Plugin() *plugin.Plugin {
	return b.registry.Active()
}

// Dispatch executes cmd and returns its result address. Faults never reach
// the caller: they are reported through the host's exception function, or to
// slog before Initialize has succeeded. Unknown commands return abi.Null
// without side effects.
func (b *Bridge) Dispatch(ctx context.Context, cmd command.Command) abi.Address {
	tag := command.TagOf(cmd)
	ctx, span := tracer.Start(ctx, "bridge.dispatch",
		trace.WithAttributes(attribute.String("command", tag.String())),
	)
	defer span.End()

	result, handled, err := b.dispatch(ctx, cmd)
	switch {
	case !handled:
		recordCommand(tag, OutcomeIgnored)
		slog.DebugContext(ctx, "ignoring unknown command", "command", tag.String())
	case err != nil:
		recordCommand(tag, OutcomeFault)
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		b.report(tag, err)
	default:
		recordCommand(tag, OutcomeOK)
	}
	return result
}

func (b *Bridge) dispatch(ctx context.Context, cmd command.Command) (result abi.Address, handled bool, err error) {
	defer func() {
		if r := recover(); r != nil {
			result, handled = abi.Null, true
			err = oops.Code("PANIC").
				With("panic", r).
				Errorf("panic: %v\n%s", r, debug.Stack())
		}
	}()

	switch c := cmd.(type) {
	case command.Initialize:
		result, err = b.initialize(ctx, c)
	case command.LoadAssemblies:
		err = b.loadAssemblies(ctx)
	case command.UnloadAssemblies:
		err = b.unloadAssemblies(ctx)
	case command.Find:
		result, err = b.find(ctx, c)
	case command.Execute:
		err = b.execute(ctx, c)
	default:
		return abi.Null, false, nil
	}
	return result, true, err
}

// report sends a formatted fault to the host.
func (b *Bridge) report(tag command.Tag, err error) {
	message := describe(tag, err)

	table := b.table.Load()
	if table == nil {
		errutil.LogError(slog.Default().With("command", tag.String(), "message", message), "bridge fault", err)
		return
	}
	table.Exception(message)
}

func describe(tag command.Tag, err error) string {
	var prefix string
	switch tag {
	case command.TagInitialize:
		prefix = InitializeFailed
	case command.TagLoadAssemblies:
		prefix = LoadFailed
	case command.TagUnloadAssemblies:
		prefix = UnloadFailed
	default:
		return err.Error()
	}
	return fmt.Sprintf("%s\n%s", prefix, err.Error())
}

// initialized returns the host table, or an error before Initialize.
func (b *Bridge) initialized() (*native.Table, error) {
	table := b.table.Load()
	if table == nil {
		return nil, oops.Code("BRIDGE_NOT_INITIALIZED").Errorf("bridge is not initialized")
	}
	return table, nil
}

func (b *Bridge) setState(s State) {
	b.state.Store(int32(s))
	pluginLoaded(s == Loaded)
}
