// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Hotbridge Contributors

// Package native models the table of host functions handed to the bridge at
// initialization: how plugin calls are dispatched, how faults are reported and
// how messages reach the host's log.
package native

import (
	"context"

	"github.com/samber/oops"

	"github.com/hotbridge/hotbridge/internal/abi"
	"github.com/hotbridge/hotbridge/internal/plugin"
)

// Level is the severity of a message sent to the host log.
type Level int32

// Log levels understood by the host.
const (
	Display Level = iota
	Warning
	Error
	Fatal
)

// String returns the level name.
func (l Level) String() string {
	switch l {
	case Display:
		return "display"
	case Warning:
		return "warning"
	case Error:
		return "error"
	case Fatal:
		return "fatal"
	default:
		return "unknown"
	}
}

// InvokeFunc calls a resolved plugin function with an argument.
type InvokeFunc func(ctx context.Context, fn plugin.Function, arg abi.Argument) error

// ExceptionFunc reports a formatted fault to the host.
type ExceptionFunc func(message string)

// LogFunc writes a message to the host log.
type LogFunc func(level Level, message string)

// Functions are the three host entry points at the head of the table.
type Functions struct {
	Invoke    InvokeFunc
	Exception ExceptionFunc
	Log       LogFunc
}

// Table is the host address table: the host functions followed by two opaque
// shared-region handles passed through to plugin bootstrap untouched.
type Table struct {
	Functions
	SharedEvents    abi.Address
	SharedFunctions abi.Address
}

// Validate checks that every host function entry is present.
func (t *Table) Validate() error {
	if t == nil {
		return oops.Code("HOST_TABLE_MISSING").Errorf("host function table is nil")
	}

	var missing []string
	if t.Invoke == nil {
		missing = append(missing, "invoke")
	}
	if t.Exception == nil {
		missing = append(missing, "exception")
	}
	if t.Log == nil {
		missing = append(missing, "log")
	}
	if len(missing) > 0 {
		return oops.Code("HOST_TABLE_INCOMPLETE").
			With("missing", missing).
			Errorf("host function table is missing entries: %v", missing)
	}
	return nil
}

// Shared returns the shared-region handles in the form plugin bootstrap expects.
func (t *Table) Shared() plugin.Shared {
	return plugin.Shared{
		Events:    t.SharedEvents,
		Functions: t.SharedFunctions,
	}
}

// DirectInvoke calls fn inline on the calling goroutine.
func DirectInvoke(ctx context.Context, fn plugin.Function, arg abi.Argument) error {
	return fn.Call(ctx, arg)
}
