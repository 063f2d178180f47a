// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Hotbridge Contributors

package native

import (
	"context"
	"log/slog"
)

// SlogTable builds a host table that writes host log messages and faults to logger
// and invokes plugin functions inline.
func SlogTable(logger *slog.Logger) *Table {
	return &Table{
		Functions: Functions{
			Invoke: DirectInvoke,
			Exception: func(message string) {
				logger.Error("managed exception", "message", message)
			},
			Log: func(level Level, message string) {
				logger.Log(context.Background(), SlogLevel(level), message, levelAttrs(level)...)
			},
		},
	}
}

// SlogLevel maps a host log level onto slog.
func SlogLevel(level Level) slog.Level {
	switch level {
	case Warning:
		return slog.LevelWarn
	case Error, Fatal:
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

func levelAttrs(level Level) []any {
	if level == Fatal {
		return []any{"fatal", true}
	}
	return nil
}
