// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Hotbridge Contributors

package errutil

import (
	"log/slog"

	"github.com/samber/oops"
)

// LogError logs err at error level. Oops errors contribute their code, the
// module host domain (lua, wasm), the hint, and the context map as separate
// attributes so faults reported by the bridge stay searchable.
func LogError(logger *slog.Logger, msg string, err error) {
	oopsErr, ok := oops.AsOops(err)
	if !ok {
		logger.Error(msg, "error", err)
		return
	}

	attrs := []any{"error", oopsErr.Error()}
	if code := oopsErr.Code(); code != nil && code != "" {
		attrs = append(attrs, "code", code)
	}
	if domain := oopsErr.Domain(); domain != "" {
		attrs = append(attrs, "domain", domain)
	}
	if hint := oopsErr.Hint(); hint != "" {
		attrs = append(attrs, "hint", hint)
	}
	if ctx := oopsErr.Context(); len(ctx) > 0 {
		attrs = append(attrs, "context", ctx)
	}
	logger.Error(msg, attrs...)
}
