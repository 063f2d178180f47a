// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Hotbridge Contributors

// Package logging provides structured operator logging with OpenTelemetry
// trace context. Messages meant for the host go through the native table.
package logging

import (
	"context"
	"io"
	"log/slog"
	"os"

	"github.com/samber/oops"
	"go.opentelemetry.io/otel/trace"
)

// Supported output formats.
const (
	FormatJSON = "json"
	FormatText = "text"
)

// Level is the minimum level of loggers created by Setup. It can be changed
// at runtime.
var Level = new(slog.LevelVar)

// ValidateFormat rejects formats Setup does not understand.
func ValidateFormat(format string) error {
	switch format {
	case "", FormatJSON, FormatText:
		return nil
	default:
		return oops.Code("LOG_FORMAT_INVALID").
			With("format", format).
			Errorf("log-format must be %q or %q, got %q", FormatJSON, FormatText, format)
	}
}

// traceHandler stamps records with the service identity and the active span.
type traceHandler struct {
	handler slog.Handler
	service string
	version string
}

func (h *traceHandler) Handle(ctx context.Context, r slog.Record) error {
	r.AddAttrs(
		slog.String("service", h.service),
		slog.String("version", h.version),
	)

	spanCtx := trace.SpanContextFromContext(ctx)
	if spanCtx.HasTraceID() {
		r.AddAttrs(slog.String("trace_id", spanCtx.TraceID().String()))
	}
	if spanCtx.HasSpanID() {
		r.AddAttrs(slog.String("span_id", spanCtx.SpanID().String()))
	}

	//nolint:wrapcheck // Handler interface requires unwrapped error passthrough
	return h.handler.Handle(ctx, r)
}

func (h *traceHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return h.handler.Enabled(ctx, level)
}

func (h *traceHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return &traceHandler{handler: h.handler.WithAttrs(attrs), service: h.service, version: h.version}
}

func (h *traceHandler) WithGroup(name string) slog.Handler {
	return &traceHandler{handler: h.handler.WithGroup(name), service: h.service, version: h.version}
}

// Setup creates a configured slog.Logger.
// format: "json" or "text" (defaults to "json" if empty)
// If w is nil, writes to os.Stderr.
func Setup(service, version, format string, w io.Writer) *slog.Logger {
	if w == nil {
		w = os.Stderr
	}

	opts := &slog.HandlerOptions{Level: Level}

	var base slog.Handler
	if format == FormatText {
		base = slog.NewTextHandler(w, opts)
	} else {
		base = slog.NewJSONHandler(w, opts)
	}

	return slog.New(&traceHandler{
		handler: base,
		service: service,
		version: version,
	})
}

// SetDefault installs a logger from Setup as the slog default and returns it.
func SetDefault(service, version, format string, w io.Writer) *slog.Logger {
	logger := Setup(service, version, format, w)
	slog.SetDefault(logger)
	return logger
}
