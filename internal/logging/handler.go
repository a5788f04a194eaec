// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Plugmesh Authors

// Package logging provides structured logging for the plugin host. Every
// record carries the host's service identity; records logged with a context
// that passed through WithPlugin are attributed to the plugin and artifact
// that caused them, and OpenTelemetry trace/span ids are propagated when a
// span is active.
package logging

import (
	"context"
	"io"
	"log/slog"
	"os"

	"go.opentelemetry.io/otel/trace"
)

// pluginKey is the context key for plugin attribution.
type pluginKey struct{}

// PluginInfo identifies the plugin a log record belongs to.
type PluginInfo struct {
	// Name is the plugin's self-declared name.
	Name string
	// Artifact is the base name of the artifact it was loaded from.
	Artifact string
}

// WithPlugin returns a context whose log records are attributed to the
// given plugin. Handlers and lifecycle paths use it so failures deep in a
// request or load still name the plugin that caused them.
func WithPlugin(ctx context.Context, name, artifact string) context.Context {
	return context.WithValue(ctx, pluginKey{}, PluginInfo{Name: name, Artifact: artifact})
}

// PluginFromContext extracts the plugin attribution, if any.
func PluginFromContext(ctx context.Context) (PluginInfo, bool) {
	info, ok := ctx.Value(pluginKey{}).(PluginInfo)
	return info, ok
}

// Options configures a host logger.
type Options struct {
	// Service is the host identity stamped on every record.
	Service string

	// Version is the build version stamped on every record.
	Version string

	// Format is "json" or "text"; anything else falls back to "json".
	Format string

	// Level defaults to slog.LevelDebug.
	Level slog.Leveler

	// Writer defaults to os.Stderr.
	Writer io.Writer
}

// hostHandler stamps records with host identity, plugin attribution from
// the context, and trace context.
type hostHandler struct {
	inner   slog.Handler
	service string
	version string
}

// Handle decorates the record before delegating to the inner handler.
func (h *hostHandler) Handle(ctx context.Context, r slog.Record) error {
	if info, ok := PluginFromContext(ctx); ok {
		if info.Name != "" {
			r.AddAttrs(slog.String("plugin", info.Name))
		}
		if info.Artifact != "" {
			r.AddAttrs(slog.String("artifact", info.Artifact))
		}
	}

	if spanCtx := trace.SpanContextFromContext(ctx); spanCtx.IsValid() {
		r.AddAttrs(
			slog.String("trace_id", spanCtx.TraceID().String()),
			slog.String("span_id", spanCtx.SpanID().String()),
		)
	}

	//nolint:wrapcheck // Handler interface requires unwrapped error passthrough
	return h.inner.Handle(ctx, r)
}

// Enabled reports whether the level is enabled.
func (h *hostHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return h.inner.Enabled(ctx, level)
}

// WithAttrs returns a handler that adds attrs to every record.
func (h *hostHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return &hostHandler{inner: h.inner.WithAttrs(attrs), service: h.service, version: h.version}
}

// WithGroup returns a handler that nests subsequent attrs under name.
func (h *hostHandler) WithGroup(name string) slog.Handler {
	return &hostHandler{inner: h.inner.WithGroup(name), service: h.service, version: h.version}
}

// New creates a host logger from opts.
func New(opts Options) *slog.Logger {
	w := opts.Writer
	if w == nil {
		w = os.Stderr
	}
	level := opts.Level
	if level == nil {
		level = slog.LevelDebug
	}
	hopts := &slog.HandlerOptions{Level: level}

	var inner slog.Handler
	if opts.Format == "text" {
		inner = slog.NewTextHandler(w, hopts)
	} else {
		inner = slog.NewJSONHandler(w, hopts)
	}
	// Identity attrs are bound before any group can open, so they stay at
	// the top level of every record.
	inner = inner.WithAttrs([]slog.Attr{
		slog.String("service", opts.Service),
		slog.String("version", opts.Version),
	})

	return slog.New(&hostHandler{
		inner:   inner,
		service: opts.Service,
		version: opts.Version,
	})
}

// Setup creates a configured host logger writing to w (nil = stderr).
func Setup(service, version, format string, w io.Writer) *slog.Logger {
	return New(Options{Service: service, Version: version, Format: format, Writer: w})
}

// SetDefault installs a host logger as the process default.
func SetDefault(service, version, format string) {
	slog.SetDefault(Setup(service, version, format, nil))
}
