// Package tracing implements the "named-span capability" spec.md §1
// requires the core to consume without owning an exporter. The Store's
// named-query scope (§4.1) is a thin wrapper over this: every statement
// group emitted inside a Scope carries the scope's label as the span name
// for log/trace correlation, whatever TracerProvider the host process
// installs. A noop provider (the default if the host never configures one)
// makes every call here free.
package tracing

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"
)

const tracerName = "github.com/fallpaper/fallpaper"

// Tracer wraps an otel Tracer under a fixed instrumentation name.
type Tracer struct {
	t trace.Tracer
}

// New returns a Tracer backed by whatever TracerProvider otel.GetTracerProvider
// resolves to at call time (a noop provider unless the host process calls
// otel.SetTracerProvider).
func New() *Tracer {
	return &Tracer{t: otel.Tracer(tracerName)}
}

// Scope starts a named span for the duration of the returned End func. Store
// operations call this once per logical named-query scope; nested calls
// inside the scope inherit the span via ctx.
func (tr *Tracer) Scope(ctx context.Context, label string) (context.Context, func()) {
	ctx, span := tr.t.Start(ctx, label)
	return ctx, func() { span.End() }
}
