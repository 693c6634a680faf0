package otelx

import (
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"
)

// Tracer returns a named tracer from the global provider. Before Setup runs (tests, CLI
// one-shots with tracing disabled) the global provider is a no-op.
func Tracer(name string) trace.Tracer {
	return otel.Tracer(name)
}
