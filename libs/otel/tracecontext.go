package otelx

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"
)

const (
	traceparentKey = "traceparent"
	tracestateKey  = "tracestate"
)

// TraceContextStrings captures the current span as W3C strings so it can be stored next to
// an outbox row and resumed by the publisher.
func TraceContextStrings(ctx context.Context) (traceparent, tracestate string) {
	carrier := propagation.MapCarrier{}
	otel.GetTextMapPropagator().Inject(ctx, carrier)
	return carrier.Get(traceparentKey), carrier.Get(tracestateKey)
}

// ContextWithTraceContext is the inverse of TraceContextStrings. A blank traceparent leaves
// ctx untouched.
func ContextWithTraceContext(ctx context.Context, traceparent, tracestate string) context.Context {
	if traceparent == "" {
		return ctx
	}
	carrier := propagation.MapCarrier{traceparentKey: traceparent}
	if tracestate != "" {
		carrier.Set(tracestateKey, tracestate)
	}
	return otel.GetTextMapPropagator().Extract(ctx, carrier)
}
