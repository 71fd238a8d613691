package otelx

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"
)

// StoredTrace is the W3C trace context persisted next to a deferred unit of
// work, such as an outbox row, so the worker that picks it up joins the trace.
type StoredTrace struct {
	Parent string
	State  string
}

func CaptureTrace(ctx context.Context) StoredTrace {
	carrier := propagation.MapCarrier{}
	otel.GetTextMapPropagator().Inject(ctx, carrier)
	return StoredTrace{Parent: carrier.Get("traceparent"), State: carrier.Get("tracestate")}
}

// Resume returns ctx carrying the stored span as its remote parent. An empty
// StoredTrace leaves ctx untouched.
func (t StoredTrace) Resume(ctx context.Context) context.Context {
	if t.Parent == "" {
		return ctx
	}
	carrier := propagation.MapCarrier{"traceparent": t.Parent}
	if t.State != "" {
		carrier.Set("tracestate", t.State)
	}
	return otel.GetTextMapPropagator().Extract(ctx, carrier)
}
