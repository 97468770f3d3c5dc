package obs

import (
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"
)

// Propagator reads and writes W3C traceparent/tracestate and baggage headers.
func Propagator() propagation.TextMapPropagator {
	return propagation.NewCompositeTextMapPropagator(propagation.TraceContext{}, propagation.Baggage{})
}

// InitPropagation installs Propagator as the global propagator used by
// otelhttp transports and otelgrpc handlers.
func InitPropagation() {
	otel.SetTextMapPropagator(Propagator())
}
