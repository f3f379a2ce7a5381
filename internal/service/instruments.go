package service

import (
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
	"go.opentelemetry.io/otel/trace"
)

const instrumentationName = "github.com/netcore-rdp/rdportal/internal/service"

// instruments holds the OpenTelemetry handles used by the services.
// They resolve against the global providers, which are no-ops until
// telemetry is enabled at startup.
type instruments struct {
	tracer       trace.Tracer
	tokens       metric.Int64Counter
	probes       metric.Int64Counter
	connects     metric.Int64Counter
	probeLatency metric.Float64Histogram
}

func newInstruments() *instruments {
	meter := otel.Meter(instrumentationName)
	fallback := noop.Meter{}
	in := &instruments{tracer: otel.Tracer(instrumentationName)}

	var err error
	if in.tokens, err = meter.Int64Counter("rdportal.gateway.tokens",
		metric.WithDescription("Gateway tokens issued, by outcome")); err != nil {
		otel.Handle(err)
		in.tokens, _ = fallback.Int64Counter("")
	}
	if in.probes, err = meter.Int64Counter("rdportal.probe.results",
		metric.WithDescription("Reachability probe results, by outcome and cache use")); err != nil {
		otel.Handle(err)
		in.probes, _ = fallback.Int64Counter("")
	}
	if in.connects, err = meter.Int64Counter("rdportal.connects",
		metric.WithDescription("Connect requests, by mode and result")); err != nil {
		otel.Handle(err)
		in.connects, _ = fallback.Int64Counter("")
	}
	if in.probeLatency, err = meter.Float64Histogram("rdportal.probe.duration",
		metric.WithDescription("Reachability probe duration"),
		metric.WithUnit("s")); err != nil {
		otel.Handle(err)
		in.probeLatency, _ = fallback.Float64Histogram("")
	}
	return in
}
