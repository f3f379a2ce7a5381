// Package telemetry installs the OpenTelemetry trace and metric providers
// that the services report through.
package telemetry

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/stdout/stdoutmetric"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
)

// Output targets understood by Setup besides a file path.
const (
	OutputStdout = "stdout"
	OutputStderr = "stderr"
)

// DefaultMetricInterval is how often metrics are exported.
const DefaultMetricInterval = 30 * time.Second

// Config selects whether and where telemetry is exported.
type Config struct {
	Enabled bool
	// Output is "stdout", "stderr" or a file path. Empty means stdout.
	Output         string
	ServiceName    string
	ServiceVersion string
	// MetricInterval overrides DefaultMetricInterval when positive.
	MetricInterval time.Duration
}

// ShutdownFunc flushes pending telemetry and releases the exporters.
type ShutdownFunc func(context.Context) error

// Setup registers global tracer and meter providers exporting to the
// configured output. When telemetry is disabled no provider is registered
// and the returned shutdown is a no-op.
func Setup(ctx context.Context, cfg Config) (ShutdownFunc, error) {
	noop := func(context.Context) error { return nil }
	if !cfg.Enabled {
		return noop, nil
	}

	w, closeOutput, err := openOutput(cfg.Output)
	if err != nil {
		return noop, err
	}

	traceExp, err := stdouttrace.New(stdouttrace.WithWriter(w))
	if err != nil {
		_ = closeOutput()
		return noop, fmt.Errorf("failed to create trace exporter: %w", err)
	}
	metricExp, err := stdoutmetric.New(stdoutmetric.WithWriter(w))
	if err != nil {
		_ = closeOutput()
		return noop, fmt.Errorf("failed to create metric exporter: %w", err)
	}

	res := resource.NewSchemaless(
		attribute.String("service.name", cfg.ServiceName),
		attribute.String("service.version", cfg.ServiceVersion),
	)

	interval := cfg.MetricInterval
	if interval <= 0 {
		interval = DefaultMetricInterval
	}

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(traceExp),
		sdktrace.WithResource(res),
	)
	mp := sdkmetric.NewMeterProvider(
		sdkmetric.WithReader(sdkmetric.NewPeriodicReader(metricExp, sdkmetric.WithInterval(interval))),
		sdkmetric.WithResource(res),
	)

	otel.SetTracerProvider(tp)
	otel.SetMeterProvider(mp)

	return func(ctx context.Context) error {
		return errors.Join(
			tp.Shutdown(ctx),
			mp.Shutdown(ctx),
			closeOutput(),
		)
	}, nil
}

func openOutput(output string) (io.Writer, func() error, error) {
	nop := func() error { return nil }
	switch output {
	case "", OutputStdout:
		return os.Stdout, nop, nil
	case OutputStderr:
		return os.Stderr, nop, nil
	}

	f, err := os.OpenFile(output, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o600)
	if err != nil {
		return nil, nop, fmt.Errorf("failed to open telemetry output: %w", err)
	}
	return f, f.Close, nil
}
