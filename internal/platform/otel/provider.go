// Package otel configures OpenTelemetry tracing for attendmark processes.
package otel

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/caarlos0/env/v11"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
)

// Settings selects the trace exporter. Tracing stays off without an endpoint.
type Settings struct {
	Endpoint    string `env:"ATTENDMARK_OTEL_ENDPOINT"`
	Enabled     string `env:"ATTENDMARK_OTEL_ENABLED"`
	SampleRatio string `env:"ATTENDMARK_OTEL_SAMPLE_RATIO"`
}

func (s Settings) active() bool {
	return s.Endpoint != "" && !strings.EqualFold(strings.TrimSpace(s.Enabled), "false")
}

// sampler uses a parent-based ratio when SampleRatio is in [0,1] and samples
// everything otherwise.
func (s Settings) sampler() sdktrace.Sampler {
	ratio, err := strconv.ParseFloat(strings.TrimSpace(s.SampleRatio), 64)
	if err != nil || ratio < 0 || ratio > 1 {
		return sdktrace.AlwaysSample()
	}
	return sdktrace.ParentBased(sdktrace.TraceIDRatioBased(ratio))
}

// Setup registers a global tracer provider for serviceName and returns its
// shutdown func. The returned func is never nil.
func Setup(ctx context.Context, serviceName string) (func(context.Context) error, error) {
	noop := func(context.Context) error { return nil }

	var settings Settings
	if err := env.Parse(&settings); err != nil {
		return noop, fmt.Errorf("parse otel env: %w", err)
	}
	if !settings.active() {
		return noop, nil
	}

	exporter, err := otlptracehttp.New(ctx, otlptracehttp.WithEndpointURL(settings.Endpoint))
	if err != nil {
		return noop, fmt.Errorf("otlp exporter: %w", err)
	}
	res, err := resource.New(ctx, resource.WithAttributes(
		semconv.ServiceName(serviceName),
		semconv.ServiceNamespace("attendmark"),
	))
	if err != nil {
		return noop, fmt.Errorf("otel resource: %w", err)
	}

	provider := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(res),
		sdktrace.WithSampler(settings.sampler()),
	)
	otel.SetTracerProvider(provider)
	otel.SetTextMapPropagator(propagation.TraceContext{})
	return provider.Shutdown, nil
}
