// Package otel wires OpenTelemetry tracing for moodring processes.
package otel

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"strings"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
	"go.opentelemetry.io/otel/trace"
)

// InstrumentationPrefix namespaces tracer names created through Tracer.
const InstrumentationPrefix = "github.com/louisbranch/moodring/"

// Setup initialises OpenTelemetry tracing for the given service.
//
// Tracing is opt-in: when MOODRING_OTEL_ENDPOINT is empty or
// MOODRING_OTEL_ENABLED is "false", Setup returns a no-op shutdown function
// and no global provider is registered. MOODRING_OTEL_SAMPLE_RATIO selects a
// parent-based ratio sampler; it defaults to sampling every trace.
//
// The returned shutdown function flushes pending spans and should be deferred
// by the caller.
func Setup(ctx context.Context, serviceName string) (shutdown func(context.Context) error, err error) {
	noop := func(context.Context) error { return nil }

	if strings.EqualFold(os.Getenv("MOODRING_OTEL_ENABLED"), "false") {
		return noop, nil
	}

	endpoint := os.Getenv("MOODRING_OTEL_ENDPOINT")
	if endpoint == "" {
		return noop, nil
	}

	sampler, err := samplerFromEnv(os.Getenv("MOODRING_OTEL_SAMPLE_RATIO"))
	if err != nil {
		return noop, err
	}

	exporter, err := otlptracehttp.New(ctx,
		otlptracehttp.WithEndpointURL(endpoint),
	)
	if err != nil {
		return noop, err
	}

	res, err := resource.New(ctx,
		resource.WithAttributes(
			semconv.ServiceName(serviceName),
		),
	)
	if err != nil {
		return noop, err
	}

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(res),
		sdktrace.WithSampler(sampler),
	)

	otel.SetTracerProvider(tp)
	otel.SetTextMapPropagator(propagation.TraceContext{})

	return tp.Shutdown, nil
}

// Tracer returns a tracer from the global provider. Until Setup registers a
// provider this is the OpenTelemetry no-op tracer.
func Tracer(component string) trace.Tracer {
	return otel.Tracer(InstrumentationPrefix + strings.TrimSpace(component))
}

func samplerFromEnv(raw string) (sdktrace.Sampler, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return sdktrace.AlwaysSample(), nil
	}
	ratio, err := strconv.ParseFloat(raw, 64)
	if err != nil || ratio < 0 || ratio > 1 {
		return nil, fmt.Errorf("invalid MOODRING_OTEL_SAMPLE_RATIO %q", raw)
	}
	return sdktrace.ParentBased(sdktrace.TraceIDRatioBased(ratio)), nil
}
