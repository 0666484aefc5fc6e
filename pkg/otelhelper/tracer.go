// Package otelhelper provides distributed tracing for pipeline runs.
package otelhelper

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	otlptracehttp "go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"
)

const (
	// Common attribute keys.
	RunIDKey       = "quartic.run.id"
	NamespaceKey   = "quartic.namespace"
	StepIDKey      = "quartic.step.id"
	StepNameKey    = "quartic.step.name"
	StepFileKey    = "quartic.step.file"
	StepOutputKey  = "quartic.step.output"
	ExecutorKey    = "quartic.step.executor"
	StepsTotalKey  = "quartic.run.steps"
	SkippedStepKey = "quartic.step.skipped"
)

// NewNoopTracer returns a tracer that records nothing, for runs with tracing disabled.
//
// nolint:ireturn // Returning interface is intentional for OpenTelemetry tracing
func NewNoopTracer() trace.Tracer {
	return noop.NewTracerProvider().Tracer("quartic")
}

// nolint:ireturn,spancheck // Returning interface is intentional for OpenTelemetry tracing
func StartSpan(ctx context.Context, tracer trace.Tracer, name string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	return tracer.Start(ctx, name, trace.WithAttributes(attrs...))
}

// InitTracer installs a batching OTLP/HTTP tracer provider as the global provider. Callers
// must Shutdown the provider before exiting or buffered spans are lost.
func InitTracer(ctx context.Context, serviceName string) (*sdktrace.TracerProvider, error) {
	r, err := resource.Merge(
		resource.Default(),
		resource.NewWithAttributes(
			semconv.SchemaURL,
			semconv.ServiceName(serviceName),
		),
	)
	if err != nil {
		return nil, err
	}

	exporter, err := otlptracehttp.New(ctx)
	if err != nil {
		return nil, err
	}

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(r),
		sdktrace.WithSampler(sdktrace.AlwaysSample()),
	)

	otel.SetTracerProvider(tp)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(propagation.TraceContext{}))

	return tp, nil
}
