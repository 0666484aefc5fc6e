package otelhelper

import (
	"fmt"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// ErrorTypeKey holds the Go type of the error that failed a span.
const ErrorTypeKey = "quartic.error.type"

// SetError marks span as failed by err. attrs identify the failing run or step and are set
// on both the span and its exception event.
func SetError(span trace.Span, err error, attrs ...attribute.KeyValue) {
	attrs = append(attrs, attribute.String(ErrorTypeKey, fmt.Sprintf("%T", err)))

	span.SetAttributes(attrs...)
	span.RecordError(err, trace.WithAttributes(attrs...))
	span.SetStatus(codes.Error, err.Error())
}
