package cmd

import (
	"context"
	"fmt"

	"github.com/quartictech/quartic/pkg/config"
	"github.com/quartictech/quartic/pkg/otelhelper"
	"go.opentelemetry.io/otel/trace"
)

// ShutdownFunc flushes and stops a tracer.
type ShutdownFunc func(ctx context.Context) error

// NewTracer exports spans over OTLP/HTTP when tracing is enabled and records nothing otherwise.
// The returned shutdown flushes pending spans and must be called before the process exits.
//
// nolint:ireturn
func NewTracer(ctx context.Context, cfg config.Tracing) (trace.Tracer, ShutdownFunc, error) {
	if !cfg.Enabled {
		return otelhelper.NewNoopTracer(), func(context.Context) error { return nil }, nil
	}

	provider, err := otelhelper.InitTracer(ctx, cfg.ServiceName)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to initialize tracer: %w", err)
	}

	return provider.Tracer(cfg.ServiceName), provider.Shutdown, nil
}
