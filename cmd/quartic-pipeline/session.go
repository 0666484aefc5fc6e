package main

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/quartictech/quartic/pkg/checkpoint"
	"github.com/quartictech/quartic/pkg/cmd"
	"github.com/quartictech/quartic/pkg/engine"
	"github.com/quartictech/quartic/pkg/eventbus"
	"github.com/quartictech/quartic/pkg/graph"
	"github.com/quartictech/quartic/pkg/log"
	"github.com/quartictech/quartic/pkg/pipeline"
)

// session holds everything one pipeline command works with.
type session struct {
	settings    *settings
	logger      *slog.Logger
	nodes       []*pipeline.Node
	checkpoints checkpoint.Store
	eventBus    eventbus.EventBus
	engine      *engine.Engine
	shutdown    cmd.ShutdownFunc
}

func openSession(ctx context.Context, s *settings) (*session, error) {
	log.Setup(s.LogLevel)

	logger := log.WithModule("quartic-pipeline").With("namespace", s.Namespace)

	l, err := cmd.NewLoader(logger, s.PluginsPath)
	if err != nil {
		return nil, err
	}

	nodes, err := l.Load(s.Modules...)
	if err != nil {
		return nil, err
	}

	st, err := cmd.NewStore(s.StoreURL, s.StoreToken)
	if err != nil {
		return nil, err
	}

	tracer, shutdown, err := cmd.NewTracer(ctx, s.Tracing)
	if err != nil {
		return nil, err
	}

	checkpoints, err := checkpoint.Open(ctx, logger, s.checkpointLocation(), s.Namespace)
	if err != nil {
		_ = shutdown(ctx)

		return nil, err
	}

	eventBus, err := cmd.NewEventBus(s.EventBus, s.KafkaBrokers, logger)
	if err != nil {
		_ = checkpoints.Close()
		_ = shutdown(ctx)

		return nil, err
	}

	return &session{
		settings:    s,
		logger:      logger,
		nodes:       nodes,
		checkpoints: checkpoints,
		eventBus:    eventBus,
		engine:      engine.New(st, checkpoints, eventBus, tracer, logger),
		shutdown:    shutdown,
	}, nil
}

// Close releases the session. Pending spans are flushed even when ctx was cancelled.
func (s *session) Close(ctx context.Context) {
	if err := s.eventBus.Close(); err != nil {
		s.logger.Error("Failed to close event bus", "error", err)
	}

	if err := s.checkpoints.Close(); err != nil {
		s.logger.Error("Failed to close checkpoint store", "error", err)
	}

	if err := s.shutdown(context.WithoutCancel(ctx)); err != nil {
		s.logger.Error("Failed to shutdown tracer provider", "error", err)
	}
}

// graph builds and validates the pipeline graph in the session namespace.
func (s *session) graph() (*graph.Graph, error) {
	g, err := graph.Build(s.nodes, s.settings.Namespace)
	if err != nil {
		return nil, err
	}

	if err := graph.Validate(g); err != nil {
		return nil, fmt.Errorf("invalid pipeline: %w", err)
	}

	return g, nil
}
