// Package engine runs validated pipelines step by step against the dataset store, resuming
// from a checkpoint of already materialised outputs.
package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/quartictech/quartic/pkg/checkpoint"
	"github.com/quartictech/quartic/pkg/dataset"
	"github.com/quartictech/quartic/pkg/eventbus"
	"github.com/quartictech/quartic/pkg/events"
	"github.com/quartictech/quartic/pkg/graph"
	"github.com/quartictech/quartic/pkg/log"
	"github.com/quartictech/quartic/pkg/otelhelper"
	"github.com/quartictech/quartic/pkg/pipeline"
	"github.com/quartictech/quartic/pkg/store"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// RunOptions configure one call to Run.
type RunOptions struct {
	Namespace        string
	CheckRawDatasets bool
}

// Engine executes steps serially. Run and Execute on one engine never overlap.
type Engine struct {
	mu          sync.Mutex
	store       *store.Store
	checkpoints checkpoint.Store
	eventBus    eventbus.EventPublisher
	tracer      trace.Tracer
	logger      *slog.Logger
}

func New(
	st *store.Store,
	checkpoints checkpoint.Store,
	eventBus eventbus.EventPublisher,
	tracer trace.Tracer,
	logger *slog.Logger,
) *Engine {
	if checkpoints == nil {
		checkpoints = checkpoint.NewMemory()
	}

	if eventBus == nil {
		eventBus = eventbus.Nop{}
	}

	if tracer == nil {
		tracer = otelhelper.NewNoopTracer()
	}

	return &Engine{
		store:       st,
		checkpoints: checkpoints,
		eventBus:    eventBus,
		tracer:      tracer,
		logger:      logger.With("module", "engine"),
	}
}

// Run validates, schedules and executes nodes in namespace. Steps whose output is already in
// the checkpoint are skipped; the checkpoint is saved after every executed step. The returned
// run is never nil and reports how far execution got.
func (e *Engine) Run(ctx context.Context, nodes []*pipeline.Node, opts RunOptions) (*Run, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	run := newRun(opts.Namespace)
	logger := e.logger.With("run_id", run.ID, "namespace", run.Namespace)
	ctx = log.WithContext(ctx, logger)

	ctx, span := otelhelper.StartSpan(ctx, e.tracer, "pipeline.run",
		attribute.String(otelhelper.RunIDKey, run.ID),
		attribute.String(otelhelper.NamespaceKey, run.Namespace),
	)
	defer span.End()

	logger.InfoContext(ctx, "Starting pipeline run", "steps", len(nodes))

	err := e.run(ctx, run, nodes, opts)
	if err != nil {
		run.fail(err)
		otelhelper.SetError(span, err,
			attribute.String(otelhelper.RunIDKey, run.ID),
			attribute.String(otelhelper.NamespaceKey, run.Namespace),
		)
		logger.ErrorContext(ctx, "Pipeline run failed", "error", err)

		e.publish(ctx, run.ID, events.RunFailed{
			BaseEvent: events.NewBaseEvent(events.RunFailedEvent, run.ID, run.Namespace),
			Error:     err.Error(),
			Duration:  time.Since(run.StartedAt),
		})

		return run, err
	}

	logger.InfoContext(ctx, "Pipeline run completed", "executed", len(run.Executed), "skipped", len(run.Skipped))

	e.publish(ctx, run.ID, events.RunCompleted{
		BaseEvent: events.NewBaseEvent(events.RunCompletedEvent, run.ID, run.Namespace),
		Executed:  len(run.Executed),
		Skipped:   len(run.Skipped),
		Duration:  time.Since(run.StartedAt),
	})

	return run, nil
}

func (e *Engine) run(ctx context.Context, run *Run, nodes []*pipeline.Node, opts RunOptions) error {
	logger := log.FromContext(ctx)

	g, err := graph.Build(nodes, run.Namespace)
	if err != nil {
		return err
	}

	err = graph.Validate(g)
	if err != nil {
		return err
	}

	if err := run.transition(Validated); err != nil {
		return err
	}

	done, err := e.checkpoints.Load(ctx)
	if err != nil {
		return fmt.Errorf("failed to load checkpoint: %w", err)
	}

	done = done.Qualified(run.Namespace)

	schedule, err := graph.NewSchedule(g)
	if err != nil {
		return err
	}

	run.Schedule = schedule

	if err := run.transition(Scheduled); err != nil {
		return err
	}

	if opts.CheckRawDatasets {
		if err := e.CheckRawDatasets(ctx, schedule.Raw); err != nil {
			return err
		}
	}

	e.publish(ctx, run.ID, events.RunStarted{
		BaseEvent: events.NewBaseEvent(events.RunStartedEvent, run.ID, run.Namespace),
		Steps:     len(schedule.Steps),
	})

	if err := run.transition(Executing); err != nil {
		return err
	}

	for i, node := range schedule.Steps {
		output := schedule.Derived[i]

		if done.Has(output) {
			logger.InfoContext(ctx, "Skipping step", "step_id", node.ID(), "step", node.Name(), "output", output.String())
			run.Skipped = append(run.Skipped, output)

			e.publish(ctx, run.ID, events.StepSkipped{
				BaseEvent: events.NewBaseEvent(events.StepSkippedEvent, run.ID, run.Namespace),
				StepRef:   stepRef(node, output),
			})

			continue
		}

		if err := e.executeStep(ctx, run, node, output); err != nil {
			return err
		}

		run.Executed = append(run.Executed, output)
		done.Add(output)

		if err := e.checkpoints.Save(ctx, done); err != nil {
			return fmt.Errorf("failed to save checkpoint after step %s: %w", node.Name(), err)
		}
	}

	return run.transition(Completed)
}

// Execute runs the single step whose id is stepID, without checkpoint interaction.
func (e *Engine) Execute(ctx context.Context, nodes []*pipeline.Node, namespace, stepID string) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	node, err := Match(nodes, stepID)
	if err != nil {
		return err
	}

	run := newRun(namespace)
	logger := e.logger.With("run_id", run.ID, "namespace", namespace)
	ctx = log.WithContext(ctx, logger)

	return e.executeStep(ctx, run, node, node.Output().FullyQualified(namespace))
}

// Match finds the only node with id stepID.
func Match(nodes []*pipeline.Node, stepID string) (*pipeline.Node, error) {
	var matches []*pipeline.Node

	for _, n := range nodes {
		if n.ID() == stepID {
			matches = append(matches, n)
		}
	}

	switch len(matches) {
	case 0:
		available := make([]string, len(nodes))
		for i, n := range nodes {
			available[i] = n.ID()
		}

		return nil, &NoMatchError{StepID: stepID, Available: available}
	case 1:
		return matches[0], nil
	default:
		return nil, &MultipleMatchError{StepID: stepID, Matches: pipeline.Descriptors(matches)}
	}
}

func (e *Engine) executeStep(ctx context.Context, run *Run, node *pipeline.Node, output dataset.Coordinate) error {
	logger := log.FromContext(ctx).With("step_id", node.ID(), "step", node.Name(), "output", output.String())
	ref := stepRef(node, output)

	ctx, span := otelhelper.StartSpan(ctx, e.tracer, "pipeline.step",
		attribute.String(otelhelper.RunIDKey, run.ID),
		attribute.String(otelhelper.StepIDKey, node.ID()),
		attribute.String(otelhelper.StepNameKey, node.Name()),
		attribute.String(otelhelper.StepFileKey, node.File()),
		attribute.String(otelhelper.StepOutputKey, output.String()),
		attribute.String(otelhelper.ExecutorKey, fmt.Sprint(node.Executor().Describe()["type"])),
	)
	defer span.End()

	logger.InfoContext(ctx, "Executing step")

	e.publish(ctx, run.ID, events.StepStarted{
		BaseEvent: events.NewBaseEvent(events.StepStartedEvent, run.ID, run.Namespace),
		StepRef:   ref,
	})

	started := time.Now()

	err := node.Execute(ctx, &pipeline.ExecutionContext{Store: e.store, Namespace: run.Namespace, Logger: logger})
	if err != nil {
		var codeErr *pipeline.CodeError
		if errors.As(err, &codeErr) {
			err = NewUserCodeError(node, codeErr)
		} else {
			err = fmt.Errorf("failed to execute step %s: %w", node.Name(), err)
		}

		otelhelper.SetError(span, err,
			attribute.String(otelhelper.StepIDKey, node.ID()),
			attribute.String(otelhelper.StepNameKey, node.Name()),
		)
		logger.ErrorContext(ctx, "Step failed", "error", err)

		e.publish(ctx, run.ID, events.StepFailed{
			BaseEvent: events.NewBaseEvent(events.StepFailedEvent, run.ID, run.Namespace),
			StepRef:   ref,
			Error:     err.Error(),
			Duration:  time.Since(started),
		})

		return err
	}

	logger.InfoContext(ctx, "Step completed", "duration", time.Since(started))

	e.publish(ctx, run.ID, events.StepCompleted{
		BaseEvent: events.NewBaseEvent(events.StepCompletedEvent, run.ID, run.Namespace),
		StepRef:   ref,
		Duration:  time.Since(started),
	})

	return nil
}

// CheckRawDatasets verifies that every raw dataset has data in the store and reports all
// missing ones at once.
func (e *Engine) CheckRawDatasets(ctx context.Context, raw []dataset.Coordinate) error {
	logger := log.FromContext(ctx)

	var missing []dataset.Coordinate

	for _, c := range raw {
		ds, err := e.store.Resolve(c)
		if err != nil {
			return err
		}

		ok, err := ds.DataExists(ctx)
		if err != nil {
			return fmt.Errorf("failed to check raw dataset %s: %w", c, err)
		}

		if !ok {
			logger.WarnContext(ctx, "Raw dataset missing", "dataset", c.String())
			missing = append(missing, c)
		}
	}

	if len(missing) > 0 {
		return &MissingDatasetsError{Datasets: missing}
	}

	return nil
}

func (e *Engine) publish(ctx context.Context, key string, event eventbus.Event) {
	if err := e.eventBus.Publish(ctx, key, event); err != nil {
		log.FromContext(ctx).ErrorContext(ctx, "Failed to publish event", "error", err, "event_type", event.GetType())
	}
}

func stepRef(node *pipeline.Node, output dataset.Coordinate) events.StepRef {
	return events.StepRef{StepID: node.ID(), StepName: node.Name(), Output: output.String()}
}
