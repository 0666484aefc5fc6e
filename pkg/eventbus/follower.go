package eventbus

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sync"

	"github.com/fatih/color"
	"github.com/quartictech/quartic/pkg/events"
)

// Follower prints every run event delivered by a subscriber, one line per event, and
// lets callers wait for a run to finish.
type Follower struct {
	mu       sync.Mutex
	w        io.Writer
	logger   *slog.Logger
	finished chan string
}

// Follow registers a handler for every event type on bus and starts the subscription.
// Handlers must be registered before any event is published.
func Follow(ctx context.Context, bus EventSubscriber, w io.Writer, logger *slog.Logger) (*Follower, error) {
	f := &Follower{
		w:        w,
		logger:   logger,
		finished: make(chan string, 16),
	}

	for _, eventType := range events.Types() {
		if err := bus.Handle(eventType, f.handle); err != nil {
			return nil, fmt.Errorf("failed to handle %s events: %w", eventType, err)
		}
	}

	if err := bus.Subscribe(ctx); err != nil {
		return nil, fmt.Errorf("failed to subscribe to run events: %w", err)
	}

	return f, nil
}

// Wait blocks until the completed or failed event of runID has been printed.
func (f *Follower) Wait(ctx context.Context, runID string) error {
	for {
		select {
		case id := <-f.finished:
			if id == runID {
				return nil
			}
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

func (f *Follower) handle(_ context.Context, event any) error {
	line := describe(event)

	f.mu.Lock()
	_, err := fmt.Fprintln(f.w, line)
	f.mu.Unlock()

	// A failed write is not redelivered.
	if err != nil {
		f.logger.Error("Failed to print run event", "error", err)
	}

	switch e := event.(type) {
	case *events.RunCompleted:
		f.finish(e.RunID)
	case *events.RunFailed:
		f.finish(e.RunID)
	}

	return nil
}

func (f *Follower) finish(runID string) {
	select {
	case f.finished <- runID:
	default:
		f.logger.Warn("Dropped run completion notice", "run_id", runID)
	}
}

func describe(event any) string {
	started := color.New(color.FgCyan)
	ok := color.New(color.FgGreen)
	skipped := color.New(color.FgYellow)
	failed := color.New(color.FgRed, color.Bold)

	switch e := event.(type) {
	case *events.RunStarted:
		return started.Sprintf("run %s started in %s: %d steps", e.RunID, e.Namespace, e.Steps)
	case *events.RunCompleted:
		return ok.Sprintf("run %s completed: %d executed, %d skipped in %s", e.RunID, e.Executed, e.Skipped, e.Duration)
	case *events.RunFailed:
		return failed.Sprintf("run %s failed after %s: %s", e.RunID, e.Duration, e.Error)
	case *events.StepStarted:
		return started.Sprintf("  [%s] started -> %s", e.StepName, e.Output)
	case *events.StepCompleted:
		return ok.Sprintf("  [%s] wrote %s in %s", e.StepName, e.Output, e.Duration)
	case *events.StepSkipped:
		return skipped.Sprintf("  [%s] skipped, %s is checkpointed", e.StepName, e.Output)
	case *events.StepFailed:
		return failed.Sprintf("  [%s] failed: %s", e.StepName, e.Error)
	default:
		return fmt.Sprintf("%v", event)
	}
}
