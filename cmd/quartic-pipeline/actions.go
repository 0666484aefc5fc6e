package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/quartictech/quartic/pkg/cmd"
	"github.com/quartictech/quartic/pkg/engine"
	"github.com/quartictech/quartic/pkg/eventbus"
	"github.com/quartictech/quartic/pkg/graph"
	"github.com/urfave/cli/v3"
)

var errFollowWithoutBus = errors.New("--follow requires --event-bus gochannel or kafka")

// followTimeout bounds the wait for the last event of a followed run.
const followTimeout = 10 * time.Second

type action func(ctx context.Context, command *cli.Command, s *session) error

// withSession loads settings and opens a session around fn.
func withSession(fn action) cli.ActionFunc {
	return func(ctx context.Context, command *cli.Command) error {
		settings, err := loadSettings(command)
		if err != nil {
			return err
		}

		s, err := openSession(ctx, settings)
		if err != nil {
			return err
		}
		defer s.Close(ctx)

		return fn(ctx, command, s)
	}
}

func runAction(ctx context.Context, command *cli.Command, s *session) error {
	opts := engine.RunOptions{
		Namespace:        s.settings.Namespace,
		CheckRawDatasets: s.settings.CheckRawDatasets,
	}

	var follower *eventbus.Follower

	if command.Bool("follow") {
		if _, ok := s.eventBus.(eventbus.Nop); ok {
			return errFollowWithoutBus
		}

		var err error

		follower, err = eventbus.Follow(ctx, s.eventBus, command.Root().Writer, s.logger)
		if err != nil {
			return err
		}
	}

	runOnce := func(ctx context.Context) error {
		run, err := s.engine.Run(ctx, s.nodes, opts)

		if follower != nil {
			waitCtx, cancel := context.WithTimeout(ctx, followTimeout)
			if waitErr := follower.Wait(waitCtx, run.ID); waitErr != nil {
				s.logger.WarnContext(ctx, "Run events did not arrive", "run_id", run.ID, "error", waitErr)
			}
			cancel()
		}

		if err != nil {
			return err
		}

		s.logger.InfoContext(ctx, "Pipeline run finished",
			"run_id", run.ID,
			"executed", len(run.Executed),
			"skipped", len(run.Skipped),
		)

		return nil
	}

	expr := command.String("schedule")
	if expr == "" {
		return runOnce(ctx)
	}

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	return cmd.Repeat(ctx, expr, s.logger, runOnce)
}

func graphvizAction(_ context.Context, _ *cli.Command, s *session) error {
	g, err := s.graph()
	if err != nil {
		return err
	}

	return writeOutput(s.settings.Output, func(w io.Writer) error {
		return g.WriteDOT(w, s.logger)
	})
}

func jsonAction(_ context.Context, _ *cli.Command, s *session) error {
	g, err := s.graph()
	if err != nil {
		return err
	}

	return writeOutput(s.settings.Output, g.WriteJSON)
}

func explainAction(ctx context.Context, command *cli.Command, s *session) error {
	g, err := s.graph()
	if err != nil {
		return err
	}

	schedule, err := graph.NewSchedule(g)
	if err != nil {
		return err
	}

	if s.settings.CheckRawDatasets {
		if err := s.engine.CheckRawDatasets(ctx, schedule.Raw); err != nil {
			return err
		}
	}

	done, err := s.checkpoints.Load(ctx)
	if err != nil {
		return fmt.Errorf("failed to load checkpoint: %w", err)
	}

	return engine.Explain(command.Root().Writer, schedule, s.settings.Namespace, done)
}

func writeOutput(path string, write func(w io.Writer) error) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", path, err)
	}

	if err := write(f); err != nil {
		_ = f.Close()

		return err
	}

	return f.Close()
}
