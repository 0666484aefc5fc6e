package cmd

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/robfig/cron/v3"
)

// Repeat calls run on the standard cron schedule expr until ctx is done. A call still in
// progress when the next one is due causes that one to be skipped.
func Repeat(ctx context.Context, expr string, logger *slog.Logger, run func(ctx context.Context) error) error {
	if _, err := cron.ParseStandard(expr); err != nil {
		return fmt.Errorf("invalid cron expression: %w", err)
	}

	logger = logger.With("module", "schedule", "cron", expr)
	cronLogger := &cronLogger{logger: logger}

	c := cron.New(cron.WithLogger(cronLogger), cron.WithChain(
		cron.SkipIfStillRunning(cronLogger),
		cron.Recover(cronLogger),
	))

	id, err := c.AddFunc(expr, func() {
		logger.InfoContext(ctx, "Cron job triggered")

		if err := run(ctx); err != nil {
			logger.ErrorContext(ctx, "Scheduled run failed", "error", err)
		}
	})
	if err != nil {
		return fmt.Errorf("failed to add cron job: %w", err)
	}

	logger.InfoContext(ctx, "Added cron job", "id", id)

	c.Start()
	<-ctx.Done()

	logger.Info("Stopping schedule")
	<-c.Stop().Done()

	return nil
}

// cronLogger adapts slog to cron.Logger.
type cronLogger struct {
	logger *slog.Logger
}

func (l *cronLogger) Info(msg string, keysAndValues ...any) {
	l.logger.Debug(msg, keysAndValues...)
}

func (l *cronLogger) Error(err error, msg string, keysAndValues ...any) {
	l.logger.Error(msg, append(keysAndValues, "error", err)...)
}
