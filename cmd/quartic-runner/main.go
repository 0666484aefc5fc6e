package main

import (
	"context"
	"log/slog"
	"os"

	"github.com/quartictech/quartic/pkg/cmd"
	"github.com/quartictech/quartic/pkg/engine"
	"github.com/quartictech/quartic/pkg/log"
	"github.com/quartictech/quartic/pkg/runner"
	cli "github.com/urfave/cli/v3"
)

func newCommand() *cli.Command {
	return &cli.Command{
		Name:                  "quartic-runner",
		Usage:                 "Evaluate pipeline modules or execute a single step",
		ArgsUsage:             "MODULE...",
		EnableShellCompletion: true,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  "execute",
				Usage: "Id of the step to execute",
			},
			&cli.StringFlag{
				Name:  "evaluate",
				Usage: "Write the step descriptors of the modules to this file",
			},
			&cli.StringFlag{
				Name:    "namespace",
				Usage:   "Namespace the executed step resolves datasets in",
				Sources: cli.EnvVars("QUARTIC_NAMESPACE"),
			},
			&cli.StringFlag{
				Name:  "exception",
				Usage: "File failures are reported to",
				Value: runner.DefaultExceptionFile,
			},
			&cli.StringFlag{
				Name:    "store-url",
				Usage:   "Dataset store URL (memory://, file://, http://)",
				Value:   "memory://",
				Sources: cli.EnvVars("QUARTIC_STORE_URL"),
			},
			&cli.StringFlag{
				Name:    "store-token",
				Usage:   "Bearer token for the HTTP dataset store",
				Sources: cli.EnvVars("QUARTIC_STORE_TOKEN"),
			},
			&cli.StringFlag{
				Name:    "plugins-path",
				Usage:   "Path to the directory containing pipeline plugins",
				Value:   "./plugins",
				Sources: cli.EnvVars("QUARTIC_PLUGINS_PATH"),
			},
			&cli.StringFlag{
				Name:    "log-level",
				Usage:   "Log level (debug, info, warn, error)",
				Value:   "info",
				Sources: cli.EnvVars("QUARTIC_LOG_LEVEL"),
			},
		},
		Action: func(ctx context.Context, command *cli.Command) error {
			log.Setup(command.String("log-level"))

			logger := log.WithModule("quartic-runner")

			err := run(ctx, command, logger)
			if code := runner.Report(logger, command.String("exception"), err); code != 0 {
				return cli.Exit("", code)
			}

			return nil
		},
	}
}

func run(ctx context.Context, command *cli.Command, logger *slog.Logger) error {
	opts := runner.Options{
		Modules:   command.Args().Slice(),
		Execute:   command.String("execute"),
		Evaluate:  command.String("evaluate"),
		Namespace: command.String("namespace"),
	}

	if err := opts.Validate(); err != nil {
		return err
	}

	l, err := cmd.NewLoader(logger, command.String("plugins-path"))
	if err != nil {
		return err
	}

	st, err := cmd.NewStore(command.String("store-url"), command.String("store-token"))
	if err != nil {
		return err
	}

	return runner.New(l, engine.New(st, nil, nil, nil, logger), logger).Run(ctx, opts)
}

func main() {
	if err := newCommand().Run(context.Background(), os.Args); err != nil {
		os.Exit(1)
	}
}
