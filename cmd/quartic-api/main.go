package main

import (
	"context"
	"os"

	"github.com/quartictech/quartic/pkg/cmd"
	"github.com/quartictech/quartic/pkg/config"
	"github.com/quartictech/quartic/pkg/log"
	cli "github.com/urfave/cli/v3"
)

func main() {
	logger := log.WithModule("api")

	cmd := &cli.Command{
		Name:                  "quartic-api",
		Usage:                 "Serve step, graph and schedule descriptions of a pipeline",
		ArgsUsage:             "MODULE...",
		EnableShellCompletion: true,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Usage:   "Path to the YAML config file",
				Value:   config.DefaultPath,
				Sources: cli.EnvVars("QUARTIC_CONFIG"),
			},
			&cli.IntFlag{
				Name:    "port",
				Aliases: []string{"p"},
				Usage:   "Port to run the API server on",
				Sources: cli.EnvVars("QUARTIC_PORT", "PORT"),
			},
			&cli.StringFlag{
				Name:    "namespace",
				Aliases: []string{"n"},
				Usage:   "Namespace used when a request names none",
				Sources: cli.EnvVars("QUARTIC_NAMESPACE"),
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
				Sources: cli.EnvVars("QUARTIC_LOG_LEVEL"),
			},
		},
		Action: func(ctx context.Context, command *cli.Command) error {
			cfg, err := config.LoadOrDefault(command.String("config"))
			if err != nil {
				return err
			}

			if command.IsSet("log-level") {
				cfg.LogLevel = command.String("log-level")
			}

			if command.IsSet("namespace") {
				cfg.Namespace = command.String("namespace")
			}

			if command.IsSet("port") {
				cfg.API.Port = command.Int("port")
			}

			if args := command.Args().Slice(); len(args) > 0 {
				cfg.Modules = args
			}

			if err := cfg.Validate(); err != nil {
				return err
			}

			log.Setup(cfg.LogLevel)

			logger.InfoContext(ctx, "Initializing Quartic API")

			l, err := cmd.NewLoader(logger, command.String("plugins-path"))
			if err != nil {
				return err
			}

			nodes, err := l.Load(cfg.Modules...)
			if err != nil {
				return err
			}

			api := NewAPI(logger, nodes, cfg.Namespace)

			if err := api.Start(cfg.API.Port); err != nil {
				logger.ErrorContext(ctx, "Failed to start API server", "error", err)

				return err
			}

			return nil
		},
	}

	err := cmd.Run(context.Background(), os.Args)
	if err != nil {
		panic(err)
	}
}
