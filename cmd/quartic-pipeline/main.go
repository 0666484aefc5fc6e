package main

import (
	"context"
	"os"

	log "github.com/sirupsen/logrus"
	"github.com/urfave/cli/v3"
)

func newCommand() *cli.Command {
	return &cli.Command{
		Name:                  "quartic-pipeline",
		Usage:                 "Validate, describe and run data pipelines",
		ArgsUsage:             "MODULE...",
		EnableShellCompletion: true,
		Commands: []*cli.Command{
			{
				Name:      "run",
				Aliases:   []string{"r"},
				Usage:     "Execute the pipeline, resuming from the checkpoint",
				ArgsUsage: "MODULE...",
				Flags: append(pipelineFlags(""),
					&cli.StringFlag{
						Name:    "schedule",
						Usage:   "Repeat the run on a cron schedule until interrupted",
						Sources: cli.EnvVars("QUARTIC_SCHEDULE"),
					},
					&cli.BoolFlag{
						Name:    "follow",
						Usage:   "Print run events received back from the event bus",
						Sources: cli.EnvVars("QUARTIC_FOLLOW"),
					},
				),
				Action: withSession(runAction),
			},
			{
				Name:      "graphviz",
				Usage:     "Write the dataset graph in DOT format",
				ArgsUsage: "MODULE...",
				Flags:     pipelineFlags("graph.dot"),
				Action:    withSession(graphvizAction),
			},
			{
				Name:      "json",
				Usage:     "Write the dataset graph as JSON",
				ArgsUsage: "MODULE...",
				Flags:     pipelineFlags("graph.json"),
				Action:    withSession(jsonAction),
			},
			{
				Name:      "explain",
				Usage:     "Print what a run would do without executing anything",
				ArgsUsage: "MODULE...",
				Flags:     pipelineFlags(""),
				Action:    withSession(explainAction),
			},
		},
	}
}

func main() {
	if err := newCommand().Run(context.Background(), os.Args); err != nil {
		log.Fatal(err)
	}
}
