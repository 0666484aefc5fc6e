package main

import (
	"fmt"

	"github.com/quartictech/quartic/pkg/config"
	"github.com/urfave/cli/v3"
)

func pipelineFlags(defaultOutput string) []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:    "config",
			Aliases: []string{"c"},
			Usage:   "Path to the YAML config file",
			Value:   config.DefaultPath,
			Sources: cli.EnvVars("QUARTIC_CONFIG"),
		},
		&cli.StringFlag{
			Name:    "namespace",
			Aliases: []string{"n"},
			Usage:   "Namespace unqualified datasets resolve in",
			Sources: cli.EnvVars("QUARTIC_NAMESPACE"),
		},
		&cli.BoolFlag{
			Name:    "check-raw-datasets",
			Usage:   "Fail before doing anything when raw datasets have no data",
			Sources: cli.EnvVars("QUARTIC_CHECK_RAW_DATASETS"),
		},
		&cli.StringFlag{
			Name:  "resume-file",
			Usage: "JSON checkpoint file to resume from and update",
		},
		&cli.StringFlag{
			Name:    "checkpoint-url",
			Usage:   "Checkpoint store URL (file://, redis://, postgres://, sqlite://)",
			Sources: cli.EnvVars("QUARTIC_CHECKPOINT_URL"),
		},
		&cli.StringFlag{
			Name:    "output",
			Aliases: []string{"o"},
			Usage:   "Output file",
			Value:   defaultOutput,
		},
		&cli.StringFlag{
			Name:    "store-url",
			Usage:   "Dataset store URL (memory://, file://, http://)",
			Sources: cli.EnvVars("QUARTIC_STORE_URL"),
		},
		&cli.StringFlag{
			Name:    "store-token",
			Usage:   "Bearer token for the HTTP dataset store",
			Sources: cli.EnvVars("QUARTIC_STORE_TOKEN"),
		},
		&cli.StringFlag{
			Name:    "event-bus",
			Usage:   "Event bus for step lifecycle events (none, gochannel, kafka)",
			Sources: cli.EnvVars("QUARTIC_EVENT_BUS"),
		},
		&cli.StringFlag{
			Name:    "kafka-brokers",
			Usage:   "Comma separated Kafka brokers",
			Sources: cli.EnvVars("QUARTIC_KAFKA_BROKERS", "KAFKA_BROKERS"),
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
	}
}

// settings is the config file with command-line overrides applied.
type settings struct {
	*config.Config

	ResumeFile  string
	Output      string
	PluginsPath string
}

func loadSettings(command *cli.Command) (*settings, error) {
	cfg, err := config.LoadOrDefault(command.String("config"))
	if err != nil {
		return nil, err
	}

	override := func(flag string, target *string) {
		if command.IsSet(flag) {
			*target = command.String(flag)
		}
	}

	override("namespace", &cfg.Namespace)
	override("checkpoint-url", &cfg.CheckpointURL)
	override("store-url", &cfg.StoreURL)
	override("store-token", &cfg.StoreToken)
	override("event-bus", &cfg.EventBus)
	override("kafka-brokers", &cfg.KafkaBrokers)
	override("log-level", &cfg.LogLevel)

	if command.IsSet("check-raw-datasets") {
		cfg.CheckRawDatasets = command.Bool("check-raw-datasets")
	}

	if args := command.Args().Slice(); len(args) > 0 {
		cfg.Modules = args
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	if cfg.Namespace == "" {
		return nil, cli.Exit("--namespace is required", 1)
	}

	if len(cfg.Modules) == 0 {
		return nil, cli.Exit("at least one module is required", 1)
	}

	s := &settings{
		Config:      cfg,
		ResumeFile:  command.String("resume-file"),
		Output:      command.String("output"),
		PluginsPath: command.String("plugins-path"),
	}

	if s.ResumeFile != "" && command.IsSet("checkpoint-url") {
		return nil, cli.Exit(fmt.Sprintf("--resume-file and --checkpoint-url are mutually exclusive (got %s and %s)",
			s.ResumeFile, s.CheckpointURL), 1)
	}

	return s, nil
}

// checkpointLocation prefers the resume file over the configured checkpoint store.
func (s *settings) checkpointLocation() string {
	if s.ResumeFile != "" {
		return "file://" + s.ResumeFile
	}

	return s.CheckpointURL
}
