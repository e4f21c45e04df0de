package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/urfave/cli/v2"

	"newspipe/pkg/config"
	"newspipe/pkg/pipeline"
	"newspipe/pkg/version"
)

const defaultConfigPath = "configs/newspipe.yaml"

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newApp().RunContext(ctx, os.Args); err != nil {
		fmt.Fprintf(os.Stderr, "CRITICAL ERROR: %v\n", err)
		os.Exit(1)
	}
}

func newApp() *cli.App {
	return &cli.App{
		Name:    "newspipe",
		Usage:   "Collect data-center project news and publish it as GeoJSON",
		Version: version.Version,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Value:   defaultConfigPath,
				Usage:   "YAML configuration file, created with defaults if missing",
				EnvVars: []string{"NEWSPIPE_CONFIG"},
			},
			&cli.StringFlag{
				Name:  "db",
				Usage: "SQLite database path (overrides db.path)",
			},
			&cli.BoolFlag{
				Name:  "dry-run",
				Usage: "Run stages without writing to the database or output files",
			},
			&cli.DurationFlag{
				Name:  "timeout",
				Usage: "Soft time budget per stage (overrides pipeline.stage_timeout, 0 disables)",
			},
			&cli.StringSliceFlag{
				Name:  "env-file",
				Value: cli.NewStringSlice(".env"),
				Usage: "KEY=VALUE files loaded into the environment before the config",
			},
		},
		Commands: []*cli.Command{
			stageCommand(pipeline.StageIngest, "Search news sources and store raw articles", ingestFlags()...),
			stageCommand(pipeline.StageDedupe, "Collapse raw articles into mentions"),
			stageCommand(pipeline.StageClassify, "Label mentions as announcement, context or noise"),
			stageCommand(pipeline.StageExtract, "Extract project cards from announcements", llmFlag()),
			stageCommand(pipeline.StageResolve, "Merge project cards into canonical projects", proximityFlag()),
			stageCommand(pipeline.StageGeocode, "Geocode pending projects", retryFailedFlag()),
			stageCommand(pipeline.StageExport, "Write the GeoJSON export", outFlag()),
			stageCommand(pipeline.StagePublish, "Upload the GeoJSON export to S3", outFlag()),
			runCommand(),
			statusCommand(),
			maintainCommand(),
			initConfigCommand(),
		},
	}
}

func initConfigCommand() *cli.Command {
	return &cli.Command{
		Name:  "init-config",
		Usage: "Generate the default config file and exit",
		Action: func(c *cli.Context) error {
			path := c.String("config")
			if err := config.GenerateDefault(path); err != nil {
				return fmt.Errorf("failed to generate config: %w", err)
			}
			fmt.Fprintf(c.App.Writer, "Config file generated: %s\n", path)
			return nil
		},
	}
}
