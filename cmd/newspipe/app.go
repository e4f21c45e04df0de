package main

import (
	"fmt"
	"log/slog"

	"github.com/urfave/cli/v2"

	"newspipe/pkg/cache"
	"newspipe/pkg/config"
	"newspipe/pkg/db"
	"newspipe/pkg/db/maintenance"
	"newspipe/pkg/logging"
	"newspipe/pkg/pipeline"
	"newspipe/pkg/request"
	"newspipe/pkg/store"
	"newspipe/pkg/tracker"
	"newspipe/pkg/version"
)

// app holds everything a command needs for one invocation.
type app struct {
	cfg      *config.Config
	db       *db.DB
	st       store.Store
	pipeline *pipeline.Pipeline
	opts     pipeline.Options

	closeLogs func()
}

// setup loads env and config, initializes logging and opens the database.
func setup(c *cli.Context) (*app, error) {
	if err := config.LoadEnv(c.StringSlice("env-file")...); err != nil {
		return nil, err
	}
	cfg, err := config.Load(c.String("config"))
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	if c.IsSet("db") {
		cfg.DB.Path = c.String("db")
	}

	closeLogs, err := logging.Init(&cfg.Log)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize logging: %w", err)
	}
	slog.Info("newspipe started", "version", version.Version, "command", c.Command.Name, "db", cfg.DB.Path)

	d, err := db.Init(cfg.DB.Path)
	if err != nil {
		closeLogs()
		return nil, fmt.Errorf("failed to initialize database: %w", err)
	}
	st := store.NewSQLiteStore(d)

	opts := optionsFrom(c, cfg)

	// Dry runs still read cached responses but never write new ones.
	var cc cache.Cacher = st
	if opts.DryRun {
		cc = cache.NewOverlay(st)
	}
	rc := request.New(cc, tracker.New(), request.Options{
		Timeout:   cfg.Request.Timeout.Std(),
		Retries:   cfg.Request.Retries,
		BaseDelay: cfg.Request.Backoff.BaseDelay.Std(),
		MaxDelay:  cfg.Request.Backoff.MaxDelay.Std(),
		MinGap:    cfg.Request.MinGap.Std(),
		UserAgent: "newspipe/" + version.Version,
	})

	return &app{
		cfg:       cfg,
		db:        d,
		st:        st,
		pipeline:  pipeline.New(cfg, st, rc),
		opts:      opts,
		closeLogs: closeLogs,
	}, nil
}

// Close releases the database and log files.
func (a *app) Close() {
	if err := a.st.Close(); err != nil {
		slog.Error("Failed to close database", "error", err)
	}
	a.closeLogs()
}

func (a *app) maintenanceOptions() maintenance.Options {
	return maintenance.Options{
		CacheTTL:     a.cfg.Geocode.CacheTTL.Std(),
		RunRetention: a.cfg.Pipeline.RunRetention.Std(),
	}
}

// optionsFrom applies command-line flags on top of the configured defaults.
// Only flags the user actually set override the configuration.
func optionsFrom(c *cli.Context, cfg *config.Config) pipeline.Options {
	o := pipeline.DefaultOptions(cfg)
	o.DryRun = c.Bool("dry-run")
	if c.IsSet("timeout") {
		o.Timeout = c.Duration("timeout")
	}
	if c.IsSet("limit") {
		o.Limit = c.Int("limit")
	}
	if c.IsSet("query") {
		o.Queries = c.StringSlice("query")
	}
	if c.IsSet("max-results") {
		o.MaxResults = c.Int("max-results")
	}
	if c.IsSet("source") {
		o.Sources = c.StringSlice("source")
	}
	if c.IsSet("fetch-text") {
		o.FetchText = c.Bool("fetch-text")
	}
	if c.IsSet("llm") {
		o.UseLLM = c.Bool("llm")
	}
	if c.IsSet("proximity") {
		o.Proximity = c.Bool("proximity")
	}
	if c.IsSet("retry-failed") {
		o.RetryFailed = c.Bool("retry-failed")
	}
	if c.IsSet("out") {
		o.OutPath = c.String("out")
	}
	return o
}
