package main

import (
	"fmt"
	"log/slog"
	"text/tabwriter"
	"time"

	"github.com/urfave/cli/v2"

	"newspipe/pkg/db/maintenance"
	"newspipe/pkg/model"
	"newspipe/pkg/pipeline"
	"newspipe/pkg/probe"
	"newspipe/pkg/store"
)

func limitFlag() cli.Flag {
	return &cli.IntFlag{Name: "limit", Usage: "Maximum records per stage (0 means all)"}
}

func ingestFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringSliceFlag{Name: "query", Aliases: []string{"q"}, Usage: "Search query (repeatable, replaces ingest.queries)"},
		&cli.IntFlag{Name: "max-results", Usage: "Results per source and query"},
		&cli.StringSliceFlag{Name: "source", Usage: "Source to search: serpapi, perplexity, rss (repeatable)"},
		&cli.BoolFlag{Name: "fetch-text", Usage: "Download article pages and keep their text"},
	}
}

func llmFlag() cli.Flag {
	return &cli.BoolFlag{Name: "llm", Usage: "Ask the LLM to fill fields of weak extractions"}
}

func proximityFlag() cli.Flag {
	return &cli.BoolFlag{Name: "proximity", Usage: "Also merge same-company projects in one H3 cell"}
}

func retryFailedFlag() cli.Flag {
	return &cli.BoolFlag{Name: "retry-failed", Usage: "Retry projects whose geocoding failed before"}
}

func outFlag() cli.Flag {
	return &cli.StringFlag{Name: "out", Aliases: []string{"o"}, Usage: "GeoJSON output path (overrides export.path)"}
}

func stageCommand(name, usage string, flags ...cli.Flag) *cli.Command {
	return &cli.Command{
		Name:  name,
		Usage: usage,
		Flags: append([]cli.Flag{limitFlag()}, flags...),
		Action: func(c *cli.Context) error {
			return runStages(c, []string{name}, false)
		},
	}
}

func runCommand() *cli.Command {
	flags := append([]cli.Flag{limitFlag()}, ingestFlags()...)
	flags = append(flags, llmFlag(), proximityFlag(), retryFailedFlag(), outFlag())
	return &cli.Command{
		Name:  "run",
		Usage: "Run every stage in order",
		Flags: flags,
		Action: func(c *cli.Context) error {
			return runStages(c, pipeline.Stages, true)
		},
	}
}

// runStages executes the stages after preflight checks. The full run also
// performs database maintenance first.
func runStages(c *cli.Context, stages []string, full bool) error {
	a, err := setup(c)
	if err != nil {
		return err
	}
	defer a.Close()

	results := probe.Run(c.Context, pipeline.Probes(a.cfg, a.st, stages, a.opts))
	if err := probe.AnalyzeResults(results); err != nil {
		return fmt.Errorf("preflight checks failed: %w", err)
	}

	if full && !a.opts.DryRun {
		if _, err := maintenance.Run(c.Context, a.db, a.maintenanceOptions()); err != nil {
			slog.Error("Maintenance tasks failed", "error", err)
		}
	}

	var total model.StageResult
	if full {
		total, err = a.pipeline.RunAll(c.Context, a.opts)
	} else {
		total, err = a.pipeline.Run(c.Context, stages[0], a.opts)
	}
	if ferr := a.pipeline.Finish(); ferr != nil {
		slog.Warn("Failed to write metrics", "error", ferr)
	}
	slog.Info("Done", "processed", total.Processed, "skipped", total.Skipped, "failed", total.Failed, "timed_out", total.TimedOut)
	return err
}

func maintainCommand() *cli.Command {
	return &cli.Command{
		Name:  "maintain",
		Usage: "Prune expired cache entries and old run records",
		Action: func(c *cli.Context) error {
			a, err := setup(c)
			if err != nil {
				return err
			}
			defer a.Close()
			rep, err := maintenance.Run(c.Context, a.db, a.maintenanceOptions())
			fmt.Fprintf(c.App.Writer, "pruned cache=%d runs=%d\n", rep.CacheEntries, rep.Runs)
			return err
		},
	}
}

func statusCommand() *cli.Command {
	return &cli.Command{
		Name:  "status",
		Usage: "Show label counts, geocode states and recent runs",
		Flags: []cli.Flag{
			&cli.IntFlag{Name: "runs", Value: 10, Usage: "Number of recent runs to show"},
		},
		Action: func(c *cli.Context) error {
			a, err := setup(c)
			if err != nil {
				return err
			}
			defer a.Close()
			return printStatus(c, a.st, c.Int("runs"))
		},
	}
}

func printStatus(c *cli.Context, st store.Store, runs int) error {
	ctx := c.Context
	w := tabwriter.NewWriter(c.App.Writer, 0, 4, 2, ' ', 0)

	labels, err := st.CountLabels(ctx)
	if err != nil {
		return err
	}
	fmt.Fprintln(w, "LABEL\tMENTIONS")
	for _, l := range []model.Label{model.LabelAnnouncement, model.LabelContext, model.LabelNoise} {
		fmt.Fprintf(w, "%s\t%d\n", l, labels[l])
	}

	fmt.Fprintln(w, "\nGEOCODE\tPROJECTS")
	for _, s := range []string{model.StatusPending, model.StatusOK, model.StatusSkipped, model.StatusFailed} {
		ps, err := st.ListProjects(ctx, store.ProjectFilter{GeocodeStatus: s})
		if err != nil {
			return err
		}
		fmt.Fprintf(w, "%s\t%d\n", s, len(ps))
	}

	list, err := st.ListRuns(ctx, "", runs)
	if err != nil {
		return err
	}
	fmt.Fprintln(w, "\nSTARTED\tSTAGE\tPROCESSED\tSKIPPED\tFAILED\tDURATION\tNOTE")
	for _, r := range list {
		note := ""
		switch {
		case r.TimedOut:
			note = "timed out"
		case r.DryRun:
			note = "dry run"
		}
		fmt.Fprintf(w, "%s\t%s\t%d\t%d\t%d\t%s\t%s\n",
			r.StartedAt.Local().Format("2006-01-02 15:04:05"), r.Stage, r.Processed, r.Skipped, r.Failed,
			r.FinishedAt.Sub(r.StartedAt).Round(time.Millisecond), note)
	}
	return w.Flush()
}
