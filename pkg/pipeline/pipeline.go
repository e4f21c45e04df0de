// Package pipeline runs the stages in order against one store. Every stage
// gets its own cooperative deadline and leaves a run record behind.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"newspipe/pkg/config"
	"newspipe/pkg/deadline"
	"newspipe/pkg/geo"
	"newspipe/pkg/geocode"
	"newspipe/pkg/ingest"
	"newspipe/pkg/llm"
	"newspipe/pkg/logging"
	"newspipe/pkg/model"
	"newspipe/pkg/publish"
	"newspipe/pkg/request"
	"newspipe/pkg/store"
	"newspipe/pkg/tracker"
)

// Stage names, in execution order.
const (
	StageIngest   = "ingest"
	StageDedupe   = "dedupe"
	StageClassify = "classify"
	StageExtract  = "extract"
	StageResolve  = "resolve"
	StageGeocode  = "geocode"
	StageExport   = "export"
	StagePublish  = "publish"
)

// Stages lists every stage in the order Run executes them.
var Stages = []string{
	StageIngest, StageDedupe, StageClassify, StageExtract,
	StageResolve, StageGeocode, StageExport, StagePublish,
}

// ErrUnknownStage is returned for a stage name not in Stages.
var ErrUnknownStage = errors.New("unknown stage")

// Options carries the per-invocation settings, mostly from CLI flags.
type Options struct {
	DryRun      bool
	Timeout     time.Duration // per stage; <= 0 means no limit
	Limit       int
	Queries     []string
	Sources     []string
	MaxResults  int
	FetchText   bool
	UseLLM      bool
	Proximity   bool
	OutPath     string
	RetryFailed bool
}

// DefaultOptions derives options from the configuration.
func DefaultOptions(cfg *config.Config) Options {
	return Options{
		Timeout:    cfg.Pipeline.StageTimeout.Std(),
		Limit:      cfg.Pipeline.Limit,
		Queries:    cfg.Ingest.Queries,
		Sources:    cfg.Ingest.Sources,
		MaxResults: cfg.Ingest.MaxResults,
		FetchText:  cfg.Ingest.FetchText,
		UseLLM:     cfg.Extract.UseLLM,
		Proximity:  cfg.Resolve.Proximity,
		OutPath:    cfg.Export.Path,
	}
}

// StageFunc is one stage body, bounded by dl.
type StageFunc func(ctx context.Context, dl *deadline.Deadline) (model.StageResult, error)

// Pipeline wires configured stage components to a store.
type Pipeline struct {
	cfg     *config.Config
	st      store.Store
	rc      *request.Client
	tracker *tracker.Tracker
	now     func() time.Time

	// Components built lazily from cfg unless injected.
	sources   []ingest.Source
	geocoder  *geocode.Geocoder
	llm       llm.Provider
	publisher *publish.Publisher
}

// Option customizes a Pipeline.
type Option func(*Pipeline)

// WithSources replaces the configured ingest sources.
func WithSources(src ...ingest.Source) Option {
	return func(p *Pipeline) { p.sources = src }
}

// WithGeocoder replaces the configured geocoder.
func WithGeocoder(g *geocode.Geocoder) Option {
	return func(p *Pipeline) { p.geocoder = g }
}

// WithLLM replaces the configured extraction assistant.
func WithLLM(l llm.Provider) Option {
	return func(p *Pipeline) { p.llm = l }
}

// WithPublisher replaces the configured S3 publisher.
func WithPublisher(pub *publish.Publisher) Option {
	return func(p *Pipeline) { p.publisher = pub }
}

// WithClock replaces the wall clock used for run records.
func WithClock(now func() time.Time) Option {
	return func(p *Pipeline) { p.now = now }
}

// New creates a Pipeline. rc may be nil when every network component is injected.
func New(cfg *config.Config, st store.Store, rc *request.Client, opts ...Option) *Pipeline {
	p := &Pipeline{cfg: cfg, st: st, rc: rc, now: time.Now}
	if rc != nil {
		p.tracker = rc.Tracker()
	} else {
		p.tracker = tracker.New()
	}
	for _, o := range opts {
		o(p)
	}
	return p
}

// Tracker returns the tracker stage counters are reported to.
func (p *Pipeline) Tracker() *tracker.Tracker {
	return p.tracker
}

// RunStage executes fn under a fresh deadline and records the run.
// The run record is written even when the stage fails or times out.
func (p *Pipeline) RunStage(ctx context.Context, name string, opts Options, fn StageFunc) (model.StageResult, error) {
	dl := deadline.New(opts.Timeout)
	run := &model.PipelineRun{
		ID:        uuid.NewString(),
		Stage:     name,
		StartedAt: p.now().UTC(),
		DryRun:    opts.DryRun,
	}
	slog.Info("Stage started", "stage", name, "run", run.ID, "dry_run", opts.DryRun, "timeout", opts.Timeout)

	res, err := fn(ctx, dl)
	if errors.Is(err, deadline.ErrDeadline) {
		res.TimedOut, err = true, nil
	}

	run.FinishedAt = p.now().UTC()
	run.Processed, run.Skipped, run.Failed, run.TimedOut = res.Processed, res.Skipped, res.Failed, res.TimedOut
	p.tracker.TrackStage(name, res.Processed, res.Skipped, res.Failed, res.TimedOut)
	logging.LogRun(run)
	if serr := p.st.SaveRun(context.WithoutCancel(ctx), run); serr != nil {
		slog.Error("Failed to save run record", "stage", name, "run", run.ID, "error", serr)
	}

	if err != nil {
		slog.Error("Stage failed", "stage", name, "run", run.ID, "error", err)
		return res, fmt.Errorf("%s: %w", name, err)
	}
	if res.TimedOut {
		slog.Warn("Stage stopped at deadline", "stage", name, "processed", res.Processed, "remaining", dl.Remaining())
	}
	slog.Info("Stage finished", "stage", name, "run", run.ID,
		"processed", res.Processed, "skipped", res.Skipped, "failed", res.Failed,
		"duration", run.FinishedAt.Sub(run.StartedAt).Round(time.Millisecond))
	return res, nil
}

// Run executes a single named stage.
func (p *Pipeline) Run(ctx context.Context, name string, opts Options) (model.StageResult, error) {
	fn, err := p.stage(ctx, name, opts)
	if err != nil {
		return model.StageResult{}, err
	}
	return p.RunStage(ctx, name, opts, fn)
}

// RunAll executes every stage in order. A failing stage does not stop the
// later ones, which work on whatever earlier runs committed; all errors are
// returned joined. Publish is skipped when no bucket is configured.
func (p *Pipeline) RunAll(ctx context.Context, opts Options) (model.StageResult, error) {
	var total model.StageResult
	var errs []error
	for _, name := range Stages {
		if err := ctx.Err(); err != nil {
			errs = append(errs, err)
			break
		}
		if name == StagePublish && p.publisher == nil && p.cfg.Publish.Bucket == "" {
			slog.Debug("Publish skipped: no bucket configured")
			continue
		}
		res, err := p.Run(ctx, name, opts)
		total.Add(res)
		if err != nil {
			errs = append(errs, err)
		}
	}
	return total, errors.Join(errs...)
}

// Finish writes the metrics textfile, when configured, and logs provider counters.
func (p *Pipeline) Finish() error {
	for _, line := range p.tracker.Summary() {
		slog.Info("Provider stats", "stats", line)
	}
	if p.cfg.Metrics.Textfile == "" {
		return nil
	}
	return p.tracker.WriteTextfile(p.cfg.Metrics.Textfile)
}

// region builds the validation region from the geocode settings.
func (p *Pipeline) region() (*geo.Region, error) {
	r := p.cfg.Geocode.Region
	region := geo.NewRegion(r.Name, r.MinLat, r.MaxLat, r.MinLng, r.MaxLng)
	if p.cfg.Geocode.RegionPolygon != "" {
		if err := region.LoadBoundary(p.cfg.Geocode.RegionPolygon); err != nil {
			return nil, err
		}
	}
	return region, nil
}
