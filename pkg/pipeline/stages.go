package pipeline

import (
	"context"
	"fmt"
	"log/slog"

	"newspipe/pkg/cache"
	"newspipe/pkg/classify"
	"newspipe/pkg/deadline"
	"newspipe/pkg/dedup"
	"newspipe/pkg/export"
	"newspipe/pkg/extract"
	"newspipe/pkg/fulltext"
	"newspipe/pkg/geocode"
	"newspipe/pkg/ingest"
	"newspipe/pkg/llm/failover"
	"newspipe/pkg/llm/prompts"
	"newspipe/pkg/model"
	"newspipe/pkg/publish"
	"newspipe/pkg/resolve"
)

// stage returns the body for name, building its components from the configuration.
func (p *Pipeline) stage(ctx context.Context, name string, opts Options) (StageFunc, error) {
	switch name {
	case StageIngest:
		return p.ingestStage(opts)
	case StageDedupe:
		return p.dedupeStage(opts), nil
	case StageClassify:
		return p.classifyStage(opts)
	case StageExtract:
		return p.extractStage(ctx, opts)
	case StageResolve:
		return p.resolveStage(opts), nil
	case StageGeocode:
		return p.geocodeStage(opts)
	case StageExport:
		return p.exportStage(opts)
	case StagePublish:
		return p.publishStage(ctx, opts)
	}
	return nil, fmt.Errorf("%w: %q", ErrUnknownStage, name)
}

func (p *Pipeline) ingestStage(opts Options) (StageFunc, error) {
	sources := p.sources
	if sources == nil {
		if p.rc == nil {
			return nil, fmt.Errorf("ingest needs a request client")
		}
		sources = ingest.NewSources(p.cfg, p.rc, opts.Sources)
	}
	var fetcher *fulltext.Fetcher
	if opts.FetchText && p.rc != nil {
		fetcher = fulltext.NewFetcher(p.rc)
	}
	r := ingest.NewRunner(p.st, sources, fetcher).WithTracker(p.tracker)
	iopts := ingest.Options{
		Queries:    opts.Queries,
		MaxResults: opts.MaxResults,
		FetchText:  opts.FetchText,
		DryRun:     opts.DryRun,
	}
	return func(ctx context.Context, dl *deadline.Deadline) (model.StageResult, error) {
		return r.Run(ctx, dl, iopts)
	}, nil
}

func (p *Pipeline) dedupeStage(opts Options) StageFunc {
	d := dedup.New(p.st)
	do := dedup.Options{
		Threshold: p.cfg.Dedup.FuzzyThreshold,
		Limit:     opts.Limit,
		DryRun:    opts.DryRun,
	}
	return func(ctx context.Context, dl *deadline.Deadline) (model.StageResult, error) {
		return d.Run(ctx, dl, do)
	}
}

func (p *Pipeline) classifyStage(opts Options) (StageFunc, error) {
	rules := classify.DefaultRules()
	if path := p.cfg.Classify.RulesFile; path != "" {
		r, err := classify.LoadRules(path)
		if err != nil {
			return nil, err
		}
		rules = r
	}
	c, err := classify.New(rules)
	if err != nil {
		return nil, err
	}
	co := classify.Options{Limit: opts.Limit, DryRun: opts.DryRun}
	return func(ctx context.Context, dl *deadline.Deadline) (model.StageResult, error) {
		return c.Run(ctx, p.st, dl, co)
	}, nil
}

// extractStage falls back to regex-only extraction when no LLM can be built.
func (p *Pipeline) extractStage(ctx context.Context, opts Options) (StageFunc, error) {
	e := extract.New()
	useLLM := opts.UseLLM
	if useLLM {
		provider := p.llm
		if provider == nil && p.rc != nil {
			var err error
			provider, err = failover.FromConfig(ctx, p.cfg, p.rc)
			if err != nil {
				slog.Warn("LLM assistance unavailable, extracting with rules only", "error", err)
			}
		}
		if provider != nil {
			pm, err := prompts.NewManager(p.cfg.LLM.PromptDir)
			if err != nil {
				return nil, fmt.Errorf("load prompts: %w", err)
			}
			e.WithLLM(provider, pm, p.cfg.Extract.LLMThreshold)
		} else {
			useLLM = false
		}
	}
	eo := extract.Options{Limit: opts.Limit, DryRun: opts.DryRun, UseLLM: useLLM}
	return func(ctx context.Context, dl *deadline.Deadline) (model.StageResult, error) {
		return e.Run(ctx, p.st, dl, eo)
	}, nil
}

func (p *Pipeline) resolveStage(opts Options) StageFunc {
	r := resolve.New(p.st)
	ro := resolve.Options{
		Limit:        opts.Limit,
		DryRun:       opts.DryRun,
		Proximity:    opts.Proximity,
		H3Resolution: p.cfg.Resolve.H3Resolution,
	}
	return func(ctx context.Context, dl *deadline.Deadline) (model.StageResult, error) {
		return r.Run(ctx, dl, ro)
	}
}

func (p *Pipeline) geocodeStage(opts Options) (StageFunc, error) {
	g := p.geocoder
	if g == nil {
		if p.rc == nil {
			return nil, fmt.Errorf("geocode needs a request client")
		}
		var c cache.Cacher = p.st
		if opts.DryRun {
			c = cache.NewOverlay(p.st)
		}
		var err error
		if g, err = geocode.FromConfig(p.cfg, p.rc, c); err != nil {
			return nil, err
		}
		p.geocoder = g.WithTracker(p.tracker)
	}
	gopts := geocode.Options{Limit: opts.Limit, DryRun: opts.DryRun, RetryFailed: opts.RetryFailed}
	return func(ctx context.Context, dl *deadline.Deadline) (model.StageResult, error) {
		return g.Run(ctx, p.st, dl, gopts)
	}, nil
}

func (p *Pipeline) exportStage(opts Options) (StageFunc, error) {
	region, err := p.region()
	if err != nil {
		return nil, err
	}
	e := export.New(p.st, region)
	eo := export.Options{
		Path:         p.outPath(opts),
		JitterMeters: p.cfg.Export.JitterMeters,
		H3Resolution: p.cfg.Export.H3Resolution,
		Indent:       p.cfg.Export.Indent,
		DryRun:       opts.DryRun,
	}
	return func(ctx context.Context, dl *deadline.Deadline) (model.StageResult, error) {
		return e.Run(ctx, dl, eo)
	}, nil
}

func (p *Pipeline) publishStage(ctx context.Context, opts Options) (StageFunc, error) {
	pub := p.publisher
	if pub == nil {
		var err error
		if pub, err = publish.FromConfig(ctx, p.cfg.Publish); err != nil {
			return nil, err
		}
		p.publisher = pub
	}
	path := p.outPath(opts)
	return func(ctx context.Context, dl *deadline.Deadline) (model.StageResult, error) {
		var res model.StageResult
		if err := dl.Check(); err != nil {
			return res, err
		}
		if err := pub.Publish(ctx, path, opts.DryRun); err != nil {
			res.Failed = 1
			return res, err
		}
		res.Processed = 1
		return res, nil
	}, nil
}

func (p *Pipeline) outPath(opts Options) string {
	return outPathOf(p.cfg, opts)
}
