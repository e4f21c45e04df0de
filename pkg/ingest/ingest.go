package ingest

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"newspipe/pkg/canon"
	"newspipe/pkg/config"
	"newspipe/pkg/deadline"
	"newspipe/pkg/fulltext"
	"newspipe/pkg/llm/perplexity"
	"newspipe/pkg/model"
	"newspipe/pkg/request"
	"newspipe/pkg/store"
	"newspipe/pkg/tracker"
)

// Options controls one ingest run.
type Options struct {
	Queries    []string
	MaxResults int  // per source per query; <= 0 means provider default
	FetchText  bool // download pages and fill raw_text
	DryRun     bool // search and log, write nothing
}

// Runner executes queries against all sources and stores unseen articles.
type Runner struct {
	store   store.RawArticleStore
	sources []Source
	fetcher *fulltext.Fetcher
	tracker *tracker.Tracker
	now     func() time.Time
}

// NewRunner creates a Runner. fetcher may be nil when text fetching is never requested.
func NewRunner(st store.RawArticleStore, sources []Source, fetcher *fulltext.Fetcher) *Runner {
	return &Runner{store: st, sources: sources, fetcher: fetcher, now: time.Now}
}

// WithTracker counts searches that return no articles against t.
func (r *Runner) WithTracker(t *tracker.Tracker) *Runner {
	r.tracker = t
	return r
}

// Run searches every (query, source) pair until done or the deadline passes.
// Source failures are logged and counted; results of other pairs are kept.
func (r *Runner) Run(ctx context.Context, dl *deadline.Deadline, opts Options) (model.StageResult, error) {
	var res model.StageResult
	if len(r.sources) == 0 {
		return res, fmt.Errorf("no ingest sources configured")
	}
	seen := make(map[string]bool)

	for _, query := range opts.Queries {
		for _, src := range r.sources {
			if dl.Expired() {
				slog.Warn("Ingest deadline reached", "query", query, "source", src.Name())
				res.TimedOut = true
				return res, nil
			}
			if err := ctx.Err(); err != nil {
				return res, err
			}

			batch, err := r.searchOne(ctx, dl, src, query, opts, seen, &res)
			if err != nil {
				res.Failed++
				slog.Error("Search failed", "source", src.Name(), "query", query, "error", err)
				continue
			}
			if len(batch) == 0 {
				continue
			}

			if opts.DryRun {
				for _, a := range batch {
					slog.Info("Dry run: would store article", "source", a.Source, "title", a.Title, "url", a.CanonicalURL)
				}
				res.Processed += len(batch)
				continue
			}

			n, err := r.store.SaveRawArticles(ctx, batch)
			if err != nil {
				return res, fmt.Errorf("save raw articles: %w", err)
			}
			res.Processed += n
			res.Skipped += len(batch) - n
		}
	}
	return res, nil
}

func (r *Runner) searchOne(ctx context.Context, dl *deadline.Deadline, src Source, query string, opts Options, seen map[string]bool, res *model.StageResult) ([]model.RawArticle, error) {
	found, err := src.Search(ctx, query, opts.MaxResults)
	if err != nil {
		return nil, err
	}
	slog.Info("Search complete", "source", src.Name(), "query", query, "results", len(found))
	if len(found) == 0 && r.tracker != nil {
		r.tracker.TrackAPIZero(src.Name())
	}

	fetchedAt := r.now()
	var batch []model.RawArticle
	for i := range found {
		a := found[i]
		if strings.TrimSpace(a.URL) == "" {
			continue
		}
		finish(&a, src.Name(), query, fetchedAt)
		if seen[a.ID] {
			res.Skipped++
			continue
		}
		seen[a.ID] = true

		exists, err := r.store.HasRawArticle(ctx, a.ID)
		if err != nil {
			return nil, fmt.Errorf("lookup %s: %w", a.ID, err)
		}
		if exists {
			res.Skipped++
			continue
		}

		if opts.FetchText && r.fetcher != nil && !dl.Expired() {
			r.enrich(ctx, &a)
		}
		batch = append(batch, a)
	}
	return batch, nil
}

// enrich downloads the article page. Failures leave the article as found.
func (r *Runner) enrich(ctx context.Context, a *model.RawArticle) {
	page, err := r.fetcher.Fetch(ctx, a.URL)
	if err != nil {
		if !errors.Is(err, context.Canceled) {
			slog.Warn("Full text fetch failed", "url", a.URL, "error", err)
		}
		return
	}
	a.RawText = page.Text
	if page.SiteName != "" && (a.Publisher == "" || a.Publisher == canon.Host(a.CanonicalURL)) {
		a.Publisher = page.SiteName
	}
	if a.PublishedAt.IsZero() && !page.PublishedAt.IsZero() {
		a.PublishedAt = page.PublishedAt
	}
}

// NewSources builds the sources named in names (all configured ones when empty).
// Sources missing a key are skipped with a warning.
func NewSources(cfg *config.Config, rc *request.Client, names []string) []Source {
	if len(names) == 0 {
		names = cfg.Ingest.Sources
	}
	var out []Source
	for _, name := range names {
		switch strings.ToLower(strings.TrimSpace(name)) {
		case "serpapi":
			s, err := NewSerpAPI(rc, cfg.Keys.SerpAPI, cfg.Ingest.SerpAPIURL)
			if err != nil {
				slog.Warn("Skipping source", "source", name, "error", err)
				continue
			}
			out = append(out, s)
		case "perplexity":
			c, err := perplexity.NewClient(cfg.Keys.Perplexity, cfg.Ingest.PerplexityModel, rc)
			if err != nil {
				slog.Warn("Skipping source", "source", name, "error", err)
				continue
			}
			out = append(out, NewPerplexity(c, cfg.Ingest.Recency))
		case "rss":
			out = append(out, NewRSS(rc, cfg.Ingest.RSSBaseURL))
		default:
			slog.Warn("Unknown ingest source", "source", name)
		}
	}
	return out
}
