// Package dedup collapses raw articles into unique mentions.
//
// An article joins an existing mention when, in order of precedence:
//  1. its canonical URL equals the mention's (or one already merged into it),
//  2. publisher and normalized title are equal,
//  3. normalized titles are similar (Ratio >= threshold) and the two share a
//     publisher or a UTC publish day.
//
// Tier 3 only compares against that candidate set, never all pairs.
package dedup

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"newspipe/pkg/canon"
	"newspipe/pkg/deadline"
	"newspipe/pkg/model"
	"newspipe/pkg/store"
)

// DefaultThreshold is the fuzzy title similarity needed for tier 3.
const DefaultThreshold = 0.85

// Store is what deduplication reads and writes.
type Store interface {
	store.RawArticleStore
	store.MentionStore
}

// Options controls one run.
type Options struct {
	Threshold float64
	Limit     int // raw articles per run; <= 0 means all
	DryRun    bool
}

// Deduper assigns raw articles to mentions.
type Deduper struct {
	store Store
}

// New creates a Deduper.
func New(st Store) *Deduper {
	return &Deduper{store: st}
}

// Match explains why an article joined a mention.
type Match struct {
	MentionID string
	Tier      int // 1 url, 2 publisher+title, 3 fuzzy title
	Score     float64
}

// Run processes unassigned raw articles oldest first. Each article is
// committed on its own so a deadline stop keeps finished work.
func (d *Deduper) Run(ctx context.Context, dl *deadline.Deadline, opts Options) (model.StageResult, error) {
	var res model.StageResult
	if opts.Threshold <= 0 {
		opts.Threshold = DefaultThreshold
	}

	existing, err := d.store.ListMentions(ctx)
	if err != nil {
		return res, fmt.Errorf("list mentions: %w", err)
	}
	idx := NewIndex(opts.Threshold)
	for i := range existing {
		idx.Add(&existing[i])
	}

	raws, err := d.store.ListUnassignedRawArticles(ctx, opts.Limit)
	if err != nil {
		return res, fmt.Errorf("list raw articles: %w", err)
	}

	created, merged := 0, 0
	for i := range raws {
		if dl.Expired() {
			res.TimedOut = true
			break
		}
		if err := ctx.Err(); err != nil {
			return res, err
		}
		a := &raws[i]

		m, match := idx.Assign(a)
		if match != nil {
			merged++
			slog.Debug("Merged article", "article", a.ID, "mention", match.MentionID, "tier", match.Tier, "score", match.Score)
		} else {
			created++
		}

		if opts.DryRun {
			res.Processed++
			continue
		}
		if err := d.store.SaveMention(ctx, m, []string{a.ID}); err != nil {
			res.Failed++
			slog.Error("Failed to save mention", "mention", m.ID, "article", a.ID, "error", err)
			continue
		}
		res.Processed++
	}

	slog.Info("Dedup complete", "articles", len(raws), "new_mentions", created, "merged", merged, "dry_run", opts.DryRun)
	return res, nil
}

// Dedupe collapses a batch of articles without storage. Articles are
// processed in the given order; the result keeps first-seen order.
func Dedupe(articles []model.RawArticle, threshold float64) []model.Mention {
	idx := NewIndex(threshold)
	var order []*model.Mention
	for i := range articles {
		m, match := idx.Assign(&articles[i])
		if match == nil {
			order = append(order, m)
		}
	}
	out := make([]model.Mention, len(order))
	for i, m := range order {
		out[i] = *m
	}
	return out
}

// newMention starts a mention from its earliest article.
func newMention(a *model.RawArticle) *model.Mention {
	return &model.Mention{
		ID:            canon.ID(a.URL),
		URL:           a.URL,
		CanonicalURL:  a.CanonicalURL,
		Title:         a.Title,
		Publisher:     a.Publisher,
		PublishedAt:   a.PublishedAt,
		QueryMatched:  a.QueryMatched,
		Snippet:       a.Snippet,
		RawText:       a.RawText,
		SourceURLs:    []string{a.URL},
		RawArticleIDs: []string{a.ID},
		CreatedAt:     time.Now().UTC(),
	}
}

// absorb appends the article's URL and id. Other mention fields are kept,
// except raw text which is filled when missing.
func absorb(m *model.Mention, a *model.RawArticle) {
	if !contains(m.SourceURLs, a.URL) {
		m.SourceURLs = append(m.SourceURLs, a.URL)
	}
	if !contains(m.RawArticleIDs, a.ID) {
		m.RawArticleIDs = append(m.RawArticleIDs, a.ID)
	}
	if m.RawText == "" {
		m.RawText = a.RawText
	}
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
