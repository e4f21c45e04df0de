// Package ingest queries news search providers and stores unseen results as raw articles.
package ingest

import (
	"context"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/araddon/dateparse"

	"newspipe/pkg/canon"
	"newspipe/pkg/model"
)

// Source is one search provider.
type Source interface {
	Name() string
	// Search returns at most max articles for the query. Articles carry URL,
	// title, publisher, date and snippet; IDs are filled by the runner.
	Search(ctx context.Context, query string, max int) ([]model.RawArticle, error)
}

// serpAPILayout is the absolute date format SerpAPI's Google News engine emits.
const serpAPILayout = "01/02/2006, 03:04 PM, -0700 MST"

var relativeDate = regexp.MustCompile(`^(\d+)\s*(second|sec|minute|min|hour|hr|day|week|month|year)s?\s+ago$`)

// ParseDate interprets a provider date string relative to now. It understands
// relative forms ("3 days ago", "yesterday") and any absolute format dateparse
// knows. Unparsable input yields the zero time.
func ParseDate(s string, now time.Time) time.Time {
	orig := strings.TrimSpace(s)
	s = strings.ToLower(orig)
	if s == "" {
		return time.Time{}
	}
	now = now.UTC()

	switch s {
	case "just now", "now", "today":
		return now
	case "yesterday":
		return now.AddDate(0, 0, -1)
	}

	if m := relativeDate.FindStringSubmatch(s); m != nil {
		n, _ := strconv.Atoi(m[1])
		switch m[2] {
		case "second", "sec":
			return now.Add(-time.Duration(n) * time.Second)
		case "minute", "min":
			return now.Add(-time.Duration(n) * time.Minute)
		case "hour", "hr":
			return now.Add(-time.Duration(n) * time.Hour)
		case "day":
			return now.AddDate(0, 0, -n)
		case "week":
			return now.AddDate(0, 0, -7*n)
		case "month":
			return now.AddDate(0, -n, 0)
		case "year":
			return now.AddDate(-n, 0, 0)
		}
	}

	if t, err := time.Parse(serpAPILayout, orig); err == nil {
		return t.UTC()
	}
	if t, err := dateparse.ParseIn(orig, time.UTC); err == nil {
		return t.UTC()
	}
	return time.Time{}
}

// splitTitle separates a Google News style "Headline - Publisher" title.
func splitTitle(title string) (headline, publisher string) {
	title = strings.TrimSpace(title)
	if i := strings.LastIndex(title, " - "); i > 0 {
		suffix := strings.TrimSpace(title[i+3:])
		if n := len(strings.Fields(suffix)); n > 0 && n <= 5 {
			return strings.TrimSpace(title[:i]), suffix
		}
	}
	return title, ""
}

// finish fills the derived fields of an article found by source for query.
func finish(a *model.RawArticle, source, query string, fetchedAt time.Time) {
	a.URL = strings.TrimSpace(a.URL)
	a.CanonicalURL = canon.Canonicalize(a.URL)
	a.ID = canon.ID(a.URL)
	a.Source = source
	a.QueryMatched = query
	a.FetchedAt = fetchedAt.UTC()
	a.Title = strings.TrimSpace(a.Title)
	a.Snippet = strings.TrimSpace(a.Snippet)
	if a.Publisher == "" {
		a.Publisher = canon.Host(a.CanonicalURL)
	}
}
