// Package fulltext downloads article pages and reduces them to plain prose
// plus the publisher and date metadata that search results often omit.
package fulltext

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"time"

	readability "github.com/go-shiori/go-readability"

	"newspipe/pkg/cache"
)

// Getter fetches a URL body, optionally through a cache.
type Getter interface {
	Get(ctx context.Context, u, cacheKey string) ([]byte, error)
}

// Result is the extracted content of one page.
type Result struct {
	Text        string
	SiteName    string
	PublishedAt time.Time
	Method      string // "readability", "prose" or "pdf"
}

// maxTextBytes bounds stored article text.
const maxTextBytes = 20000

// Fetcher downloads pages and extracts text.
type Fetcher struct {
	get Getter
}

// NewFetcher creates a Fetcher over the given HTTP getter.
func NewFetcher(g Getter) *Fetcher {
	return &Fetcher{get: g}
}

// Fetch downloads a page and extracts its article text and metadata.
func (f *Fetcher) Fetch(ctx context.Context, pageURL string) (*Result, error) {
	u, err := url.Parse(pageURL)
	if err != nil {
		return nil, fmt.Errorf("invalid url: %w", err)
	}
	body, err := f.get.Get(ctx, pageURL, cache.Key("page", pageURL))
	if err != nil {
		return nil, fmt.Errorf("fetch %s: %w", u.Host, err)
	}
	return Parse(body, u)
}

// Parse extracts text and metadata from an HTML or PDF document.
// Readability is tried first; the paragraph walker is used when it yields too little.
func Parse(body []byte, pageURL *url.URL) (*Result, error) {
	if IsPDF(body) {
		return ParsePDF(body)
	}
	res := &Result{}

	if meta, err := ExtractMeta(bytes.NewReader(body)); err == nil {
		res.SiteName = meta.SiteName
		res.PublishedAt = meta.PublishedAt
	}

	article, err := readability.FromReader(bytes.NewReader(body), pageURL)
	if err == nil {
		text := strings.Join(strings.Fields(article.TextContent), " ")
		if len(strings.Fields(text)) >= minReliableWords {
			res.Text = clip(text)
			res.Method = "readability"
			if res.SiteName == "" {
				res.SiteName = article.SiteName
			}
			return res, nil
		}
	} else {
		slog.Debug("readability failed, using prose fallback", "url", pageURL.String(), "error", err)
	}

	prose, err := ExtractProse(bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("parse html: %w", err)
	}
	res.Text = clip(prose.Text)
	res.Method = "prose"
	return res, nil
}

func clip(s string) string {
	if len(s) <= maxTextBytes {
		return s
	}
	cut := s[:maxTextBytes]
	if i := strings.LastIndexByte(cut, ' '); i > 0 {
		cut = cut[:i]
	}
	return cut
}
