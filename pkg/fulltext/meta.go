package fulltext

import (
	"io"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/araddon/dateparse"
)

// Meta holds page-level metadata from <meta> tags.
type Meta struct {
	SiteName    string
	Title       string
	Description string
	PublishedAt time.Time
}

// ExtractMeta reads OpenGraph / article meta tags.
func ExtractMeta(r io.Reader) (*Meta, error) {
	doc, err := goquery.NewDocumentFromReader(r)
	if err != nil {
		return nil, err
	}

	m := &Meta{
		SiteName:    metaContent(doc, "og:site_name", "application-name"),
		Title:       metaContent(doc, "og:title", "twitter:title"),
		Description: metaContent(doc, "og:description", "description"),
	}
	if m.Title == "" {
		m.Title = strings.TrimSpace(doc.Find("title").First().Text())
	}

	published := metaContent(doc, "article:published_time", "datePublished", "pubdate", "publish-date", "parsely-pub-date")
	if published == "" {
		published, _ = doc.Find("time[datetime]").First().Attr("datetime")
	}
	if published != "" {
		if t, err := dateparse.ParseIn(strings.TrimSpace(published), time.UTC); err == nil {
			m.PublishedAt = t.UTC()
		}
	}
	return m, nil
}

// metaContent returns the first non-empty content of the named property/name tags.
func metaContent(doc *goquery.Document, keys ...string) string {
	for _, k := range keys {
		for _, attr := range []string{"property", "name", "itemprop"} {
			sel := doc.Find(`meta[` + attr + `="` + k + `"]`).First()
			if v, ok := sel.Attr("content"); ok && strings.TrimSpace(v) != "" {
				return strings.TrimSpace(v)
			}
		}
	}
	return ""
}
