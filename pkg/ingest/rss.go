package ingest

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/mmcdole/gofeed"

	"newspipe/pkg/model"
)

// RSS searches the Google News RSS feed. No key is needed.
type RSS struct {
	get     Getter
	baseURL string
	parser  *gofeed.Parser
}

// NewRSS creates the RSS source.
func NewRSS(g Getter, baseURL string) *RSS {
	return &RSS{get: g, baseURL: baseURL, parser: gofeed.NewParser()}
}

func (s *RSS) Name() string { return "rss" }

// Search fetches the feed for query and maps at most max items.
func (s *RSS) Search(ctx context.Context, query string, max int) ([]model.RawArticle, error) {
	q := url.Values{}
	q.Set("q", query)
	q.Set("hl", "en-US")
	q.Set("gl", "US")
	q.Set("ceid", "US:en")

	body, err := s.get.Get(ctx, s.baseURL+"?"+q.Encode(), "")
	if err != nil {
		return nil, fmt.Errorf("rss fetch: %w", err)
	}
	feed, err := s.parser.ParseString(string(body))
	if err != nil {
		return nil, fmt.Errorf("rss parse: %w", err)
	}

	var out []model.RawArticle
	for _, item := range feed.Items {
		if max > 0 && len(out) >= max {
			break
		}
		if item.Link == "" {
			continue
		}
		headline, publisher := splitTitle(item.Title)
		snippet, fontPublisher := describe(item.Description)
		if publisher == "" {
			publisher = fontPublisher
		}
		if snippet == headline {
			snippet = ""
		}

		var published time.Time
		if item.PublishedParsed != nil {
			published = item.PublishedParsed.UTC()
		}
		out = append(out, model.RawArticle{
			URL:         item.Link,
			Title:       headline,
			Publisher:   publisher,
			PublishedAt: published,
			Snippet:     snippet,
		})
	}
	return out, nil
}

// describe reduces an item description to text. Google News puts the
// publisher in a trailing <font> element, which is returned separately.
func describe(desc string) (text, publisher string) {
	if strings.TrimSpace(desc) == "" {
		return "", ""
	}
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(desc))
	if err != nil {
		return strings.TrimSpace(desc), ""
	}
	font := doc.Find("font").Last()
	publisher = strings.TrimSpace(font.Text())
	font.Remove()
	text = strings.Join(strings.Fields(doc.Text()), " ")
	return text, publisher
}
