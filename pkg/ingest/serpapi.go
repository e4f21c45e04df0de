package ingest

import (
	"context"
	"fmt"
	"net/url"
	"time"

	"github.com/tidwall/gjson"

	"newspipe/pkg/model"
)

// Getter performs HTTP GETs through the shared request client.
type Getter interface {
	Get(ctx context.Context, u, cacheKey string) ([]byte, error)
}

// SerpAPI searches Google News through serpapi.com.
type SerpAPI struct {
	get     Getter
	apiKey  string
	baseURL string
	now     func() time.Time
}

// NewSerpAPI creates the SerpAPI source.
func NewSerpAPI(g Getter, apiKey, baseURL string) (*SerpAPI, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("serpapi: SERP_API_KEY not set")
	}
	return &SerpAPI{get: g, apiKey: apiKey, baseURL: baseURL, now: time.Now}, nil
}

func (s *SerpAPI) Name() string { return "serpapi" }

// Search runs one google_news query. Story clusters are flattened.
func (s *SerpAPI) Search(ctx context.Context, query string, max int) ([]model.RawArticle, error) {
	q := url.Values{}
	q.Set("engine", "google_news")
	q.Set("q", query)
	q.Set("gl", "us")
	q.Set("hl", "en")
	q.Set("api_key", s.apiKey)

	body, err := s.get.Get(ctx, s.baseURL+"?"+q.Encode(), "")
	if err != nil {
		return nil, fmt.Errorf("serpapi search: %w", err)
	}
	if !gjson.ValidBytes(body) {
		return nil, fmt.Errorf("serpapi: invalid json response")
	}
	if msg := gjson.GetBytes(body, "error").String(); msg != "" {
		return nil, fmt.Errorf("serpapi: %s", msg)
	}

	now := s.now()
	var out []model.RawArticle
	add := func(r gjson.Result) bool {
		if max > 0 && len(out) >= max {
			return false
		}
		link := r.Get("link").String()
		if link == "" {
			return true
		}
		out = append(out, model.RawArticle{
			URL:         link,
			Title:       r.Get("title").String(),
			Publisher:   sourceName(r.Get("source")),
			PublishedAt: resultDate(r, now),
			Snippet:     r.Get("snippet").String(),
		})
		return true
	}

	gjson.GetBytes(body, "news_results").ForEach(func(_, r gjson.Result) bool {
		if stories := r.Get("stories"); stories.IsArray() {
			if h := r.Get("highlight"); h.Exists() && !add(h) {
				return false
			}
			cont := true
			stories.ForEach(func(_, st gjson.Result) bool {
				cont = add(st)
				return cont
			})
			return cont
		}
		return add(r)
	})
	return out, nil
}

// sourceName reads "source", which is an object in current responses and a
// plain string in older ones.
func sourceName(r gjson.Result) string {
	if r.IsObject() {
		return r.Get("name").String()
	}
	return r.String()
}

func resultDate(r gjson.Result, now time.Time) time.Time {
	if iso := r.Get("iso_date").String(); iso != "" {
		if t, err := time.Parse(time.RFC3339, iso); err == nil {
			return t.UTC()
		}
	}
	return ParseDate(r.Get("date").String(), now)
}
