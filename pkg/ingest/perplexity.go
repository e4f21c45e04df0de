package ingest

import (
	"context"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"newspipe/pkg/canon"
	"newspipe/pkg/llm"
	"newspipe/pkg/llm/perplexity"
	"newspipe/pkg/model"
)

// Searcher is the grounded web search the Perplexity source relies on.
type Searcher interface {
	Search(ctx context.Context, query, recency string) (*perplexity.SearchResult, error)
}

// Perplexity turns the citations of a Sonar answer into articles.
type Perplexity struct {
	search  Searcher
	recency string
	now     func() time.Time
}

// NewPerplexity creates the Perplexity source. recency limits cited pages
// ("day", "week", "month", "year" or "").
func NewPerplexity(s Searcher, recency string) *Perplexity {
	return &Perplexity{search: s, recency: recency, now: time.Now}
}

func (p *Perplexity) Name() string { return "perplexity" }

// Search asks for recent news and maps each citation to an article whose
// snippet is the part of the answer that cites it.
func (p *Perplexity) Search(ctx context.Context, query string, max int) ([]model.RawArticle, error) {
	prompt := fmt.Sprintf("List recent news articles about: %s. "+
		"For each, give the company, the location and the project size, citing the article.", query)

	res, err := p.search.Search(ctx, prompt, p.recency)
	if err != nil {
		return nil, fmt.Errorf("perplexity search: %w", err)
	}

	sources := make(map[string]perplexity.Source, len(res.Sources))
	for _, s := range res.Sources {
		sources[canon.Canonicalize(s.URL)] = s
	}
	excerpts := citedSentences(res.Content)
	now := p.now()

	var out []model.RawArticle
	seen := make(map[string]bool)
	for i, link := range res.Citations {
		if max > 0 && len(out) >= max {
			break
		}
		c := canon.Canonicalize(link)
		if link == "" || seen[c] {
			continue
		}
		seen[c] = true

		a := model.RawArticle{URL: link}
		if s, ok := sources[c]; ok {
			a.Title = s.Title
			a.PublishedAt = ParseDate(s.Date, now)
		}
		if a.Title == "" {
			a.Title = canon.Host(link)
		}
		a.Snippet = excerpts[i+1]
		if a.Snippet == "" {
			a.Snippet = llm.Clip(stripMarkers(res.Content), 400)
		}
		out = append(out, a)
	}
	return out, nil
}

var citationMarker = regexp.MustCompile(`\[(\d+)\]`)

// citedSentences maps a 1-based citation number to the answer sentences that cite it.
func citedSentences(content string) map[int]string {
	out := make(map[int]string)
	for _, line := range strings.Split(content, "\n") {
		for _, sentence := range splitSentences(line) {
			for _, m := range citationMarker.FindAllStringSubmatch(sentence, -1) {
				n, err := strconv.Atoi(m[1])
				if err != nil {
					continue
				}
				clean := stripMarkers(sentence)
				if clean == "" || strings.Contains(out[n], clean) {
					continue
				}
				if out[n] != "" {
					out[n] += " "
				}
				out[n] += clean
			}
		}
	}
	for n, s := range out {
		out[n] = llm.Clip(s, 600)
	}
	return out
}

func splitSentences(line string) []string {
	var out []string
	start := 0
	for i := 0; i < len(line); i++ {
		if line[i] != '.' && line[i] != '!' && line[i] != '?' {
			continue
		}
		// Keep trailing citation markers with their sentence.
		j := i + 1
		for j < len(line) && (line[j] == '[' || line[j] == ']' || (line[j] >= '0' && line[j] <= '9')) {
			j++
		}
		if j == len(line) || line[j] == ' ' {
			out = append(out, strings.TrimSpace(line[start:j]))
			start = j
			i = j
		}
	}
	if rest := strings.TrimSpace(line[start:]); rest != "" {
		out = append(out, rest)
	}
	return out
}

func stripMarkers(s string) string {
	s = citationMarker.ReplaceAllString(s, "")
	s = strings.NewReplacer("**", "", "##", "", "- ", "").Replace(s)
	return strings.Join(strings.Fields(s), " ")
}
