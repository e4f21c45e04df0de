// Package extract pulls structured project fields out of announcement mentions.
// Extraction is regex based; an LLM may fill fields the patterns missed.
package extract

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"newspipe/pkg/deadline"
	"newspipe/pkg/llm"
	"newspipe/pkg/llm/prompts"
	"newspipe/pkg/model"
)

const (
	MethodRegex    = "regex"
	MethodRegexLLM = "regex+llm"

	// DefaultLLMThreshold is the score below which the assistant is consulted.
	DefaultLLMThreshold = 0.5

	extractPrompt = "extract.tmpl"
)

// field weights sum to 1.
const (
	weightCompany  = 0.25
	weightLocation = 0.25
	weightSize     = 0.2
	weightName     = 0.1
	weightStatus   = 0.1
	weightDate     = 0.1
)

var validStatus = map[string]bool{
	"proposed": true, "approved": true, "under_construction": true, "operational": true, "cancelled": true,
}

// Store is what the extraction stage reads and writes.
type Store interface {
	ListAnnouncementsWithoutCard(ctx context.Context, limit int) ([]model.Mention, error)
	SaveCard(ctx context.Context, c *model.ProjectCard) error
}

// Options controls one run.
type Options struct {
	Limit  int
	DryRun bool
	UseLLM bool
}

// Extractor builds project cards.
type Extractor struct {
	llm       llm.Provider
	prompts   *prompts.Manager
	threshold float64
}

// New returns a regex-only extractor.
func New() *Extractor {
	return &Extractor{threshold: DefaultLLMThreshold}
}

// WithLLM enables the assistant for cards scoring below threshold.
func (e *Extractor) WithLLM(p llm.Provider, pm *prompts.Manager, threshold float64) *Extractor {
	e.llm = p
	e.prompts = pm
	if threshold > 0 {
		e.threshold = threshold
	}
	return e
}

// CardID returns the card identifier for a mention. One card per mention.
func CardID(mentionID string) string {
	return "card-" + mentionID
}

// Extract runs the regex pass over a mention. It never fails; missing
// fields stay empty and lower the score.
func Extract(m *model.Mention) model.ProjectCard {
	text := m.Text()
	c := model.ProjectCard{
		ID:            CardID(m.ID),
		MentionID:     m.ID,
		Company:       findCompany(m.Title, text),
		ProjectName:   findProjectName(text),
		LocationText:  findLocation(m.Title, text),
		SizeMW:        findPowerMW(text),
		SizeSqft:      findSqft(text),
		InvestmentUSD: findInvestment(text),
		AnnouncedDate: findDate(text, m.PublishedAt),
		StatusHint:    findStatus(text),
		Method:        MethodRegex,
		SourceURL:     m.URL,
	}
	score(&c)
	return c
}

func score(c *model.ProjectCard) {
	var s float64
	if c.Company != "" {
		s += weightCompany
	}
	if c.LocationText != "" {
		s += weightLocation
	}
	if c.SizeMW > 0 || c.SizeSqft > 0 || c.InvestmentUSD > 0 {
		s += weightSize
	}
	if c.ProjectName != "" {
		s += weightName
	}
	if c.StatusHint != "" {
		s += weightStatus
	}
	if c.AnnouncedDate != "" {
		s += weightDate
	}
	// Two decimals.
	c.Score = float64(int(s*100+0.5)) / 100
	switch {
	case c.Score >= 0.7:
		c.Confidence = model.ConfidenceHigh
	case c.Score >= 0.4:
		c.Confidence = model.ConfidenceMedium
	default:
		c.Confidence = model.ConfidenceLow
	}
}

// llmFields is the JSON shape the extraction prompt asks for.
type llmFields struct {
	Company       string  `json:"company"`
	ProjectName   string  `json:"project_name"`
	LocationText  string  `json:"location_text"`
	SizeMW        float64 `json:"size_mw"`
	SizeSqft      float64 `json:"size_sqft"`
	InvestmentUSD float64 `json:"investment_usd"`
	StatusHint    string  `json:"status_hint"`
	AnnouncedDate string  `json:"announced_date"`
}

// assist asks the LLM for the card's fields and fills only those the regex
// pass left empty. It reports whether anything was filled.
func (e *Extractor) assist(ctx context.Context, m *model.Mention, c *model.ProjectCard) (bool, error) {
	prompt, err := e.prompts.Render(extractPrompt, map[string]any{
		"Company":      c.Company,
		"LocationText": c.LocationText,
		"Title":        m.Title,
		"Publisher":    m.Publisher,
		"Text":         m.Text(),
	})
	if err != nil {
		return false, fmt.Errorf("render prompt: %w", err)
	}

	var f llmFields
	if err := e.llm.GenerateJSON(ctx, "extract", prompt, &f); err != nil {
		return false, err
	}

	filled := false
	fillString := func(dst *string, v string) {
		v = strings.TrimSpace(v)
		if *dst == "" && v != "" && !strings.EqualFold(v, "unknown") {
			*dst = v
			filled = true
		}
	}
	fillNumber := func(dst *float64, v float64) {
		if *dst == 0 && v > 0 {
			*dst = v
			filled = true
		}
	}
	fillString(&c.Company, f.Company)
	fillString(&c.ProjectName, f.ProjectName)
	fillString(&c.LocationText, f.LocationText)
	fillNumber(&c.SizeMW, f.SizeMW)
	fillNumber(&c.SizeSqft, f.SizeSqft)
	fillNumber(&c.InvestmentUSD, f.InvestmentUSD)
	if validStatus[f.StatusHint] {
		fillString(&c.StatusHint, f.StatusHint)
	}
	if _, err := time.Parse("2006-01-02", f.AnnouncedDate); err == nil {
		fillString(&c.AnnouncedDate, f.AnnouncedDate)
	}

	if filled {
		c.Method = MethodRegexLLM
		score(c)
	}
	return filled, nil
}

// Run extracts a card for every announcement mention that has none.
func (e *Extractor) Run(ctx context.Context, st Store, dl *deadline.Deadline, opts Options) (model.StageResult, error) {
	var res model.StageResult
	mentions, err := st.ListAnnouncementsWithoutCard(ctx, opts.Limit)
	if err != nil {
		return res, fmt.Errorf("list announcements: %w", err)
	}

	useLLM := opts.UseLLM && e.llm != nil && e.prompts != nil
	if opts.UseLLM && !useLLM {
		slog.Warn("LLM assist requested but no provider is configured; using regex only")
	}

	for i := range mentions {
		if dl.Expired() {
			res.TimedOut = true
			break
		}
		if err := ctx.Err(); err != nil {
			return res, err
		}
		m := &mentions[i]
		card := Extract(m)

		if useLLM && card.Score < e.threshold {
			if _, err := e.assist(ctx, m, &card); err != nil {
				slog.Warn("LLM extraction failed, keeping regex fields", "mention", m.ID, "error", err)
			}
		}

		if opts.DryRun {
			slog.Info("Dry run: extracted", "mention", m.ID, "company", card.Company,
				"location", card.LocationText, "mw", card.SizeMW, "score", card.Score)
			res.Processed++
			continue
		}
		card.CreatedAt = time.Now().UTC()
		if err := st.SaveCard(ctx, &card); err != nil {
			res.Failed++
			slog.Error("Failed to save card", "mention", m.ID, "error", err)
			continue
		}
		slog.Debug("Extracted card", "mention", m.ID, "company", card.Company, "location", card.LocationText,
			"score", card.Score, "method", card.Method)
		res.Processed++
	}
	return res, nil
}
