package model

import (
	"time"
)

// Label is the classification bucket of a mention.
type Label string

const (
	LabelAnnouncement Label = "project_announcement"
	LabelContext      Label = "context"
	LabelNoise        Label = "noise"
)

// Confidence is a qualitative confidence tag.
type Confidence string

const (
	ConfidenceHigh   Confidence = "high"
	ConfidenceMedium Confidence = "medium"
	ConfidenceLow    Confidence = "low"
)

// Rank orders confidences so they can be compared (low < medium < high).
func (c Confidence) Rank() int {
	switch c {
	case ConfidenceHigh:
		return 3
	case ConfidenceMedium:
		return 2
	case ConfidenceLow:
		return 1
	}
	return 0
}

// Status values stored per record by the stages.
const (
	StatusPending = "pending"
	StatusOK      = "ok"
	StatusFailed  = "failed"
	StatusSkipped = "skipped"
)

// Geocode precision tags.
const (
	PrecisionCity   = "city"
	PrecisionCounty = "county"
	PrecisionArea   = "area"
)

// RawArticle is one fetched search result. Immutable once stored.
type RawArticle struct {
	ID           string    `json:"id"` // hash of CanonicalURL
	URL          string    `json:"url"`
	CanonicalURL string    `json:"canonical_url"`
	Title        string    `json:"title"`
	Publisher    string    `json:"publisher"`
	PublishedAt  time.Time `json:"published_at"`
	QueryMatched string    `json:"query_matched"`
	Snippet      string    `json:"snippet"`
	RawText      string    `json:"raw_text"`
	Source       string    `json:"source"` // "serpapi", "perplexity", "rss"
	FetchedAt    time.Time `json:"fetched_at"`
}

// Mention is a de-duplicated article.
type Mention struct {
	ID            string    `json:"id"`
	URL           string    `json:"url"`
	CanonicalURL  string    `json:"canonical_url"`
	Title         string    `json:"title"`
	Publisher     string    `json:"publisher"`
	PublishedAt   time.Time `json:"published_at"`
	QueryMatched  string    `json:"query_matched"`
	Snippet       string    `json:"snippet"`
	RawText       string    `json:"raw_text"`
	SourceURLs    []string  `json:"source_urls"`
	RawArticleIDs []string  `json:"raw_article_ids"`
	CreatedAt     time.Time `json:"created_at"`
}

// Text returns the concatenated text used by classification and extraction.
func (m *Mention) Text() string {
	s := m.Title
	if m.Snippet != "" {
		s += "\n" + m.Snippet
	}
	if m.RawText != "" {
		s += "\n" + m.RawText
	}
	return s
}

// ClassifiedMention is a Mention's classification outcome.
type ClassifiedMention struct {
	MentionID    string     `json:"mention_id"`
	Label        Label      `json:"label"`
	Confidence   Confidence `json:"confidence"`
	Signals      []string   `json:"signals"`
	Flags        []string   `json:"flags"` // rule disagreements, e.g. "noise_overlap"
	RulesVersion string     `json:"rules_version"`
	CreatedAt    time.Time  `json:"created_at"`
}

// ProjectCard holds fields extracted from a single mention.
type ProjectCard struct {
	ID            string     `json:"id"`
	MentionID     string     `json:"mention_id"`
	Company       string     `json:"company"`
	ProjectName   string     `json:"project_name"`
	LocationText  string     `json:"location_text"`
	SizeMW        float64    `json:"size_mw"`
	SizeSqft      float64    `json:"size_sqft"`
	InvestmentUSD float64    `json:"investment_usd"`
	AnnouncedDate string     `json:"announced_date"` // YYYY-MM-DD
	StatusHint    string     `json:"status_hint"`
	Score         float64    `json:"score"` // 0..1 extraction quality
	Confidence    Confidence `json:"confidence"`
	Method        string     `json:"method"` // "regex", "regex+llm"
	SourceURL     string     `json:"source_url"`
	CreatedAt     time.Time  `json:"created_at"`
}

// Project is the canonical entity after merging cards.
type Project struct {
	ID               string     `json:"id"`
	Name             string     `json:"name"`
	Company          string     `json:"company"`
	LocationText     string     `json:"location_text"`
	Lat              *float64   `json:"lat"`
	Lng              *float64   `json:"lng"`
	GeocodeStatus    string     `json:"geocode_status"`
	GeocodePrecision string     `json:"geocode_confidence"`
	GeocodeProvider  string     `json:"geocode_provider"`
	SizeMW           float64    `json:"size_mw"`
	SizeSqft         float64    `json:"size_sqft"`
	InvestmentUSD    float64    `json:"investment_usd"`
	AnnouncedDate    string     `json:"announced_date"`
	Status           string     `json:"status"`
	Confidence       Confidence `json:"confidence"`
	MentionIDs       []string   `json:"mention_ids"`
	SourceURLs       []string   `json:"source_urls"`
	CardIDs          []string   `json:"card_ids"`
	CreatedAt        time.Time  `json:"created_at"`
	UpdatedAt        time.Time  `json:"updated_at"`
}

// HasCoordinates reports whether the project was geocoded.
func (p *Project) HasCoordinates() bool {
	return p.Lat != nil && p.Lng != nil
}

// StatusRecord is a per-record, per-stage status row.
type StatusRecord struct {
	ProjectID string    `json:"project_id"`
	Stage     string    `json:"stage"`
	Status    string    `json:"status"`
	Detail    string    `json:"detail"`
	UpdatedAt time.Time `json:"updated_at"`
}

// PipelineRun records one stage execution.
type PipelineRun struct {
	ID         string    `json:"id"`
	Stage      string    `json:"stage"`
	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at"`
	Processed  int       `json:"processed"`
	Skipped    int       `json:"skipped"`
	Failed     int       `json:"failed"`
	TimedOut   bool      `json:"timed_out"`
	DryRun     bool      `json:"dry_run"`
}

// StageResult is what one stage execution reports back to the runner.
type StageResult struct {
	Processed int
	Skipped   int
	Failed    int
	TimedOut  bool
}

// Add accumulates another result.
func (r *StageResult) Add(o StageResult) {
	r.Processed += o.Processed
	r.Skipped += o.Skipped
	r.Failed += o.Failed
	r.TimedOut = r.TimedOut || o.TimedOut
}
