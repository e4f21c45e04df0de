package dedup

import (
	"newspipe/pkg/canon"
	"newspipe/pkg/model"
)

// Index holds mentions keyed for the three matching tiers.
type Index struct {
	threshold   float64
	byURL       map[string]*model.Mention
	byPubTitle  map[string]*model.Mention
	byPublisher map[string][]*entry
	byDay       map[string][]*entry
	added       int
}

type entry struct {
	m     *model.Mention
	title string // normalized
	seq   int
}

// NewIndex creates an empty index.
func NewIndex(threshold float64) *Index {
	if threshold <= 0 {
		threshold = DefaultThreshold
	}
	return &Index{
		threshold:   threshold,
		byURL:       make(map[string]*model.Mention),
		byPubTitle:  make(map[string]*model.Mention),
		byPublisher: make(map[string][]*entry),
		byDay:       make(map[string][]*entry),
	}
}

func pubTitleKey(publisher, title string) string {
	return canon.NormalizePublisher(publisher) + "\x00" + title
}

func dayKey(m *model.Mention) string {
	if m.PublishedAt.IsZero() {
		return ""
	}
	return m.PublishedAt.UTC().Format("2006-01-02")
}

// Add registers a mention under all its keys.
func (x *Index) Add(m *model.Mention) {
	x.byURL[canon.Canonicalize(m.URL)] = m
	for _, u := range m.SourceURLs {
		x.byURL[canon.Canonicalize(u)] = m
	}

	title := canon.NormalizeTitle(m.Title)
	if title == "" {
		return
	}
	pub := canon.NormalizePublisher(m.Publisher)
	if pub != "" {
		key := pubTitleKey(pub, title)
		if _, ok := x.byPubTitle[key]; !ok {
			x.byPubTitle[key] = m
		}
	}

	x.added++
	e := &entry{m: m, title: title, seq: x.added}
	if pub != "" {
		x.byPublisher[pub] = append(x.byPublisher[pub], e)
	}
	if day := dayKey(m); day != "" {
		x.byDay[day] = append(x.byDay[day], e)
	}
}

// Find returns the match for a, or nil when a starts a new mention.
func (x *Index) Find(a *model.RawArticle) *Match {
	_, match := x.find(a)
	return match
}

func (x *Index) find(a *model.RawArticle) (*model.Mention, *Match) {
	c := a.CanonicalURL
	if c == "" {
		c = canon.Canonicalize(a.URL)
	}
	if m, ok := x.byURL[c]; ok {
		return m, &Match{MentionID: m.ID, Tier: 1, Score: 1}
	}

	title := canon.NormalizeTitle(a.Title)
	if title == "" {
		return nil, nil
	}
	pub := canon.NormalizePublisher(a.Publisher)
	if pub != "" {
		if m, ok := x.byPubTitle[pubTitleKey(pub, title)]; ok {
			return m, &Match{MentionID: m.ID, Tier: 2, Score: 1}
		}
	}

	var best *entry
	bestScore := 0.0
	seen := make(map[*entry]bool)
	try := func(list []*entry) {
		for _, e := range list {
			if seen[e] {
				continue
			}
			seen[e] = true
			s := Ratio(title, e.title)
			if s < x.threshold {
				continue
			}
			if s > bestScore || (s == bestScore && best != nil && e.seq < best.seq) {
				best, bestScore = e, s
			}
		}
	}
	if pub != "" {
		try(x.byPublisher[pub])
	}
	if !a.PublishedAt.IsZero() {
		try(x.byDay[a.PublishedAt.UTC().Format("2006-01-02")])
	}
	if best == nil {
		return nil, nil
	}
	return best.m, &Match{MentionID: best.m.ID, Tier: 3, Score: bestScore}
}

// Assign merges a into its matching mention or creates a new one. The
// returned mention is the one to persist; match is nil for a new mention.
func (x *Index) Assign(a *model.RawArticle) (*model.Mention, *Match) {
	if a.CanonicalURL == "" {
		a.CanonicalURL = canon.Canonicalize(a.URL)
	}
	if a.ID == "" {
		a.ID = canon.ID(a.URL)
	}

	m, match := x.find(a)
	if match == nil {
		m = newMention(a)
		x.Add(m)
		return m, nil
	}

	absorb(m, a)
	x.byURL[a.CanonicalURL] = m
	return m, match
}
