// Package classify labels mentions as project announcements, context or noise
// using versioned keyword rules.
package classify

import (
	"context"
	"fmt"
	"log/slog"
	"regexp"
	"sort"
	"strings"
	"time"

	"newspipe/pkg/deadline"
	"newspipe/pkg/model"
)

// FlagNoiseOverlap marks a noise label on text that also reads like an announcement.
const FlagNoiseOverlap = "noise_overlap"

// Signal categories.
const (
	CatDataCenter   = "dc"
	CatLocation     = "location"
	CatCapacity     = "capacity"
	CatCompany      = "company"
	CatConstruction = "construction"
	CatNoise        = "noise"
)

var (
	powerPattern = regexp.MustCompile(`(?i)\b\d+(?:[.,]\d+)?\s*-?\s*(?:mw|megawatts?|gw|gigawatts?)\b`)
	areaPattern  = regexp.MustCompile(`(?i)\b\d[\d,.]*\s*(?:million\s+)?(?:sq\.?\s*ft|square[- ]f(?:ee|oo)t)\b`)
	moneyPattern = regexp.MustCompile(`(?i)\$\s?\d[\d,.]*\s*(?:billion|million|bn|b|m)\b`)
	acresPattern = regexp.MustCompile(`(?i)\b\d[\d,.]*\s*-?\s*acres?\b`)
)

// Result is the outcome for one text.
type Result struct {
	Label      model.Label
	Confidence model.Confidence
	Signals    []string // "category:matched text", sorted
	Flags      []string
}

// Classifier applies one compiled rule set.
type Classifier struct {
	version      string
	noise        *regexp.Regexp
	dataCenter   *regexp.Regexp
	places       *regexp.Regexp
	companies    *regexp.Regexp
	construction *regexp.Regexp
}

// New compiles rules. A nil rules value uses DefaultRules.
func New(rules *Rules) (*Classifier, error) {
	if rules == nil {
		rules = DefaultRules()
	}
	c := &Classifier{version: rules.Version}
	var err error
	for _, f := range []struct {
		dst   **regexp.Regexp
		words []string
		name  string
	}{
		{&c.noise, rules.Noise, "noise"},
		{&c.dataCenter, rules.DataCenter, "data_center"},
		{&c.places, rules.Places, "places"},
		{&c.companies, rules.Companies, "companies"},
		{&c.construction, rules.Construction, "construction"},
	} {
		if *f.dst, err = wordPattern(f.words); err != nil {
			return nil, fmt.Errorf("rules %s: %w", f.name, err)
		}
	}
	return c, nil
}

// Version returns the rule set version recorded with each classification.
func (c *Classifier) Version() string { return c.version }

// wordPattern builds a case-insensitive whole-word alternation, longest first.
func wordPattern(words []string) (*regexp.Regexp, error) {
	var quoted []string
	for _, w := range words {
		if w = strings.TrimSpace(w); w != "" {
			quoted = append(quoted, regexp.QuoteMeta(strings.ToLower(w)))
		}
	}
	if len(quoted) == 0 {
		return nil, nil
	}
	sort.SliceStable(quoted, func(i, j int) bool { return len(quoted[i]) > len(quoted[j]) })
	return regexp.Compile(`(?i)\b(?:` + strings.Join(quoted, "|") + `)\b`)
}

func matches(re *regexp.Regexp, text string) []string {
	if re == nil {
		return nil
	}
	var out []string
	seen := make(map[string]bool)
	for _, m := range re.FindAllString(text, -1) {
		m = strings.ToLower(strings.Join(strings.Fields(m), " "))
		if !seen[m] {
			seen[m] = true
			out = append(out, m)
		}
	}
	return out
}

// Classify labels a text. It is deterministic for a given rule set.
//
// Noise keywords short-circuit to noise; when the text would otherwise be an
// announcement the result carries FlagNoiseOverlap. Without noise, a
// data-center keyword plus two or more supporting categories (location,
// capacity, company, construction) is an announcement, high confidence from
// three. Everything else is low-confidence context.
func (c *Classifier) Classify(text string) Result {
	signals := make(map[string][]string)
	add := func(cat string, found []string) {
		if len(found) > 0 {
			signals[cat] = append(signals[cat], found...)
		}
	}

	add(CatNoise, matches(c.noise, text))
	add(CatDataCenter, matches(c.dataCenter, text))
	add(CatLocation, matches(c.places, text))
	add(CatCompany, matches(c.companies, text))
	add(CatConstruction, matches(c.construction, text))
	add(CatCapacity, matches(powerPattern, text))
	add(CatCapacity, matches(areaPattern, text))
	add(CatCapacity, matches(moneyPattern, text))
	add(CatCapacity, matches(acresPattern, text))

	supporting := 0
	for _, cat := range []string{CatLocation, CatCapacity, CatCompany, CatConstruction} {
		if len(signals[cat]) > 0 {
			supporting++
		}
	}
	hasDC := len(signals[CatDataCenter]) > 0
	announcement := hasDC && supporting >= 2

	res := Result{Signals: flatten(signals)}
	switch {
	case len(signals[CatNoise]) > 0:
		res.Label = model.LabelNoise
		res.Confidence = model.ConfidenceHigh
		if hasDC {
			res.Confidence = model.ConfidenceMedium
		}
		if announcement {
			res.Confidence = model.ConfidenceLow
			res.Flags = []string{FlagNoiseOverlap}
		}
	case announcement:
		res.Label = model.LabelAnnouncement
		res.Confidence = model.ConfidenceMedium
		if supporting >= 3 {
			res.Confidence = model.ConfidenceHigh
		}
	default:
		res.Label = model.LabelContext
		res.Confidence = model.ConfidenceLow
	}
	return res
}

func flatten(signals map[string][]string) []string {
	var out []string
	for cat, list := range signals {
		for _, s := range list {
			out = append(out, cat+":"+s)
		}
	}
	sort.Strings(out)
	return out
}

// Store is what the classification stage reads and writes.
type Store interface {
	ListUnclassifiedMentions(ctx context.Context, limit int) ([]model.Mention, error)
	SaveClassification(ctx context.Context, c *model.ClassifiedMention) error
}

// Options controls one run.
type Options struct {
	Limit  int
	DryRun bool
}

// Run classifies every mention without a classification.
func (c *Classifier) Run(ctx context.Context, st Store, dl *deadline.Deadline, opts Options) (model.StageResult, error) {
	var res model.StageResult
	mentions, err := st.ListUnclassifiedMentions(ctx, opts.Limit)
	if err != nil {
		return res, fmt.Errorf("list unclassified mentions: %w", err)
	}

	counts := make(map[model.Label]int)
	for i := range mentions {
		if dl.Expired() {
			res.TimedOut = true
			break
		}
		if err := ctx.Err(); err != nil {
			return res, err
		}
		m := &mentions[i]
		r := c.Classify(m.Text())
		counts[r.Label]++

		if len(r.Flags) > 0 {
			slog.Warn("Classification rules disagree", "mention", m.ID, "title", m.Title, "flags", r.Flags, "signals", r.Signals)
		}
		if opts.DryRun {
			slog.Info("Dry run: classified", "mention", m.ID, "label", r.Label, "confidence", r.Confidence)
			res.Processed++
			continue
		}

		err := st.SaveClassification(ctx, &model.ClassifiedMention{
			MentionID:    m.ID,
			Label:        r.Label,
			Confidence:   r.Confidence,
			Signals:      r.Signals,
			Flags:        r.Flags,
			RulesVersion: c.version,
			CreatedAt:    time.Now().UTC(),
		})
		if err != nil {
			res.Failed++
			slog.Error("Failed to save classification", "mention", m.ID, "error", err)
			continue
		}
		res.Processed++
	}

	slog.Info("Classification complete",
		"announcements", counts[model.LabelAnnouncement],
		"context", counts[model.LabelContext],
		"noise", counts[model.LabelNoise],
		"rules", c.version)
	return res, nil
}
