// Package resolve merges project cards into canonical projects.
//
// Cards match when their normalized company and location keys are equal.
// Cards missing either key become projects of their own. After geocoding,
// projects of the same company in one H3 cell can be merged as well.
package resolve

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"newspipe/pkg/deadline"
	"newspipe/pkg/geo"
	"newspipe/pkg/model"
	"newspipe/pkg/store"
)

// DefaultH3Resolution groups projects within a few kilometers.
const DefaultH3Resolution = 6

// statusRank orders lifecycle hints; the furthest along wins a merge.
var statusRank = map[string]int{
	"":                   0,
	"proposed":           1,
	"approved":           2,
	"under_construction": 3,
	"operational":        4,
	"cancelled":          5,
}

// Store is what resolution reads and writes.
type Store interface {
	ListUnresolvedCards(ctx context.Context, limit int) ([]model.ProjectCard, error)
	ListProjects(ctx context.Context, f store.ProjectFilter) ([]model.Project, error)
	SaveProject(ctx context.Context, p *model.Project) error
	MergeProjects(ctx context.Context, survivor *model.Project, absorbed []string) error
}

// Options controls one run.
type Options struct {
	Limit        int
	DryRun       bool
	Proximity    bool
	H3Resolution int
}

// Resolver merges cards into projects.
type Resolver struct {
	st  Store
	now func() time.Time
}

// New returns a Resolver backed by st.
func New(st Store) *Resolver {
	return &Resolver{st: st, now: func() time.Time { return time.Now().UTC() }}
}

// Key returns the matching key for a company and location, or "" when
// either part is missing.
func Key(company, location string) string {
	ck, lk := CompanyKey(company), LocationKey(location)
	if ck == "" || lk == "" {
		return ""
	}
	return ck + "|" + lk
}

// cardKey falls back to a per-card key so unmatched cards never collapse.
func cardKey(c *model.ProjectCard) string {
	if k := Key(c.Company, c.LocationText); k != "" {
		return k
	}
	return "card|" + c.ID
}

// FromCard starts a project from a single card.
func FromCard(c *model.ProjectCard) model.Project {
	p := model.Project{ID: projectID(cardKey(c))}
	MergeCard(&p, c)
	return p
}

// MergeCard folds a card into a project. A card already attached is ignored,
// so merging is idempotent. It reports whether the project changed.
func MergeCard(p *model.Project, c *model.ProjectCard) bool {
	if contains(p.CardIDs, c.ID) {
		return false
	}
	other := model.Project{
		Name:          c.ProjectName,
		Company:       c.Company,
		LocationText:  c.LocationText,
		SizeMW:        c.SizeMW,
		SizeSqft:      c.SizeSqft,
		InvestmentUSD: c.InvestmentUSD,
		AnnouncedDate: c.AnnouncedDate,
		Status:        c.StatusHint,
		Confidence:    c.Confidence,
		MentionIDs:    []string{c.MentionID},
		CardIDs:       []string{c.ID},
	}
	if c.SourceURL != "" {
		other.SourceURLs = []string{c.SourceURL}
	}
	MergeProject(p, &other)
	return true
}

// MergeProject folds o into p. Text keeps the longest value, numbers the
// largest, the date the earliest; lists are unioned and sorted. Coordinates
// are taken from o only when p has none. Merging a project into an equal
// project leaves it unchanged.
func MergeProject(p, o *model.Project) {
	p.Name = longest(p.Name, o.Name)
	p.Company = longest(p.Company, o.Company)
	p.LocationText = longest(p.LocationText, o.LocationText)
	p.SizeMW = max(p.SizeMW, o.SizeMW)
	p.SizeSqft = max(p.SizeSqft, o.SizeSqft)
	p.InvestmentUSD = max(p.InvestmentUSD, o.InvestmentUSD)
	p.AnnouncedDate = earliest(p.AnnouncedDate, o.AnnouncedDate)
	if statusRank[o.Status] > statusRank[p.Status] {
		p.Status = o.Status
	}
	if o.Confidence.Rank() > p.Confidence.Rank() {
		p.Confidence = o.Confidence
	}
	p.MentionIDs = union(p.MentionIDs, o.MentionIDs)
	p.SourceURLs = union(p.SourceURLs, o.SourceURLs)
	p.CardIDs = union(p.CardIDs, o.CardIDs)

	if !p.HasCoordinates() && o.HasCoordinates() {
		p.Lat, p.Lng = o.Lat, o.Lng
		p.GeocodeStatus = o.GeocodeStatus
		p.GeocodePrecision = o.GeocodePrecision
		p.GeocodeProvider = o.GeocodeProvider
	}
	if !o.CreatedAt.IsZero() && (p.CreatedAt.IsZero() || o.CreatedAt.Before(p.CreatedAt)) {
		p.CreatedAt = o.CreatedAt
	}
}

func longest(a, b string) string {
	if len(b) > len(a) || (len(b) == len(a) && b < a) {
		return b
	}
	return a
}

func earliest(a, b string) string {
	if a == "" || (b != "" && b < a) {
		return b
	}
	return a
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}

func union(a, b []string) []string {
	seen := make(map[string]bool, len(a)+len(b))
	var out []string
	for _, list := range [][]string{a, b} {
		for _, s := range list {
			if s != "" && !seen[s] {
				seen[s] = true
				out = append(out, s)
			}
		}
	}
	sort.Strings(out)
	return out
}

// Run attaches every unresolved card to a project, creating projects as needed.
func (r *Resolver) Run(ctx context.Context, dl *deadline.Deadline, opts Options) (model.StageResult, error) {
	var res model.StageResult

	existing, err := r.st.ListProjects(ctx, store.ProjectFilter{})
	if err != nil {
		return res, fmt.Errorf("list projects: %w", err)
	}
	byID := make(map[string]*model.Project, len(existing))
	byKey := make(map[string]*model.Project, len(existing))
	for i := range existing {
		p := &existing[i]
		byID[p.ID] = p
		if k := Key(p.Company, p.LocationText); k != "" {
			if _, ok := byKey[k]; !ok {
				byKey[k] = p
			}
		}
	}

	cards, err := r.st.ListUnresolvedCards(ctx, opts.Limit)
	if err != nil {
		return res, fmt.Errorf("list cards: %w", err)
	}

	created := 0
	for i := range cards {
		if dl.Expired() {
			res.TimedOut = true
			break
		}
		if err := ctx.Err(); err != nil {
			return res, err
		}
		c := &cards[i]
		key := cardKey(c)

		p := byKey[key]
		if p == nil {
			p = byID[projectID(key)]
		}
		if p == nil {
			fresh := FromCard(c)
			p = &fresh
			byID[p.ID] = p
			created++
		} else if !MergeCard(p, c) {
			res.Skipped++
			continue
		}
		byKey[key] = p
		p.UpdatedAt = r.now()
		if !p.HasCoordinates() {
			// New location text may now be geocodable.
			p.GeocodeStatus = model.StatusPending
		}

		if opts.DryRun {
			slog.Info("Dry run: resolved card", "card", c.ID, "project", p.ID, "company", p.Company, "location", p.LocationText)
			res.Processed++
			continue
		}
		if err := r.st.SaveProject(ctx, p); err != nil {
			res.Failed++
			slog.Error("Failed to save project", "project", p.ID, "card", c.ID, "error", err)
			continue
		}
		res.Processed++
	}

	slog.Info("Resolution complete", "cards", res.Processed, "new_projects", created, "projects", len(byID))

	if opts.Proximity && !res.TimedOut {
		merged, err := r.MergeNearby(ctx, dl, opts)
		if err != nil {
			return res, err
		}
		res.Add(merged)
	}
	return res, nil
}

// MergeNearby merges geocoded projects of the same company that fall in the
// same H3 cell. The project with the smallest ID survives.
func (r *Resolver) MergeNearby(ctx context.Context, dl *deadline.Deadline, opts Options) (model.StageResult, error) {
	var res model.StageResult
	resolution := opts.H3Resolution
	if resolution <= 0 {
		resolution = DefaultH3Resolution
	}

	projects, err := r.st.ListProjects(ctx, store.ProjectFilter{WithCoords: true})
	if err != nil {
		return res, fmt.Errorf("list geocoded projects: %w", err)
	}

	groups := make(map[string][]*model.Project)
	var keys []string
	for i := range projects {
		p := &projects[i]
		ck := CompanyKey(p.Company)
		if ck == "" {
			continue
		}
		cell, err := geo.Cell(*p.Lat, *p.Lng, resolution)
		if err != nil {
			slog.Warn("Skipping project without a valid cell", "project", p.ID, "error", err)
			continue
		}
		k := ck + "|" + cell
		if _, ok := groups[k]; !ok {
			keys = append(keys, k)
		}
		groups[k] = append(groups[k], p)
	}
	sort.Strings(keys)

	for _, k := range keys {
		group := groups[k]
		if len(group) < 2 {
			continue
		}
		if dl.Expired() {
			res.TimedOut = true
			break
		}
		// ListProjects orders by ID, so group[0] is the survivor.
		survivor := group[0]
		absorbed := make([]string, 0, len(group)-1)
		for _, o := range group[1:] {
			MergeProject(survivor, o)
			absorbed = append(absorbed, o.ID)
		}
		survivor.UpdatedAt = r.now()

		if opts.DryRun {
			slog.Info("Dry run: proximity merge", "survivor", survivor.ID, "absorbed", absorbed)
			res.Processed++
			continue
		}
		if err := r.st.MergeProjects(ctx, survivor, absorbed); err != nil {
			res.Failed++
			slog.Error("Failed to merge nearby projects", "survivor", survivor.ID, "error", err)
			continue
		}
		slog.Info("Merged nearby projects", "survivor", survivor.ID, "absorbed", absorbed, "cell", k)
		res.Processed++
	}
	return res, nil
}
