// Package export writes geocoded projects as a GeoJSON FeatureCollection.
// Output depends only on database state: features are ordered by project ID,
// properties are emitted with sorted keys and jitter is seeded per project.
package export

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"math"
	"os"
	"path/filepath"
	"sort"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"

	"newspipe/pkg/deadline"
	"newspipe/pkg/geo"
	"newspipe/pkg/model"
	"newspipe/pkg/store"
)

// Options controls one export.
type Options struct {
	Path         string
	JitterMeters float64
	H3Resolution int // 0 omits the h3 property
	Indent       bool
	DryRun       bool
}

// Lister reads projects.
type Lister interface {
	ListProjects(ctx context.Context, f store.ProjectFilter) ([]model.Project, error)
}

// Exporter builds the feature collection.
type Exporter struct {
	st     Lister
	region *geo.Region
}

// New returns an Exporter. Projects outside region are left out; a nil
// region accepts every coordinate.
func New(st Lister, region *geo.Region) *Exporter {
	return &Exporter{st: st, region: region}
}

// Build returns the collection and how many geocoded projects were left out.
func (e *Exporter) Build(ctx context.Context, opts Options) (*geojson.FeatureCollection, int, error) {
	projects, err := e.st.ListProjects(ctx, store.ProjectFilter{GeocodeStatus: model.StatusOK, WithCoords: true})
	if err != nil {
		return nil, 0, fmt.Errorf("list projects: %w", err)
	}
	sort.Slice(projects, func(i, j int) bool { return projects[i].ID < projects[j].ID })

	fc := geojson.NewFeatureCollection()
	skipped := 0
	for i := range projects {
		p := &projects[i]
		if e.region != nil && !e.region.Contains(*p.Lat, *p.Lng) {
			slog.Warn("Skipping project outside region", "project", p.ID, "lat", *p.Lat, "lng", *p.Lng)
			skipped++
			continue
		}
		f, err := feature(p, opts)
		if err != nil {
			return nil, skipped, err
		}
		fc.Append(f)
	}
	return fc, skipped, nil
}

func feature(p *model.Project, opts Options) (*geojson.Feature, error) {
	pt := geo.Jitter(geo.Point{Lat: *p.Lat, Lon: *p.Lng}, p.ID, opts.JitterMeters)
	f := geojson.NewFeature(orb.Point{round6(pt.Lon), round6(pt.Lat)})
	f.ID = p.ID

	name := p.Name
	if name == "" {
		name = orUnknown(p.Company) + " data center"
	}
	props := geojson.Properties{
		"project_id":         p.ID,
		"name":               name,
		"company":            orUnknown(p.Company),
		"location_text":      orUnknown(p.LocationText),
		"size_mw":            nullIfZero(p.SizeMW),
		"size_sqft":          nullIfZero(p.SizeSqft),
		"investment_usd":     nullIfZero(p.InvestmentUSD),
		"announced_date":     nullIfEmpty(p.AnnouncedDate),
		"status":             orUnknown(p.Status),
		"confidence":         string(p.Confidence),
		"geocode_confidence": p.GeocodePrecision,
		"geocode_provider":   p.GeocodeProvider,
		"mention_ids":        nonNil(p.MentionIDs),
		"source_urls":        nonNil(p.SourceURLs),
		"source_count":       len(p.SourceURLs),
	}
	if opts.H3Resolution > 0 {
		cell, err := geo.Cell(*p.Lat, *p.Lng, opts.H3Resolution)
		if err != nil {
			return nil, fmt.Errorf("project %s: %w", p.ID, err)
		}
		props["h3"] = cell
	}
	f.Properties = props
	return f, nil
}

func round6(v float64) float64 {
	return math.Round(v*1e6) / 1e6
}

func orUnknown(s string) string {
	if s == "" {
		return "Unknown"
	}
	return s
}

func nullIfZero(v float64) any {
	if v == 0 {
		return nil
	}
	return v
}

func nullIfEmpty(s string) any {
	if s == "" {
		return nil
	}
	return s
}

func nonNil(list []string) []string {
	if list == nil {
		return []string{}
	}
	return list
}

// Marshal encodes the collection. Map keys are sorted by encoding/json.
func Marshal(fc *geojson.FeatureCollection, indent bool) ([]byte, error) {
	var data []byte
	var err error
	if indent {
		data, err = json.MarshalIndent(fc, "", "  ")
	} else {
		data, err = json.Marshal(fc)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to marshal GeoJSON: %w", err)
	}
	return append(data, '\n'), nil
}

// WriteFile replaces path atomically.
func WriteFile(path string, data []byte) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create output directory: %w", err)
	}
	tmp, err := os.CreateTemp(filepath.Dir(path), ".export-*.geojson")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to write output file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	if err := os.Chmod(tmp.Name(), 0o644); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), path)
}

// Run builds and writes the export. It is a single unit of work, so the
// deadline is only checked before starting; a spent budget returns
// deadline.ErrDeadline and leaves the previous file in place.
func (e *Exporter) Run(ctx context.Context, dl *deadline.Deadline, opts Options) (model.StageResult, error) {
	var res model.StageResult
	if err := dl.Check(); err != nil {
		return res, err
	}

	fc, skipped, err := e.Build(ctx, opts)
	if err != nil {
		return res, err
	}
	res.Processed = len(fc.Features)
	res.Skipped = skipped

	data, err := Marshal(fc, opts.Indent)
	if err != nil {
		return res, err
	}
	if opts.DryRun {
		slog.Info("Dry run: export not written", "features", res.Processed, "bytes", len(data), "path", opts.Path)
		return res, nil
	}
	if err := WriteFile(opts.Path, data); err != nil {
		return res, err
	}
	slog.Info("Exported projects", "features", res.Processed, "skipped", skipped, "path", opts.Path, "bytes", len(data))
	return res, nil
}
