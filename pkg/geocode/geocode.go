// Package geocode turns project location text into coordinates inside the
// configured region.
package geocode

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"newspipe/pkg/cache"
	"newspipe/pkg/config"
	"newspipe/pkg/deadline"
	"newspipe/pkg/geo"
	"newspipe/pkg/model"
	"newspipe/pkg/store"
	"newspipe/pkg/tracker"
)

// Stage is the status stage name.
const Stage = "geocode"

var (
	// ErrNoResult means no provider found the location.
	ErrNoResult = errors.New("no geocoding result")
	// ErrOutsideRegion means the only results lie outside the region.
	ErrOutsideRegion = errors.New("geocoding result outside region")
)

// Result is one resolved coordinate.
type Result struct {
	Lat       float64 `json:"lat"`
	Lng       float64 `json:"lng"`
	Precision string  `json:"precision"` // city, county, area
	Display   string  `json:"display,omitempty"`
	Provider  string  `json:"provider"`
}

// cached is what the cache stores per query; a miss is remembered too.
type cached struct {
	Result *Result `json:"result"`
	Err    string  `json:"err,omitempty"`
}

// Geocoder tries providers in order and validates against a region.
type Geocoder struct {
	providers    []Provider
	region       *geo.Region
	cache        cache.Cacher
	defaultState string
	tracker      *tracker.Tracker
}

// New creates a Geocoder. c may be nil to disable caching.
func New(providers []Provider, region *geo.Region, c cache.Cacher, defaultState string) *Geocoder {
	return &Geocoder{providers: providers, region: region, cache: c, defaultState: defaultState}
}

// WithTracker reports providers that answer without a result to t.
func (g *Geocoder) WithTracker(t *tracker.Tracker) *Geocoder {
	g.tracker = t
	return g
}

// FromConfig builds the provider chain: Google when a key is present (or
// when asked for explicitly), then Nominatim.
func FromConfig(cfg *config.Config, g Getter, c cache.Cacher) (*Geocoder, error) {
	gc := cfg.Geocode
	region := geo.NewRegion(gc.Region.Name, gc.Region.MinLat, gc.Region.MaxLat, gc.Region.MinLng, gc.Region.MaxLng)
	if gc.RegionPolygon != "" {
		if err := region.LoadBoundary(gc.RegionPolygon); err != nil {
			return nil, err
		}
	}

	var chain []Provider
	if gc.Provider == "auto" || gc.Provider == "google" || gc.Provider == "" {
		gp, err := NewGoogle(g, cfg.Keys.GoogleMaps, gc.GoogleURL, gc.MinInterval.Std())
		switch {
		case err == nil:
			chain = append(chain, gp)
		case gc.Provider == "google":
			return nil, err
		default:
			slog.Debug("Google geocoder disabled", "reason", err)
		}
	}
	if gc.Provider == "auto" || gc.Provider == "nominatim" || gc.Provider == "" {
		chain = append(chain, NewNominatim(g, gc.NominatimURL, gc.UserAgent, gc.MinInterval.Std()))
	}
	if len(chain) == 0 {
		return nil, fmt.Errorf("unknown geocode provider %q", gc.Provider)
	}
	return New(chain, region, c, gc.DefaultState), nil
}

// Geocode resolves location text. Empty or unusable text returns (nil, nil).
// Results outside the region are never returned.
func (g *Geocoder) Geocode(ctx context.Context, text string) (*Result, error) {
	q := Clean(text, g.defaultState)
	if q.Text == "" || q.StateOnly {
		return nil, nil
	}

	key := cache.Key("geocode", q.Text)
	if g.cache != nil {
		if data, ok := g.cache.GetCache(ctx, key); ok {
			var c cached
			if err := json.Unmarshal(data, &c); err == nil {
				return c.decode()
			}
		}
	}

	res, err := g.lookup(ctx, q)
	if g.cache != nil && (err == nil || errors.Is(err, ErrNoResult) || errors.Is(err, ErrOutsideRegion)) {
		c := cached{Result: res}
		if err != nil {
			c.Err = err.Error()
		}
		if data, mErr := json.Marshal(c); mErr == nil {
			if sErr := g.cache.SetCache(ctx, key, data); sErr != nil {
				slog.Warn("Failed to cache geocode result", "query", q.Text, "error", sErr)
			}
		}
	}
	return res, err
}

func (c cached) decode() (*Result, error) {
	switch c.Err {
	case "":
		return c.Result, nil
	case ErrOutsideRegion.Error():
		return nil, ErrOutsideRegion
	default:
		return nil, ErrNoResult
	}
}

func (g *Geocoder) lookup(ctx context.Context, q Query) (*Result, error) {
	var lastErr error = ErrNoResult
	for _, p := range g.providers {
		res, err := p.Lookup(ctx, q)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			if errors.Is(err, ErrNoResult) {
				if g.tracker != nil {
					g.tracker.TrackAPIZero(p.Name())
				}
			} else {
				slog.Warn("Geocoder failed", "provider", p.Name(), "query", q.Text, "error", err)
			}
			if !errors.Is(lastErr, ErrOutsideRegion) {
				lastErr = err
			}
			continue
		}
		if g.region != nil && !g.region.Contains(res.Lat, res.Lng) {
			slog.Warn("Rejected result outside region", "provider", p.Name(), "query", q.Text,
				"lat", res.Lat, "lng", res.Lng, "region", g.region.Name)
			lastErr = ErrOutsideRegion
			continue
		}
		if q.County && res.Precision == model.PrecisionCity {
			res.Precision = model.PrecisionCounty
		}
		return res, nil
	}
	return nil, lastErr
}

// Store is what the geocode stage reads and writes.
type Store interface {
	ListProjects(ctx context.Context, f store.ProjectFilter) ([]model.Project, error)
	SaveProject(ctx context.Context, p *model.Project) error
	SetStatus(ctx context.Context, rec *model.StatusRecord) error
}

// Options controls one run.
type Options struct {
	Limit       int
	DryRun      bool
	RetryFailed bool
}

// Run geocodes pending projects (and failed ones with RetryFailed).
func (g *Geocoder) Run(ctx context.Context, st Store, dl *deadline.Deadline, opts Options) (model.StageResult, error) {
	var res model.StageResult

	projects, err := st.ListProjects(ctx, store.ProjectFilter{GeocodeStatus: model.StatusPending, Limit: opts.Limit})
	if err != nil {
		return res, fmt.Errorf("list pending projects: %w", err)
	}
	if opts.RetryFailed {
		failed, err := st.ListProjects(ctx, store.ProjectFilter{GeocodeStatus: model.StatusFailed, Limit: opts.Limit})
		if err != nil {
			return res, fmt.Errorf("list failed projects: %w", err)
		}
		projects = append(projects, failed...)
	}

	for i := range projects {
		if dl.Expired() {
			res.TimedOut = true
			break
		}
		if err := ctx.Err(); err != nil {
			return res, err
		}
		p := &projects[i]

		r, err := g.Geocode(ctx, p.LocationText)
		detail := ""
		switch {
		case err != nil:
			if ctx.Err() != nil {
				return res, ctx.Err()
			}
			p.Lat, p.Lng = nil, nil
			p.GeocodeStatus = model.StatusFailed
			p.GeocodePrecision = ""
			p.GeocodeProvider = ""
			detail = err.Error()
		case r == nil:
			p.GeocodeStatus = model.StatusSkipped
			detail = "no usable location text"
		default:
			lat, lng := r.Lat, r.Lng
			p.Lat, p.Lng = &lat, &lng
			p.GeocodeStatus = model.StatusOK
			p.GeocodePrecision = r.Precision
			p.GeocodeProvider = r.Provider
			detail = r.Display
		}
		p.UpdatedAt = time.Now().UTC()

		if opts.DryRun {
			slog.Info("Dry run: geocoded", "project", p.ID, "location", p.LocationText, "status", p.GeocodeStatus, "detail", detail)
			count(&res, p.GeocodeStatus)
			continue
		}
		if err := st.SaveProject(ctx, p); err != nil {
			res.Failed++
			slog.Error("Failed to save geocode", "project", p.ID, "error", err)
			continue
		}
		count(&res, p.GeocodeStatus)
		if err := st.SetStatus(ctx, &model.StatusRecord{ProjectID: p.ID, Stage: Stage, Status: p.GeocodeStatus, Detail: detail}); err != nil {
			slog.Warn("Failed to record geocode status", "project", p.ID, "error", err)
		}
	}
	return res, nil
}

func count(res *model.StageResult, status string) {
	switch status {
	case model.StatusOK:
		res.Processed++
	case model.StatusSkipped:
		res.Skipped++
	default:
		res.Failed++
	}
}
