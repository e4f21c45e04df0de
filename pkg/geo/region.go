package geo

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
)

// BoundaryTolerance accepts points this close (meters) outside a boundary
// polygon, so simplified shapes do not reject border towns.
const BoundaryTolerance = 2000.0

// Region validates coordinates against an inclusive bounding box and,
// when loaded, a boundary polygon.
type Region struct {
	Name  string
	Bound orb.Bound
	shape orb.MultiPolygon
}

// NewRegion returns a box-only region.
func NewRegion(name string, minLat, maxLat, minLng, maxLng float64) *Region {
	return &Region{
		Name:  name,
		Bound: orb.Bound{Min: orb.Point{minLng, minLat}, Max: orb.Point{maxLng, maxLat}},
	}
}

// LoadBoundary reads polygon features from a GeoJSON file (e.g. the output of
// shp2geojson). Every polygon in the file becomes part of the boundary.
func (r *Region) LoadBoundary(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read region boundary: %w", err)
	}
	fc, err := geojson.UnmarshalFeatureCollection(data)
	if err != nil {
		return fmt.Errorf("failed to parse region boundary: %w", err)
	}

	var shape orb.MultiPolygon
	for _, f := range fc.Features {
		switch g := f.Geometry.(type) {
		case orb.Polygon:
			shape = append(shape, g)
		case orb.MultiPolygon:
			shape = append(shape, g...)
		}
	}
	if len(shape) == 0 {
		return fmt.Errorf("region boundary %s has no polygons", path)
	}
	r.shape = shape
	slog.Info("Loaded region boundary", "region", r.Name, "polygons", len(shape))
	return nil
}

// HasBoundary reports whether a polygon was loaded.
func (r *Region) HasBoundary() bool {
	return len(r.shape) > 0
}

// Contains reports whether the coordinate lies in the region. The box check
// is inclusive; the polygon check allows BoundaryTolerance.
func (r *Region) Contains(lat, lng float64) bool {
	p := orb.Point{lng, lat}
	if !r.Bound.Contains(p) {
		return false
	}
	if len(r.shape) == 0 || containsPoint(r.shape, p) {
		return true
	}
	return degreesToMeters(distanceToGeometry(p, r.shape), lat) <= BoundaryTolerance
}
