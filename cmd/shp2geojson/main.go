// Command shp2geojson converts a shapefile, such as the Census state
// boundaries, into a GeoJSON region boundary for the geocoder.
package main

import (
	"encoding/json"
	"fmt"
	"log"
	"os"
	"strings"

	"github.com/jonas-p/go-shp"
	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
	"github.com/paulmach/orb/simplify"
	"github.com/urfave/cli/v2"
)

type options struct {
	Input    string
	Output   string
	Where    []string // KEY=VALUE attribute filters, all must match
	Simplify float64  // Douglas-Peucker tolerance in degrees, 0 keeps every vertex
}

func main() {
	var opts options
	app := &cli.App{
		Name:  "shp2geojson",
		Usage: "Convert a shapefile into a GeoJSON boundary",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "input", Aliases: []string{"i"}, Usage: "Path to input .shp file", Required: true, Destination: &opts.Input},
			&cli.StringFlag{Name: "output", Aliases: []string{"o"}, Usage: "Path to output .geojson file", Required: true, Destination: &opts.Output},
			&cli.StringSliceFlag{Name: "where", Usage: "Keep features whose attribute matches, e.g. STUSPS=TX (repeatable)"},
			&cli.Float64Flag{Name: "simplify", Usage: "Simplification tolerance in degrees (e.g. 0.01)", Destination: &opts.Simplify},
		},
		Action: func(c *cli.Context) error {
			opts.Where = c.StringSlice("where")
			n, err := run(opts)
			if err != nil {
				return err
			}
			fmt.Fprintf(c.App.Writer, "Successfully converted %d features to %s\n", n, opts.Output)
			return nil
		},
	}

	if err := app.Run(os.Args); err != nil {
		log.Fatal(err)
	}
}

func run(opts options) (int, error) {
	filter, err := parseWhere(opts.Where)
	if err != nil {
		return 0, err
	}
	fc, err := convert(opts.Input, filter, opts.Simplify)
	if err != nil {
		return 0, err
	}
	if len(fc.Features) == 0 {
		return 0, fmt.Errorf("no features matched %v", opts.Where)
	}

	data, err := json.MarshalIndent(fc, "", "  ")
	if err != nil {
		return 0, fmt.Errorf("failed to marshal GeoJSON: %w", err)
	}
	if err := os.WriteFile(opts.Output, data, 0o644); err != nil {
		return 0, fmt.Errorf("failed to write output file: %w", err)
	}
	return len(fc.Features), nil
}

// parseWhere turns KEY=VALUE pairs into a map. Keys compare case-insensitively.
func parseWhere(pairs []string) (map[string]string, error) {
	out := make(map[string]string, len(pairs))
	for _, p := range pairs {
		k, v, ok := strings.Cut(p, "=")
		if !ok || strings.TrimSpace(k) == "" {
			return nil, fmt.Errorf("invalid --where %q, want KEY=VALUE", p)
		}
		out[strings.ToUpper(strings.TrimSpace(k))] = strings.TrimSpace(v)
	}
	return out, nil
}

func convert(inputPath string, filter map[string]string, tolerance float64) (*geojson.FeatureCollection, error) {
	shape, err := shp.Open(inputPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open shapefile: %w", err)
	}
	defer shape.Close()

	fields := shape.Fields()
	fieldNames := make([]string, len(fields))
	for i, f := range fields {
		fieldNames[i] = f.String()
	}

	fc := geojson.NewFeatureCollection()
	for shape.Next() {
		n, p := shape.Shape()

		attrs := make(map[string]string, len(fieldNames))
		for i, name := range fieldNames {
			// dBase values are space padded and may carry NULs.
			attrs[name] = strings.TrimRight(shape.ReadAttribute(n, i), " \x00")
		}
		if !matches(attrs, filter) {
			continue
		}

		var geometry orb.Geometry
		switch s := p.(type) {
		case *shp.Null:
			continue
		case *shp.PolyLine:
			geometry = convertPolyLine(s)
		case *shp.Polygon:
			geometry = convertPolygon(s)
		case *shp.Point:
			geometry = orb.Point{s.X, s.Y}
		default:
			log.Printf("Skipping unsupported shape type: %T", p)
			continue
		}
		if tolerance > 0 {
			geometry = simplify.DouglasPeucker(tolerance).Simplify(geometry)
		}

		f := geojson.NewFeature(geometry)
		for name, val := range attrs {
			f.Properties[name] = val
		}
		fc.Append(f)
	}

	if err := shape.Err(); err != nil {
		return nil, fmt.Errorf("error iterating shapes: %w", err)
	}
	return fc, nil
}

func matches(attrs, filter map[string]string) bool {
	for k, want := range filter {
		found := false
		for name, val := range attrs {
			if strings.EqualFold(name, k) {
				found = strings.EqualFold(val, want)
				break
			}
		}
		if !found {
			return false
		}
	}
	return true
}

func parts(numParts int32, numPoints int32, starts []int32) [][2]int32 {
	out := make([][2]int32, 0, numParts)
	for i := 0; i < int(numParts); i++ {
		end := numPoints
		if i < int(numParts)-1 {
			end = starts[i+1]
		}
		out = append(out, [2]int32{starts[i], end})
	}
	return out
}

func convertPolyLine(s *shp.PolyLine) orb.MultiLineString {
	var multiline orb.MultiLineString
	for _, r := range parts(s.NumParts, s.NumPoints, s.Parts) {
		var line orb.LineString
		for j := r[0]; j < r[1]; j++ {
			line = append(line, orb.Point{s.Points[j].X, s.Points[j].Y})
		}
		multiline = append(multiline, line)
	}
	return multiline
}

// convertPolygon groups rings into polygons. Shapefile outer rings are
// clockwise; counter-clockwise rings are holes of the preceding outer ring.
func convertPolygon(s *shp.Polygon) orb.Geometry {
	var multi orb.MultiPolygon
	for _, r := range parts(s.NumParts, s.NumPoints, s.Parts) {
		var ring orb.Ring
		for j := r[0]; j < r[1]; j++ {
			ring = append(ring, orb.Point{s.Points[j].X, s.Points[j].Y})
		}
		if ring.Orientation() == orb.CCW && len(multi) > 0 {
			last := len(multi) - 1
			multi[last] = append(multi[last], ring)
			continue
		}
		multi = append(multi, orb.Polygon{ring})
	}
	if len(multi) == 1 {
		return multi[0]
	}
	return multi
}
