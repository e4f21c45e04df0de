package main

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/jonas-p/go-shp"
	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func square(minX, minY, maxX, maxY float64) []shp.Point {
	// clockwise, closed
	return []shp.Point{{X: minX, Y: minY}, {X: minX, Y: maxY}, {X: maxX, Y: maxY}, {X: maxX, Y: minY}, {X: minX, Y: minY}}
}

func reverse(pts []shp.Point) []shp.Point {
	out := make([]shp.Point, len(pts))
	for i, p := range pts {
		out[len(pts)-1-i] = p
	}
	return out
}

func writeStates(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "states.shp")
	w, err := shp.Create(path, shp.POLYGON)
	require.NoError(t, err)
	require.NoError(t, w.SetFields([]shp.Field{shp.StringField("STUSPS", 2), shp.StringField("NAME", 20)}))

	tx := shp.Polygon(*shp.NewPolyLine([][]shp.Point{
		square(-106, 26, -94, 36),
		reverse(square(-100, 30, -99, 31)), // hole
		square(-97.5, 26.5, -97, 27),       // island
	}))
	n := w.Write(&tx)
	require.NoError(t, w.WriteAttribute(int(n), 0, "TX"))
	require.NoError(t, w.WriteAttribute(int(n), 1, "Texas"))

	ok := shp.Polygon(*shp.NewPolyLine([][]shp.Point{square(-103, 33.6, -94.4, 37)}))
	n = w.Write(&ok)
	require.NoError(t, w.WriteAttribute(int(n), 0, "OK"))
	require.NoError(t, w.WriteAttribute(int(n), 1, "Oklahoma"))
	w.Close()
	return path
}

func TestRun_Where(t *testing.T) {
	in := writeStates(t)
	out := filepath.Join(t.TempDir(), "texas.geojson")

	n, err := run(options{Input: in, Output: out, Where: []string{"stusps=tx"}})
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	data, err := os.ReadFile(out)
	require.NoError(t, err)
	fc, err := geojson.UnmarshalFeatureCollection(data)
	require.NoError(t, err)
	require.Len(t, fc.Features, 1)
	assert.Equal(t, "Texas", fc.Features[0].Properties["NAME"])

	mp, ok := fc.Features[0].Geometry.(orb.MultiPolygon)
	require.True(t, ok, "expected MultiPolygon, got %T", fc.Features[0].Geometry)
	require.Len(t, mp, 2, "mainland and island")
	assert.Len(t, mp[0], 2, "mainland keeps its hole")
}

func TestRun_All(t *testing.T) {
	in := writeStates(t)
	out := filepath.Join(t.TempDir(), "all.geojson")
	n, err := run(options{Input: in, Output: out})
	require.NoError(t, err)
	assert.Equal(t, 2, n)
}

func TestRun_NoMatch(t *testing.T) {
	in := writeStates(t)
	_, err := run(options{Input: in, Output: filepath.Join(t.TempDir(), "x.geojson"), Where: []string{"STUSPS=CA"}})
	assert.Error(t, err)
}

func TestParseWhere(t *testing.T) {
	got, err := parseWhere([]string{"stusps = TX", "NAME=Texas"})
	require.NoError(t, err)
	assert.Equal(t, map[string]string{"STUSPS": "TX", "NAME": "Texas"}, got)

	_, err = parseWhere([]string{"STUSPS"})
	assert.Error(t, err)
	_, err = parseWhere([]string{"=TX"})
	assert.Error(t, err)
}
