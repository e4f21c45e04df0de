package geo

import (
	"fmt"

	"github.com/uber/h3-go/v4"
)

// Cell returns the H3 cell index containing the coordinate at the given resolution.
func Cell(lat, lng float64, resolution int) (string, error) {
	c, err := h3.LatLngToCell(h3.NewLatLng(lat, lng), resolution)
	if err != nil {
		return "", fmt.Errorf("h3 cell for %f,%f: %w", lat, lng, err)
	}
	return c.String(), nil
}
