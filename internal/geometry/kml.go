package geometry

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/ohub/outage-aggregator/internal/models"
)

// ParseKMLCoordinates parses a KML coordinate string of
// whitespace-separated "lon,lat[,alt]" tuples into (lat, lon) pairs.
// KML puts longitude first; the output is swapped to the canonical
// order. An empty string parses to an empty sequence.
func ParseKMLCoordinates(s string) ([]models.LatLng, error) {
	points := []models.LatLng{}

	for _, tuple := range strings.Fields(s) {
		parts := strings.Split(tuple, ",")
		if len(parts) < 2 {
			return nil, fmt.Errorf("%w: coordinate tuple %q", ErrMalformedGeometry, tuple)
		}

		lon, err := strconv.ParseFloat(parts[0], 64)
		if err != nil {
			return nil, fmt.Errorf("%w: longitude %q", ErrMalformedGeometry, parts[0])
		}
		lat, err := strconv.ParseFloat(parts[1], 64)
		if err != nil {
			return nil, fmt.Errorf("%w: latitude %q", ErrMalformedGeometry, parts[1])
		}

		points = append(points, models.LatLng{Lat: lat, Lon: lon})
	}

	return points, nil
}
