package geometry

import (
	"math"

	"github.com/ohub/outage-aggregator/internal/models"
)

const earthRadiusM = 6378137.0

// ReprojectWebMercator converts Web Mercator (EPSG:3857/102100)
// easting/northing pairs to WGS84 (lat, lon) degrees. The transform is
// applied per point in one pass; only the output slice is allocated.
func ReprojectWebMercator(points [][2]float64) []models.LatLng {
	out := make([]models.LatLng, 0, len(points))
	for _, p := range points {
		out = append(out, webMercatorToWGS84(p[0], p[1]))
	}
	return out
}

func webMercatorToWGS84(x, y float64) models.LatLng {
	lon := x / earthRadiusM * 180 / math.Pi
	lat := (2*math.Atan(math.Exp(y/earthRadiusM)) - math.Pi/2) * 180 / math.Pi
	return models.LatLng{Lat: lat, Lon: lon}
}

// FlattenRings concatenates all rings of a polygon (outer boundary and
// holes) into one flat (lat, lon) sequence, preserving ring and vertex
// order. Source vertices are (lon, lat) per the GeoJSON convention.
// The output length always equals the sum of all ring lengths.
func FlattenRings(rings [][][2]float64) []models.LatLng {
	total := 0
	for _, ring := range rings {
		total += len(ring)
	}

	out := make([]models.LatLng, 0, total)
	for _, ring := range rings {
		for _, v := range ring {
			out = append(out, models.LatLng{Lat: v[1], Lon: v[0]})
		}
	}
	return out
}

// FlattenMercatorRings reprojects Web Mercator polygon rings and
// flattens them in one pass.
func FlattenMercatorRings(rings [][][2]float64) []models.LatLng {
	total := 0
	for _, ring := range rings {
		total += len(ring)
	}

	out := make([]models.LatLng, 0, total)
	for _, ring := range rings {
		for _, v := range ring {
			out = append(out, webMercatorToWGS84(v[0], v[1]))
		}
	}
	return out
}
