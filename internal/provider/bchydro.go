package provider

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/ohub/outage-aggregator/internal/models"
)

// BCHydro consumes the flat JSON array the BC Hydro outage map serves.
// Coordinates are already WGS84; the polygon is a flat
// [lat1, lon1, lat2, lon2, ...] float list.
type BCHydro struct {
	URL string
}

func NewBCHydro(url string) *BCHydro {
	return &BCHydro{URL: url}
}

func (a *BCHydro) Name() string { return "BC Hydro" }

func (a *BCHydro) Fetch(ctx context.Context) ([]byte, error) {
	return fetchURL(ctx, http.MethodGet, a.URL, nil, map[string]string{
		"X-Requested-With": "XMLHttpRequest",
	})
}

type bchydroOutage struct {
	ID                    json.Number `json:"id"`
	Municipality          string      `json:"municipality"`
	Area                  string      `json:"area"`
	Cause                 string      `json:"cause"`
	NumCustomersOut       int         `json:"numCustomersOut"`
	CrewStatusDescription string      `json:"crewStatusDescription"`
	Latitude              float64     `json:"latitude"`
	Longitude             float64     `json:"longitude"`
	DateOff               string      `json:"dateOff"`
	CrewEta               string      `json:"crewEta"`
	Polygon               []float64   `json:"polygon"`
}

func (a *BCHydro) Normalize(raw []byte, fetchedAt time.Time) (Result, error) {
	var outages []bchydroOutage
	if err := json.Unmarshal(raw, &outages); err != nil {
		return Result{}, fmt.Errorf("%w: bchydro payload is not a JSON array: %v", ErrSchemaMismatch, err)
	}

	res := Result{Records: make([]models.CanonicalOutageRecord, 0, len(outages))}
	for _, o := range outages {
		// Odd-length polygons cannot be paired into vertices.
		if len(o.Polygon)%2 != 0 {
			res.Skipped++
			continue
		}
		geometry := make([]models.LatLng, 0, len(o.Polygon)/2)
		for i := 0; i+1 < len(o.Polygon); i += 2 {
			geometry = append(geometry, models.LatLng{Lat: o.Polygon[i], Lon: o.Polygon[i+1]})
		}

		r := models.CanonicalOutageRecord{
			ID:                   o.ID.String(),
			Municipality:         o.Municipality,
			Area:                 o.Area,
			Cause:                o.Cause,
			CustomersAffected:    o.NumCustomersOut,
			CrewStatus:           o.CrewStatusDescription,
			Latitude:             o.Latitude,
			Longitude:            o.Longitude,
			OutageStart:          o.DateOff,
			EstimatedRestoration: o.CrewEta,
			Geometry:             geometry,
			Provider:             a.Name(),
			FetchedAt:            fetchedAt,
		}
		r.Normalize()
		res.Records = append(res.Records, r)
	}

	return res, nil
}
