package provider

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/ohub/outage-aggregator/internal/geometry"
	"github.com/ohub/outage-aggregator/internal/models"
)

// NBPower consumes the NB Power ArcGIS feature service. Geometry
// arrives as Web Mercator polygon rings and is reprojected to WGS84;
// the first vertex doubles as the marker point.
type NBPower struct {
	URL string
}

func NewNBPower(url string) *NBPower {
	return &NBPower{URL: url}
}

func (a *NBPower) Name() string { return "NB Power" }

func (a *NBPower) Fetch(ctx context.Context) ([]byte, error) {
	const query = "?f=json&where=1%3D1&returnGeometry=true&spatialRel=esriSpatialRelIntersects&outFields=*&maxRecordCountFactor=4&outSR=102100&resultOffset=0&resultRecordCount=4000&cacheHint=true"
	return fetchURL(ctx, http.MethodGet, a.URL+query, nil, nil)
}

type nbpowerResponse struct {
	Features []nbpowerFeature `json:"features"`
}

type nbpowerFeature struct {
	Attributes nbpowerAttributes `json:"attributes"`
	Geometry   nbpowerGeometry   `json:"geometry"`
}

type nbpowerAttributes struct {
	GlobalID string `json:"GlobalID"`
	CustEff  int    `json:"CustEff"`
}

type nbpowerGeometry struct {
	Rings [][][2]float64 `json:"rings"` // Web Mercator (x, y)
}

func (a *NBPower) Normalize(raw []byte, fetchedAt time.Time) (Result, error) {
	var data nbpowerResponse
	if err := json.Unmarshal(raw, &data); err != nil {
		return Result{}, fmt.Errorf("%w: nbpower payload: %v", ErrSchemaMismatch, err)
	}
	if data.Features == nil {
		return Result{}, fmt.Errorf("%w: nbpower payload has no features array", ErrSchemaMismatch)
	}

	res := Result{Records: make([]models.CanonicalOutageRecord, 0, len(data.Features))}
	for _, f := range data.Features {
		polygon := geometry.FlattenMercatorRings(f.Geometry.Rings)

		var lat, lon float64
		if len(polygon) > 0 {
			lat, lon = polygon[0].Lat, polygon[0].Lon
		}

		id := f.Attributes.GlobalID
		if id == "" {
			id = models.UnknownValue
		}

		r := models.CanonicalOutageRecord{
			ID:                id,
			CustomersAffected: f.Attributes.CustEff,
			Latitude:          lat,
			Longitude:         lon,
			Geometry:          polygon,
			Provider:          a.Name(),
			FetchedAt:         fetchedAt,
		}
		r.Normalize()
		res.Records = append(res.Records, r)
	}

	return res, nil
}
