package provider

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"net/http"
	"time"

	"github.com/ohub/outage-aggregator/internal/geometry"
	"github.com/ohub/outage-aggregator/internal/models"
)

// QuebecHydro consumes the Hydro-Québec ArcGIS GeoJSON feeds: one
// FeatureCollection of outage points and one of outage polygons. The
// two layers share no key, so each outage is assigned the polygon
// whose first vertex is nearest to the outage point.
type QuebecHydro struct {
	OutageURL  string
	PolygonURL string
}

func NewQuebecHydro(outageURL, polygonURL string) *QuebecHydro {
	return &QuebecHydro{OutageURL: outageURL, PolygonURL: polygonURL}
}

func (a *QuebecHydro) Name() string { return "Quebec Hydro" }

// quebecPayload is the envelope Fetch builds from the two layer
// responses so Normalize stays pure over one byte slice.
type quebecPayload struct {
	Outages  json.RawMessage `json:"outages"`
	Polygons json.RawMessage `json:"polygons"`
}

func (a *QuebecHydro) Fetch(ctx context.Context) ([]byte, error) {
	const query = "?where=1%3D1&outFields=*&geometryType=esriGeometryEnvelope&spatialRel=esriSpatialRelIntersects&resultType=tile&f=geojson"

	outages, err := fetchURL(ctx, http.MethodGet, a.OutageURL+query, nil, nil)
	if err != nil {
		return nil, err
	}
	polygons, err := fetchURL(ctx, http.MethodGet, a.PolygonURL+query, nil, nil)
	if err != nil {
		return nil, err
	}

	return json.Marshal(quebecPayload{Outages: outages, Polygons: polygons})
}

type quebecFeatureCollection struct {
	Type     string          `json:"type"`
	Features []quebecFeature `json:"features"`
}

type quebecFeature struct {
	Properties quebecProperties `json:"properties"`
	Geometry   json.RawMessage  `json:"geometry"`
}

type quebecProperties struct {
	IDInterruption  json.Number `json:"idInterruption"`
	NomMunicipalite string      `json:"nomMunicipalite"`
	Secteur         string      `json:"secteur"`
	Cause           string      `json:"cause"`
	NbClients       int         `json:"nbClients"`
	StatutEquipe    string      `json:"statutEquipe"`
	PanneMajeure    int         `json:"panneMajeure"`
	DateCreation    int64       `json:"dateCreation"` // epoch millis
}

type quebecPointGeometry struct {
	Coordinates [2]float64 `json:"coordinates"` // (lon, lat)
}

type quebecPolygonGeometry struct {
	Coordinates [][][2]float64 `json:"coordinates"` // rings of (lon, lat)
}

func (a *QuebecHydro) Normalize(raw []byte, fetchedAt time.Time) (Result, error) {
	var payload quebecPayload
	if err := json.Unmarshal(raw, &payload); err != nil {
		return Result{}, fmt.Errorf("%w: quebec envelope: %v", ErrSchemaMismatch, err)
	}

	var outageFC, polygonFC quebecFeatureCollection
	if err := json.Unmarshal(payload.Outages, &outageFC); err != nil || outageFC.Type != "FeatureCollection" {
		return Result{}, fmt.Errorf("%w: quebec outage layer is not a FeatureCollection", ErrSchemaMismatch)
	}
	if err := json.Unmarshal(payload.Polygons, &polygonFC); err != nil || polygonFC.Type != "FeatureCollection" {
		return Result{}, fmt.Errorf("%w: quebec polygon layer is not a FeatureCollection", ErrSchemaMismatch)
	}

	polygons := flattenQuebecPolygons(polygonFC)

	res := Result{Records: make([]models.CanonicalOutageRecord, 0, len(outageFC.Features))}
	for _, f := range outageFC.Features {
		var point quebecPointGeometry
		if err := json.Unmarshal(f.Geometry, &point); err != nil {
			res.Skipped++
			continue
		}
		lon, lat := point.Coordinates[0], point.Coordinates[1]

		start := models.UnknownValue
		if f.Properties.DateCreation > 0 {
			start = time.UnixMilli(f.Properties.DateCreation).UTC().Format(time.RFC3339)
		}

		crewStatus := f.Properties.StatutEquipe
		if f.Properties.PanneMajeure == 1 && crewStatus == "" {
			crewStatus = "Major Outage"
		}

		r := models.CanonicalOutageRecord{
			ID:                a.Name() + "_" + f.Properties.IDInterruption.String(),
			Municipality:      f.Properties.NomMunicipalite,
			Area:              f.Properties.Secteur,
			Cause:             f.Properties.Cause,
			CustomersAffected: f.Properties.NbClients,
			CrewStatus:        crewStatus,
			Latitude:          lat,
			Longitude:         lon,
			OutageStart:       start,
			Geometry:          nearestPolygon(lat, lon, polygons),
			Provider:          a.Name(),
			FetchedAt:         fetchedAt,
		}
		r.Normalize()
		res.Records = append(res.Records, r)
	}

	return res, nil
}

func flattenQuebecPolygons(fc quebecFeatureCollection) [][]models.LatLng {
	polygons := make([][]models.LatLng, 0, len(fc.Features))
	for _, f := range fc.Features {
		var poly quebecPolygonGeometry
		if err := json.Unmarshal(f.Geometry, &poly); err != nil {
			continue
		}
		if flat := geometry.FlattenRings(poly.Coordinates); len(flat) > 0 {
			polygons = append(polygons, flat)
		}
	}
	return polygons
}

// nearestPolygon picks the flattened polygon whose first vertex is
// closest to the outage point, matching the layers by proximity.
func nearestPolygon(lat, lon float64, polygons [][]models.LatLng) []models.LatLng {
	if lat == 0 && lon == 0 {
		return []models.LatLng{}
	}

	minDist := math.Inf(1)
	var closest []models.LatLng
	for _, poly := range polygons {
		d := geometry.HaversineKm(lat, lon, poly[0].Lat, poly[0].Lon)
		if d < minDist {
			minDist = d
			closest = poly
		}
	}

	if closest == nil {
		return []models.LatLng{}
	}
	return closest
}
