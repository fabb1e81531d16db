package provider

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/ohub/outage-aggregator/internal/geometry"
	"github.com/ohub/outage-aggregator/internal/models"
)

// HydroOne consumes the Hydro One outage map tile set: a quadtree of
// <tile>.json files discovered by naming convention, each carrying a
// file_data array of outage entries whose geometry is a list of
// encoded polylines.
type HydroOne struct {
	BaseURL string   // tiles live at BaseURL/<name>.json
	Roots   []string // initial tile names
	fetch   TileFetcher
}

func NewHydroOne(baseURL string, roots []string) *HydroOne {
	a := &HydroOne{BaseURL: baseURL, Roots: roots}
	if len(a.Roots) == 0 {
		a.Roots = []string{"0", "1", "2", "3"}
	}
	a.fetch = a.fetchTile
	return a
}

// NewHydroOneWithFetcher injects a tile fetcher, used by tests to walk
// in-memory trees.
func NewHydroOneWithFetcher(fetch TileFetcher, roots []string) *HydroOne {
	a := NewHydroOne("", roots)
	a.fetch = fetch
	return a
}

func (a *HydroOne) Name() string { return "Hydro One" }

func (a *HydroOne) fetchTile(ctx context.Context, name string) ([]byte, bool, error) {
	url := fmt.Sprintf("%s/%s.json", a.BaseURL, name)
	data, err := fetchURL(ctx, http.MethodGet, url, nil, nil)
	if err != nil {
		// Absent tiles come back as 404; treat only that as a
		// terminal branch.
		if isNotFound(err) {
			return nil, false, nil
		}
		return nil, false, err
	}
	return data, true, nil
}

func isNotFound(err error) bool {
	var statusErr *fetchStatusError
	return errors.As(err, &statusErr) && statusErr.Code == http.StatusNotFound
}

type hydroOneTile struct {
	FileData []json.RawMessage `json:"file_data"`
}

// hydroOnePayload is the Fetch-built envelope of all discovered tile
// entries.
type hydroOnePayload struct {
	FileData []json.RawMessage `json:"file_data"`
}

func (a *HydroOne) Fetch(ctx context.Context) ([]byte, error) {
	payloads, err := WalkTiles(ctx, a.fetch, a.Roots, DefaultMaxTileDepth)
	if err != nil {
		return nil, err
	}

	combined := hydroOnePayload{FileData: []json.RawMessage{}}
	for _, p := range payloads {
		var tile hydroOneTile
		if err := json.Unmarshal(p, &tile); err != nil {
			// A malformed single tile does not fail the run.
			continue
		}
		combined.FileData = append(combined.FileData, tile.FileData...)
	}

	return json.Marshal(combined)
}

type hydroOneEntry struct {
	ID    json.Number  `json:"id"`
	Title string       `json:"title"`
	Desc  hydroOneDesc `json:"desc"`
	Geom  hydroOneGeom `json:"geom"`
}

type hydroOneDesc struct {
	Cause      string           `json:"cause"`
	CustA      hydroOneCustomer `json:"cust_a"`
	CrewStatus string           `json:"crew_status"`
	StartTime  string           `json:"start_time"`
	ETR        string           `json:"etr"`
}

type hydroOneCustomer struct {
	Val int `json:"val"`
}

type hydroOneGeom struct {
	P []string `json:"p"` // encoded polylines
}

func (a *HydroOne) Normalize(raw []byte, fetchedAt time.Time) (Result, error) {
	var payload hydroOnePayload
	if err := json.Unmarshal(raw, &payload); err != nil {
		return Result{}, fmt.Errorf("%w: hydro one tile envelope: %v", ErrSchemaMismatch, err)
	}
	if payload.FileData == nil {
		return Result{}, fmt.Errorf("%w: hydro one payload has no file_data array", ErrSchemaMismatch)
	}

	res := Result{Records: make([]models.CanonicalOutageRecord, 0, len(payload.FileData))}
	for _, rawEntry := range payload.FileData {
		var e hydroOneEntry
		if err := json.Unmarshal(rawEntry, &e); err != nil {
			res.Skipped++
			continue
		}

		polygon, err := decodePolylines(e.Geom.P)
		if err != nil {
			res.Skipped++
			continue
		}

		var lat, lon float64
		if len(polygon) > 0 {
			lat, lon = polygon[0].Lat, polygon[0].Lon
		}

		r := models.CanonicalOutageRecord{
			ID:                   e.ID.String(),
			Municipality:         e.Title,
			Cause:                e.Desc.Cause,
			CustomersAffected:    e.Desc.CustA.Val,
			CrewStatus:           e.Desc.CrewStatus,
			Latitude:             lat,
			Longitude:            lon,
			OutageStart:          e.Desc.StartTime,
			EstimatedRestoration: e.Desc.ETR,
			Geometry:             polygon,
			Provider:             a.Name(),
			FetchedAt:            fetchedAt,
		}
		r.Normalize()
		res.Records = append(res.Records, r)
	}

	return res, nil
}

func decodePolylines(encoded []string) ([]models.LatLng, error) {
	points := []models.LatLng{}
	for _, p := range encoded {
		decoded, err := geometry.DecodePolyline(p)
		if err != nil {
			return nil, err
		}
		points = append(points, decoded...)
	}
	return points, nil
}
