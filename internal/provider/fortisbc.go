package provider

import (
	"context"
	"encoding/xml"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/ohub/outage-aggregator/internal/models"
)

// FortisBC consumes the FortisBC outage XML case list. COORDLIST is a
// flat comma-separated lat,lon sequence, already in WGS84.
type FortisBC struct {
	URL string
}

func NewFortisBC(url string) *FortisBC {
	return &FortisBC{URL: url}
}

func (a *FortisBC) Name() string { return "FortisBC" }

func (a *FortisBC) Fetch(ctx context.Context) ([]byte, error) {
	return fetchURL(ctx, http.MethodGet, a.URL, nil, nil)
}

type fortisCaseList struct {
	Cases []fortisOMS `xml:"OMSCASES"`
}

type fortisOMS struct {
	Serial     string  `xml:"SERIAL"`
	Desc       string  `xml:"DESC"`
	Notes      string  `xml:"NOTES"`
	Planned    string  `xml:"PLANNED"`
	WorkStatus string  `xml:"WORKSTAT"`
	AvgLat     float64 `xml:"AVGLAT"`
	AvgLong    float64 `xml:"AVGLONG"`
	OutTime    string  `xml:"OUTTIME"`
	CurCust    int     `xml:"CURCUST"`
	RestoreTim string  `xml:"RESTORETIM"`
	DescCause  string  `xml:"DESC_CAUSE"`
	CoordList  string  `xml:"COORDLIST"`
}

func (a *FortisBC) Normalize(raw []byte, fetchedAt time.Time) (Result, error) {
	var data fortisCaseList
	if err := xml.Unmarshal(raw, &data); err != nil {
		return Result{}, fmt.Errorf("%w: fortisbc payload is not an OMSCASES list: %v", ErrSchemaMismatch, err)
	}

	res := Result{Records: make([]models.CanonicalOutageRecord, 0, len(data.Cases))}
	for _, c := range data.Cases {
		polygon, err := parseCoordList(c.CoordList)
		if err != nil {
			res.Skipped++
			continue
		}

		r := models.CanonicalOutageRecord{
			ID:                   c.Serial,
			Municipality:         c.Desc,
			Area:                 c.Notes,
			Cause:                c.DescCause,
			CustomersAffected:    c.CurCust,
			CrewStatus:           c.WorkStatus,
			Latitude:             c.AvgLat,
			Longitude:            c.AvgLong,
			OutageStart:          c.OutTime,
			EstimatedRestoration: c.RestoreTim,
			Geometry:             polygon,
			Provider:             a.Name(),
			Planned:              c.Planned == "1",
			FetchedAt:            fetchedAt,
		}
		r.Normalize()
		res.Records = append(res.Records, r)
	}

	return res, nil
}

// parseCoordList splits "lat1,lon1,lat2,lon2,..." into pairs. FortisBC
// emits latitude first, so no swap is needed.
func parseCoordList(s string) ([]models.LatLng, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return []models.LatLng{}, nil
	}

	parts := strings.Split(s, ",")
	if len(parts)%2 != 0 {
		return nil, fmt.Errorf("odd coordinate count %d", len(parts))
	}

	points := make([]models.LatLng, 0, len(parts)/2)
	for i := 0; i+1 < len(parts); i += 2 {
		lat, err := strconv.ParseFloat(strings.TrimSpace(parts[i]), 64)
		if err != nil {
			return nil, err
		}
		lon, err := strconv.ParseFloat(strings.TrimSpace(parts[i+1]), 64)
		if err != nil {
			return nil, err
		}
		points = append(points, models.LatLng{Lat: lat, Lon: lon})
	}
	return points, nil
}
