package provider

import (
	"context"
	"encoding/xml"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/ohub/outage-aggregator/internal/geometry"
	"github.com/ohub/outage-aggregator/internal/models"
)

// Niagara consumes the Niagara Peninsula Energy KML outage polygons.
// Each Placemark carries CUSTOMERS_OUT and CAUSE_CODE in its
// ExtendedData and a coordinate list whose first tuple is the marker.
type Niagara struct {
	URL string
}

func NewNiagara(url string) *Niagara {
	return &Niagara{URL: url}
}

func (a *Niagara) Name() string { return "Niagara Energy" }

func (a *Niagara) Fetch(ctx context.Context) ([]byte, error) {
	return fetchURL(ctx, http.MethodGet, a.URL, nil, nil)
}

type kmlDocument struct {
	Placemarks []kmlPlacemark `xml:"Document>Placemark"`

	// Some exports nest placemarks under a Folder.
	FolderPlacemarks []kmlPlacemark `xml:"Document>Folder>Placemark"`
}

type kmlPlacemark struct {
	Name        string          `xml:"name"`
	SimpleData  []kmlSimpleData `xml:"ExtendedData>SchemaData>SimpleData"`
	Coordinates []string        `xml:"Polygon>outerBoundaryIs>LinearRing>coordinates"`
	PointCoords string          `xml:"Point>coordinates"`
	MultiGeo    []string        `xml:"MultiGeometry>Polygon>outerBoundaryIs>LinearRing>coordinates"`
}

type kmlSimpleData struct {
	Name  string `xml:"name,attr"`
	Value string `xml:",chardata"`
}

func (a *Niagara) Normalize(raw []byte, fetchedAt time.Time) (Result, error) {
	var doc kmlDocument
	if err := xml.Unmarshal(raw, &doc); err != nil {
		return Result{}, fmt.Errorf("%w: niagara payload is not KML: %v", ErrSchemaMismatch, err)
	}

	placemarks := append(doc.Placemarks, doc.FolderPlacemarks...)

	res := Result{Records: make([]models.CanonicalOutageRecord, 0, len(placemarks))}
	for _, pm := range placemarks {
		polygon, err := placemarkGeometry(pm)
		if err != nil {
			res.Skipped++
			continue
		}

		var lat, lon float64
		if len(polygon) > 0 {
			lat, lon = polygon[0].Lat, polygon[0].Lon
		}

		customersOut := 0
		cause := ""
		for _, sd := range pm.SimpleData {
			switch sd.Name {
			case "CUSTOMERS_OUT":
				if n, err := strconv.Atoi(sd.Value); err == nil {
					customersOut = n
				}
			case "CAUSE_CODE":
				cause = sd.Value
			}
		}

		name := pm.Name
		if name == "" {
			name = models.UnknownValue
		}

		r := models.CanonicalOutageRecord{
			ID:                name,
			Municipality:      "Niagara Region",
			Area:              name,
			Cause:             cause,
			CustomersAffected: customersOut,
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

func placemarkGeometry(pm kmlPlacemark) ([]models.LatLng, error) {
	coordStrings := pm.Coordinates
	coordStrings = append(coordStrings, pm.MultiGeo...)
	if pm.PointCoords != "" {
		coordStrings = append(coordStrings, pm.PointCoords)
	}

	points := []models.LatLng{}
	for _, s := range coordStrings {
		parsed, err := geometry.ParseKMLCoordinates(s)
		if err != nil {
			return nil, err
		}
		points = append(points, parsed...)
	}
	return points, nil
}
