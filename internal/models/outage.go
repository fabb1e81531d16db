package models

import (
	"encoding/json"
	"fmt"
	"time"
)

// Fallback values applied when a provider omits a field.
const (
	UnknownValue = "unknown"
	NotAvailable = "N/A"
)

// LatLng is a WGS84 geographic coordinate. The order is always
// (latitude, longitude) no matter what convention the provider uses;
// adapters swap and reproject at the boundary.
type LatLng struct {
	Lat float64
	Lon float64
}

// MarshalJSON renders the pair as a [lat, lon] array, the wire and
// storage representation of geometry vertices.
func (p LatLng) MarshalJSON() ([]byte, error) {
	return json.Marshal([2]float64{p.Lat, p.Lon})
}

func (p *LatLng) UnmarshalJSON(data []byte) error {
	var pair [2]float64
	if err := json.Unmarshal(data, &pair); err != nil {
		return fmt.Errorf("geometry pair: %w", err)
	}
	p.Lat = pair[0]
	p.Lon = pair[1]
	return nil
}

// CanonicalOutageRecord is the schema-unified representation of one
// outage, independent of provider origin. A record is identified by
// (Provider, FetchedAt, ID); providers reuse ids across refreshes and
// ids can collide across providers.
type CanonicalOutageRecord struct {
	ID                   string    `json:"id"`
	Municipality         string    `json:"municipality"`
	Area                 string    `json:"area"`
	Cause                string    `json:"cause"`
	CustomersAffected    int       `json:"customersAffected"`
	CrewStatus           string    `json:"crewStatus"`
	Latitude             float64   `json:"latitude"`
	Longitude            float64   `json:"longitude"`
	OutageStart          string    `json:"outageStart"`          // ISO-8601 or "unknown"
	EstimatedRestoration string    `json:"estimatedRestoration"` // ISO-8601 or "unknown"
	Geometry             []LatLng  `json:"geometry"`             // possibly empty, never nil
	Provider             string    `json:"provider"`
	Planned              bool      `json:"planned"`
	FetchedAt            time.Time `json:"fetchedAt"` // assigned at ingestion, UTC
}

// Coordinates returns the record's marker point.
func (r *CanonicalOutageRecord) Coordinates() LatLng {
	return LatLng{Lat: r.Latitude, Lon: r.Longitude}
}

// Normalize fills fallback values and guarantees a non-nil geometry
// slice so marshalled records never contain null.
func (r *CanonicalOutageRecord) Normalize() {
	if r.Cause == "" {
		r.Cause = UnknownValue
	}
	if r.Municipality == "" {
		r.Municipality = NotAvailable
	}
	if r.Area == "" {
		r.Area = NotAvailable
	}
	if r.CrewStatus == "" {
		r.CrewStatus = NotAvailable
	}
	if r.OutageStart == "" {
		r.OutageStart = UnknownValue
	}
	if r.EstimatedRestoration == "" {
		r.EstimatedRestoration = UnknownValue
	}
	if r.CustomersAffected < 0 {
		r.CustomersAffected = 0
	}
	if r.Geometry == nil {
		r.Geometry = []LatLng{}
	}
}
