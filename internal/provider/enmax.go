package provider

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/ohub/outage-aggregator/internal/models"
)

// Enmax consumes the ENMAX Calgary current-outage JSON array. No
// polygon data is published; records carry only a marker point.
type Enmax struct {
	URL string
}

func NewEnmax(url string) *Enmax {
	return &Enmax{URL: url}
}

func (a *Enmax) Name() string { return "ENMAX Calgary" }

func (a *Enmax) Fetch(ctx context.Context) ([]byte, error) {
	return fetchURL(ctx, http.MethodGet, a.URL, nil, nil)
}

type enmaxOutage struct {
	IncidentID           string  `json:"incidentID"`
	AreasAffected        string  `json:"areasAffected"`
	OutageCause          string  `json:"outageCause"`
	CustomersAffected    int     `json:"customersAffected"`
	Status               string  `json:"status"`
	Latitude             float64 `json:"latitude"`
	Longitude            float64 `json:"longitude"`
	OutageStart          string  `json:"outageStart"`
	EstimatedRestoration string  `json:"estimatedRestoration"`
	IsPlanned            bool    `json:"isPlanned"`
}

func (a *Enmax) Normalize(raw []byte, fetchedAt time.Time) (Result, error) {
	var outages []enmaxOutage
	if err := json.Unmarshal(raw, &outages); err != nil {
		return Result{}, fmt.Errorf("%w: enmax payload is not a JSON array: %v", ErrSchemaMismatch, err)
	}

	res := Result{Records: make([]models.CanonicalOutageRecord, 0, len(outages))}
	for _, o := range outages {
		r := models.CanonicalOutageRecord{
			ID:                   o.IncidentID,
			Municipality:         o.AreasAffected,
			Cause:                o.OutageCause,
			CustomersAffected:    o.CustomersAffected,
			CrewStatus:           o.Status,
			Latitude:             o.Latitude,
			Longitude:            o.Longitude,
			OutageStart:          o.OutageStart,
			EstimatedRestoration: o.EstimatedRestoration,
			Provider:             a.Name(),
			Planned:              o.IsPlanned,
			FetchedAt:            fetchedAt,
		}
		r.Normalize()
		res.Records = append(res.Records, r)
	}

	return res, nil
}
