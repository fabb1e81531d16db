package provider

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/ohub/outage-aggregator/internal/models"
)

// ManitobaHydro consumes the Manitoba Hydro portal endpoint. The
// response nests a JSON string under "d"; planned and unplanned
// outages are separate requests, merged into one snapshot with the
// planned flag set per section.
type ManitobaHydro struct {
	URL string
}

func NewManitobaHydro(url string) *ManitobaHydro {
	return &ManitobaHydro{URL: url}
}

func (a *ManitobaHydro) Name() string { return "Manitoba Hydro" }

// manitobaPayload is the Fetch-built envelope holding both request
// bodies.
type manitobaPayload struct {
	Planned   json.RawMessage `json:"planned"`
	Unplanned json.RawMessage `json:"unplanned"`
}

func (a *ManitobaHydro) Fetch(ctx context.Context) ([]byte, error) {
	headers := map[string]string{
		"Content-Type":     "application/json; charset=UTF-8",
		"X-Requested-With": "XMLHttpRequest",
	}

	// "B" requests planned outages, "C" unplanned.
	planned, err := fetchURL(ctx, http.MethodPost, a.URL,
		strings.NewReader(`{"Zipcode":"","IsPlannedOutage":"B","timeOffsetMinutes":240}`), headers)
	if err != nil {
		return nil, err
	}
	unplanned, err := fetchURL(ctx, http.MethodPost, a.URL,
		strings.NewReader(`{"Zipcode":"","IsPlannedOutage":"C","timeOffsetMinutes":240}`), headers)
	if err != nil {
		return nil, err
	}

	return json.Marshal(manitobaPayload{Planned: planned, Unplanned: unplanned})
}

type manitobaEnvelope struct {
	D string `json:"d"`
}

type manitobaTables struct {
	Table1 []manitobaOutage `json:"Table1"`
}

type manitobaOutage struct {
	UtilityOutageID      json.Number `json:"UtilityOutageId"`
	CityName             string      `json:"CityName"`
	Area                 string      `json:"Area"`
	OutageReportInfo     string      `json:"OutageReportInfo"`
	CustomerAffectedText string      `json:"CustomerAffectedText"`
	Status               string      `json:"STATUS"`
	OutageLatitude       json.Number `json:"OutageLatitude"`
	OutageLongitude      json.Number `json:"OutageLongitude"`
	OutageDate           string      `json:"Outagedate"`
	RestorationTime      string      `json:"RestorationTime"`
	Title                string      `json:"Title"`
}

func (a *ManitobaHydro) Normalize(raw []byte, fetchedAt time.Time) (Result, error) {
	var payload manitobaPayload
	if err := json.Unmarshal(raw, &payload); err != nil {
		return Result{}, fmt.Errorf("%w: manitoba envelope: %v", ErrSchemaMismatch, err)
	}

	res := Result{Records: []models.CanonicalOutageRecord{}}
	for _, section := range []struct {
		raw     json.RawMessage
		planned bool
	}{
		{payload.Planned, true},
		{payload.Unplanned, false},
	} {
		if len(section.raw) == 0 {
			continue
		}
		outages, err := decodeManitobaSection(section.raw)
		if err != nil {
			return Result{}, err
		}
		for _, o := range outages {
			res.Records = append(res.Records, a.toRecord(o, section.planned, fetchedAt))
		}
	}

	return res, nil
}

func decodeManitobaSection(raw json.RawMessage) ([]manitobaOutage, error) {
	var env manitobaEnvelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, fmt.Errorf("%w: manitoba section envelope: %v", ErrSchemaMismatch, err)
	}
	if env.D == "" {
		return nil, nil
	}

	var tables manitobaTables
	if err := json.Unmarshal([]byte(env.D), &tables); err != nil {
		return nil, fmt.Errorf("%w: manitoba nested d payload: %v", ErrSchemaMismatch, err)
	}
	return tables.Table1, nil
}

func (a *ManitobaHydro) toRecord(o manitobaOutage, planned bool, fetchedAt time.Time) models.CanonicalOutageRecord {
	// "Less than 5" is approximated to 1 customer.
	customers := 0
	if strings.Contains(o.CustomerAffectedText, "Less than") {
		customers = 1
	} else if n, err := strconv.Atoi(strings.TrimSpace(o.CustomerAffectedText)); err == nil {
		customers = n
	}

	lat, _ := o.OutageLatitude.Float64()
	lon, _ := o.OutageLongitude.Float64()

	// Some planned entries arrive in the unplanned section and are
	// only distinguishable by title.
	if o.Title == "Planned" {
		planned = true
	}

	r := models.CanonicalOutageRecord{
		ID:                   o.UtilityOutageID.String(),
		Municipality:         o.CityName,
		Area:                 o.Area,
		Cause:                o.OutageReportInfo,
		CustomersAffected:    customers,
		CrewStatus:           o.Status,
		Latitude:             lat,
		Longitude:            lon,
		OutageStart:          parseManitobaTime(o.OutageDate),
		EstimatedRestoration: parseManitobaTime(o.RestorationTime),
		Provider:             a.Name(),
		Planned:              planned,
		FetchedAt:            fetchedAt,
	}
	r.Normalize()
	return r
}

// parseManitobaTime converts the portal's "MM/DD/YYYY HH:MM AM" local
// time to RFC3339 UTC. Manitoba is America/Winnipeg.
func parseManitobaTime(s string) string {
	if s == "" {
		return models.UnknownValue
	}
	loc, err := time.LoadLocation("America/Winnipeg")
	if err != nil {
		return models.UnknownValue
	}
	for _, layout := range []string{"01/02/2006 3:04 PM", "01/02/2006 15:04"} {
		if t, err := time.ParseInLocation(layout, s, loc); err == nil {
			return t.UTC().Format(time.RFC3339)
		}
	}
	return models.UnknownValue
}
