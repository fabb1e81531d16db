package provider

import (
	"context"
	"encoding/json"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ohub/outage-aggregator/internal/geometry"
	"github.com/ohub/outage-aggregator/internal/models"
)

func TestHydroOne_Normalize(t *testing.T) {
	encoded := geometry.EncodePolyline([]models.LatLng{
		{Lat: 44.25, Lon: -79.45},
		{Lat: 44.26, Lon: -79.46},
	})

	raw := []byte(fmt.Sprintf(`{
		"file_data": [
			{
				"id": 55001,
				"title": "Barrie",
				"desc": {
					"cause": "Adverse weather",
					"cust_a": {"val": 230},
					"crew_status": "Assigned",
					"start_time": "2024-01-01T05:00:00Z",
					"etr": "2024-01-01T14:00:00Z"
				},
				"geom": {"p": [%q]}
			},
			{
				"id": 55002,
				"geom": {"p": ["_p~iF~ps|U_"]}
			}
		]
	}`, encoded))

	res, err := NewHydroOne("", nil).Normalize(raw, testFetchedAt)
	require.NoError(t, err)

	// The record with the unterminated polyline is dropped, the rest
	// of the batch proceeds.
	require.Len(t, res.Records, 1)
	assert.Equal(t, 1, res.Skipped)

	r := res.Records[0]
	assert.Equal(t, "55001", r.ID)
	assert.Equal(t, "Hydro One", r.Provider)
	assert.Equal(t, "Barrie", r.Municipality)
	assert.Equal(t, 230, r.CustomersAffected)
	require.Len(t, r.Geometry, 2)
	assert.InDelta(t, 44.25, r.Geometry[0].Lat, 1e-5)
	assert.InDelta(t, -79.45, r.Geometry[0].Lon, 1e-5)
	assert.Equal(t, r.Geometry[0].Lat, r.Latitude)
}

func TestHydroOne_Normalize_SchemaMismatch(t *testing.T) {
	_, err := NewHydroOne("", nil).Normalize([]byte(`{"wrong": true}`), testFetchedAt)
	assert.ErrorIs(t, err, ErrSchemaMismatch)
}

func TestHydroOne_Fetch_CombinesTiles(t *testing.T) {
	tiles := map[string]string{
		"0":  `{"file_data": [{"id": 1, "geom": {"p": []}}]}`,
		"00": `{"file_data": [{"id": 2, "geom": {"p": []}}, {"id": 3, "geom": {"p": []}}]}`,
		"1":  `{"file_data": []}`,
	}
	fetch := func(ctx context.Context, name string) ([]byte, bool, error) {
		payload, ok := tiles[name]
		return []byte(payload), ok, nil
	}

	a := NewHydroOneWithFetcher(fetch, []string{"0", "1"})
	raw, err := a.Fetch(context.Background())
	require.NoError(t, err)

	var payload struct {
		FileData []json.RawMessage `json:"file_data"`
	}
	require.NoError(t, json.Unmarshal(raw, &payload))
	assert.Len(t, payload.FileData, 3)
}
