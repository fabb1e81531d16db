package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/ohub/outage-aggregator/internal/cache"
	"github.com/ohub/outage-aggregator/internal/models"
)

// mockQuerier implements repository.SnapshotQuerier for testing
type mockQuerier struct {
	records  []models.CanonicalOutageRecord
	lastAsOf *time.Time
}

func (m *mockQuerier) LatestAsOf(ctx context.Context, asOf *time.Time) ([]models.CanonicalOutageRecord, error) {
	m.lastAsOf = asOf
	return m.records, nil
}

func (m *mockQuerier) LatestUnconditional(ctx context.Context) ([]models.CanonicalOutageRecord, error) {
	return m.LatestAsOf(ctx, nil)
}

func outageAt(id string, lat, lon float64) models.CanonicalOutageRecord {
	r := models.CanonicalOutageRecord{
		ID:        id,
		Provider:  "Test Utility",
		Latitude:  lat,
		Longitude: lon,
	}
	r.Normalize()
	return r
}

func setupTestRouter(store *mockQuerier, c *cache.Cache) *gin.Engine {
	gin.SetMode(gin.TestMode)
	router := gin.New()
	handler := NewHandler(store, c)
	handler.RegisterRoutes(router)
	return router
}

type outagesResponse struct {
	Outages      []models.CanonicalOutageRecord `json:"outages"`
	TotalOutages int                            `json:"total_outages"`
	LastUpdated  int64                          `json:"last_updated"`
}

func TestGetOutages_ServedFromCache(t *testing.T) {
	c := cache.New()
	updated := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)
	c.Set([]models.CanonicalOutageRecord{outageAt("a", 45, -75), outageAt("b", 46, -76)}, updated)

	store := &mockQuerier{}
	router := setupTestRouter(store, c)

	w := httptest.NewRecorder()
	req, _ := http.NewRequest("GET", "/api/outages", nil)
	router.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Errorf("expected status 200, got %d", w.Code)
	}

	var resp outagesResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to parse response: %v", err)
	}

	if resp.TotalOutages != 2 || len(resp.Outages) != 2 {
		t.Errorf("expected 2 outages, got %d", resp.TotalOutages)
	}
	if resp.LastUpdated != updated.Unix() {
		t.Errorf("expected last_updated %d, got %d", updated.Unix(), resp.LastUpdated)
	}

	// The cache path never touches the store.
	if store.lastAsOf != nil {
		t.Error("expected no store query for the cache path")
	}
}

func TestGetOutages_TimestampQueriesStore(t *testing.T) {
	c := cache.New()
	store := &mockQuerier{records: []models.CanonicalOutageRecord{outageAt("past", 45, -75)}}
	router := setupTestRouter(store, c)

	w := httptest.NewRecorder()
	req, _ := http.NewRequest("GET", "/api/outages?timestamp=2024-01-01T00:03:00Z", nil)
	router.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Errorf("expected status 200, got %d", w.Code)
	}

	if store.lastAsOf == nil {
		t.Fatal("expected the store to receive an as-of cutoff")
	}
	want := time.Date(2024, 1, 1, 0, 3, 0, 0, time.UTC)
	if !store.lastAsOf.Equal(want) {
		t.Errorf("expected cutoff %v, got %v", want, store.lastAsOf)
	}

	var resp outagesResponse
	json.Unmarshal(w.Body.Bytes(), &resp)
	if resp.TotalOutages != 1 || resp.Outages[0].ID != "past" {
		t.Errorf("expected the store's records, got %+v", resp.Outages)
	}
}

func TestGetOutages_EmptyWindowHasZeroLastUpdated(t *testing.T) {
	// An as-of cutoff before any snapshot returns no records; the
	// response reports last_updated 0, not the zero-time epoch.
	router := setupTestRouter(&mockQuerier{}, cache.New())

	w := httptest.NewRecorder()
	req, _ := http.NewRequest("GET", "/api/outages?timestamp=2020-01-01T00:00:00Z", nil)
	router.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", w.Code)
	}

	var resp outagesResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to parse response: %v", err)
	}
	if resp.TotalOutages != 0 {
		t.Errorf("expected no outages, got %d", resp.TotalOutages)
	}
	if resp.LastUpdated != 0 {
		t.Errorf("expected last_updated 0 for an empty window, got %d", resp.LastUpdated)
	}
}

func TestGetOutages_InvalidTimestamp(t *testing.T) {
	router := setupTestRouter(&mockQuerier{}, cache.New())

	w := httptest.NewRecorder()
	req, _ := http.NewRequest("GET", "/api/outages?timestamp=yesterday", nil)
	router.ServeHTTP(w, req)

	if w.Code != http.StatusBadRequest {
		t.Errorf("expected status 400, got %d", w.Code)
	}
}

func TestGetOutagesNearby(t *testing.T) {
	c := cache.New()
	// Parliament Hill, Ottawa.
	c.Set([]models.CanonicalOutageRecord{outageAt("ott", 45.4236, -75.7009)}, time.Now())
	router := setupTestRouter(&mockQuerier{}, c)

	tests := []struct {
		name   string
		query  string
		status int
		nearby bool
	}{
		{"within distance", "lat=45.42&lon=-75.70&distance_km=5", http.StatusOK, true},
		{"outside distance", "lat=43.65&lon=-79.38&distance_km=5", http.StatusOK, false},
		{"long alias", "lat=45.42&long=-75.70&distance_km=5", http.StatusOK, true},
		{"missing longitude", "lat=45.42&distance_km=5", http.StatusBadRequest, false},
		{"missing lat", "lon=-75.70&distance_km=5", http.StatusBadRequest, false},
		{"negative distance", "lat=45.42&lon=-75.70&distance_km=-1", http.StatusBadRequest, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := httptest.NewRecorder()
			req, _ := http.NewRequest("GET", "/api/outages/nearby?"+tt.query, nil)
			router.ServeHTTP(w, req)

			if w.Code != tt.status {
				t.Fatalf("expected status %d, got %d", tt.status, w.Code)
			}
			if tt.status != http.StatusOK {
				return
			}

			var resp map[string]bool
			if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
				t.Fatalf("failed to parse response: %v", err)
			}
			if resp["nearby_outage"] != tt.nearby {
				t.Errorf("expected nearby_outage=%v, got %v", tt.nearby, resp["nearby_outage"])
			}
		})
	}
}

func TestHealth(t *testing.T) {
	router := setupTestRouter(&mockQuerier{}, cache.New())

	w := httptest.NewRecorder()
	req, _ := http.NewRequest("GET", "/health", nil)
	router.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Errorf("expected status 200, got %d", w.Code)
	}
}

func TestRateLimitMiddleware(t *testing.T) {
	gin.SetMode(gin.TestMode)
	router := gin.New()
	router.Use(RateLimitMiddleware(1))
	router.GET("/ping", func(c *gin.Context) { c.Status(http.StatusOK) })

	w := httptest.NewRecorder()
	req, _ := http.NewRequest("GET", "/ping", nil)
	router.ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Fatalf("expected first request to pass, got %d", w.Code)
	}

	// The burst is spent; the next request inside the same second is
	// rejected.
	w = httptest.NewRecorder()
	req, _ = http.NewRequest("GET", "/ping", nil)
	router.ServeHTTP(w, req)
	if w.Code != http.StatusTooManyRequests {
		t.Errorf("expected status 429, got %d", w.Code)
	}
}
