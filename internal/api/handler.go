package api

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/ohub/outage-aggregator/internal/cache"
	"github.com/ohub/outage-aggregator/internal/geometry"
	"github.com/ohub/outage-aggregator/internal/models"
	"github.com/ohub/outage-aggregator/internal/repository"
)

type Handler struct {
	store repository.SnapshotQuerier
	cache *cache.Cache
}

func NewHandler(store repository.SnapshotQuerier, cache *cache.Cache) *Handler {
	return &Handler{
		store: store,
		cache: cache,
	}
}

func (h *Handler) RegisterRoutes(r *gin.Engine) {
	r.GET("/api/outages", h.getOutages)
	r.GET("/api/outages/nearby", h.getOutagesNearby)
	r.GET("/health", h.health)
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))
}

// getOutages serves the latest snapshot from the cache, or a
// point-in-time view from the store when a timestamp is supplied.
func (h *Handler) getOutages(c *gin.Context) {
	if ts := c.Query("timestamp"); ts != "" {
		asOf, err := time.Parse(time.RFC3339, ts)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{
				"error": "timestamp must be RFC3339",
			})
			return
		}

		records, err := h.store.LatestAsOf(c.Request.Context(), &asOf)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{
				"error": "failed to fetch outages",
			})
			return
		}

		c.JSON(http.StatusOK, gin.H{
			"outages":       records,
			"total_outages": len(records),
			"last_updated":  lastFetched(records),
		})
		return
	}

	snap := h.cache.Get()
	c.JSON(http.StatusOK, gin.H{
		"outages":       snap.Data,
		"total_outages": len(snap.Data),
		"last_updated":  snap.LastUpdated.Unix(),
	})
}

// getOutagesNearby reports whether any cached outage lies within
// distance_km of the given point. Accepts "long" as an alias for
// "lon".
func (h *Handler) getOutagesNearby(c *gin.Context) {
	lat, err := strconv.ParseFloat(c.Query("lat"), 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "lat must be a number"})
		return
	}

	lonParam := c.Query("lon")
	if lonParam == "" {
		lonParam = c.Query("long")
	}
	lon, err := strconv.ParseFloat(lonParam, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "either 'lon' or 'long' must be a number"})
		return
	}

	distanceKm, err := strconv.ParseFloat(c.Query("distance_km"), 64)
	if err != nil || distanceKm < 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "distance_km must be a non-negative number"})
		return
	}

	nearby := false
	for _, outage := range h.cache.Get().Data {
		if geometry.HaversineKm(lat, lon, outage.Latitude, outage.Longitude) <= distanceKm {
			nearby = true
			break
		}
	}

	c.JSON(http.StatusOK, gin.H{"nearby_outage": nearby})
}

func (h *Handler) health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// lastFetched reports the newest fetch time in the result as a Unix
// epoch, or 0 when the window holds no records.
func lastFetched(records []models.CanonicalOutageRecord) int64 {
	var max time.Time
	for _, r := range records {
		if r.FetchedAt.After(max) {
			max = r.FetchedAt
		}
	}
	if max.IsZero() {
		return 0
	}
	return max.Unix()
}
