package cache

import (
	"sync/atomic"
	"time"

	"github.com/ohub/outage-aggregator/internal/models"
)

// Cache holds the latest outage snapshot behind an atomic pointer.
// Readers always see a complete snapshot; a refresh swaps the whole
// pointer in one store.
type Cache struct {
	snap atomic.Pointer[models.Snapshot]
}

func New() *Cache {
	c := &Cache{}
	c.snap.Store(&models.Snapshot{Data: []models.CanonicalOutageRecord{}})
	return c
}

// Get returns the current snapshot. The returned value is shared and
// must not be mutated.
func (c *Cache) Get() *models.Snapshot {
	return c.snap.Load()
}

func (c *Cache) Set(records []models.CanonicalOutageRecord, at time.Time) {
	if records == nil {
		records = []models.CanonicalOutageRecord{}
	}
	c.snap.Store(&models.Snapshot{Data: records, LastUpdated: at})
}
