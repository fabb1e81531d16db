package models

import "time"

// Snapshot is an immutable view of the latest known outages across all
// providers, produced by the cache refresher and served by the API.
type Snapshot struct {
	Data        []CanonicalOutageRecord
	LastUpdated time.Time
}
