package cache

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/ohub/outage-aggregator/internal/observability"
	"github.com/ohub/outage-aggregator/internal/repository"
)

// Refresher periodically rebuilds the cache from the snapshot store
// and mirrors it to the side file. A failed cycle keeps the previous
// snapshot; the loop only exits on context cancellation.
type Refresher struct {
	store    repository.SnapshotQuerier
	cache    *Cache
	filePath string
	interval time.Duration
	clock    clockwork.Clock
	metrics  *observability.Metrics
	wg       sync.WaitGroup
}

func NewRefresher(store repository.SnapshotQuerier, cache *Cache, filePath string, interval time.Duration, metrics *observability.Metrics) *Refresher {
	return &Refresher{
		store:    store,
		cache:    cache,
		filePath: filePath,
		interval: interval,
		clock:    clockwork.NewRealClock(),
		metrics:  metrics,
	}
}

// SetClock swaps the time source. Tests inject a fake clock to drive
// refresh cycles deterministically; call before Start.
func (r *Refresher) SetClock(c clockwork.Clock) {
	r.clock = c
}

func (r *Refresher) Start(ctx context.Context) {
	r.wg.Add(1)
	go r.run(ctx)
}

func (r *Refresher) run(ctx context.Context) {
	defer r.wg.Done()
	slog.Info("starting cache refresher", "interval", r.interval)

	ticker := r.clock.NewTicker(r.interval)
	defer ticker.Stop()

	r.refresh(ctx)

	for {
		select {
		case <-ctx.Done():
			slog.Info("cache refresher shutting down")
			return
		case <-ticker.Chan():
			r.refresh(ctx)
		}
	}
}

func (r *Refresher) refresh(ctx context.Context) {
	records, err := r.store.LatestUnconditional(ctx)
	if err != nil {
		r.metrics.CacheRefreshFailures.Inc()
		slog.Error("cache refresh failed, keeping previous snapshot", "error", err)
		return
	}

	now := r.clock.Now().UTC()
	r.cache.Set(records, now)
	r.metrics.CacheLastUpdated.Set(float64(now.Unix()))

	if err := WriteSideFile(r.filePath, r.cache.Get()); err != nil {
		// The in-memory snapshot stays authoritative.
		slog.Error("side file write failed", "path", r.filePath, "error", err)
	}

	slog.Debug("cache refreshed", "records", len(records))
}

func (r *Refresher) Stop() {
	r.wg.Wait()
	slog.Info("cache refresher stopped")
}
