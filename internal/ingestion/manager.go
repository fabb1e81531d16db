package ingestion

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/ohub/outage-aggregator/internal/config"
	"github.com/ohub/outage-aggregator/internal/observability"
	"github.com/ohub/outage-aggregator/internal/provider"
	"github.com/ohub/outage-aggregator/internal/repository"
	"github.com/ohub/outage-aggregator/internal/worker"
)

// Source pairs an adapter with its polling cadence.
type Source struct {
	Adapter      provider.Adapter
	PollInterval time.Duration
}

// CycleSummary is the outcome of one fetch-normalize-store cycle for a
// single provider.
type CycleSummary struct {
	Provider string
	Records  int
	Skipped  int
	Stage    string // failed stage when Err is set: fetch, normalize, store
	Err      error
}

type Manager struct {
	cfg     *config.Config
	store   repository.SnapshotStore
	metrics *observability.Metrics
	sources []Source
	pool    *worker.Pool
	wg      sync.WaitGroup
}

func NewManager(cfg *config.Config, store repository.SnapshotStore, metrics *observability.Metrics, sources []Source) *Manager {
	return &Manager{
		cfg:     cfg,
		store:   store,
		metrics: metrics,
		sources: sources,
	}
}

// SourcesFromConfig builds the enabled provider adapters.
func SourcesFromConfig(cfg *config.Config) []Source {
	var sources []Source
	add := func(sc config.SourceConfig, a provider.Adapter) {
		if sc.Enabled {
			sources = append(sources, Source{Adapter: a, PollInterval: sc.PollInterval})
		}
	}

	s := cfg.Sources
	add(s.BCHydro, provider.NewBCHydro(s.BCHydro.URL))
	add(s.Enmax, provider.NewEnmax(s.Enmax.URL))
	add(s.QuebecHydro, provider.NewQuebecHydro(s.QuebecHydro.URL, s.QuebecPolygonURL))
	add(s.NBPower, provider.NewNBPower(s.NBPower.URL))
	add(s.FortisBC, provider.NewFortisBC(s.FortisBC.URL))
	add(s.Niagara, provider.NewNiagara(s.Niagara.URL))
	add(s.ManitobaHydro, provider.NewManitobaHydro(s.ManitobaHydro.URL))
	add(s.HydroOne, provider.NewHydroOne(s.HydroOne.URL, s.HydroOneRoots))

	return sources
}

func (m *Manager) Start(ctx context.Context) {
	m.pool = worker.NewPool(m.cfg.Worker.Count, m.cfg.Worker.BufferSize)
	m.pool.Start(ctx)

	for _, src := range m.sources {
		m.wg.Add(1)
		go m.runPoller(ctx, src)
	}
}

func (m *Manager) runPoller(ctx context.Context, src Source) {
	defer m.wg.Done()
	slog.Info("starting poller", "provider", src.Adapter.Name(), "interval", src.PollInterval)
	m.metrics.PollersRunning.Inc()
	defer m.metrics.PollersRunning.Dec()

	ticker := time.NewTicker(src.PollInterval)
	defer ticker.Stop()

	// Initial poll
	m.submitCycle(ctx, src.Adapter)

	for {
		select {
		case <-ctx.Done():
			slog.Info("poller shutting down", "provider", src.Adapter.Name())
			return
		case <-ticker.C:
			m.submitCycle(ctx, src.Adapter)
		}
	}
}

func (m *Manager) submitCycle(ctx context.Context, a provider.Adapter) {
	accepted := m.pool.Submit(ctx, func(ctx context.Context) {
		start := time.Now()
		summary := m.runCycle(ctx, a)
		m.observe(summary, time.Since(start))
	})
	if !accepted {
		slog.Warn("dropping poll cycle, shutting down", "provider", a.Name())
	}
}

// runCycle executes one cycle for a single provider. A failed stage
// skips the rest of the cycle; other providers are unaffected.
func (m *Manager) runCycle(ctx context.Context, a provider.Adapter) CycleSummary {
	name := a.Name()

	raw, err := a.Fetch(ctx)
	if err != nil {
		return CycleSummary{Provider: name, Stage: "fetch", Err: err}
	}

	fetchedAt := time.Now().UTC()
	result, err := a.Normalize(raw, fetchedAt)
	if err != nil {
		return CycleSummary{Provider: name, Stage: "normalize", Err: err}
	}

	if err := m.store.AppendSnapshot(ctx, name, fetchedAt, result.Records); err != nil {
		return CycleSummary{Provider: name, Skipped: result.Skipped, Stage: "store", Err: err}
	}

	if err := m.store.PruneSnapshots(ctx, name, m.cfg.Retention.KeepSnapshots); err != nil {
		// Retention is best effort; the snapshot itself landed.
		slog.Warn("prune failed", "provider", name, "error", err)
	}

	return CycleSummary{Provider: name, Records: len(result.Records), Skipped: result.Skipped}
}

func (m *Manager) observe(s CycleSummary, elapsed time.Duration) {
	m.metrics.CycleDuration.WithLabelValues(s.Provider).Observe(elapsed.Seconds())

	if s.Err != nil {
		m.metrics.CyclesFailed.WithLabelValues(s.Provider, s.Stage).Inc()
		slog.Error("cycle failed", "provider", s.Provider, "stage", s.Stage, "error", s.Err)
		return
	}

	m.metrics.RecordsIngested.WithLabelValues(s.Provider).Add(float64(s.Records))
	m.metrics.RecordsSkipped.WithLabelValues(s.Provider).Add(float64(s.Skipped))
	slog.Info("cycle complete", "provider", s.Provider, "records", s.Records, "skipped", s.Skipped, "duration", elapsed)
}

func (m *Manager) Stop() {
	m.wg.Wait()
	m.pool.Stop()
	slog.Info("ingestion manager stopped")
}
