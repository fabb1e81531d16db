package repository

import (
	"context"
	"errors"
	"time"

	"github.com/ohub/outage-aggregator/internal/models"
)

// ErrStoreWrite reports a batch the persistence layer rejected. The
// whole batch is rolled back; no partial snapshot is ever visible.
var ErrStoreWrite = errors.New("store write failure")

// SnapshotStore is the append-only ledger of canonical outage records.
// Rows are keyed by (provider, fetchedAt) and never rewritten once
// committed; history is removed only by explicit provider purges or
// the retention policy.
type SnapshotStore interface {
	// AppendSnapshot durably writes the whole batch under one
	// fetchedAt, or nothing at all.
	AppendSnapshot(ctx context.Context, provider string, fetchedAt time.Time, records []models.CanonicalOutageRecord) error

	// PurgeProvider removes all history for one provider. Used for
	// schema migrations, never by normal ingestion.
	PurgeProvider(ctx context.Context, provider string) (int64, error)

	// PruneSnapshots enforces retention: at most keep snapshots per
	// provider, preserving planned records that have no newer
	// occurrence.
	PruneSnapshots(ctx context.Context, provider string, keep int) error
}

// SnapshotQuerier answers point-in-time queries over the ledger.
type SnapshotQuerier interface {
	// LatestAsOf returns, per provider, the records of the most
	// recent snapshot at or before asOf, plus every planned record
	// fetched at or before asOf (most recent occurrence per outage id).
	// A nil asOf means no cutoff. Providers with no snapshot at or
	// before the cutoff contribute nothing.
	LatestAsOf(ctx context.Context, asOf *time.Time) ([]models.CanonicalOutageRecord, error)

	// LatestUnconditional is LatestAsOf with no cutoff, used by the
	// cache refresher.
	LatestUnconditional(ctx context.Context) ([]models.CanonicalOutageRecord, error)
}
