package repository

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/ohub/outage-aggregator/internal/models"
)

func setupTestDB(t *testing.T) *SQLiteDB {
	db, err := NewSQLiteDB(":memory:")
	if err != nil {
		t.Fatalf("failed to create test db: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func record(provider, id string) models.CanonicalOutageRecord {
	r := models.CanonicalOutageRecord{
		ID:        id,
		Provider:  provider,
		Latitude:  45.0,
		Longitude: -75.0,
	}
	r.Normalize()
	return r
}

func plannedRecord(provider, id string) models.CanonicalOutageRecord {
	r := record(provider, id)
	r.Planned = true
	return r
}

func ts(s string) time.Time {
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		panic(err)
	}
	return t
}

func ids(records []models.CanonicalOutageRecord) map[string]bool {
	out := make(map[string]bool, len(records))
	for _, r := range records {
		out[r.Provider+"/"+r.ID] = true
	}
	return out
}

func TestSQLiteDB_AppendAndQueryLatest(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()

	err := db.AppendSnapshot(ctx, "A", ts("2024-01-01T00:00:00Z"), []models.CanonicalOutageRecord{
		record("A", "r1"), record("A", "r2"),
	})
	if err != nil {
		t.Fatalf("AppendSnapshot failed: %v", err)
	}

	got, err := db.LatestUnconditional(ctx)
	if err != nil {
		t.Fatalf("LatestUnconditional failed: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("expected 2 records, got %d", len(got))
	}
	if got[0].FetchedAt != ts("2024-01-01T00:00:00Z") {
		t.Errorf("expected fetchedAt to round-trip, got %v", got[0].FetchedAt)
	}
	if got[0].Geometry == nil {
		t.Error("expected non-nil geometry after scan")
	}
}

func TestSQLiteDB_LatestAsOf_Windows(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()

	// Snapshots at t1 < t2 < t3.
	for i, stamp := range []string{
		"2024-01-01T00:00:00Z",
		"2024-01-01T01:00:00Z",
		"2024-01-01T02:00:00Z",
	} {
		id := []string{"first", "second", "third"}[i]
		if err := db.AppendSnapshot(ctx, "A", ts(stamp), []models.CanonicalOutageRecord{record("A", id)}); err != nil {
			t.Fatalf("AppendSnapshot failed: %v", err)
		}
	}

	// T in [t2, t3) selects the t2 snapshot.
	asOf := ts("2024-01-01T01:30:00Z")
	got, err := db.LatestAsOf(ctx, &asOf)
	if err != nil {
		t.Fatalf("LatestAsOf failed: %v", err)
	}
	if len(got) != 1 || got[0].ID != "second" {
		t.Errorf("expected [second], got %v", ids(got))
	}

	// T exactly at t2 is inclusive.
	asOf = ts("2024-01-01T01:00:00Z")
	got, err = db.LatestAsOf(ctx, &asOf)
	if err != nil {
		t.Fatalf("LatestAsOf failed: %v", err)
	}
	if len(got) != 1 || got[0].ID != "second" {
		t.Errorf("expected [second] at exact t2, got %v", ids(got))
	}

	// T before t1: the provider contributes nothing.
	asOf = ts("2023-12-31T23:00:00Z")
	got, err = db.LatestAsOf(ctx, &asOf)
	if err != nil {
		t.Fatalf("LatestAsOf failed: %v", err)
	}
	if len(got) != 0 {
		t.Errorf("expected no records before t1, got %v", ids(got))
	}
}

func TestSQLiteDB_LatestAsOf_PlannedUnion(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()

	// Provider A: t1 has R1 and planned R2; t2 has R3 only.
	err := db.AppendSnapshot(ctx, "A", ts("2024-01-01T00:00:00Z"), []models.CanonicalOutageRecord{
		record("A", "R1"), plannedRecord("A", "R2"),
	})
	if err != nil {
		t.Fatalf("AppendSnapshot failed: %v", err)
	}
	err = db.AppendSnapshot(ctx, "A", ts("2024-01-01T00:05:00Z"), []models.CanonicalOutageRecord{
		record("A", "R3"),
	})
	if err != nil {
		t.Fatalf("AppendSnapshot failed: %v", err)
	}

	// Between the snapshots: the t1 snapshot as-is.
	asOf := ts("2024-01-01T00:03:00Z")
	got, err := db.LatestAsOf(ctx, &asOf)
	if err != nil {
		t.Fatalf("LatestAsOf failed: %v", err)
	}
	want := map[string]bool{"A/R1": true, "A/R2": true}
	if len(got) != 2 {
		t.Fatalf("expected {R1, R2}, got %v", ids(got))
	}
	for k := range want {
		if !ids(got)[k] {
			t.Errorf("missing %s in %v", k, ids(got))
		}
	}

	// After t2: R3 plus R2 surviving via the planned-union rule.
	asOf = ts("2024-01-01T00:10:00Z")
	got, err = db.LatestAsOf(ctx, &asOf)
	if err != nil {
		t.Fatalf("LatestAsOf failed: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("expected {R3, R2}, got %v", ids(got))
	}
	for _, k := range []string{"A/R3", "A/R2"} {
		if !ids(got)[k] {
			t.Errorf("missing %s in %v", k, ids(got))
		}
	}

	// The planned record survives before its own snapshot too? No:
	// nothing is visible before t1.
	asOf = ts("2023-12-31T00:00:00Z")
	got, _ = db.LatestAsOf(ctx, &asOf)
	if len(got) != 0 {
		t.Errorf("expected nothing before t1, got %v", ids(got))
	}
}

func TestSQLiteDB_LatestAsOf_PlannedDeduplicated(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()

	// The same planned outage appears in two consecutive snapshots;
	// only the most recent occurrence is returned.
	db.AppendSnapshot(ctx, "A", ts("2024-01-01T00:00:00Z"), []models.CanonicalOutageRecord{
		plannedRecord("A", "P1"),
	})
	db.AppendSnapshot(ctx, "A", ts("2024-01-01T00:05:00Z"), []models.CanonicalOutageRecord{
		plannedRecord("A", "P1"), record("A", "R1"),
	})

	got, err := db.LatestUnconditional(ctx)
	if err != nil {
		t.Fatalf("LatestUnconditional failed: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("expected 2 records (P1 once), got %d: %v", len(got), ids(got))
	}
	for _, r := range got {
		if r.ID == "P1" && r.FetchedAt != ts("2024-01-01T00:05:00Z") {
			t.Errorf("expected the newer P1 occurrence, got fetchedAt %v", r.FetchedAt)
		}
	}
}

func TestSQLiteDB_LatestAsOf_MultiProviderIsolation(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()

	db.AppendSnapshot(ctx, "A", ts("2024-01-01T00:00:00Z"), []models.CanonicalOutageRecord{record("A", "a1")})
	db.AppendSnapshot(ctx, "B", ts("2024-01-01T02:00:00Z"), []models.CanonicalOutageRecord{record("B", "b1")})

	// A cutoff between the two snapshots includes A's but not B's.
	asOf := ts("2024-01-01T01:00:00Z")
	got, err := db.LatestAsOf(ctx, &asOf)
	if err != nil {
		t.Fatalf("LatestAsOf failed: %v", err)
	}
	if len(got) != 1 || got[0].Provider != "A" {
		t.Errorf("expected only provider A, got %v", ids(got))
	}

	got, _ = db.LatestUnconditional(ctx)
	if len(got) != 2 {
		t.Errorf("expected both providers unconditionally, got %v", ids(got))
	}
}

func TestSQLiteDB_AppendSnapshot_Atomicity(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()

	// Second record fails validation (wrong provider): no rows at all.
	bad := record("B", "stray")
	err := db.AppendSnapshot(ctx, "A", ts("2024-01-01T00:00:00Z"), []models.CanonicalOutageRecord{
		record("A", "ok"), bad,
	})
	if err == nil {
		t.Fatal("expected validation error, got nil")
	}

	got, queryErr := db.LatestUnconditional(ctx)
	if queryErr != nil {
		t.Fatalf("LatestUnconditional failed: %v", queryErr)
	}
	if len(got) != 0 {
		t.Errorf("expected zero visible rows after failed batch, got %d", len(got))
	}
}

func TestSQLiteDB_AppendSnapshot_EmptyBatchIsNoOp(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()

	db.AppendSnapshot(ctx, "A", ts("2024-01-01T00:00:00Z"), []models.CanonicalOutageRecord{record("A", "r1")})
	if err := db.AppendSnapshot(ctx, "A", ts("2024-01-01T01:00:00Z"), nil); err != nil {
		t.Fatalf("empty append failed: %v", err)
	}

	// Readers keep seeing the previous snapshot.
	got, _ := db.LatestUnconditional(ctx)
	if len(got) != 1 || got[0].ID != "r1" {
		t.Errorf("expected previous snapshot to stay visible, got %v", ids(got))
	}
}

func TestSQLiteDB_TieBreak_SameFetchedAt(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()

	// Two snapshots with an identical timestamp: the later append
	// (higher batch_seq) wins, whole batch.
	stamp := ts("2024-01-01T00:00:00Z")
	db.AppendSnapshot(ctx, "A", stamp, []models.CanonicalOutageRecord{record("A", "old1"), record("A", "old2")})
	db.AppendSnapshot(ctx, "A", stamp, []models.CanonicalOutageRecord{record("A", "new1")})

	got, err := db.LatestUnconditional(ctx)
	if err != nil {
		t.Fatalf("LatestUnconditional failed: %v", err)
	}
	if len(got) != 1 || got[0].ID != "new1" {
		t.Errorf("expected the later batch to win, got %v", ids(got))
	}
}

func TestSQLiteDB_PurgeProvider(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()

	db.AppendSnapshot(ctx, "A", ts("2024-01-01T00:00:00Z"), []models.CanonicalOutageRecord{record("A", "a1"), record("A", "a2")})
	db.AppendSnapshot(ctx, "B", ts("2024-01-01T00:00:00Z"), []models.CanonicalOutageRecord{record("B", "b1")})

	n, err := db.PurgeProvider(ctx, "A")
	if err != nil {
		t.Fatalf("PurgeProvider failed: %v", err)
	}
	if n != 2 {
		t.Errorf("expected 2 rows purged, got %d", n)
	}

	got, _ := db.LatestUnconditional(ctx)
	if len(got) != 1 || got[0].Provider != "B" {
		t.Errorf("expected only provider B to remain, got %v", ids(got))
	}
}

func TestSQLiteDB_PruneSnapshots(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()

	db.AppendSnapshot(ctx, "A", ts("2024-01-01T00:00:00Z"), []models.CanonicalOutageRecord{
		record("A", "old"), plannedRecord("A", "keepme"),
	})
	db.AppendSnapshot(ctx, "A", ts("2024-01-01T01:00:00Z"), []models.CanonicalOutageRecord{record("A", "mid")})
	db.AppendSnapshot(ctx, "A", ts("2024-01-01T02:00:00Z"), []models.CanonicalOutageRecord{record("A", "new")})

	if err := db.PruneSnapshots(ctx, "A", 2); err != nil {
		t.Fatalf("PruneSnapshots failed: %v", err)
	}

	// The oldest snapshot is gone except its planned record, which
	// has no newer occurrence.
	got, err := db.LatestUnconditional(ctx)
	if err != nil {
		t.Fatalf("LatestUnconditional failed: %v", err)
	}
	gotIDs := ids(got)
	if !gotIDs["A/new"] || !gotIDs["A/keepme"] {
		t.Errorf("expected new and keepme to survive, got %v", gotIDs)
	}
	if gotIDs["A/old"] {
		t.Errorf("expected old to be pruned, got %v", gotIDs)
	}

	// As-of the pruned window, the unplanned row is really gone.
	asOf := ts("2024-01-01T00:30:00Z")
	got, _ = db.LatestAsOf(ctx, &asOf)
	for _, r := range got {
		if r.ID == "old" {
			t.Error("expected pruned row to be gone from as-of queries")
		}
	}
}

func TestSQLiteDB_ConcurrentAppends(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()

	providers := []string{"A", "B", "C", "D"}
	done := make(chan error, len(providers))
	for _, p := range providers {
		go func(p string) {
			var err error
			for i := 0; i < 5 && err == nil; i++ {
				stamp := ts("2024-01-01T00:00:00Z").Add(time.Duration(i) * time.Minute)
				err = db.AppendSnapshot(ctx, p, stamp, []models.CanonicalOutageRecord{record(p, "x")})
			}
			done <- err
		}(p)
	}
	for range providers {
		if err := <-done; err != nil {
			t.Fatalf("concurrent append failed: %v", err)
		}
	}

	got, err := db.LatestUnconditional(ctx)
	if err != nil {
		t.Fatalf("LatestUnconditional failed: %v", err)
	}
	if len(got) != len(providers) {
		t.Errorf("expected one latest record per provider, got %d", len(got))
	}
}

func TestSQLiteDB_ReadsNotBlockedByInFlightAppend(t *testing.T) {
	// WAL applies to on-disk databases only; use a real file so the
	// read path matches production.
	db, err := NewSQLiteDB(filepath.Join(t.TempDir(), "outages.db"))
	if err != nil {
		t.Fatalf("failed to create test db: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	ctx := context.Background()

	if err := db.AppendSnapshot(ctx, "B", ts("2024-01-01T00:00:00Z"), []models.CanonicalOutageRecord{record("B", "b1")}); err != nil {
		t.Fatalf("AppendSnapshot failed: %v", err)
	}

	// Hold an uncommitted append for provider A on the write
	// connection while querying.
	tx, err := db.writer.Begin()
	if err != nil {
		t.Fatalf("begin tx failed: %v", err)
	}
	defer tx.Rollback()
	_, err = tx.Exec(`
		INSERT INTO outages (
			batch_seq, id, municipality, area, cause, customers_affected,
			crew_status, latitude, longitude, outage_start,
			estimated_restoration, geometry, provider, planned, fetched_at
		) VALUES (2, 'a1', 'unknown', 'unknown', 'unknown', 0,
			'unknown', 45.0, -75.0, 'N/A', 'N/A', '[]', 'A', 0,
			'2024-01-01T00:05:00Z')`)
	if err != nil {
		t.Fatalf("insert in open tx failed: %v", err)
	}

	queryCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	got, err := db.LatestUnconditional(queryCtx)
	if err != nil {
		t.Fatalf("read blocked or failed behind open write tx: %v", err)
	}
	if len(got) != 1 || got[0].Provider != "B" {
		t.Fatalf("expected only the committed B snapshot, got %v", ids(got))
	}
}
