package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	_ "modernc.org/sqlite"

	"github.com/ohub/outage-aggregator/internal/models"
)

// SQLiteDB persists snapshots in a single outages table. Every append
// runs in one transaction and is tagged with a monotonically
// increasing batch_seq; for two snapshots sharing an identical
// (provider, fetched_at), the batch with the highest batch_seq wins
// deterministically.
//
// Writes funnel through one connection; reads run on a separate
// handle against the WAL, so a query never waits on an in-flight
// append and always sees the last committed snapshot.
type SQLiteDB struct {
	writer *sql.DB
	reader *sql.DB

	// Serializes appends per provider; appends for different
	// providers do not block each other here.
	providerMu sync.Map // provider name -> *sync.Mutex
}

// memSeq names in-memory databases uniquely per instance so two open
// stores never share state.
var memSeq atomic.Int64

func dsn(path string) string {
	if path == ":memory:" {
		// A named shared-cache database stays alive as long as either
		// handle holds a connection; plain ":memory:" would give the
		// writer and reader two unrelated databases.
		return fmt.Sprintf("file:snapshots%d?mode=memory&cache=shared&_pragma=busy_timeout(5000)", memSeq.Add(1))
	}
	return "file:" + path + "?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)"
}

func NewSQLiteDB(path string) (*SQLiteDB, error) {
	source := dsn(path)

	writer, err := sql.Open("sqlite", source)
	if err != nil {
		return nil, fmt.Errorf("error opening database: %w", err)
	}
	// SQLite commits one writer at a time; funneling every append
	// through a single connection queues them here instead of
	// surfacing SQLITE_BUSY.
	writer.SetMaxOpenConns(1)

	reader, err := sql.Open("sqlite", source)
	if err != nil {
		writer.Close()
		return nil, fmt.Errorf("error opening read connections: %w", err)
	}

	s := &SQLiteDB{
		writer: writer,
		reader: reader,
	}
	if err := writer.Ping(); err != nil {
		s.Close()
		return nil, fmt.Errorf("error while pinging database: %w", err)
	}
	if err := reader.Ping(); err != nil {
		s.Close()
		return nil, fmt.Errorf("error while pinging read connections: %w", err)
	}
	if err := s.migrate(); err != nil {
		s.Close()
		return nil, fmt.Errorf("error while migrating to database: %w", err)
	}

	return s, nil
}

func (s *SQLiteDB) migrate() error {
	schema := `
		CREATE TABLE IF NOT EXISTS outages (
			seq INTEGER PRIMARY KEY AUTOINCREMENT,
			batch_seq INTEGER NOT NULL,
			id TEXT NOT NULL,
			municipality TEXT NOT NULL,
			area TEXT NOT NULL,
			cause TEXT NOT NULL,
			customers_affected INTEGER NOT NULL,
			crew_status TEXT NOT NULL,
			latitude REAL NOT NULL,
			longitude REAL NOT NULL,
			outage_start TEXT NOT NULL,
			estimated_restoration TEXT NOT NULL,
			geometry TEXT NOT NULL,
			provider TEXT NOT NULL,
			planned INTEGER NOT NULL,
			fetched_at TEXT NOT NULL
		);

		CREATE INDEX IF NOT EXISTS idx_outages_provider_fetched_at ON outages(provider, fetched_at);
		CREATE INDEX IF NOT EXISTS idx_outages_planned ON outages(planned);
  	`

	_, err := s.writer.Exec(schema)
	return err
}

func (s *SQLiteDB) Close() error {
	readErr := s.reader.Close()
	if err := s.writer.Close(); err != nil {
		return err
	}
	return readErr
}

func (s *SQLiteDB) lockProvider(provider string) *sync.Mutex {
	mu, _ := s.providerMu.LoadOrStore(provider, &sync.Mutex{})
	return mu.(*sync.Mutex)
}

// fetchedAt is stored as RFC3339 UTC so lexicographic comparison in
// SQL matches chronological order. Sub-second precision is dropped;
// same-second snapshots are resolved by batch_seq.
func formatFetchedAt(t time.Time) string {
	return t.UTC().Truncate(time.Second).Format(time.RFC3339)
}

func (s *SQLiteDB) AppendSnapshot(ctx context.Context, provider string, fetchedAt time.Time, records []models.CanonicalOutageRecord) error {
	if provider == "" {
		return fmt.Errorf("%w: empty provider", ErrStoreWrite)
	}
	if len(records) == 0 {
		// A provider reporting zero outages appends nothing; readers
		// keep seeing the previous snapshot.
		return nil
	}

	mu := s.lockProvider(provider)
	mu.Lock()
	defer mu.Unlock()

	tx, err := s.writer.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("%w: begin tx: %v", ErrStoreWrite, err)
	}
	defer tx.Rollback()

	var batchSeq int64
	if err := tx.QueryRowContext(ctx, `SELECT COALESCE(MAX(batch_seq), 0) + 1 FROM outages`).Scan(&batchSeq); err != nil {
		return fmt.Errorf("%w: next batch seq: %v", ErrStoreWrite, err)
	}

	fa := formatFetchedAt(fetchedAt)
	for i, r := range records {
		if err := validateRecord(provider, r); err != nil {
			return fmt.Errorf("%w: record %d: %v", ErrStoreWrite, i, err)
		}

		geometry := r.Geometry
		if geometry == nil {
			geometry = []models.LatLng{}
		}
		geomJSON, err := json.Marshal(geometry)
		if err != nil {
			return fmt.Errorf("%w: record %d geometry: %v", ErrStoreWrite, i, err)
		}

		_, err = tx.ExecContext(ctx, `
			INSERT INTO outages (
				batch_seq, id, municipality, area, cause, customers_affected,
				crew_status, latitude, longitude, outage_start,
				estimated_restoration, geometry, provider, planned, fetched_at
			) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			batchSeq, r.ID, r.Municipality, r.Area, r.Cause, r.CustomersAffected,
			r.CrewStatus, r.Latitude, r.Longitude, r.OutageStart,
			r.EstimatedRestoration, string(geomJSON), provider, boolToInt(r.Planned), fa,
		)
		if err != nil {
			return fmt.Errorf("%w: insert record %d: %v", ErrStoreWrite, i, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("%w: commit: %v", ErrStoreWrite, err)
	}
	return nil
}

func validateRecord(provider string, r models.CanonicalOutageRecord) error {
	if r.Provider != provider {
		return fmt.Errorf("record provider %q does not match snapshot provider %q", r.Provider, provider)
	}
	if r.ID == "" {
		return fmt.Errorf("record has empty id")
	}
	if r.CustomersAffected < 0 {
		return fmt.Errorf("record %s has negative customersAffected", r.ID)
	}
	return nil
}

func (s *SQLiteDB) PurgeProvider(ctx context.Context, provider string) (int64, error) {
	mu := s.lockProvider(provider)
	mu.Lock()
	defer mu.Unlock()

	res, err := s.writer.ExecContext(ctx, `DELETE FROM outages WHERE provider = ?`, provider)
	if err != nil {
		return 0, fmt.Errorf("%w: purge %s: %v", ErrStoreWrite, provider, err)
	}
	return res.RowsAffected()
}

// PruneSnapshots deletes snapshots beyond the keep most recent for one
// provider. A planned record in a pruned snapshot survives unless a
// newer planned occurrence of the same outage id exists, so the
// planned-union rule keeps working across prunes.
func (s *SQLiteDB) PruneSnapshots(ctx context.Context, provider string, keep int) error {
	if keep <= 0 {
		return nil
	}

	mu := s.lockProvider(provider)
	mu.Lock()
	defer mu.Unlock()

	_, err := s.writer.ExecContext(ctx, `
		DELETE FROM outages
		WHERE provider = ?1
		  AND fetched_at < (
			SELECT COALESCE(MIN(fa), '')
			FROM (
				SELECT DISTINCT fetched_at AS fa FROM outages
				WHERE provider = ?1
				ORDER BY fa DESC LIMIT ?2
			)
		  )
		  AND (
			planned = 0
			OR EXISTS (
				SELECT 1 FROM outages n
				WHERE n.provider = outages.provider
				  AND n.id = outages.id
				  AND n.planned = 1
				  AND n.fetched_at > outages.fetched_at
			)
		  )`, provider, keep)
	if err != nil {
		return fmt.Errorf("%w: prune %s: %v", ErrStoreWrite, provider, err)
	}
	return nil
}

const recordColumns = `id, municipality, area, cause, customers_affected, crew_status,
	latitude, longitude, outage_start, estimated_restoration, geometry,
	provider, planned, fetched_at`

// LatestAsOf selects, per provider, the rows of the most recent
// snapshot at or before the cutoff (ties broken toward the highest
// batch_seq), unioned with the most recent occurrence of every planned
// record fetched at or before the cutoff. Planned records already in
// the base snapshot appear once.
func (s *SQLiteDB) LatestAsOf(ctx context.Context, asOf *time.Time) ([]models.CanonicalOutageRecord, error) {
	cutoff := ""
	if asOf != nil {
		cutoff = formatFetchedAt(*asOf)
	}

	rows, err := s.reader.QueryContext(ctx, `
		SELECT `+recordColumns+`
		FROM outages o
		WHERE (?1 = '' OR o.fetched_at <= ?1)
		  AND (
			(
				o.fetched_at = (
					SELECT MAX(fetched_at) FROM outages
					WHERE provider = o.provider AND (?1 = '' OR fetched_at <= ?1)
				)
				AND o.batch_seq = (
					SELECT MAX(batch_seq) FROM outages
					WHERE provider = o.provider AND fetched_at = o.fetched_at
				)
			)
			OR (
				o.planned = 1
				AND o.fetched_at = (
					SELECT MAX(fetched_at) FROM outages
					WHERE provider = o.provider AND id = o.id AND planned = 1
					  AND (?1 = '' OR fetched_at <= ?1)
				)
				AND o.batch_seq = (
					SELECT MAX(batch_seq) FROM outages
					WHERE provider = o.provider AND id = o.id AND planned = 1
					  AND fetched_at = o.fetched_at
				)
			)
		  )
		ORDER BY o.provider, o.fetched_at, o.seq`, cutoff)
	if err != nil {
		return nil, fmt.Errorf("query latest as of: %w", err)
	}
	defer rows.Close()

	return scanRecords(rows)
}

func (s *SQLiteDB) LatestUnconditional(ctx context.Context) ([]models.CanonicalOutageRecord, error) {
	return s.LatestAsOf(ctx, nil)
}

func scanRecords(rows *sql.Rows) ([]models.CanonicalOutageRecord, error) {
	records := []models.CanonicalOutageRecord{}
	for rows.Next() {
		var r models.CanonicalOutageRecord
		var geomJSON, fetchedAt string
		var planned int

		err := rows.Scan(
			&r.ID, &r.Municipality, &r.Area, &r.Cause, &r.CustomersAffected,
			&r.CrewStatus, &r.Latitude, &r.Longitude, &r.OutageStart,
			&r.EstimatedRestoration, &geomJSON, &r.Provider, &planned, &fetchedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("scan record: %w", err)
		}

		if err := json.Unmarshal([]byte(geomJSON), &r.Geometry); err != nil {
			return nil, fmt.Errorf("decode geometry for %s/%s: %w", r.Provider, r.ID, err)
		}
		if r.Geometry == nil {
			r.Geometry = []models.LatLng{}
		}
		r.Planned = planned == 1

		t, err := time.Parse(time.RFC3339, fetchedAt)
		if err != nil {
			return nil, fmt.Errorf("decode fetched_at for %s/%s: %w", r.Provider, r.ID, err)
		}
		r.FetchedAt = t

		records = append(records, r)
	}
	return records, rows.Err()
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
