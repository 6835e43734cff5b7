// Package sqlite provides the durable SQLite-backed counter store.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"github.com/gatewarden/gatewarden/internal/domain/ratelimit"
)

// CounterStore implements ratelimit.CounterStore on SQLite.
//
// Increments are single-statement merge-upserts, so concurrent hits on the
// same key serialize inside the database and never lose updates. The
// stale-window reset is part of the same statement: a row belonging to an
// earlier window is reset to the fresh window rather than read-then-written.
type CounterStore struct {
	db   *sql.DB
	path string
}

// NewCounterStore opens (creating if needed) the counter database at
// dataDir/ratelimit.db.
func NewCounterStore(dataDir string) (*CounterStore, error) {
	if dataDir == "" {
		return nil, fmt.Errorf("data directory is required")
	}
	if err := os.MkdirAll(dataDir, 0700); err != nil {
		return nil, fmt.Errorf("create data directory: %w", err)
	}

	dbPath := filepath.Join(dataDir, "ratelimit.db")

	// Pragmas go in the DSN so every pool connection is configured.
	dsn := dbPath + "?" + url.Values{
		"_pragma": []string{
			"busy_timeout(30000)",
			"journal_mode(WAL)",
			"synchronous(NORMAL)",
		},
	}.Encode()
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open counter database: %w", err)
	}

	// SQLite works best with a single writer connection.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	s := &CounterStore{db: db, path: dbPath}
	if err := s.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("initialize counter schema: %w", err)
	}
	return s, nil
}

// initSchema creates the counter table.
func (s *CounterStore) initSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS rate_counters (
		key TEXT PRIMARY KEY,
		window_start INTEGER NOT NULL,
		window_end INTEGER NOT NULL,
		hit_count INTEGER NOT NULL,
		total_count INTEGER NOT NULL,
		last_request_at INTEGER NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_rate_counters_window_end ON rate_counters(window_end);
	`
	_, err := s.db.Exec(schema)
	return err
}

// Increment adds one hit for key in the window ending at windowEnd,
// resetting the row first if the stored window is stale.
func (s *CounterStore) Increment(ctx context.Context, key string, windowStart, windowEnd time.Time) (ratelimit.Counter, error) {
	const q = `
	INSERT INTO rate_counters (key, window_start, window_end, hit_count, total_count, last_request_at)
	VALUES (?, ?, ?, 1, 1, ?)
	ON CONFLICT(key) DO UPDATE SET
		hit_count       = CASE WHEN excluded.window_end > rate_counters.window_end THEN 1 ELSE rate_counters.hit_count + 1 END,
		total_count     = CASE WHEN excluded.window_end > rate_counters.window_end THEN 1 ELSE rate_counters.total_count + 1 END,
		window_start    = CASE WHEN excluded.window_end > rate_counters.window_end THEN excluded.window_start ELSE rate_counters.window_start END,
		window_end      = MAX(rate_counters.window_end, excluded.window_end),
		last_request_at = excluded.last_request_at
	RETURNING key, window_start, window_end, hit_count, total_count, last_request_at`

	now := time.Now()
	row := s.db.QueryRowContext(ctx, q,
		key, windowStart.UnixMilli(), windowEnd.UnixMilli(), now.UnixMilli())

	c, err := scanCounter(row)
	if err != nil {
		return ratelimit.Counter{}, fmt.Errorf("increment counter %q: %w", key, err)
	}
	return c, nil
}

// Decrement refunds one hit for key while the row still belongs to the
// window ending at windowEnd. HitCount never goes below zero.
func (s *CounterStore) Decrement(ctx context.Context, key string, windowEnd time.Time) error {
	const q = `
	UPDATE rate_counters
	SET hit_count = MAX(hit_count - 1, 0)
	WHERE key = ? AND window_end = ?`

	if _, err := s.db.ExecContext(ctx, q, key, windowEnd.UnixMilli()); err != nil {
		return fmt.Errorf("decrement counter %q: %w", key, err)
	}
	return nil
}

// Get retrieves the stored counter for key.
func (s *CounterStore) Get(ctx context.Context, key string) (ratelimit.Counter, error) {
	const q = `
	SELECT key, window_start, window_end, hit_count, total_count, last_request_at
	FROM rate_counters WHERE key = ?`

	c, err := scanCounter(s.db.QueryRowContext(ctx, q, key))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return ratelimit.Counter{}, ratelimit.ErrCounterNotFound
		}
		return ratelimit.Counter{}, fmt.Errorf("get counter %q: %w", key, err)
	}
	return c, nil
}

// Prune deletes counters whose window ended before cutoff.
// Returns the number of rows removed.
func (s *CounterStore) Prune(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM rate_counters WHERE window_end < ?`, cutoff.UnixMilli())
	if err != nil {
		return 0, fmt.Errorf("prune counters: %w", err)
	}
	return res.RowsAffected()
}

// Ping verifies the database file is still reachable. Used by health checks.
func (s *CounterStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Close closes the underlying database.
func (s *CounterStore) Close() error {
	return s.db.Close()
}

// scanCounter reads a counter row with millisecond timestamps.
func scanCounter(row *sql.Row) (ratelimit.Counter, error) {
	var c ratelimit.Counter
	var start, end, last int64
	if err := row.Scan(&c.Key, &start, &end, &c.HitCount, &c.TotalCount, &last); err != nil {
		return ratelimit.Counter{}, err
	}
	c.WindowStart = time.UnixMilli(start)
	c.WindowEnd = time.UnixMilli(end)
	c.LastRequestAt = time.UnixMilli(last)
	return c, nil
}

// Compile-time interface verification.
var _ ratelimit.CounterStore = (*CounterStore)(nil)
