// Package cache provides the read-through cache for replica snapshots.
//
// Reporting surfaces in the surrounding application read collection
// snapshots frequently, while the replica service is slow and rate
// limited. The cache stores the last fetched rows per collection in an
// embedded SQLite database (WAL mode) and is invalidated by the sync
// engine once per successful commit.
package cache

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/ncruces/go-sqlite3/driver"
	_ "github.com/ncruces/go-sqlite3/embed"

	"github.com/gridsync/gridsync/internal/grid"
)

// Cache is a per-collection snapshot cache backed by embedded SQLite.
type Cache struct {
	conn *sql.DB
	path string
}

// Entry is one cached snapshot.
type Entry struct {
	Key       string
	Rows      [][]string
	Signature string
	FetchedAt time.Time
}

// Open creates a cache database at the specified path.
//
// The database is opened in embedded mode with WAL for concurrent reads
// and is created along with its schema if missing. The caller MUST call
// Close() when done.
func Open(path string) (*Cache, error) {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create cache directory: %w", err)
	}

	conn, err := sql.Open("sqlite3", fmt.Sprintf("file:%s", path))
	if err != nil {
		return nil, fmt.Errorf("failed to open cache database: %w", err)
	}

	if err := conn.Ping(); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("failed to ping cache database: %w", err)
	}

	conn.SetMaxOpenConns(10)
	conn.SetMaxIdleConns(2)
	conn.SetConnMaxLifetime(5 * time.Minute)

	c := &Cache{conn: conn, path: path}

	if _, err := c.conn.Exec("PRAGMA journal_mode=WAL"); err != nil {
		_ = c.Close()
		return nil, fmt.Errorf("failed to enable WAL mode: %w", err)
	}
	if _, err := c.conn.Exec("PRAGMA busy_timeout=5000"); err != nil {
		_ = c.Close()
		return nil, fmt.Errorf("failed to set busy timeout: %w", err)
	}

	if err := c.initSchema(); err != nil {
		_ = c.Close()
		return nil, err
	}

	return c, nil
}

// Close closes the cache database, checkpointing the WAL first.
func (c *Cache) Close() error {
	if c.conn == nil {
		return nil
	}

	if _, err := c.conn.Exec("PRAGMA wal_checkpoint(TRUNCATE)"); err != nil {
		fmt.Fprintf(os.Stderr, "Warning: failed to checkpoint WAL: %v\n", err)
	}

	if err := c.conn.Close(); err != nil {
		return fmt.Errorf("failed to close cache database: %w", err)
	}

	c.conn = nil
	return nil
}

func (c *Cache) initSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS snapshots (
		collection TEXT PRIMARY KEY,
		rows_json  TEXT NOT NULL,
		signature  TEXT NOT NULL,
		fetched_at TEXT NOT NULL
	);
	`
	if _, err := c.conn.Exec(schema); err != nil {
		return fmt.Errorf("failed to initialize cache schema: %w", err)
	}
	return nil
}

// Put stores the fetched rows for a collection, replacing any previous
// entry.
func (c *Cache) Put(key string, rows [][]string, signature string) error {
	rowsJSON, err := json.Marshal(rows)
	if err != nil {
		return fmt.Errorf("failed to marshal rows: %w", err)
	}

	_, err = c.conn.Exec(`
		INSERT INTO snapshots (collection, rows_json, signature, fetched_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(collection) DO UPDATE SET
			rows_json = excluded.rows_json,
			signature = excluded.signature,
			fetched_at = excluded.fetched_at
	`, key, string(rowsJSON), signature, time.Now().UTC().Format(time.RFC3339))
	if err != nil {
		return fmt.Errorf("failed to store snapshot for %s: %w", key, err)
	}
	return nil
}

// Get returns the cached entry for a collection. The second return value
// reports whether an entry exists.
func (c *Cache) Get(key string) (*Entry, bool, error) {
	var rowsJSON, signature, fetchedAt string
	err := c.conn.QueryRow(`
		SELECT rows_json, signature, fetched_at FROM snapshots WHERE collection = ?
	`, key).Scan(&rowsJSON, &signature, &fetchedAt)
	if err == sql.ErrNoRows {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("failed to load snapshot for %s: %w", key, err)
	}

	entry := &Entry{Key: key, Signature: signature}
	if err := json.Unmarshal([]byte(rowsJSON), &entry.Rows); err != nil {
		return nil, false, fmt.Errorf("corrupt cached snapshot for %s: %w", key, err)
	}
	if t, err := time.Parse(time.RFC3339, fetchedAt); err == nil {
		entry.FetchedAt = t
	}
	return entry, true, nil
}

// Invalidate drops the cached entry for a collection. Missing entries
// are not an error (idempotent).
func (c *Cache) Invalidate(key string) error {
	if _, err := c.conn.Exec(`DELETE FROM snapshots WHERE collection = ?`, key); err != nil {
		return fmt.Errorf("failed to invalidate snapshot for %s: %w", key, err)
	}
	return nil
}

// Fetch reads the rows for a collection through the cache: a cached
// entry is served directly, otherwise the range is fetched from the
// replica and stored before returning.
func (c *Cache) Fetch(ctx context.Context, client grid.Client, key, rng string) ([][]string, error) {
	entry, ok, err := c.Get(key)
	if err != nil {
		return nil, err
	}
	if ok {
		return entry.Rows, nil
	}

	rows, err := client.FetchRange(ctx, rng)
	if err != nil {
		return nil, err
	}
	if err := c.Put(key, rows, ""); err != nil {
		return nil, err
	}
	return rows, nil
}

// Stats returns the number of cached collections and the oldest fetch
// time, for status reporting.
func (c *Cache) Stats() (int, time.Time, error) {
	var count int
	var oldest sql.NullString
	err := c.conn.QueryRow(`SELECT COUNT(*), MIN(fetched_at) FROM snapshots`).Scan(&count, &oldest)
	if err != nil {
		return 0, time.Time{}, fmt.Errorf("failed to query cache stats: %w", err)
	}

	var t time.Time
	if oldest.Valid {
		t, _ = time.Parse(time.RFC3339, oldest.String)
	}
	return count, t, nil
}
