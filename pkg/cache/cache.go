// Package cache is the durable ledger of photos that were fully
// written and tagged. It is the single authority for "new vs.
// already seen": a photo is new iff no entry with its stable id
// exists.
//
// Entries are inserted only after a successful write plus tag, in one
// statement, so a crash between the file write and the cache record
// leaves no entry; the next run re-derives the photo as new and
// reprocesses it, overwriting the orphaned file under the same
// deterministic name.
package cache

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite" // SQLite driver

	"tcgrabber/pkg/models"
)

const dbFileName = "photos.db"

// Cache provides SQLite-based storage for processed photo entries.
type Cache struct {
	db     *sql.DB
	dbPath string
}

// Open opens or creates the dedup cache in the given directory.
func Open(dir string) (*Cache, error) {
	if err := os.MkdirAll(dir, 0750); err != nil {
		return nil, fmt.Errorf("failed to create cache directory: %w", err)
	}

	dbPath := filepath.Join(dir, dbFileName)
	db, err := sql.Open("sqlite", dbPath+"?mode=rwc")
	if err != nil {
		return nil, fmt.Errorf("failed to open cache database: %w", err)
	}

	// SQLite only supports one writer
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(time.Hour)

	c := &Cache{db: db, dbPath: dbPath}

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to enable WAL mode: %w", err)
	}

	if err := c.createTables(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to create tables: %w", err)
	}

	return c, nil
}

// Close closes the database connection.
func (c *Cache) Close() error {
	return c.db.Close()
}

func (c *Cache) createTables() error {
	schema := `
	CREATE TABLE IF NOT EXISTS photos (
		stable_id   TEXT PRIMARY KEY,
		local_path  TEXT NOT NULL,
		fingerprint TEXT NOT NULL,
		size        INTEGER NOT NULL,
		first_seen  DATETIME NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_photos_first_seen ON photos(first_seen);
	`
	_, err := c.db.Exec(schema)
	return err
}

// Contains reports whether an entry with the given stable id exists.
func (c *Cache) Contains(stableID string) (bool, error) {
	var one int
	err := c.db.QueryRow("SELECT 1 FROM photos WHERE stable_id = ?", stableID).Scan(&one)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to query cache: %w", err)
	}
	return true, nil
}

// Record inserts the entry for a fully processed photo. Re-recording
// the same stable id after a crash recovery is a no-op, which keeps
// the pipeline idempotent.
func (c *Cache) Record(entry models.CacheEntry) error {
	firstSeen := entry.FirstSeen
	if firstSeen.IsZero() {
		firstSeen = time.Now()
	}

	_, err := c.db.Exec(`
		INSERT OR IGNORE INTO photos (stable_id, local_path, fingerprint, size, first_seen)
		VALUES (?, ?, ?, ?, ?)`,
		entry.StableID, entry.LocalPath, entry.Fingerprint, entry.Size, firstSeen,
	)
	if err != nil {
		return fmt.Errorf("failed to record cache entry: %w", err)
	}
	return nil
}

// Get returns the entry for a stable id, or nil when absent.
func (c *Cache) Get(stableID string) (*models.CacheEntry, error) {
	var entry models.CacheEntry
	err := c.db.QueryRow(`
		SELECT stable_id, local_path, fingerprint, size, first_seen
		FROM photos WHERE stable_id = ?`, stableID,
	).Scan(&entry.StableID, &entry.LocalPath, &entry.Fingerprint, &entry.Size, &entry.FirstSeen)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load cache entry: %w", err)
	}
	return &entry, nil
}

// Count returns the number of recorded photos.
func (c *Cache) Count() (int, error) {
	var n int
	if err := c.db.QueryRow("SELECT COUNT(*) FROM photos").Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count cache entries: %w", err)
	}
	return n, nil
}

// UpdatePath relocates an entry's local path, the only mutation a
// cache entry ever sees.
func (c *Cache) UpdatePath(stableID, newPath string) error {
	_, err := c.db.Exec("UPDATE photos SET local_path = ? WHERE stable_id = ?", newPath, stableID)
	if err != nil {
		return fmt.Errorf("failed to update cache entry path: %w", err)
	}
	return nil
}
