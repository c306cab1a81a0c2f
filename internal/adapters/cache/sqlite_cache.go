package cache

import (
	"database/sql"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"go.uber.org/zap"

	"github.com/mikey/antispam/internal/core"
)

// SQLiteCache is a SQLite-backed classification cache for deployments
// where the JSON file gets too large to rewrite per mutation.
type SQLiteCache struct {
	db     *sql.DB
	maxAge time.Duration
	logger *zap.Logger
}

// NewSQLiteCache opens (or creates) the cache database and purges expired
// computed entries, mirroring the load-time expiry of the file backend.
func NewSQLiteCache(dbPath string, maxAge time.Duration, logger *zap.Logger) (*SQLiteCache, error) {
	if maxAge <= 0 {
		maxAge = DefaultMaxAge
	}

	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open SQLite database: %w", err)
	}

	_, err = db.Exec(`
		CREATE TABLE IF NOT EXISTS classification_cache (
			fingerprint TEXT PRIMARY KEY,
			action TEXT NOT NULL,
			reason TEXT,
			confidence REAL,
			method TEXT,
			override BOOLEAN NOT NULL DEFAULT 0,
			created_at TIMESTAMP NOT NULL
		)
	`)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create cache table: %w", err)
	}

	c := &SQLiteCache{db: db, maxAge: maxAge, logger: logger}

	cutoff := time.Now().Add(-maxAge)
	result, err := db.Exec(`DELETE FROM classification_cache WHERE override = 0 AND created_at < ?`, cutoff)
	if err != nil {
		logger.Warn("Failed to purge expired cache entries", zap.Error(err))
	} else if n, err := result.RowsAffected(); err == nil && n > 0 {
		logger.Info("Purged expired cache entries", zap.Int64("count", n))
	}

	return c, nil
}

// Lookup returns the entry for a fingerprint, if present and valid.
func (c *SQLiteCache) Lookup(fingerprint string) (*core.CacheEntry, bool) {
	var entry core.CacheEntry
	err := c.db.QueryRow(`
		SELECT action, reason, confidence, method, override, created_at
		FROM classification_cache
		WHERE fingerprint = ?
	`, fingerprint).Scan(&entry.Action, &entry.Reason, &entry.Confidence,
		&entry.Method, &entry.Override, &entry.Timestamp)

	if err != nil {
		if err != sql.ErrNoRows {
			c.logger.Error("Failed to query cache", zap.Error(err))
		}
		return nil, false
	}
	if !entry.Override && time.Since(entry.Timestamp) > c.maxAge {
		return nil, false
	}
	return &entry, true
}

// Put stores a computed classification. An existing override is never
// displaced.
func (c *SQLiteCache) Put(fingerprint string, entry *core.CacheEntry) error {
	if entry.Timestamp.IsZero() {
		entry.Timestamp = time.Now()
	}
	_, err := c.db.Exec(`
		INSERT INTO classification_cache (fingerprint, action, reason, confidence, method, override, created_at)
		VALUES (?, ?, ?, ?, ?, 0, ?)
		ON CONFLICT(fingerprint) DO UPDATE SET
			action = excluded.action,
			reason = excluded.reason,
			confidence = excluded.confidence,
			method = excluded.method,
			created_at = excluded.created_at
		WHERE classification_cache.override = 0
	`, fingerprint, entry.Action, entry.Reason, entry.Confidence, entry.Method, entry.Timestamp)
	if err != nil {
		return fmt.Errorf("failed to insert cache entry: %w", err)
	}
	return nil
}

// PutOverride stores a permanent user correction.
func (c *SQLiteCache) PutOverride(fingerprint string, action core.Action, reason string) error {
	_, err := c.db.Exec(`
		INSERT OR REPLACE INTO classification_cache
			(fingerprint, action, reason, confidence, method, override, created_at)
		VALUES (?, ?, ?, 1.0, ?, 1, ?)
	`, fingerprint, action, reason, core.MethodUserFeedback, time.Now())
	if err != nil {
		return fmt.Errorf("failed to insert cache override: %w", err)
	}
	return nil
}

// Close closes the database connection.
func (c *SQLiteCache) Close() error {
	return c.db.Close()
}
