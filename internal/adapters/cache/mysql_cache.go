package cache

import (
	"database/sql"
	"fmt"
	"time"

	_ "github.com/go-sql-driver/mysql"
	"go.uber.org/zap"

	"github.com/mikey/antispam/internal/core"
)

// MySQLCache is a MySQL-backed classification cache for multi-host
// deployments sharing one verdict store.
type MySQLCache struct {
	db     *sql.DB
	maxAge time.Duration
	logger *zap.Logger
}

// NewMySQLCache connects to MySQL, creates the cache table if needed, and
// purges expired computed entries.
func NewMySQLCache(dsn string, maxAge time.Duration, logger *zap.Logger) (*MySQLCache, error) {
	if maxAge <= 0 {
		maxAge = DefaultMaxAge
	}

	db, err := sql.Open("mysql", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open MySQL database: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to MySQL database: %w", err)
	}

	_, err = db.Exec(`
		CREATE TABLE IF NOT EXISTS classification_cache (
			fingerprint VARCHAR(32) PRIMARY KEY,
			action VARCHAR(8) NOT NULL,
			reason TEXT,
			confidence DOUBLE,
			method VARCHAR(32),
			override BOOLEAN NOT NULL DEFAULT FALSE,
			created_at TIMESTAMP NOT NULL,
			INDEX idx_created_at (created_at)
		)
	`)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create cache table: %w", err)
	}

	c := &MySQLCache{db: db, maxAge: maxAge, logger: logger}

	cutoff := time.Now().Add(-maxAge)
	if _, err := db.Exec(`DELETE FROM classification_cache WHERE override = FALSE AND created_at < ?`, cutoff); err != nil {
		logger.Warn("Failed to purge expired cache entries", zap.Error(err))
	}

	return c, nil
}

// Lookup returns the entry for a fingerprint, if present and valid.
func (c *MySQLCache) Lookup(fingerprint string) (*core.CacheEntry, bool) {
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

// Put stores a computed classification, leaving overrides untouched.
func (c *MySQLCache) Put(fingerprint string, entry *core.CacheEntry) error {
	if entry.Timestamp.IsZero() {
		entry.Timestamp = time.Now()
	}
	_, err := c.db.Exec(`
		INSERT INTO classification_cache (fingerprint, action, reason, confidence, method, override, created_at)
		VALUES (?, ?, ?, ?, ?, FALSE, ?)
		ON DUPLICATE KEY UPDATE
			action = IF(override, action, VALUES(action)),
			reason = IF(override, reason, VALUES(reason)),
			confidence = IF(override, confidence, VALUES(confidence)),
			method = IF(override, method, VALUES(method)),
			created_at = IF(override, created_at, VALUES(created_at))
	`, fingerprint, entry.Action, entry.Reason, entry.Confidence, entry.Method, entry.Timestamp)
	if err != nil {
		return fmt.Errorf("failed to insert cache entry: %w", err)
	}
	return nil
}

// PutOverride stores a permanent user correction.
func (c *MySQLCache) PutOverride(fingerprint string, action core.Action, reason string) error {
	_, err := c.db.Exec(`
		REPLACE INTO classification_cache
			(fingerprint, action, reason, confidence, method, override, created_at)
		VALUES (?, ?, ?, 1.0, ?, TRUE, ?)
	`, fingerprint, action, reason, core.MethodUserFeedback, time.Now())
	if err != nil {
		return fmt.Errorf("failed to insert cache override: %w", err)
	}
	return nil
}

// Close closes the database connection.
func (c *MySQLCache) Close() error {
	return c.db.Close()
}
