package cache

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/mikey/antispam/internal/core"
)

// ErrNotFound is returned by SQL backends when a fingerprint has no entry.
var ErrNotFound = errors.New("cache entry not found")

// DefaultMaxAge is how long a computed entry stays valid. Overrides never
// expire.
const DefaultMaxAge = 30 * 24 * time.Hour

// FileCache is the JSON-file implementation of the classification cache:
// one object mapping fingerprint to entry, rewritten whole on every
// mutation. Cache size is bounded by distinct messages seen, not
// throughput, so the whole-file rewrite stays cheap enough.
type FileCache struct {
	path   string
	maxAge time.Duration
	logger *zap.Logger

	mu      sync.Mutex
	entries map[string]*core.CacheEntry
}

// NewFileCache loads the cache from disk. Non-override entries older than
// maxAge are dropped during load; a missing or corrupt file yields an
// empty cache rather than a startup failure.
func NewFileCache(path string, maxAge time.Duration, logger *zap.Logger) *FileCache {
	if maxAge <= 0 {
		maxAge = DefaultMaxAge
	}
	c := &FileCache{
		path:    path,
		maxAge:  maxAge,
		logger:  logger,
		entries: make(map[string]*core.CacheEntry),
	}
	c.load()
	return c
}

func (c *FileCache) load() {
	data, err := os.ReadFile(c.path)
	if err != nil {
		if !os.IsNotExist(err) {
			c.logger.Warn("Failed to read classification cache", zap.Error(err))
		}
		return
	}

	var entries map[string]*core.CacheEntry
	if err := json.Unmarshal(data, &entries); err != nil {
		c.logger.Error("Failed to parse classification cache, starting empty", zap.Error(err))
		return
	}

	cutoff := time.Now().Add(-c.maxAge)
	expired := 0
	for fingerprint, entry := range entries {
		if !entry.Override && entry.Timestamp.Before(cutoff) {
			expired++
			continue
		}
		c.entries[fingerprint] = entry
	}

	c.logger.Info("Loaded classification cache",
		zap.Int("entries", len(c.entries)),
		zap.Int("expired", expired))
}

func (c *FileCache) save() error {
	data, err := json.MarshalIndent(c.entries, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal cache: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(c.path), 0o755); err != nil {
		return fmt.Errorf("failed to create cache directory: %w", err)
	}
	if err := os.WriteFile(c.path, data, 0o644); err != nil {
		return fmt.Errorf("failed to write cache: %w", err)
	}
	return nil
}

// Lookup returns the entry for a fingerprint, if present.
func (c *FileCache) Lookup(fingerprint string) (*core.CacheEntry, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	entry, ok := c.entries[fingerprint]
	return entry, ok
}

// Put stores a computed classification for a fingerprint. An existing
// override is never displaced by a computed result.
func (c *FileCache) Put(fingerprint string, entry *core.CacheEntry) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if existing, ok := c.entries[fingerprint]; ok && existing.Override {
		return nil
	}
	if entry.Timestamp.IsZero() {
		entry.Timestamp = time.Now()
	}
	c.entries[fingerprint] = entry
	return c.save()
}

// PutOverride stores a permanent user correction for a fingerprint.
func (c *FileCache) PutOverride(fingerprint string, action core.Action, reason string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.entries[fingerprint] = &core.CacheEntry{
		Action:     action,
		Reason:     reason,
		Confidence: 1.0,
		Method:     core.MethodUserFeedback,
		Override:   true,
		Timestamp:  time.Now(),
	}
	return c.save()
}

// Len returns the number of cached entries.
func (c *FileCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}
