package cache

import (
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/mikey/antispam/internal/core"
)

// MemoryCache is a volatile cache backend. Useful for tests and for
// deployments that deliberately forget verdicts across restarts.
type MemoryCache struct {
	mu      sync.RWMutex
	entries map[string]*core.CacheEntry
	maxAge  time.Duration
	logger  *zap.Logger
}

// NewMemoryCache creates an empty in-memory cache.
func NewMemoryCache(maxAge time.Duration, logger *zap.Logger) *MemoryCache {
	if maxAge <= 0 {
		maxAge = DefaultMaxAge
	}
	return &MemoryCache{
		entries: make(map[string]*core.CacheEntry),
		maxAge:  maxAge,
		logger:  logger,
	}
}

// Lookup returns the entry for a fingerprint. Expired computed entries
// are dropped on access.
func (c *MemoryCache) Lookup(fingerprint string) (*core.CacheEntry, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	entry, ok := c.entries[fingerprint]
	if !ok {
		return nil, false
	}
	if !entry.Override && time.Since(entry.Timestamp) > c.maxAge {
		delete(c.entries, fingerprint)
		return nil, false
	}
	return entry, true
}

// Put stores a computed classification.
func (c *MemoryCache) Put(fingerprint string, entry *core.CacheEntry) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if existing, ok := c.entries[fingerprint]; ok && existing.Override {
		return nil
	}
	if entry.Timestamp.IsZero() {
		entry.Timestamp = time.Now()
	}
	c.entries[fingerprint] = entry
	return nil
}

// PutOverride stores a permanent user correction.
func (c *MemoryCache) PutOverride(fingerprint string, action core.Action, reason string) error {
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
	return nil
}
