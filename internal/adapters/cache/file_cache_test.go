package cache

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/mikey/antispam/internal/core"
)

func newTestFileCache(t *testing.T) (*FileCache, string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "spam_cache.json")
	return NewFileCache(path, time.Hour, zap.NewNop()), path
}

func TestFileCachePutAndLookup(t *testing.T) {
	c, _ := newTestFileCache(t)

	require.NoError(t, c.Put("fp1", &core.CacheEntry{
		Action: core.ActionSpam, Reason: "llm verdict", Confidence: 0.9, Method: "llm_test",
	}))

	entry, ok := c.Lookup("fp1")
	require.True(t, ok)
	assert.Equal(t, core.ActionSpam, entry.Action)
	assert.False(t, entry.Override)
	assert.False(t, entry.Timestamp.IsZero(), "Put must stamp the entry")

	_, ok = c.Lookup("missing")
	assert.False(t, ok)
}

func TestFileCacheOverrideDurability(t *testing.T) {
	c, _ := newTestFileCache(t)

	require.NoError(t, c.PutOverride("fp1", core.ActionKeep, "user marked as not spam"))

	// A later computed verdict must not displace the override.
	require.NoError(t, c.Put("fp1", &core.CacheEntry{
		Action: core.ActionSpam, Confidence: 0.95, Method: "llm_test",
	}))

	entry, ok := c.Lookup("fp1")
	require.True(t, ok)
	assert.Equal(t, core.ActionKeep, entry.Action)
	assert.True(t, entry.Override)
	assert.Equal(t, core.MethodUserFeedback, entry.Method)
	assert.Equal(t, 1.0, entry.Confidence)
}

func TestFileCacheExpiryOnLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "spam_cache.json")
	logger := zap.NewNop()

	c := NewFileCache(path, time.Hour, logger)
	stale := time.Now().Add(-2 * time.Hour)
	require.NoError(t, c.Put("old", &core.CacheEntry{
		Action: core.ActionSpam, Confidence: 0.9, Timestamp: stale,
	}))
	require.NoError(t, c.PutOverride("pinned", core.ActionSpam, "user marked as spam"))

	reloaded := NewFileCache(path, time.Hour, logger)
	_, ok := reloaded.Lookup("old")
	assert.False(t, ok, "expired computed entries are dropped on load")
	_, ok = reloaded.Lookup("pinned")
	assert.True(t, ok, "overrides never expire")
}

func TestFileCachePersistenceRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "spam_cache.json")
	logger := zap.NewNop()

	c := NewFileCache(path, time.Hour, logger)
	require.NoError(t, c.Put("fp1", &core.CacheEntry{
		Action: core.ActionKeep, Reason: "ham", Confidence: 0.8, Method: "llm_test",
	}))

	reloaded := NewFileCache(path, time.Hour, logger)
	entry, ok := reloaded.Lookup("fp1")
	require.True(t, ok)
	assert.Equal(t, core.ActionKeep, entry.Action)
	assert.Equal(t, "ham", entry.Reason)
	assert.Equal(t, 1, reloaded.Len())
}

func TestFileCacheCorruptFileStartsEmpty(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "spam_cache.json")
	require.NoError(t, os.WriteFile(path, []byte("{not json"), 0o644))

	c := NewFileCache(path, time.Hour, zap.NewNop())
	assert.Equal(t, 0, c.Len())
}

func TestMemoryCacheExpiryOnAccess(t *testing.T) {
	c := NewMemoryCache(time.Hour, zap.NewNop())

	require.NoError(t, c.Put("old", &core.CacheEntry{
		Action: core.ActionSpam, Timestamp: time.Now().Add(-2 * time.Hour),
	}))
	_, ok := c.Lookup("old")
	assert.False(t, ok)

	require.NoError(t, c.PutOverride("pinned", core.ActionKeep, "user marked as not spam"))
	entry, ok := c.Lookup("pinned")
	require.True(t, ok)
	assert.True(t, entry.Override)
}

func TestMemoryCacheOverrideDurability(t *testing.T) {
	c := NewMemoryCache(time.Hour, zap.NewNop())

	require.NoError(t, c.PutOverride("fp", core.ActionKeep, "user marked as not spam"))
	require.NoError(t, c.Put("fp", &core.CacheEntry{Action: core.ActionSpam, Confidence: 0.99}))

	entry, ok := c.Lookup("fp")
	require.True(t, ok)
	assert.Equal(t, core.ActionKeep, entry.Action)
}
