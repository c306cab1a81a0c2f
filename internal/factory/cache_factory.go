package factory

import (
	"fmt"
	"path/filepath"

	"go.uber.org/zap"

	"github.com/mikey/antispam/internal/adapters/cache"
	"github.com/mikey/antispam/internal/config"
	"github.com/mikey/antispam/internal/core"
)

// NewCacheStore builds the configured classification cache backend.
func NewCacheStore(cfg *config.Config, logger *zap.Logger) (core.CacheStore, error) {
	maxAge, err := cfg.GetDuration("cache.max_age")
	if err != nil {
		maxAge = cache.DefaultMaxAge
		logger.Warn("Invalid cache.max_age, using default",
			zap.Duration("default", maxAge))
	}

	switch cacheType := cfg.GetString("cache.type"); cacheType {
	case "json", "file":
		path := filepath.Join(cfg.GetString("data.dir"), "spam_cache.json")
		return cache.NewFileCache(path, maxAge, logger), nil
	case "memory":
		return cache.NewMemoryCache(maxAge, logger), nil
	case "sqlite":
		return cache.NewSQLiteCache(cfg.GetString("cache.sqlite_path"), maxAge, logger)
	case "mysql":
		return cache.NewMySQLCache(cfg.GetString("cache.mysql_dsn"), maxAge, logger)
	default:
		return nil, fmt.Errorf("unknown cache type: %s", cacheType)
	}
}
