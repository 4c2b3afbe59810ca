package cache

import (
	"fmt"

	"github.com/jaennil/guide_helper/backend/tiletree/pkg/config"
	"github.com/jaennil/guide_helper/backend/tiletree/pkg/logger"
)

// New builds the payload cache selected by cfg.Cache.Backend. The returned
// close function releases the backend's connections.
func New(cfg *config.Config, l logger.Logger) (TileCache, func() error, error) {
	noClose := func() error { return nil }

	var (
		c       TileCache
		closeFn = noClose
	)
	switch cfg.Cache.Backend {
	case "", "none":
		return NopCache{}, noClose, nil
	case "map":
		c = NewMapCache()
	case "sqlite":
		s, err := NewSQLiteCache(cfg.SQLite.Path, l)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to initialize sqlite cache: %w", err)
		}
		c, closeFn = s, s.Close
	case "redis":
		r, err := NewRedisCache(RedisConfig{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
			TTL:      cfg.Redis.TTL,
		})
		if err != nil {
			return nil, nil, err
		}
		c, closeFn = r, r.Close
	case "filesystem":
		f, err := NewFilesystemCache(cfg.Cache.Dir)
		if err != nil {
			return nil, nil, err
		}
		c = f
	default:
		return nil, nil, fmt.Errorf("unknown cache backend %q", cfg.Cache.Backend)
	}

	if cfg.Cache.Compress {
		c = NewCompressed(c)
	}
	l.Info("payload cache initialized", "backend", cfg.Cache.Backend, "compress", cfg.Cache.Compress)
	return c, closeFn, nil
}
