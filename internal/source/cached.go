package source

import (
	"context"

	"github.com/jaennil/guide_helper/backend/tiletree/internal/repository/cache"
	"github.com/jaennil/guide_helper/backend/tiletree/pkg/logger"
	"github.com/jaennil/guide_helper/backend/tiletree/pkg/metrics"
	"golang.org/x/sync/singleflight"
)

// Cached puts a payload cache in front of a source. Concurrent fetches of
// the same payload are collapsed into one upstream request.
type Cached struct {
	Source
	cache  cache.TileCache
	group  singleflight.Group
	logger logger.Logger
}

func NewCached(src Source, c cache.TileCache, l logger.Logger) *Cached {
	return &Cached{Source: src, cache: c, logger: l}
}

var _ Source = (*Cached)(nil)

func (c *Cached) Fetch(ctx context.Context, req Request) ([]byte, error) {
	key := CacheKey(c.Source, req)

	data, ok, err := c.cache.Get(ctx, key)
	if err != nil {
		c.logger.Warn("failed to read payload cache, will fetch from upstream", "key", key, "error", err)
	} else if ok {
		metrics.CacheHits.Inc()
		return data, nil
	}
	metrics.CacheMisses.Inc()

	v, err, shared := c.group.Do(key.String(), func() (any, error) {
		data, err := c.Source.Fetch(ctx, req)
		if err != nil {
			return nil, err
		}
		if err := c.cache.Set(ctx, key, data); err != nil {
			c.logger.Warn("failed to store payload in cache", "key", key, "error", err)
		} else {
			metrics.CacheStores.Inc()
		}
		return data, nil
	})
	if err != nil {
		return nil, err
	}
	if shared {
		c.logger.Debug("shared upstream fetch", "key", key)
	}
	return v.([]byte), nil
}
