package layer

import (
	"fmt"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/jaennil/guide_helper/backend/tiletree/internal/domain"
	"github.com/jaennil/guide_helper/backend/tiletree/pkg/metrics"
	"github.com/paulmach/orb/maptile"
)

// CacheKey identifies a decoded artifact by the source it came from, the
// spatial key it was requested for and the payload format.
type CacheKey struct {
	SourceUID uint64
	Tile      maptile.Tile
	Format    string
}

func (k CacheKey) String() string {
	return fmt.Sprintf("%d/%d/%d/%d.%s", k.SourceUID, k.Tile.Z, k.Tile.X, k.Tile.Y, k.Format)
}

// ArtifactCache is a bounded cache of decoded artifacts. Reads may come
// from any goroutine.
type ArtifactCache struct {
	layer string
	lru   *lru.Cache[CacheKey, domain.Artifact]
}

func NewArtifactCache(layer domain.LayerID, size int) (*ArtifactCache, error) {
	name := string(layer)
	c, err := lru.NewWithEvict(size, func(CacheKey, domain.Artifact) {
		metrics.ArtifactCacheEvictions.WithLabelValues(name).Inc()
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create artifact cache for %s: %w", layer, err)
	}
	return &ArtifactCache{layer: name, lru: c}, nil
}

func (c *ArtifactCache) Get(k CacheKey) (domain.Artifact, bool) {
	a, ok := c.lru.Get(k)
	if ok {
		metrics.ArtifactCacheHits.WithLabelValues(c.layer).Inc()
	} else {
		metrics.ArtifactCacheMisses.WithLabelValues(c.layer).Inc()
	}
	return a, ok
}

func (c *ArtifactCache) Contains(k CacheKey) bool { return c.lru.Contains(k) }

func (c *ArtifactCache) Add(k CacheKey, a domain.Artifact) { c.lru.Add(k, a) }

func (c *ArtifactCache) Remove(k CacheKey) bool { return c.lru.Remove(k) }

func (c *ArtifactCache) Purge() { c.lru.Purge() }

func (c *ArtifactCache) Len() int { return c.lru.Len() }
