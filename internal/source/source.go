// Package source fetches raw layer payloads. Every source kind builds its
// own request for a tile, and all of them share one Fetch contract.
package source

import (
	"context"
	"sync/atomic"

	"github.com/jaennil/guide_helper/backend/tiletree/internal/domain"
	"github.com/jaennil/guide_helper/backend/tiletree/internal/repository/cache"
	"github.com/paulmach/orb"
	"github.com/paulmach/orb/maptile"
)

type Source interface {
	// UID changes whenever a source is rebuilt, so data fetched from an older
	// source is recognised as stale.
	UID() uint64
	Name() string
	Format() string
	ZoomRange() domain.ZoomRange
	SupportsZoom(level int) bool
	BuildRequestKey(tile maptile.Tile, extent orb.Bound) (Request, error)
	Fetch(ctx context.Context, req Request) ([]byte, error)
}

type Request struct {
	Tile   maptile.Tile
	Extent orb.Bound
	URL    string
}

// CacheKey is the payload cache key of req for src.
func CacheKey(src Source, req Request) cache.TileCacheKey {
	return cache.TileCacheKey{
		Source: src.Name(),
		Z:      int(req.Tile.Z),
		X:      int(req.Tile.X),
		Y:      int(req.Tile.Y),
		Format: src.Format(),
	}
}

var lastUID atomic.Uint64

// NewUID returns a process-unique source identity.
func NewUID() uint64 {
	return lastUID.Add(1)
}

type base struct {
	uid    uint64
	name   string
	format string
	zoom   domain.ZoomRange
	extent *orb.Bound
}

func newBase(name, format string, zoom domain.ZoomRange, extent *orb.Bound) base {
	return base{
		uid:    NewUID(),
		name:   name,
		format: format,
		zoom:   zoom,
		extent: extent,
	}
}

func (b *base) UID() uint64 { return b.uid }
func (b *base) Name() string { return b.name }
func (b *base) Format() string { return b.format }
func (b *base) ZoomRange() domain.ZoomRange { return b.zoom }
func (b *base) SupportsZoom(level int) bool { return b.zoom.Contains(level) }

// check rejects requests outside the zoom range or the source's extent.
func (b *base) check(tile maptile.Tile, extent orb.Bound) error {
	if !b.SupportsZoom(int(tile.Z)) {
		return domain.Errorf(domain.ErrOutOfRange, "build request", "%s has no level %d", b.name, tile.Z)
	}
	if b.extent != nil && !b.extent.Intersects(extent) {
		return domain.Errorf(domain.ErrOutOfRange, "build request", "%s does not cover %v", b.name, extent)
	}
	return nil
}
