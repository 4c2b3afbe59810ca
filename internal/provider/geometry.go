package provider

import (
	"context"
	"fmt"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/jaennil/guide_helper/backend/tiletree/internal/domain"
	"github.com/jaennil/guide_helper/backend/tiletree/internal/quadtree"
	"github.com/jaennil/guide_helper/backend/tiletree/internal/scheduler"
	"github.com/paulmach/orb"
)

type gridKey struct {
	segments      int
	width, height float64
}

// gridBuilder builds the regular grid meshes of new tiles. Tiles of equal
// size share vertex and index buffers.
type gridBuilder struct {
	segments int
	cache    *lru.Cache[gridKey, *domain.TileGeometry]
}

func newGridBuilder(segments, cacheSize int) (*gridBuilder, error) {
	c, err := lru.New[gridKey, *domain.TileGeometry](max(cacheSize, 1))
	if err != nil {
		return nil, err
	}
	return &gridBuilder{segments: max(segments, 1), cache: c}, nil
}

func (b *gridBuilder) build(extent orb.Bound) *domain.TileGeometry {
	k := gridKey{
		segments: b.segments,
		width:    extent.Max[0] - extent.Min[0],
		height:   extent.Max[1] - extent.Min[1],
	}
	shared, ok := b.cache.Get(k)
	if !ok {
		shared = buildGrid(k)
		b.cache.Add(k, shared)
	}
	return &domain.TileGeometry{
		Extent:    extent,
		Segments:  shared.Segments,
		Positions: shared.Positions,
		UVs:       shared.UVs,
		Indices:   shared.Indices,
	}
}

// buildGrid lays out (segments+1)² vertices relative to the tile's
// south-west corner, with v growing southward.
func buildGrid(k gridKey) *domain.TileGeometry {
	n := k.segments + 1
	g := &domain.TileGeometry{
		Segments:  k.segments,
		Positions: make([]float32, 0, 3*n*n),
		UVs:       make([]float32, 0, 2*n*n),
		Indices:   make([]uint32, 0, 6*k.segments*k.segments),
	}
	for row := 0; row < n; row++ {
		v := float64(row) / float64(k.segments)
		for col := 0; col < n; col++ {
			u := float64(col) / float64(k.segments)
			g.Positions = append(g.Positions, float32(u*k.width), float32((1-v)*k.height), 0)
			g.UVs = append(g.UVs, float32(u), float32(v))
		}
	}
	for row := 0; row < k.segments; row++ {
		for col := 0; col < k.segments; col++ {
			a := uint32(row*n + col)
			b := a + 1
			c := a + uint32(n)
			d := c + 1
			g.Indices = append(g.Indices, a, c, b, b, c, d)
		}
	}
	return g
}

// childGeometries is the result of a subdivision command, indexed by
// quadtree.Quadrant.
type childGeometries [4]*domain.TileGeometry

func (c *childGeometries) Size() int {
	n := 0
	for _, g := range c {
		if g != nil {
			n += g.Size()
		}
	}
	return n
}

type subdivideRequest struct {
	extents [4]orb.Bound
}

func (b *gridBuilder) Execute(ctx context.Context, cmd *scheduler.Command) (domain.Artifact, error) {
	req, ok := cmd.Request.(*subdivideRequest)
	if !ok {
		return nil, domain.Errorf(domain.ErrFormat, "subdivide", "unexpected request %T", cmd.Request)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	out := &childGeometries{}
	for _, q := range quadtree.Quadrants {
		ext := req.extents[q]
		if ext.Max[0] <= ext.Min[0] || ext.Max[1] <= ext.Min[1] {
			return nil, domain.NewError(domain.ErrFormat, "subdivide", fmt.Errorf("degenerate %s extent %v", q, ext))
		}
		out[q] = b.build(ext)
	}
	return out, nil
}
