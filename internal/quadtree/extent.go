package quadtree

import (
	"github.com/jaennil/guide_helper/backend/tiletree/internal/domain"
	"github.com/paulmach/orb"
	"github.com/paulmach/orb/maptile"
)

type Quadrant int

const (
	NorthWest Quadrant = iota
	NorthEast
	SouthWest
	SouthEast
)

var Quadrants = [4]Quadrant{NorthWest, NorthEast, SouthWest, SouthEast}

func (q Quadrant) String() string {
	return [...]string{"nw", "ne", "sw", "se"}[q]
}

// Split partitions b into four equal quadrants, indexed by Quadrant. West/east
// split at the horizontal midpoint, south/north at the vertical one.
func Split(b orb.Bound) [4]orb.Bound {
	west, south := b.Min[0], b.Min[1]
	east, north := b.Max[0], b.Max[1]
	midX := (west + east) / 2
	midY := (south + north) / 2

	return [4]orb.Bound{
		NorthWest: {Min: orb.Point{west, midY}, Max: orb.Point{midX, north}},
		NorthEast: {Min: orb.Point{midX, midY}, Max: orb.Point{east, north}},
		SouthWest: {Min: orb.Point{west, south}, Max: orb.Point{midX, midY}},
		SouthEast: {Min: orb.Point{midX, south}, Max: orb.Point{east, midY}},
	}
}

// ChildKey returns the XYZ key of the child in quadrant q. Y grows southward.
func ChildKey(k maptile.Tile, q Quadrant) maptile.Tile {
	x, y := k.X<<1, k.Y<<1
	if q == NorthEast || q == SouthEast {
		x++
	}
	if q == SouthWest || q == SouthEast {
		y++
	}
	return maptile.New(x, y, k.Z+1)
}

// AncestorKey returns the key of k's ancestor at level. Levels at or below
// k.Z return k unchanged.
func AncestorKey(k maptile.Tile, level int) maptile.Tile {
	if level < 0 {
		level = 0
	}
	if level >= int(k.Z) {
		return k
	}
	shift := k.Z - maptile.Zoom(level)
	return maptile.New(k.X>>shift, k.Y>>shift, maptile.Zoom(level))
}

// AncestorExtent returns the extent covered by k's ancestor at level, given
// the extent of k itself.
func AncestorExtent(k maptile.Tile, extent orb.Bound, level int) orb.Bound {
	a := AncestorKey(k, level)
	shift := k.Z - a.Z
	if shift == 0 {
		return extent
	}
	w := extent.Max[0] - extent.Min[0]
	h := extent.Max[1] - extent.Min[1]
	dx := float64(k.X - a.X<<shift)
	dy := float64(k.Y - a.Y<<shift)
	n := float64(uint32(1) << shift)

	west := extent.Min[0] - dx*w
	north := extent.Max[1] + dy*h
	return orb.Bound{
		Min: orb.Point{west, north - n*h},
		Max: orb.Point{west + n*w, north},
	}
}

// PitchIn locates inner within outer. Offsets are measured from the
// north-west corner of outer, matching raster row order.
func PitchIn(inner, outer orb.Bound) domain.Pitch {
	ow := outer.Max[0] - outer.Min[0]
	oh := outer.Max[1] - outer.Min[1]
	if ow == 0 || oh == 0 {
		return domain.IdentityPitch
	}
	return domain.Pitch{
		OffsetX: (inner.Min[0] - outer.Min[0]) / ow,
		OffsetY: (outer.Max[1] - inner.Max[1]) / oh,
		ScaleX:  (inner.Max[0] - inner.Min[0]) / ow,
		ScaleY:  (inner.Max[1] - inner.Min[1]) / oh,
	}
}

// KeyExtent returns the extent of k in a tree whose level 0 tile covers root.
func KeyExtent(root orb.Bound, k maptile.Tile) orb.Bound {
	n := float64(uint32(1) << k.Z)
	w := (root.Max[0] - root.Min[0]) / n
	h := (root.Max[1] - root.Min[1]) / n
	west := root.Min[0] + float64(k.X)*w
	north := root.Max[1] - float64(k.Y)*h
	return orb.Bound{
		Min: orb.Point{west, north - h},
		Max: orb.Point{west + w, north},
	}
}
