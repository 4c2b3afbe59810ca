package provider

import (
	"math"

	"github.com/jaennil/guide_helper/backend/tiletree/internal/quadtree"
	"github.com/paulmach/orb"
)

// View is the camera state a frame is evaluated against, in the root CRS.
type View struct {
	X, Y, Z      float64
	FOV          float64 // vertical field of view, radians
	ScreenHeight float64 // pixels

	// Visible limits evaluation to tiles intersecting it. The zero bound
	// means everything is visible.
	Visible orb.Bound
}

func (v View) Sees(t *quadtree.Tile) bool {
	if v.Visible == (orb.Bound{}) {
		return true
	}
	return v.Visible.Intersects(t.Extent)
}

// Distance from the camera to the closest point of the tile's box.
func (v View) Distance(t *quadtree.Tile) float64 {
	dx := axisGap(v.X, t.Extent.Min[0], t.Extent.Max[0])
	dy := axisGap(v.Y, t.Extent.Min[1], t.Extent.Max[1])
	dz := axisGap(v.Z, t.MinHeight, t.MaxHeight)
	return math.Sqrt(dx*dx + dy*dy + dz*dz)
}

func axisGap(p, lo, hi float64) float64 {
	switch {
	case p < lo:
		return lo - p
	case p > hi:
		return p - hi
	}
	return 0
}
