// Package compositor installs finished layer artifacts into tile materials.
package compositor

import (
	"fmt"

	"github.com/jaennil/guide_helper/backend/tiletree/internal/domain"
	"github.com/jaennil/guide_helper/backend/tiletree/internal/quadtree"
	"github.com/jaennil/guide_helper/backend/tiletree/pkg/logger"
	"github.com/paulmach/orb"
)

// LayerSlot describes the slot a layer occupies in every tile material.
type LayerSlot struct {
	ID      domain.LayerID
	Kind    domain.LayerKind
	Order   int
	Visible bool
	Opacity float64
}

type Compositor struct {
	tree   *quadtree.Tree
	logger logger.Logger
}

func New(tree *quadtree.Tree, l logger.Logger) *Compositor {
	return &Compositor{tree: tree, logger: l}
}

// Attach gives tile an empty slot for layer.
func (c *Compositor) Attach(tile *quadtree.Tile, layer LayerSlot) {
	tile.Material.AddLayer(layer.ID, layer.Kind, layer.Order, layer.Visible, layer.Opacity)
}

// Apply installs artifact as layer's data at level on the tile. A tile that
// was destroyed or no longer carries the layer yields ErrStateConflict and
// nothing is written.
func (c *Compositor) Apply(id quadtree.ID, layer domain.LayerID, artifact domain.Artifact, level int) error {
	tile, ok := c.tree.Get(id)
	if !ok {
		return domain.Errorf(domain.ErrStateConflict, "apply", "%s for layer %s is gone", id, layer)
	}
	if !tile.Material.Owns(layer) {
		return domain.Errorf(domain.ErrStateConflict, "apply", "%s has no layer %s", id, layer)
	}

	pitch := domain.IdentityPitch
	if ext, ok := artifactExtent(artifact); ok {
		pitch = quadtree.PitchIn(tile.Extent, ext)
	}

	changed, err := tile.Material.Install(layer, artifact, level, pitch, false)
	if err != nil {
		return domain.NewError(domain.ErrStateConflict, "apply", err)
	}
	if grid, ok := artifact.(*domain.ElevationGrid); ok {
		tile.MinHeight = float64(grid.Min)
		tile.MaxHeight = float64(grid.Max)
	}
	if changed {
		c.logger.Debug("applied layer artifact", "tile", tile.Key, "layer", layer, "level", level)
	}
	return nil
}

// InheritFromParent seeds child's slots from its parent so the child shows
// the parent's data, pitched to its own extent, until its own arrives.
// Feature meshes are built per extent and are not inherited.
func (c *Compositor) InheritFromParent(child *quadtree.Tile) error {
	parent, ok := c.tree.Get(child.Parent())
	if !ok {
		return fmt.Errorf("inherit into %s: %w", child.ID(), quadtree.ErrTileNotFound)
	}

	for _, slot := range parent.Material.Snapshot().Slots() {
		child.Material.AddLayer(slot.Layer, slot.Kind, slot.Order, slot.Visible, slot.Opacity)
		if slot.Artifact == nil || slot.Kind == domain.GeometryLayer {
			continue
		}

		pitch := composePitch(slot.Pitch, quadtree.PitchIn(child.Extent, parent.Extent))
		if _, err := child.Material.Install(slot.Layer, slot.Artifact, slot.Level, pitch, true); err != nil {
			return fmt.Errorf("inherit %s into %s: %w", slot.Layer, child.ID(), err)
		}
	}
	child.MinHeight = parent.MinHeight
	child.MaxHeight = parent.MaxHeight
	return nil
}

// SetLayerOrder reorders slots on every live tile without touching data.
func (c *Compositor) SetLayerOrder(order []domain.LayerID) {
	c.tree.Walk(func(t *quadtree.Tile) bool {
		t.Material.SetLayerOrder(order)
		return true
	})
}

func (c *Compositor) SetVisibility(layer domain.LayerID, visible bool, opacity float64) {
	c.tree.Walk(func(t *quadtree.Tile) bool {
		t.Material.SetVisibility(layer, visible, opacity)
		return true
	})
}

// ClearLayer empties layer's slot on every live tile.
func (c *Compositor) ClearLayer(layer domain.LayerID) {
	c.tree.Walk(func(t *quadtree.Tile) bool {
		t.Material.Clear(layer)
		return true
	})
}

func artifactExtent(a domain.Artifact) (orb.Bound, bool) {
	var ext orb.Bound
	switch v := a.(type) {
	case *domain.Texture:
		ext = v.Extent
	case *domain.ElevationGrid:
		ext = v.Extent
	default:
		return ext, false
	}
	if ext.Max[0] <= ext.Min[0] || ext.Max[1] <= ext.Min[1] {
		return ext, false
	}
	return ext, true
}

// composePitch applies inner within the region already selected by outer.
func composePitch(outer, inner domain.Pitch) domain.Pitch {
	return domain.Pitch{
		OffsetX: outer.OffsetX + inner.OffsetX*outer.ScaleX,
		OffsetY: outer.OffsetY + inner.OffsetY*outer.ScaleY,
		ScaleX:  inner.ScaleX * outer.ScaleX,
		ScaleY:  inner.ScaleY * outer.ScaleY,
	}
}
