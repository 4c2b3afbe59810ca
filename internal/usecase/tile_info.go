package usecase

import (
	"fmt"

	"github.com/jaennil/guide_helper/backend/tiletree/internal/quadtree"
)

type SlotInfo struct {
	Layer     string  `json:"layer"`
	Kind      string  `json:"kind"`
	Level     int     `json:"level"`
	Inherited bool    `json:"inherited,omitempty"`
	Visible   bool    `json:"visible"`
	Opacity   float64 `json:"opacity"`
	Status    string  `json:"status"`
}

// TileInfo is what a renderer needs to know about one tile.
type TileInfo struct {
	Key                string     `json:"key"`
	Level              int        `json:"level"`
	Extent             [4]float64 `json:"extent"`
	Leaf               bool       `json:"leaf"`
	PendingSubdivision bool       `json:"pending_subdivision,omitempty"`
	MinHeight          float64    `json:"min_height"`
	MaxHeight          float64    `json:"max_height"`
	Slots              []SlotInfo `json:"slots"`
}

// Tiles lists the tiles of the tree, parents first. With leavesOnly only
// the tiles currently drawn are listed.
func (uc *TileTreeUseCase) Tiles(leavesOnly bool) []TileInfo {
	var out []TileInfo
	uc.tree.Walk(func(t *quadtree.Tile) bool {
		if leavesOnly && !t.IsLeaf() {
			return true
		}
		out = append(out, describe(t))
		return true
	})
	return out
}

func describe(t *quadtree.Tile) TileInfo {
	info := TileInfo{
		Key:                fmt.Sprintf("%d/%d/%d", t.Key.Z, t.Key.X, t.Key.Y),
		Level:              t.Level,
		Extent:             [4]float64{t.Extent.Min[0], t.Extent.Min[1], t.Extent.Max[0], t.Extent.Max[1]},
		Leaf:               t.IsLeaf(),
		PendingSubdivision: t.PendingSubdivision,
		MinHeight:          t.MinHeight,
		MaxHeight:          t.MaxHeight,
	}
	for _, s := range t.Material.Snapshot().Slots() {
		status := "idle"
		if st, ok := t.States[s.Layer]; ok {
			status = st.Status().String()
			if st.NoData() {
				status = "no_data"
			}
		}
		info.Slots = append(info.Slots, SlotInfo{
			Layer:     string(s.Layer),
			Kind:      s.Kind.String(),
			Level:     s.Level,
			Inherited: s.Inherited,
			Visible:   s.Visible,
			Opacity:   s.Opacity,
			Status:    status,
		})
	}
	return info
}
