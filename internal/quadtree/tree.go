// Package quadtree stores the tile hierarchy as an arena. Parents own their
// children; a child refers back to its parent by ID only, and IDs carry a
// generation so a handle to a destroyed tile never resolves to its reuse.
package quadtree

import (
	"errors"
	"fmt"

	"github.com/jaennil/guide_helper/backend/tiletree/internal/domain"
	"github.com/jaennil/guide_helper/backend/tiletree/internal/material"
	"github.com/jaennil/guide_helper/backend/tiletree/internal/updatestate"
	"github.com/paulmach/orb"
	"github.com/paulmach/orb/maptile"
)

var (
	ErrTileNotFound   = errors.New("tile not found")
	ErrAlreadyDivided = errors.New("tile already has children")
)

// ID identifies a tile slot and the generation that occupied it. The zero
// ID is never valid.
type ID struct {
	index uint32
	gen   uint32
}

func (id ID) Valid() bool { return id.gen != 0 }

func (id ID) String() string {
	if !id.Valid() {
		return "tile(nil)"
	}
	return fmt.Sprintf("tile(%d.%d)", id.index, id.gen)
}

type Tile struct {
	id       ID
	parent   ID
	children [4]ID
	divided  bool

	Key    maptile.Tile
	Extent orb.Bound
	Level  int

	States   map[domain.LayerID]*updatestate.State
	Material *material.Material
	Geometry *domain.TileGeometry

	// PendingSubdivision is set while the subdivision command for this tile
	// is in flight. Such a tile is neither merged nor subdivided again.
	PendingSubdivision bool

	MinHeight float64
	MaxHeight float64
}

func (t *Tile) ID() ID       { return t.id }
func (t *Tile) Parent() ID   { return t.parent }
func (t *Tile) IsLeaf() bool { return !t.divided }

// Children returns the child IDs indexed by Quadrant, and whether the tile
// is subdivided at all.
func (t *Tile) Children() ([4]ID, bool) { return t.children, t.divided }

// LayerState returns the update state of layer on this tile, creating it with
// backoff b on first use.
func (t *Tile) LayerState(layer domain.LayerID, b updatestate.Backoff) *updatestate.State {
	s, ok := t.States[layer]
	if !ok {
		s = updatestate.New(b)
		t.States[layer] = s
	}
	return s
}

type slot struct {
	gen  uint32
	tile *Tile
}

type Tree struct {
	slots []slot
	free  []uint32
	roots []ID
	count int
}

func NewTree() *Tree {
	return &Tree{}
}

func (tr *Tree) alloc(key maptile.Tile, extent orb.Bound, parent ID) *Tile {
	var idx uint32
	if n := len(tr.free); n > 0 {
		idx = tr.free[n-1]
		tr.free = tr.free[:n-1]
	} else {
		idx = uint32(len(tr.slots))
		tr.slots = append(tr.slots, slot{})
	}

	s := &tr.slots[idx]
	s.gen++
	t := &Tile{
		id:       ID{index: idx, gen: s.gen},
		parent:   parent,
		Key:      key,
		Extent:   extent,
		Level:    int(key.Z),
		States:   make(map[domain.LayerID]*updatestate.State),
		Material: material.New(),
	}
	s.tile = t
	tr.count++
	return t
}

// AddRoot creates a root tile covering extent.
func (tr *Tree) AddRoot(key maptile.Tile, extent orb.Bound) *Tile {
	t := tr.alloc(key, extent, ID{})
	tr.roots = append(tr.roots, t.id)
	return t
}

func (tr *Tree) Get(id ID) (*Tile, bool) {
	if !id.Valid() || int(id.index) >= len(tr.slots) {
		return nil, false
	}
	s := tr.slots[id.index]
	if s.gen != id.gen || s.tile == nil {
		return nil, false
	}
	return s.tile, true
}

func (tr *Tree) Alive(id ID) bool {
	_, ok := tr.Get(id)
	return ok
}

func (tr *Tree) Roots() []ID { return tr.roots }

func (tr *Tree) Len() int { return tr.count }

// AddChildren creates the four children of parent, partitioning its extent.
func (tr *Tree) AddChildren(parent ID) ([4]*Tile, error) {
	var out [4]*Tile
	p, ok := tr.Get(parent)
	if !ok {
		return out, fmt.Errorf("add children to %s: %w", parent, ErrTileNotFound)
	}
	if p.divided {
		return out, fmt.Errorf("add children to %s: %w", parent, ErrAlreadyDivided)
	}

	extents := Split(p.Extent)
	for _, q := range Quadrants {
		c := tr.alloc(ChildKey(p.Key, q), extents[q], parent)
		p.children[q] = c.id
		out[q] = c
	}
	p.divided = true
	return out, nil
}

// RemoveDescendants destroys every descendant of id, deepest first, calling
// onRemove for each before its slot is released. It returns how many tiles
// were removed.
func (tr *Tree) RemoveDescendants(id ID, onRemove func(*Tile)) int {
	t, ok := tr.Get(id)
	if !ok || !t.divided {
		return 0
	}
	n := 0
	for _, cid := range t.children {
		n += tr.RemoveDescendants(cid, onRemove)
		c, ok := tr.Get(cid)
		if !ok {
			continue
		}
		if onRemove != nil {
			onRemove(c)
		}
		tr.release(cid)
		n++
	}
	t.children = [4]ID{}
	t.divided = false
	return n
}

func (tr *Tree) release(id ID) {
	s := &tr.slots[id.index]
	s.tile = nil
	tr.free = append(tr.free, id.index)
	tr.count--
}

// Walk visits tiles depth-first from every root. Returning false from fn
// skips the tile's subtree.
func (tr *Tree) Walk(fn func(*Tile) bool) {
	for _, r := range tr.roots {
		tr.walk(r, fn)
	}
}

func (tr *Tree) walk(id ID, fn func(*Tile) bool) {
	t, ok := tr.Get(id)
	if !ok {
		return
	}
	if !fn(t) || !t.divided {
		return
	}
	for _, c := range t.children {
		tr.walk(c, fn)
	}
}

// Descendants lists all descendants of id, parents before children.
func (tr *Tree) Descendants(id ID) []*Tile {
	var out []*Tile
	t, ok := tr.Get(id)
	if !ok || !t.divided {
		return nil
	}
	for _, c := range t.children {
		tr.walk(c, func(d *Tile) bool {
			out = append(out, d)
			return true
		})
	}
	return out
}
