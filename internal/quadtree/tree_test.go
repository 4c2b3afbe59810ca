package quadtree

import (
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/jaennil/guide_helper/backend/tiletree/internal/domain"
	"github.com/paulmach/orb"
	"github.com/paulmach/orb/maptile"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func bound(w, s, e, n float64) orb.Bound {
	return orb.Bound{Min: orb.Point{w, s}, Max: orb.Point{e, n}}
}

func TestSplitPartitionsAtMidpoints(t *testing.T) {
	parent := bound(0, -40, 100, 60)
	got := Split(parent)

	want := [4]orb.Bound{
		NorthWest: bound(0, 10, 50, 60),
		NorthEast: bound(50, 10, 100, 60),
		SouthWest: bound(0, -40, 50, 10),
		SouthEast: bound(50, -40, 100, 10),
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("split mismatch (-want +got):\n%s", diff)
	}

	var area float64
	union := got[0]
	for _, b := range got {
		area += (b.Max[0] - b.Min[0]) * (b.Max[1] - b.Min[1])
		union = union.Union(b)
	}
	assert.Equal(t, parent, union)
	assert.InDelta(t, 100*100, area, 1e-9)
}

func TestChildKeys(t *testing.T) {
	k := maptile.New(3, 5, 4)
	assert.Equal(t, maptile.New(6, 10, 5), ChildKey(k, NorthWest))
	assert.Equal(t, maptile.New(7, 10, 5), ChildKey(k, NorthEast))
	assert.Equal(t, maptile.New(6, 11, 5), ChildKey(k, SouthWest))
	assert.Equal(t, maptile.New(7, 11, 5), ChildKey(k, SouthEast))

	for _, q := range Quadrants {
		assert.Equal(t, k, AncestorKey(ChildKey(k, q), 4))
	}
}

func TestAncestorExtentInvertsSplit(t *testing.T) {
	tr := NewTree()
	root := tr.AddRoot(maptile.New(0, 0, 0), bound(0, 0, 100, 100))
	children, err := tr.AddChildren(root.ID())
	require.NoError(t, err)
	grand, err := tr.AddChildren(children[SouthEast].ID())
	require.NoError(t, err)

	leaf := grand[NorthWest]
	assert.Equal(t, bound(50, 25, 75, 50), leaf.Extent)
	assert.Equal(t, root.Extent, AncestorExtent(leaf.Key, leaf.Extent, 0))
	assert.Equal(t, children[SouthEast].Extent, AncestorExtent(leaf.Key, leaf.Extent, 1))
	assert.Equal(t, leaf.Extent, KeyExtent(root.Extent, leaf.Key))
}

func TestPitchIn(t *testing.T) {
	p := PitchIn(bound(50, 0, 100, 50), bound(0, 0, 100, 100))
	assert.Equal(t, domain.Pitch{OffsetX: 0.5, OffsetY: 0.5, ScaleX: 0.5, ScaleY: 0.5}, p)
	assert.Equal(t, domain.IdentityPitch, PitchIn(bound(0, 0, 1, 1), bound(0, 0, 1, 1)))
}

func TestAddChildrenTwiceFails(t *testing.T) {
	tr := NewTree()
	root := tr.AddRoot(maptile.New(0, 0, 0), bound(0, 0, 100, 100))
	children, err := tr.AddChildren(root.ID())
	require.NoError(t, err)
	for _, c := range children {
		assert.Equal(t, root.ID(), c.Parent())
		assert.Equal(t, 1, c.Level)
		assert.Empty(t, c.States)
	}

	_, err = tr.AddChildren(root.ID())
	assert.ErrorIs(t, err, ErrAlreadyDivided)
	assert.Equal(t, 5, tr.Len())
}

func TestRemoveDescendantsInvalidatesIDs(t *testing.T) {
	tr := NewTree()
	root := tr.AddRoot(maptile.New(0, 0, 0), bound(0, 0, 100, 100))
	children, err := tr.AddChildren(root.ID())
	require.NoError(t, err)
	_, err = tr.AddChildren(children[NorthEast].ID())
	require.NoError(t, err)
	stale := children[NorthWest].ID()

	var removed []maptile.Tile
	n := tr.RemoveDescendants(root.ID(), func(t *Tile) { removed = append(removed, t.Key) })

	assert.Equal(t, 8, n)
	assert.Len(t, removed, 8)
	assert.True(t, root.IsLeaf())
	assert.Equal(t, 1, tr.Len())
	assert.False(t, tr.Alive(stale))

	again, err := tr.AddChildren(root.ID())
	require.NoError(t, err)
	assert.NotEqual(t, stale, again[NorthWest].ID(), "reused slot must get a new generation")
	_, ok := tr.Get(stale)
	assert.False(t, ok)
}

func TestWalkSkipsSubtree(t *testing.T) {
	tr := NewTree()
	root := tr.AddRoot(maptile.New(0, 0, 0), bound(0, 0, 100, 100))
	children, err := tr.AddChildren(root.ID())
	require.NoError(t, err)
	_, err = tr.AddChildren(children[SouthWest].ID())
	require.NoError(t, err)

	visited := 0
	tr.Walk(func(t *Tile) bool {
		visited++
		return t.ID() != children[SouthWest].ID()
	})
	assert.Equal(t, 5, visited)
	assert.Len(t, tr.Descendants(root.ID()), 8)
}
