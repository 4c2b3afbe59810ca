package material

import (
	"testing"

	"github.com/jaennil/guide_helper/backend/tiletree/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInstallRequiresOwnedSlot(t *testing.T) {
	m := New()
	_, err := m.Install("ortho", &domain.Texture{}, 3, domain.IdentityPitch, false)
	assert.ErrorIs(t, err, ErrSlotNotOwned)
	assert.Empty(t, m.Snapshot().Slots())
}

func TestInstallSameArtifactTwiceIsIdempotent(t *testing.T) {
	m := New()
	m.AddLayer("ortho", domain.ColorLayer, 0, true, 1)
	tex := &domain.Texture{Width: 1, Height: 1, Pix: []uint8{1, 2, 3, 4}}

	changed, err := m.Install("ortho", tex, 5, domain.IdentityPitch, false)
	require.NoError(t, err)
	assert.True(t, changed)
	first := m.Snapshot()

	changed, err = m.Install("ortho", tex, 5, domain.IdentityPitch, false)
	require.NoError(t, err)
	assert.False(t, changed)
	assert.Same(t, first, m.Snapshot())
	assert.Equal(t, 5, m.Level("ortho"))
}

func TestSnapshotIsNotAffectedByLaterWrites(t *testing.T) {
	m := New()
	m.AddLayer("dem", domain.ElevationLayer, 0, true, 1)
	before := m.Snapshot()

	_, err := m.Install("dem", &domain.ElevationGrid{}, 7, domain.IdentityPitch, false)
	require.NoError(t, err)

	old, _ := before.Slot("dem")
	assert.Nil(t, old.Artifact)
	assert.Equal(t, domain.EmptyLevel, old.Level)

	cur, _ := m.Snapshot().Slot("dem")
	assert.NotNil(t, cur.Artifact)
}

func TestClearKeepsSlot(t *testing.T) {
	m := New()
	m.AddLayer("roads", domain.GeometryLayer, 0, true, 1)
	_, err := m.Install("roads", &domain.FeatureMesh{}, 9, domain.IdentityPitch, false)
	require.NoError(t, err)

	m.Clear("roads")
	assert.True(t, m.Owns("roads"))
	assert.Equal(t, domain.EmptyLevel, m.Level("roads"))
}

func TestSetLayerOrder(t *testing.T) {
	m := New()
	m.AddLayer("a", domain.ColorLayer, 0, true, 1)
	m.AddLayer("b", domain.ColorLayer, 1, true, 1)
	m.AddLayer("c", domain.ColorLayer, 2, true, 1)

	m.SetLayerOrder([]domain.LayerID{"c", "a", "b"})

	var got []domain.LayerID
	for _, s := range m.Snapshot().Slots() {
		got = append(got, s.Layer)
	}
	assert.Equal(t, []domain.LayerID{"c", "a", "b"}, got)
}
