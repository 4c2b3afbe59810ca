// Package material holds a tile's layered renderable state. Writers build a
// new immutable Snapshot and swap it in, so a reader always sees either the
// previous or the next complete set of slots.
package material

import (
	"errors"
	"fmt"
	"slices"
	"sync/atomic"

	"github.com/jaennil/guide_helper/backend/tiletree/internal/domain"
)

var ErrSlotNotOwned = errors.New("material has no slot for layer")

// Slot is one layer's contribution to a tile. A slot without an artifact
// renders as absent: no texture, flat geometry, no features.
type Slot struct {
	Layer     domain.LayerID
	Kind      domain.LayerKind
	Artifact  domain.Artifact
	Level     int
	Pitch     domain.Pitch
	Order     int
	Visible   bool
	Opacity   float64
	Inherited bool
}

type Snapshot struct {
	slots []Slot
}

// Slots returns the slots sorted by layer order.
func (s *Snapshot) Slots() []Slot {
	return slices.Clone(s.slots)
}

func (s *Snapshot) Slot(layer domain.LayerID) (Slot, bool) {
	i := s.index(layer)
	if i < 0 {
		return Slot{}, false
	}
	return s.slots[i], true
}

func (s *Snapshot) index(layer domain.LayerID) int {
	for i := range s.slots {
		if s.slots[i].Layer == layer {
			return i
		}
	}
	return -1
}

// Material is written from the control loop only. Snapshot is safe from any
// goroutine.
type Material struct {
	cur atomic.Pointer[Snapshot]
}

func New() *Material {
	m := &Material{}
	m.cur.Store(&Snapshot{})
	return m
}

func (m *Material) Snapshot() *Snapshot {
	return m.cur.Load()
}

func (m *Material) Owns(layer domain.LayerID) bool {
	return m.Snapshot().index(layer) >= 0
}

// Level returns the data level of layer's slot, or domain.EmptyLevel.
func (m *Material) Level(layer domain.LayerID) int {
	s, ok := m.Snapshot().Slot(layer)
	if !ok || s.Artifact == nil {
		return domain.EmptyLevel
	}
	return s.Level
}

// AddLayer creates an empty slot for layer. Existing slots are left as is.
func (m *Material) AddLayer(layer domain.LayerID, kind domain.LayerKind, order int, visible bool, opacity float64) {
	cur := m.Snapshot()
	if cur.index(layer) >= 0 {
		return
	}
	next := cur.Slots()
	next = append(next, Slot{
		Layer:   layer,
		Kind:    kind,
		Level:   domain.EmptyLevel,
		Pitch:   domain.IdentityPitch,
		Order:   order,
		Visible: visible,
		Opacity: opacity,
	})
	m.publish(next)
}

func (m *Material) RemoveLayer(layer domain.LayerID) {
	cur := m.Snapshot()
	i := cur.index(layer)
	if i < 0 {
		return
	}
	next := cur.Slots()
	m.publish(slices.Delete(next, i, i+1))
}

// Install puts artifact into layer's slot. It reports whether the visible
// state changed; installing the same artifact at the same level and pitch
// again changes nothing.
func (m *Material) Install(layer domain.LayerID, artifact domain.Artifact, level int, pitch domain.Pitch, inherited bool) (bool, error) {
	cur := m.Snapshot()
	i := cur.index(layer)
	if i < 0 {
		return false, fmt.Errorf("install %s: %w", layer, ErrSlotNotOwned)
	}
	old := cur.slots[i]
	if old.Artifact == artifact && old.Level == level && old.Pitch == pitch && old.Inherited == inherited {
		return false, nil
	}

	next := cur.Slots()
	next[i].Artifact = artifact
	next[i].Level = level
	next[i].Pitch = pitch
	next[i].Inherited = inherited
	m.publish(next)
	return true, nil
}

// Clear empties layer's slot, keeping the slot itself.
func (m *Material) Clear(layer domain.LayerID) {
	cur := m.Snapshot()
	i := cur.index(layer)
	if i < 0 || cur.slots[i].Artifact == nil {
		return
	}
	next := cur.Slots()
	next[i].Artifact = nil
	next[i].Level = domain.EmptyLevel
	next[i].Pitch = domain.IdentityPitch
	next[i].Inherited = false
	m.publish(next)
}

func (m *Material) SetVisibility(layer domain.LayerID, visible bool, opacity float64) {
	cur := m.Snapshot()
	i := cur.index(layer)
	if i < 0 || (cur.slots[i].Visible == visible && cur.slots[i].Opacity == opacity) {
		return
	}
	next := cur.Slots()
	next[i].Visible = visible
	next[i].Opacity = opacity
	m.publish(next)
}

// SetLayerOrder renumbers slots by their position in order. Layers missing
// from order keep their relative order after the listed ones.
func (m *Material) SetLayerOrder(order []domain.LayerID) {
	next := m.Snapshot().Slots()
	for i := range next {
		if pos := slices.Index(order, next[i].Layer); pos >= 0 {
			next[i].Order = pos
		} else {
			next[i].Order = len(order) + next[i].Order
		}
	}
	m.publish(next)
}

func (m *Material) publish(slots []Slot) {
	slices.SortStableFunc(slots, func(a, b Slot) int { return a.Order - b.Order })
	m.cur.Store(&Snapshot{slots: slots})
}
