package domain

import (
	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
)

// Artifact is the decoded or built result of a command.
type Artifact interface {
	// Size approximates the memory held by the artifact, in bytes.
	Size() int
}

// Texture is a decoded RGBA raster.
type Texture struct {
	Width  int
	Height int
	Pix    []uint8
	Extent orb.Bound
	Level  int
}

func (t *Texture) Size() int { return len(t.Pix) }

// ElevationGrid is a row-major height field, north row first.
type ElevationGrid struct {
	Width  int
	Height int
	Values []float32
	Min    float32
	Max    float32
	Extent orb.Bound
	Level  int
}

func (g *ElevationGrid) Size() int { return 4 * len(g.Values) }

// FeatureSet is a parsed, unclipped collection of vector features.
type FeatureSet struct {
	Features []*geojson.Feature
	Extent   orb.Bound
}

func (f *FeatureSet) Size() int {
	n := 0
	for _, feat := range f.Features {
		n += 64 + 16*pointCount(feat.Geometry)
	}
	return n
}

type MeshPrimitive int

const (
	MeshPoints MeshPrimitive = iota
	MeshLines
	MeshTriangles
)

// Mesh is a renderable primitive set: flat xyz positions and an index list.
type Mesh struct {
	Primitive  MeshPrimitive
	Positions  []float64
	Indices    []uint32
	Properties map[string]any
}

// FeatureMesh is the per-tile mesh set built from features masked to the
// tile's extent.
type FeatureMesh struct {
	Meshes []Mesh
	Extent orb.Bound
}

func (m *FeatureMesh) Size() int {
	n := 0
	for _, mesh := range m.Meshes {
		n += 8*len(mesh.Positions) + 4*len(mesh.Indices)
	}
	return n
}

// TileGeometry is the regular grid mesh built for a tile by subdivision.
type TileGeometry struct {
	Extent    orb.Bound
	Segments  int
	Positions []float32
	UVs       []float32
	Indices   []uint32
}

func (g *TileGeometry) Size() int {
	return 4*len(g.Positions) + 4*len(g.UVs) + 4*len(g.Indices)
}

func pointCount(g orb.Geometry) int {
	switch geom := g.(type) {
	case orb.Point:
		return 1
	case orb.MultiPoint:
		return len(geom)
	case orb.LineString:
		return len(geom)
	case orb.MultiLineString:
		n := 0
		for _, ls := range geom {
			n += len(ls)
		}
		return n
	case orb.Ring:
		return len(geom)
	case orb.Polygon:
		n := 0
		for _, r := range geom {
			n += len(r)
		}
		return n
	case orb.MultiPolygon:
		n := 0
		for _, p := range geom {
			n += pointCount(p)
		}
		return n
	case orb.Collection:
		n := 0
		for _, c := range geom {
			n += pointCount(c)
		}
		return n
	}
	return 0
}
