package provider

import (
	"github.com/jaennil/guide_helper/backend/tiletree/internal/domain"
	"github.com/paulmach/orb"
	"github.com/paulmach/orb/clip"
)

// buildFeatureMesh masks set to extent and converts what remains into mesh
// primitives. Merged output has one mesh per primitive kind, lines first;
// otherwise every feature gets its own mesh carrying its properties.
// Polygons are emitted as their ring outlines.
func buildFeatureMesh(set *domain.FeatureSet, extent orb.Bound, merged bool) *domain.FeatureMesh {
	out := &domain.FeatureMesh{Extent: extent}
	var lines, points domain.Mesh
	lines.Primitive = domain.MeshLines
	points.Primitive = domain.MeshPoints

	for _, f := range set.Features {
		if f.Geometry == nil || !f.Geometry.Bound().Intersects(extent) {
			continue
		}
		g := clip.Geometry(extent, f.Geometry)
		if g == nil {
			continue
		}

		if merged {
			appendGeometry(&lines, &points, g)
			continue
		}

		var fl, fp domain.Mesh
		fl.Primitive = domain.MeshLines
		fp.Primitive = domain.MeshPoints
		appendGeometry(&fl, &fp, g)
		for _, m := range []domain.Mesh{fl, fp} {
			if len(m.Positions) == 0 {
				continue
			}
			m.Properties = map[string]any(f.Properties)
			out.Meshes = append(out.Meshes, m)
		}
	}

	if merged {
		for _, m := range []domain.Mesh{lines, points} {
			if len(m.Positions) > 0 {
				out.Meshes = append(out.Meshes, m)
			}
		}
	}
	return out
}

func appendGeometry(lines, points *domain.Mesh, g orb.Geometry) {
	switch geom := g.(type) {
	case orb.Point:
		appendPoint(points, geom)
	case orb.MultiPoint:
		for _, p := range geom {
			appendPoint(points, p)
		}
	case orb.LineString:
		appendPath(lines, geom)
	case orb.MultiLineString:
		for _, ls := range geom {
			appendPath(lines, ls)
		}
	case orb.Ring:
		appendPath(lines, geom)
	case orb.Polygon:
		for _, r := range geom {
			appendPath(lines, r)
		}
	case orb.MultiPolygon:
		for _, p := range geom {
			appendGeometry(lines, points, p)
		}
	case orb.Collection:
		for _, c := range geom {
			appendGeometry(lines, points, c)
		}
	case orb.Bound:
		appendGeometry(lines, points, geom.ToPolygon())
	}
}

func appendPoint(m *domain.Mesh, p orb.Point) {
	m.Indices = append(m.Indices, uint32(len(m.Positions)/3))
	m.Positions = append(m.Positions, p[0], p[1], 0)
}

// appendPath adds one segment per consecutive vertex pair. Closed rings
// already repeat their first vertex.
func appendPath(m *domain.Mesh, path []orb.Point) {
	if len(path) < 2 {
		return
	}
	first := uint32(len(m.Positions) / 3)
	for _, p := range path {
		m.Positions = append(m.Positions, p[0], p[1], 0)
	}
	for i := 1; i < len(path); i++ {
		m.Indices = append(m.Indices, first+uint32(i-1), first+uint32(i))
	}
}
