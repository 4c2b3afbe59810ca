package parser

import (
	"fmt"

	"github.com/jaennil/guide_helper/backend/tiletree/internal/domain"
	"github.com/paulmach/orb"
	"github.com/paulmach/orb/encoding/mvt"
	"github.com/paulmach/orb/geojson"
	"github.com/paulmach/orb/project"
)

// DecodeGeoJSON accepts a FeatureCollection or a single Feature.
func DecodeGeoJSON(data []byte, extent orb.Bound) (*domain.FeatureSet, error) {
	fc, err := geojson.UnmarshalFeatureCollection(data)
	if err == nil {
		return &domain.FeatureSet{Features: fc.Features, Extent: extent}, nil
	}
	f, ferr := geojson.UnmarshalFeature(data)
	if ferr != nil || f.Geometry == nil {
		return nil, domain.NewError(domain.ErrFormat, "decode geojson", err)
	}
	return &domain.FeatureSet{Features: []*geojson.Feature{f}, Extent: extent}, nil
}

// DecodeMVT decodes a vector tile and places its tile-local coordinates in
// extent, north-west corner first. The layer name is kept as a "layer"
// property on every feature.
func DecodeMVT(data []byte, extent orb.Bound) (*domain.FeatureSet, error) {
	var (
		layers mvt.Layers
		err    error
	)
	if len(data) > 2 && data[0] == 0x1f && data[1] == 0x8b {
		layers, err = mvt.UnmarshalGzipped(data)
	} else {
		layers, err = mvt.Unmarshal(data)
	}
	if err != nil {
		return nil, domain.NewError(domain.ErrFormat, "decode mvt", err)
	}

	set := &domain.FeatureSet{Extent: extent}
	for _, l := range layers {
		if l.Extent == 0 {
			return nil, domain.NewError(domain.ErrFormat, "decode mvt", fmt.Errorf("layer %q has zero extent", l.Name))
		}
		proj := tileToExtent(float64(l.Extent), extent)
		for _, f := range l.Features {
			if f.Geometry == nil {
				continue
			}
			f.Geometry = project.Geometry(f.Geometry, proj)
			if f.Properties == nil {
				f.Properties = geojson.Properties{}
			}
			f.Properties["layer"] = l.Name
			set.Features = append(set.Features, f)
		}
	}
	return set, nil
}

func tileToExtent(size float64, extent orb.Bound) orb.Projection {
	w := extent.Max[0] - extent.Min[0]
	h := extent.Max[1] - extent.Min[1]
	return func(p orb.Point) orb.Point {
		return orb.Point{
			extent.Min[0] + p[0]/size*w,
			extent.Max[1] - p[1]/size*h,
		}
	}
}
