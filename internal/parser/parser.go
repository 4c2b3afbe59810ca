// Package parser turns raw payloads into artifacts. Every decoder is pure:
// the same bytes and options always give the same artifact or error.
package parser

import (
	"fmt"

	"github.com/jaennil/guide_helper/backend/tiletree/internal/domain"
	"github.com/paulmach/orb"
	"github.com/paulmach/orb/maptile"
)

type Options struct {
	Kind   domain.LayerKind
	Format string
	Tile   maptile.Tile
	Extent orb.Bound
	Level  int
}

// Parse decodes data according to the layer kind and payload format.
func Parse(data []byte, opts Options) (domain.Artifact, error) {
	if len(data) == 0 {
		return nil, domain.Errorf(domain.ErrOutOfRange, "parse", "empty %s payload", opts.Format)
	}

	switch opts.Kind {
	case domain.ColorLayer:
		return DecodeTexture(data, opts.Extent, opts.Level)
	case domain.ElevationLayer:
		switch opts.Format {
		case "f32", "float32":
			return DecodeFloat32Grid(data, opts.Extent, opts.Level)
		default:
			return DecodeTerrainRGB(data, opts.Extent, opts.Level)
		}
	case domain.GeometryLayer:
		switch opts.Format {
		case "mvt", "pbf":
			return DecodeMVT(data, opts.Extent)
		case "geojson", "json":
			return DecodeGeoJSON(data, opts.Extent)
		}
	}
	return nil, domain.NewError(domain.ErrFormat, "parse", fmt.Errorf("no decoder for %s payload of %s layer", opts.Format, opts.Kind))
}
